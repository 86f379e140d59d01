package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bargom/runforge/internal/database"
	"github.com/bargom/runforge/internal/database/models"
	"github.com/google/uuid"
)

// TemplateRepository handles workflow template and version persistence.
type TemplateRepository struct {
	baseRepository
}

// NewTemplateRepository creates a new TemplateRepository.
func NewTemplateRepository(db Querier, dialect database.Dialect) *TemplateRepository {
	return &TemplateRepository{baseRepository: newBaseRepository(db, dialect)}
}

// WithTx returns a new TemplateRepository using the given transaction.
func (r *TemplateRepository) WithTx(tx *sql.Tx) *TemplateRepository {
	return NewTemplateRepository(tx, r.dialect)
}

const templateColumns = "id, tenant_id, name, credits_per_run, status, deleted_at, created_at"

// Create inserts a new template.
func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = models.TemplateStatusDraft
	}

	query := r.rebind(`
		INSERT INTO templates (id, tenant_id, name, credits_per_run, status, deleted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.TenantID, t.Name, t.CreditsPerRun, string(t.Status), t.DeletedAt, t.CreatedAt,
	)
	return err
}

// CreateVersion inserts a new template version. When IsCurrent is set, any
// previous current version of the template is demoted first.
func (r *TemplateRepository) CreateVersion(ctx context.Context, v *models.TemplateVersion) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	if v.IsCurrent {
		demote := r.rebind("UPDATE template_versions SET is_current = FALSE WHERE template_id = ?")
		if _, err := r.db.ExecContext(ctx, demote, v.TemplateID); err != nil {
			return fmt.Errorf("demoting current version: %w", err)
		}
	}

	query := r.rebind(`
		INSERT INTO template_versions (id, template_id, version_number, definition, is_current, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.TemplateID, v.VersionNumber, string(v.Definition), v.IsCurrent, v.CreatedAt,
	)
	return err
}

// GetByID retrieves a template, excluding soft-deleted ones.
func (r *TemplateRepository) GetByID(ctx context.Context, id, tenantID string) (*models.Template, error) {
	query := r.rebind(`
		SELECT ` + templateColumns + `
		FROM templates
		WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL
	`)
	return r.scanTemplate(r.db.QueryRowContext(ctx, query, id, tenantID))
}

// GetPublished retrieves a published template and its current version.
// Soft-deleted templates are excluded: catalog visibility, not history.
func (r *TemplateRepository) GetPublished(ctx context.Context, id, tenantID string) (*models.Template, *models.TemplateVersion, error) {
	query := r.rebind(`
		SELECT ` + templateColumns + `
		FROM templates
		WHERE id = ? AND tenant_id = ? AND status = ? AND deleted_at IS NULL
	`)
	t, err := r.scanTemplate(r.db.QueryRowContext(ctx, query, id, tenantID, string(models.TemplateStatusPublished)))
	if err != nil {
		return nil, nil, err
	}

	v, err := r.getCurrentVersion(ctx, t.ID)
	if err != nil {
		return nil, nil, err
	}
	return t, v, nil
}

// GetVersion retrieves a template version by its ID.
func (r *TemplateRepository) GetVersion(ctx context.Context, versionID string) (*models.TemplateVersion, error) {
	query := r.rebind(`
		SELECT id, template_id, version_number, definition, is_current, created_at
		FROM template_versions
		WHERE id = ?
	`)
	return r.scanVersion(r.db.QueryRowContext(ctx, query, versionID))
}

// GetTemplateByVersion resolves the owning template of a version.
// With includeDeleted set, soft-deleted templates are returned as well:
// a retry must price against the template the run was created with even
// if it has since been withdrawn.
func (r *TemplateRepository) GetTemplateByVersion(ctx context.Context, versionID, tenantID string, includeDeleted bool) (*models.Template, error) {
	query := `
		SELECT t.id, t.tenant_id, t.name, t.credits_per_run, t.status, t.deleted_at, t.created_at
		FROM templates t
		JOIN template_versions v ON v.template_id = t.id
		WHERE v.id = ? AND t.tenant_id = ?
	`
	if !includeDeleted {
		query += " AND t.deleted_at IS NULL"
	}
	return r.scanTemplate(r.db.QueryRowContext(ctx, r.rebind(query), versionID, tenantID))
}

// SoftDelete marks a template as deleted without removing history.
func (r *TemplateRepository) SoftDelete(ctx context.Context, id, tenantID string) error {
	query := r.rebind(`
		UPDATE templates SET deleted_at = ?
		WHERE id = ? AND tenant_id = ? AND deleted_at IS NULL
	`)
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id, tenantID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TemplateRepository) getCurrentVersion(ctx context.Context, templateID string) (*models.TemplateVersion, error) {
	query := r.rebind(`
		SELECT id, template_id, version_number, definition, is_current, created_at
		FROM template_versions
		WHERE template_id = ? AND is_current = TRUE
	`)
	return r.scanVersion(r.db.QueryRowContext(ctx, query, templateID))
}

func (r *TemplateRepository) scanTemplate(row *sql.Row) (*models.Template, error) {
	t := &models.Template{}
	var status string
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Name, &t.CreditsPerRun, &status, &t.DeletedAt, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning template: %w", err)
	}
	t.Status = models.TemplateStatus(status)
	return t, nil
}

func (r *TemplateRepository) scanVersion(row *sql.Row) (*models.TemplateVersion, error) {
	v := &models.TemplateVersion{}
	var definition string
	err := row.Scan(
		&v.ID, &v.TemplateID, &v.VersionNumber, &definition, &v.IsCurrent, &v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning template version: %w", err)
	}
	v.Definition = []byte(definition)
	return v, nil
}
