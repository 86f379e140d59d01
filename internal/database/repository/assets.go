package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bargom/runforge/internal/database"
	"github.com/bargom/runforge/internal/database/models"
	"github.com/google/uuid"
)

// AssetRepository handles vault asset persistence.
type AssetRepository struct {
	baseRepository
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db Querier, dialect database.Dialect) *AssetRepository {
	return &AssetRepository{baseRepository: newBaseRepository(db, dialect)}
}

// WithTx returns a new AssetRepository using the given transaction.
func (r *AssetRepository) WithTx(tx *sql.Tx) *AssetRepository {
	return NewAssetRepository(tx, r.dialect)
}

const assetColumns = "id, tenant_id, file_name, content_type, size_bytes, created_at"

// Create inserts a new asset record.
func (r *AssetRepository) Create(ctx context.Context, a *models.Asset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := r.rebind(`
		INSERT INTO assets (id, tenant_id, file_name, content_type, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.TenantID, a.FileName, a.ContentType, a.SizeBytes, a.CreatedAt,
	)
	return err
}

// GetByID retrieves a tenant-owned asset by its ID.
func (r *AssetRepository) GetByID(ctx context.Context, id, tenantID string) (*models.Asset, error) {
	query := r.rebind("SELECT " + assetColumns + " FROM assets WHERE id = ? AND tenant_id = ?")
	return r.scanAsset(r.db.QueryRowContext(ctx, query, id, tenantID))
}

// BulkGet resolves many asset IDs in a single query, scoped to the tenant.
// The result preserves the order of the requested IDs; IDs that did not
// resolve are simply absent.
func (r *AssetRepository) BulkGet(ctx context.Context, ids []string, tenantID string) ([]*models.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := r.rebind("SELECT " + assetColumns + " FROM assets WHERE tenant_id = ? AND id IN (" + placeholders + ")")

	args := make([]any, 0, len(ids)+1)
	args = append(args, tenantID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*models.Asset, len(ids))
	for rows.Next() {
		a := &models.Asset{}
		if err := rows.Scan(&a.ID, &a.TenantID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		byID[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	assets := make([]*models.Asset, 0, len(byID))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			assets = append(assets, a)
		}
	}
	return assets, nil
}

func (r *AssetRepository) scanAsset(row *sql.Row) (*models.Asset, error) {
	a := &models.Asset{}
	err := row.Scan(&a.ID, &a.TenantID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning asset: %w", err)
	}
	return a, nil
}
