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

// TenantRepository handles tenant persistence, including the credit pools.
type TenantRepository struct {
	baseRepository
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db Querier, dialect database.Dialect) *TenantRepository {
	return &TenantRepository{baseRepository: newBaseRepository(db, dialect)}
}

// WithTx returns a new TenantRepository using the given transaction.
func (r *TenantRepository) WithTx(tx *sql.Tx) *TenantRepository {
	return NewTenantRepository(tx, r.dialect)
}

const tenantColumns = "id, name, purchased_credits, monthly_credits, created_at, updated_at"

// Create inserts a new tenant.
func (r *TenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}

	query := r.rebind(`
		INSERT INTO tenants (id, name, purchased_credits, monthly_credits, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Name, t.PurchasedCredits, t.MonthlyCredits, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// GetByID retrieves a tenant by its ID.
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := r.rebind("SELECT " + tenantColumns + " FROM tenants WHERE id = ?")
	return r.scanTenant(r.db.QueryRowContext(ctx, query, id))
}

// GetForUpdate retrieves a tenant while taking an exclusive lock on its row.
// Must be called within a transaction; the lock is held until commit or
// rollback, serializing all concurrent credit operations for the tenant.
func (r *TenantRepository) GetForUpdate(ctx context.Context, id string) (*models.Tenant, error) {
	query := r.rebind("SELECT "+tenantColumns+" FROM tenants WHERE id = ?") + r.dialect.LockSuffix()
	return r.scanTenant(r.db.QueryRowContext(ctx, query, id))
}

// AdjustPurchasedCredits atomically changes the purchased balance by delta.
// Deductions pass a negative delta; refunds a positive one.
func (r *TenantRepository) AdjustPurchasedCredits(ctx context.Context, id string, delta int64) error {
	query := r.rebind(`
		UPDATE tenants
		SET purchased_credits = purchased_credits + ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query, delta, time.Now().UTC(), id)
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

// Update persists mutable tenant fields.
func (r *TenantRepository) Update(ctx context.Context, t *models.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	query := r.rebind(`
		UPDATE tenants
		SET name = ?, purchased_credits = ?, monthly_credits = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		t.Name, t.PurchasedCredits, t.MonthlyCredits, t.UpdatedAt, t.ID,
	)
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

func (r *TenantRepository) scanTenant(row *sql.Row) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := row.Scan(
		&t.ID, &t.Name, &t.PurchasedCredits, &t.MonthlyCredits, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tenant: %w", err)
	}
	return t, nil
}
