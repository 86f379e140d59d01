// Package repository implements the repository pattern for data access.
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bargom/runforge/internal/database"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// Querier is an interface that can execute queries.
// Both *sql.DB and *sql.Tx implement this interface.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// baseRepository provides common functionality for all repositories.
type baseRepository struct {
	db      Querier
	dialect database.Dialect
}

func newBaseRepository(db Querier, dialect database.Dialect) baseRepository {
	return baseRepository{db: db, dialect: dialect}
}

// rebind rewrites `?` placeholders for the active dialect.
func (r baseRepository) rebind(query string) string {
	return r.dialect.Rebind(query)
}

// Repositories bundles all repositories over a single Querier.
type Repositories struct {
	dialect database.Dialect

	Tenants   *TenantRepository
	Templates *TemplateRepository
	Assets    *AssetRepository
	Runs      *RunRepository
}

// New creates the repository bundle for the given database handle.
func New(db Querier, dialect database.Dialect) *Repositories {
	return &Repositories{
		dialect:   dialect,
		Tenants:   NewTenantRepository(db, dialect),
		Templates: NewTemplateRepository(db, dialect),
		Assets:    NewAssetRepository(db, dialect),
		Runs:      NewRunRepository(db, dialect),
	}
}

// WithTx returns a repository bundle bound to the given transaction.
func (r *Repositories) WithTx(tx *sql.Tx) *Repositories {
	return New(tx, r.dialect)
}

// Dialect returns the SQL dialect the repositories are bound to.
func (r *Repositories) Dialect() database.Dialect {
	return r.dialect
}

// WithinTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func WithinTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
