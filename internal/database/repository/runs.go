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

// RunRepository handles workflow run and per-file result persistence.
// It is the single source of truth for run status.
type RunRepository struct {
	baseRepository
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db Querier, dialect database.Dialect) *RunRepository {
	return &RunRepository{baseRepository: newBaseRepository(db, dialect)}
}

// WithTx returns a new RunRepository using the given transaction.
func (r *RunRepository) WithTx(tx *sql.Tx) *RunRepository {
	return NewRunRepository(tx, r.dialect)
}

const runColumns = `id, tenant_id, version_id, status, started_by, input_snapshot,
	credits_consumed, credits_from_monthly, credits_from_purchased, is_test_run,
	topology, total_jobs, completed_jobs, failed_jobs, max_retry_count, last_retried_at,
	error_message, created_at, updated_at`

// Create inserts a new run together with its per-file result rows.
func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}

	query := r.rebind(`
		INSERT INTO workflow_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.TenantID, run.VersionID, string(run.Status), run.StartedBy, string(run.InputSnapshot),
		run.CreditsConsumed, run.CreditsFromMonthly, run.CreditsFromPurchased, run.IsTestRun,
		run.Topology, run.TotalJobs, run.CompletedJobs, run.FailedJobs, run.MaxRetryCount, run.LastRetriedAt,
		run.ErrorMessage, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i := range run.Files {
		run.Files[i].RunID = run.ID
		if err := r.insertFile(ctx, &run.Files[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *RunRepository) insertFile(ctx context.Context, f *models.PerFileResult) error {
	query := r.rebind(`
		INSERT INTO run_files (run_id, idx, file_name, asset_id, status, output_asset_id, retry_attempt, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		f.RunID, f.Index, f.FileName, f.AssetID, string(f.Status), f.OutputAssetID, f.RetryAttempt, f.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("inserting run file %d: %w", f.Index, err)
	}
	return nil
}

// GetByID retrieves a run with its file results, scoped to the tenant.
func (r *RunRepository) GetByID(ctx context.Context, id, tenantID string) (*models.WorkflowRun, error) {
	query := r.rebind("SELECT " + runColumns + " FROM workflow_runs WHERE id = ? AND tenant_id = ?")
	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		return nil, err
	}
	if err := r.loadFiles(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetForUpdate retrieves a run while taking an exclusive lock on its row.
// Must be called within a transaction; concurrent retries of the same run
// serialize on this lock.
func (r *RunRepository) GetForUpdate(ctx context.Context, id, tenantID string) (*models.WorkflowRun, error) {
	query := r.rebind("SELECT "+runColumns+" FROM workflow_runs WHERE id = ? AND tenant_id = ?") + r.dialect.LockSuffix()
	run, err := r.scanRun(r.db.QueryRowContext(ctx, query, id, tenantID))
	if err != nil {
		return nil, err
	}
	if err := r.loadFiles(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// List retrieves a tenant's runs, newest first, optionally filtered by status.
func (r *RunRepository) List(ctx context.Context, tenantID string, status models.RunStatus, limit, offset int) ([]*models.WorkflowRun, error) {
	query := "SELECT " + runColumns + " FROM workflow_runs WHERE tenant_id = ?"
	args := []any{tenantID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.WorkflowRun
	for rows.Next() {
		run, err := r.scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, run := range runs {
		if err := r.loadFiles(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Count returns the number of a tenant's runs matching the status filter.
func (r *RunRepository) Count(ctx context.Context, tenantID string, status models.RunStatus) (int, error) {
	query := "SELECT COUNT(*) FROM workflow_runs WHERE tenant_id = ?"
	args := []any{tenantID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}

	var count int
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Update persists the run's mutable fields (status, counters, credit fields,
// retry bookkeeping). File rows are updated separately via UpdateFile.
func (r *RunRepository) Update(ctx context.Context, run *models.WorkflowRun) error {
	run.UpdatedAt = time.Now().UTC()
	query := r.rebind(`
		UPDATE workflow_runs
		SET status = ?, credits_consumed = ?, credits_from_monthly = ?, credits_from_purchased = ?,
			total_jobs = ?, completed_jobs = ?, failed_jobs = ?, max_retry_count = ?,
			last_retried_at = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		string(run.Status), run.CreditsConsumed, run.CreditsFromMonthly, run.CreditsFromPurchased,
		run.TotalJobs, run.CompletedJobs, run.FailedJobs, run.MaxRetryCount,
		run.LastRetriedAt, run.ErrorMessage, run.UpdatedAt, run.ID,
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

// GetFile retrieves one per-file result by its permanent index.
func (r *RunRepository) GetFile(ctx context.Context, runID string, index int) (*models.PerFileResult, error) {
	query := r.rebind(`
		SELECT run_id, idx, file_name, asset_id, status, output_asset_id, retry_attempt, error_message
		FROM run_files
		WHERE run_id = ? AND idx = ?
	`)
	f := &models.PerFileResult{}
	var status string
	err := r.db.QueryRowContext(ctx, query, runID, index).Scan(
		&f.RunID, &f.Index, &f.FileName, &f.AssetID, &status, &f.OutputAssetID, &f.RetryAttempt, &f.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run file: %w", err)
	}
	f.Status = models.FileStatus(status)
	return f, nil
}

// UpdateFile persists a per-file result's mutable fields.
func (r *RunRepository) UpdateFile(ctx context.Context, f *models.PerFileResult) error {
	query := r.rebind(`
		UPDATE run_files
		SET status = ?, output_asset_id = ?, retry_attempt = ?, error_message = ?
		WHERE run_id = ? AND idx = ?
	`)
	result, err := r.db.ExecContext(ctx, query,
		string(f.Status), f.OutputAssetID, f.RetryAttempt, f.ErrorMessage, f.RunID, f.Index,
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

// SumMonthlyCreditsSince computes how much of the monthly quota the tenant
// has used: the sum of credits_from_monthly over non-test runs created at or
// after the period start. Compensated runs drop out naturally because the
// compensation zeroes their credits_from_monthly field.
func (r *RunRepository) SumMonthlyCreditsSince(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	query := r.rebind(`
		SELECT COALESCE(SUM(credits_from_monthly), 0)
		FROM workflow_runs
		WHERE tenant_id = ? AND is_test_run = FALSE AND created_at >= ?
	`)
	var sum int64
	if err := r.db.QueryRowContext(ctx, query, tenantID, since).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing monthly usage: %w", err)
	}
	return sum, nil
}

func (r *RunRepository) loadFiles(ctx context.Context, run *models.WorkflowRun) error {
	query := r.rebind(`
		SELECT run_id, idx, file_name, asset_id, status, output_asset_id, retry_attempt, error_message
		FROM run_files
		WHERE run_id = ?
		ORDER BY idx
	`)
	rows, err := r.db.QueryContext(ctx, query, run.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	run.Files = nil
	for rows.Next() {
		var f models.PerFileResult
		var status string
		if err := rows.Scan(&f.RunID, &f.Index, &f.FileName, &f.AssetID, &status, &f.OutputAssetID, &f.RetryAttempt, &f.ErrorMessage); err != nil {
			return fmt.Errorf("scanning run file: %w", err)
		}
		f.Status = models.FileStatus(status)
		run.Files = append(run.Files, f)
	}
	return rows.Err()
}

func (r *RunRepository) scanRun(row *sql.Row) (*models.WorkflowRun, error) {
	run := &models.WorkflowRun{}
	var status, snapshot string
	err := row.Scan(
		&run.ID, &run.TenantID, &run.VersionID, &status, &run.StartedBy, &snapshot,
		&run.CreditsConsumed, &run.CreditsFromMonthly, &run.CreditsFromPurchased, &run.IsTestRun,
		&run.Topology, &run.TotalJobs, &run.CompletedJobs, &run.FailedJobs, &run.MaxRetryCount, &run.LastRetriedAt,
		&run.ErrorMessage, &run.CreatedAt, &run.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Status = models.RunStatus(status)
	run.InputSnapshot = []byte(snapshot)
	return run, nil
}

func (r *RunRepository) scanRunRows(rows *sql.Rows) (*models.WorkflowRun, error) {
	run := &models.WorkflowRun{}
	var status, snapshot string
	err := rows.Scan(
		&run.ID, &run.TenantID, &run.VersionID, &status, &run.StartedBy, &snapshot,
		&run.CreditsConsumed, &run.CreditsFromMonthly, &run.CreditsFromPurchased, &run.IsTestRun,
		&run.Topology, &run.TotalJobs, &run.CompletedJobs, &run.FailedJobs, &run.MaxRetryCount, &run.LastRetriedAt,
		&run.ErrorMessage, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Status = models.RunStatus(status)
	run.InputSnapshot = []byte(snapshot)
	return run, nil
}
