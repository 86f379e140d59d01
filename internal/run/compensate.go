package run

import (
	"context"
	"database/sql"

	"github.com/bargom/runforge/internal/credit"
	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/database/repository"
	"github.com/bargom/runforge/pkg/metrics"
)

// compensateInitial undoes an initial charge after dispatch failed on a
// freshly created run: the purchased portion goes back to the tenant
// balance, the run's credit fields are zeroed so the monthly portion
// drops out of the usage sum, and the run is marked FAILED.
//
// A compensation failure is logged as an operational incident and never
// surfaced to the caller, who already sees the dispatch error.
func (s *Service) compensateInitial(ctx context.Context, run *models.WorkflowRun, dispatchErr error) {
	err := repository.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		txRepos := s.repos.WithTx(tx)
		ledger := credit.NewLedgerWithClock(txRepos, s.now)

		locked, err := txRepos.Runs.GetForUpdate(ctx, run.ID, run.TenantID)
		if err != nil {
			return err
		}

		if err := ledger.Refund(ctx, run.TenantID, locked.CreditsFromPurchased); err != nil {
			return err
		}
		refunded := locked.CreditsFromPurchased

		locked.CreditsConsumed = 0
		locked.CreditsFromMonthly = 0
		locked.CreditsFromPurchased = 0
		locked.Status = models.RunStatusFailed
		locked.ErrorMessage = sql.NullString{String: "job dispatch failed: " + dispatchErr.Error(), Valid: true}
		if err := txRepos.Runs.Update(ctx, locked); err != nil {
			return err
		}

		s.metrics.RecordRefund(int(refunded))
		return nil
	})

	log := s.logger.WithTenant(run.TenantID).WithRun(run.ID)
	if err != nil {
		s.metrics.RecordCompensation(metrics.OutcomeCompensationFailed)
		log.ErrorContext(ctx, "compensation failed, credits may be stuck, manual intervention required",
			"dispatch_error", dispatchErr,
			"compensation_error", err,
		)
		return
	}

	s.metrics.RecordCompensation(metrics.OutcomeCompensated)
	s.invalidateRun(ctx, run.TenantID, run.ID)
	log.WarnContext(ctx, "run compensated after dispatch failure", "dispatch_error", dispatchErr)
}

// compensateRetry undoes a retry charge after dispatch failed. Unlike the
// initial path, prior successful charges must survive: the newly added
// split is subtracted from the run's totals rather than zeroing them.
func (s *Service) compensateRetry(ctx context.Context, run *models.WorkflowRun, charge credit.Split, dispatchErr error) {
	err := repository.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		txRepos := s.repos.WithTx(tx)
		ledger := credit.NewLedgerWithClock(txRepos, s.now)

		locked, err := txRepos.Runs.GetForUpdate(ctx, run.ID, run.TenantID)
		if err != nil {
			return err
		}

		if err := ledger.Refund(ctx, run.TenantID, charge.FromPurchased); err != nil {
			return err
		}

		locked.CreditsConsumed -= charge.Total()
		locked.CreditsFromMonthly -= charge.FromMonthly
		locked.CreditsFromPurchased -= charge.FromPurchased
		locked.Status = models.RunStatusFailed
		locked.ErrorMessage = sql.NullString{String: "retry dispatch failed: " + dispatchErr.Error(), Valid: true}
		if err := txRepos.Runs.Update(ctx, locked); err != nil {
			return err
		}

		s.metrics.RecordRefund(int(charge.FromPurchased))
		return nil
	})

	log := s.logger.WithTenant(run.TenantID).WithRun(run.ID)
	if err != nil {
		s.metrics.RecordCompensation(metrics.OutcomeCompensationFailed)
		log.ErrorContext(ctx, "compensation failed, credits may be stuck, manual intervention required",
			"dispatch_error", dispatchErr,
			"compensation_error", err,
		)
		return
	}

	s.metrics.RecordCompensation(metrics.OutcomeCompensated)
	s.invalidateRun(ctx, run.TenantID, run.ID)
	log.WarnContext(ctx, "retry compensated after dispatch failure", "dispatch_error", dispatchErr)
}
