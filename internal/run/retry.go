package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bargom/runforge/internal/auth"
	"github.com/bargom/runforge/internal/catalog"
	"github.com/bargom/runforge/internal/credit"
	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/database/repository"
	"github.com/bargom/runforge/pkg/metrics"
)

// RetryFailed reopens a run's failed and pending files, charges for the
// failed ones and re-dispatches using the original per-file job ids.
//
// Guards run under an exclusive lock on the run row, so two concurrent
// retries of the same run serialize here and the loser is rejected by the
// RUNNING guard. Only files currently failed are charged; pending files
// were never attempted and retry for free. The new charge is added to the
// run's totals, preserving charge history, and the deduction is always
// metered as a regular run regardless of who initiated the original.
func (s *Service) RetryFailed(ctx context.Context, actor auth.Actor, runID string) (*View, error) {
	var (
		result  *models.WorkflowRun
		split   credit.Split
		toRetry []models.PerFileResult
	)

	err := repository.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		txRepos := s.repos.WithTx(tx)

		run, err := txRepos.Runs.GetForUpdate(ctx, runID, actor.TenantID)
		if err != nil {
			return err
		}

		if run.Status == models.RunStatusRunning {
			return ErrRunAlreadyRunning
		}
		toRetry = run.RetryableFiles()
		if len(toRetry) == 0 {
			return ErrNothingToRetry
		}
		for _, f := range toRetry {
			if f.RetryAttempt >= run.MaxRetryCount {
				return fmt.Errorf("%w: file %d is at attempt %d of %d",
					ErrMaxRetriesExceeded, f.Index, f.RetryAttempt, run.MaxRetryCount)
			}
		}

		// Soft-deleted templates still price retries at their original rate.
		price, err := catalog.New(txRepos.Templates).PriceForVersion(ctx, run.VersionID, actor.TenantID)
		if err != nil {
			return err
		}
		amount := int64(len(run.FailedFiles())) * price

		split, err = credit.NewLedgerWithClock(txRepos, s.now).CheckAndDeduct(ctx, actor.TenantID, amount, false)
		if err != nil {
			return err
		}

		for i := range run.Files {
			f := &run.Files[i]
			if f.Status != models.FileStatusFailed && f.Status != models.FileStatusPending {
				continue
			}
			f.Status = models.FileStatusPending
			f.RetryAttempt++
			f.ErrorMessage = sql.NullString{}
			if err := txRepos.Runs.UpdateFile(ctx, f); err != nil {
				return err
			}
		}

		run.Status = models.RunStatusRunning
		run.CompletedJobs = 0
		run.FailedJobs = 0
		run.CreditsConsumed += split.Total()
		run.CreditsFromMonthly += split.FromMonthly
		run.CreditsFromPurchased += split.FromPurchased
		run.LastRetriedAt = sql.NullTime{Time: s.now().UTC(), Valid: true}
		run.ErrorMessage = sql.NullString{}
		if err := txRepos.Runs.Update(ctx, run); err != nil {
			return err
		}
		result = run
		return nil
	})
	if err != nil {
		s.metrics.RecordRetry(retryOutcome(err))
		return nil, err
	}
	s.metrics.RecordDeduction(int(split.FromMonthly), int(split.FromPurchased))

	// Dispatch payloads are rebuilt from the immutable snapshot, never
	// from a fresh catalog lookup. A snapshot that no longer parses means
	// no job can be dispatched for the committed charge, so it is
	// compensated the same way a queue failure is.
	var snapshot Snapshot
	if err := unmarshalSnapshot(result.InputSnapshot, &snapshot); err != nil {
		s.metrics.RecordRetry(metrics.OutcomeDispatchFailed)
		s.compensateRetry(ctx, result, split, err)
		return nil, err
	}
	def, err := ParseDefinition(snapshot.Definition)
	if err != nil {
		s.metrics.RecordRetry(metrics.OutcomeDispatchFailed)
		s.compensateRetry(ctx, result, split, err)
		return nil, err
	}

	files := make([]JobFile, 0, len(toRetry))
	for _, f := range toRetry {
		files = append(files, JobFile{Index: f.Index, AssetID: f.AssetID, FileName: f.FileName})
	}
	topology := SelectTopology(def.ProcessingMode, len(files))

	if err := s.dispatch(ctx, result, def, contextInputs(def, snapshot.Inputs), files, string(topology)); err != nil {
		s.metrics.RecordRetry(metrics.OutcomeDispatchFailed)
		s.compensateRetry(ctx, result, split, err)
		return nil, err
	}

	s.invalidateRun(ctx, result.TenantID, result.ID)
	s.metrics.RecordRetry(metrics.OutcomeAccepted)

	s.logger.WithTenant(result.TenantID).WithRun(result.ID).InfoContext(ctx, "run retried",
		"files_retried", len(toRetry),
		"credits_charged", split.Total(),
	)
	return ViewFromModel(result), nil
}

func retryOutcome(err error) metrics.Outcome {
	switch {
	case errors.Is(err, ErrRunAlreadyRunning),
		errors.Is(err, ErrNothingToRetry),
		errors.Is(err, ErrMaxRetriesExceeded):
		return metrics.OutcomeConflict
	case errors.Is(err, credit.ErrInsufficientCredits):
		return metrics.OutcomeInsufficientFunds
	default:
		return metrics.OutcomeError
	}
}
