package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bargom/runforge/internal/auth"
	"github.com/bargom/runforge/internal/cache"
	"github.com/bargom/runforge/internal/catalog"
	"github.com/bargom/runforge/internal/credit"
	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/database/repository"
	"github.com/bargom/runforge/internal/queue"
	"github.com/bargom/runforge/pkg/logging"
	"github.com/bargom/runforge/pkg/metrics"
)

// Enqueuer submits jobs to the queue. Accepted is false when the queue
// already holds a job with the same id, which is not an error.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *queue.Job) (accepted bool, err error)
}

// runCacheTTL bounds staleness of cached run views between invalidations.
const runCacheTTL = 30 * time.Second

// ServiceConfig carries the collaborators a Service needs.
type ServiceConfig struct {
	DB      *sql.DB
	Repos   *repository.Repositories
	Queue   Enqueuer
	Models  ModelChecker
	Cache   cache.Cache
	Logger  *logging.Logger
	Metrics *metrics.RunMetrics
	Clock   func() time.Time
}

// Service coordinates the run lifecycle: initiation, retry, worker
// outcome callbacks and reads.
type Service struct {
	db      *sql.DB
	repos   *repository.Repositories
	catalog *catalog.Catalog
	queue   Enqueuer
	models  ModelChecker
	cache   cache.Cache
	logger  *logging.Logger
	metrics *metrics.RunMetrics
	now     func() time.Time
}

// NewService creates a Service. Nil optional collaborators get inert
// defaults so tests can construct a Service with only what they exercise.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Models == nil {
		cfg.Models = NewStaticModelChecker(nil)
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemoryCache(cache.DefaultConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry(metrics.DefaultConfig()).Run()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{
		db:      cfg.DB,
		repos:   cfg.Repos,
		catalog: catalog.New(cfg.Repos.Templates),
		queue:   cfg.Queue,
		models:  cfg.Models,
		cache:   cfg.Cache,
		logger:  cfg.Logger.WithComponent("run"),
		metrics: cfg.Metrics,
		now:     cfg.Clock,
	}
}

// InitiateRun validates the request, charges the tenant inside a single
// transaction and dispatches jobs after commit. A dispatch failure after
// commit triggers compensation and surfaces the dispatch error.
func (s *Service) InitiateRun(ctx context.Context, actor auth.Actor, req Request) (*View, error) {
	timer := s.metrics.NewInitiationTimer()

	template, version, err := s.catalog.FindPublishedVersion(ctx, req.TemplateID, actor.TenantID)
	if err != nil {
		s.metrics.RecordInitiation(metrics.OutcomeValidationFailed)
		return nil, err
	}

	def, err := ParseDefinition(version.Definition)
	if err != nil {
		return nil, err
	}

	if err := ValidateInputs(def, req.Inputs); err != nil {
		s.metrics.RecordInitiation(metrics.OutcomeValidationFailed)
		return nil, err
	}

	subjectFiles, err := resolveAllInputs(ctx, s.repos.Assets, def, req.Inputs, actor.TenantID)
	if err != nil {
		s.metrics.RecordInitiation(metrics.OutcomeValidationFailed)
		return nil, err
	}

	// Capability pre-check happens before any charge.
	if err := s.models.ValidateModelAvailability(ctx, def.ModelID); err != nil {
		s.metrics.RecordInitiation(metrics.OutcomeValidationFailed)
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, def.ModelID)
	}

	topology := SelectTopology(def.ProcessingMode, len(subjectFiles))
	totalJobs := topology.JobCount(len(subjectFiles))
	amount := int64(totalJobs) * template.CreditsPerRun
	isTestRun := actor.IsTestRun()

	snapshot, err := json.Marshal(Snapshot{
		TemplateID:    template.ID,
		TemplateName:  template.Name,
		VersionID:     version.ID,
		VersionNumber: version.VersionNumber,
		Definition:    version.Definition,
		Inputs:        req.Inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("building input snapshot: %w", err)
	}

	run := models.NewWorkflowRun(actor.TenantID, version.ID, actor.UserID, s.now())
	run.ID = uuid.New().String()
	run.InputSnapshot = snapshot
	run.IsTestRun = isTestRun
	run.Topology = string(topology)
	run.TotalJobs = totalJobs
	for i, asset := range subjectFiles {
		run.Files = append(run.Files, models.PerFileResult{
			RunID:    run.ID,
			Index:    i,
			FileName: asset.FileName,
			AssetID:  asset.ID,
			Status:   models.FileStatusPending,
		})
	}

	var split credit.Split
	err = repository.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		txRepos := s.repos.WithTx(tx)
		ledger := credit.NewLedgerWithClock(txRepos, s.now)

		split, err = ledger.CheckAndDeduct(ctx, actor.TenantID, amount, isTestRun)
		if err != nil {
			return err
		}

		run.CreditsConsumed = split.Total()
		run.CreditsFromMonthly = split.FromMonthly
		run.CreditsFromPurchased = split.FromPurchased
		return txRepos.Runs.Create(ctx, run)
	})
	if err != nil {
		if errors.Is(err, credit.ErrInsufficientCredits) {
			s.metrics.RecordInitiation(metrics.OutcomeInsufficientFunds)
		} else {
			s.metrics.RecordInitiation(metrics.OutcomeError)
		}
		return nil, err
	}
	s.metrics.RecordDeduction(int(split.FromMonthly), int(split.FromPurchased))

	jobFiles := make([]JobFile, 0, len(run.Files))
	for _, f := range run.Files {
		jobFiles = append(jobFiles, JobFile{Index: f.Index, AssetID: f.AssetID, FileName: f.FileName})
	}

	if err := s.dispatch(ctx, run, def, contextInputs(def, req.Inputs), jobFiles, string(topology)); err != nil {
		s.metrics.RecordInitiation(metrics.OutcomeDispatchFailed)
		s.compensateInitial(ctx, run, err)
		return nil, err
	}

	s.invalidateRun(ctx, run.TenantID, run.ID)
	s.metrics.RecordInitiation(metrics.OutcomeAccepted)
	timer.Done(string(topology))

	s.logger.WithTenant(run.TenantID).WithRun(run.ID).InfoContext(ctx, "run initiated",
		"topology", topology,
		"total_jobs", totalJobs,
		"credits_consumed", run.CreditsConsumed,
		"is_test_run", isTestRun,
	)
	return ViewFromModel(run), nil
}

// dispatch submits the run's jobs to the queue. The owning transaction
// has already committed; a duplicate job id means an earlier attempt
// already placed the job and is skipped silently.
func (s *Service) dispatch(ctx context.Context, run *models.WorkflowRun, def *Definition, shared map[string]InputValue, files []JobFile, topology string) error {
	jobs, err := buildJobs(run, def, shared, files)
	if err != nil {
		return err
	}

	dispatched := 0
	for _, job := range jobs {
		accepted, err := s.queue.Enqueue(ctx, job)
		if err != nil {
			s.metrics.RecordDispatchFailure()
			return &DispatchError{RunID: run.ID, JobID: job.ID, Err: err}
		}
		if accepted {
			dispatched++
		}
	}
	s.metrics.RecordJobsDispatched(topology, dispatched)
	return nil
}

// GetRun returns the run view, served from cache when fresh.
func (s *Service) GetRun(ctx context.Context, tenantID, runID string) (*View, error) {
	key := runCacheKey(tenantID, runID)

	var cached View
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	run, err := s.repos.Runs.GetByID(ctx, runID, tenantID)
	if err != nil {
		return nil, err
	}

	view := ViewFromModel(run)
	if err := s.cache.SetJSON(ctx, key, view, runCacheTTL); err != nil {
		s.logger.WarnContext(ctx, "caching run view failed", "run_id", runID, "error", err)
	}
	return view, nil
}

// ListRuns returns a page of the tenant's runs, newest first, and the
// total count for the filter.
func (s *Service) ListRuns(ctx context.Context, tenantID string, status models.RunStatus, page, limit int) ([]*View, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	runs, err := s.repos.Runs.List(ctx, tenantID, status, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repos.Runs.Count(ctx, tenantID, status)
	if err != nil {
		return nil, 0, err
	}

	views := make([]*View, 0, len(runs))
	for _, run := range runs {
		views = append(views, ViewFromModel(run))
	}
	return views, total, nil
}

// GetOutputFile returns the output asset for a completed file index.
func (s *Service) GetOutputFile(ctx context.Context, tenantID, runID string, index int) (*models.Asset, error) {
	if _, err := s.repos.Runs.GetByID(ctx, runID, tenantID); err != nil {
		return nil, err
	}

	file, err := s.repos.Runs.GetFile(ctx, runID, index)
	if err != nil {
		return nil, err
	}
	if file.Status != models.FileStatusCompleted || !file.OutputAssetID.Valid {
		return nil, ErrOutputNotReady
	}

	return s.repos.Assets.GetByID(ctx, file.OutputAssetID.String, tenantID)
}

// RecordFileOutcome applies a worker's report for one subject file. In
// fan-out runs each file is a job, so counters advance per report and the
// run reaches a terminal state once no file is left pending.
func (s *Service) RecordFileOutcome(ctx context.Context, tenantID, runID string, index int, outcome FileOutcome) (*View, error) {
	var result *models.WorkflowRun

	err := repository.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		txRepos := s.repos.WithTx(tx)

		run, err := txRepos.Runs.GetForUpdate(ctx, runID, tenantID)
		if err != nil {
			return err
		}

		file, err := txRepos.Runs.GetFile(ctx, runID, index)
		if err != nil {
			return err
		}

		if outcome.Completed {
			file.Status = models.FileStatusCompleted
			file.OutputAssetID = sql.NullString{String: outcome.OutputAssetID, Valid: outcome.OutputAssetID != ""}
			file.ErrorMessage = sql.NullString{}
		} else {
			file.Status = models.FileStatusFailed
			file.OutputAssetID = sql.NullString{}
			file.ErrorMessage = sql.NullString{String: outcome.ErrorMessage, Valid: outcome.ErrorMessage != ""}
		}
		if err := txRepos.Runs.UpdateFile(ctx, file); err != nil {
			return err
		}

		for i := range run.Files {
			if run.Files[i].Index == index {
				run.Files[i] = *file
			}
		}

		// One job per file only in fan-out topology. Batch runs carry
		// per-file results too, but their single job reports separately.
		if Topology(run.Topology) == TopologyFanOut {
			if outcome.Completed {
				run.CompletedJobs++
			} else {
				run.FailedJobs++
			}
		}

		s.applyTerminalState(run)
		if err := txRepos.Runs.Update(ctx, run); err != nil {
			return err
		}
		result = run
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRun(ctx, tenantID, runID)
	return ViewFromModel(result), nil
}

// RecordRunOutcome applies a worker's report for a single-job run
// (context-only or batch topology). Per-file outcomes, if any, must have
// been reported separately before the final run outcome.
func (s *Service) RecordRunOutcome(ctx context.Context, tenantID, runID string, success bool, errMsg string) (*View, error) {
	var result *models.WorkflowRun

	err := repository.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		txRepos := s.repos.WithTx(tx)

		run, err := txRepos.Runs.GetForUpdate(ctx, runID, tenantID)
		if err != nil {
			return err
		}

		if success {
			run.CompletedJobs++
			run.Status = models.RunStatusCompleted
		} else {
			run.FailedJobs++
			run.Status = models.RunStatusFailed
			run.ErrorMessage = sql.NullString{String: errMsg, Valid: errMsg != ""}
		}
		if err := txRepos.Runs.Update(ctx, run); err != nil {
			return err
		}
		result = run
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateRun(ctx, tenantID, runID)
	return ViewFromModel(result), nil
}

// applyTerminalState moves a fan-out run to RUNNING on the first report
// and to a terminal status once every file has an outcome. Single-job
// runs only advance to RUNNING here; their terminal status comes from
// the run-level report.
func (s *Service) applyTerminalState(run *models.WorkflowRun) {
	if Topology(run.Topology) != TopologyFanOut {
		if run.Status == models.RunStatusQueued {
			run.Status = models.RunStatusRunning
		}
		return
	}

	pending, failed := 0, 0
	for _, f := range run.Files {
		switch f.Status {
		case models.FileStatusPending:
			pending++
		case models.FileStatusFailed:
			failed++
		}
	}

	switch {
	case pending > 0:
		run.Status = models.RunStatusRunning
	case failed > 0:
		run.Status = models.RunStatusFailed
	default:
		run.Status = models.RunStatusCompleted
	}
}

func runCacheKey(tenantID, runID string) string {
	return fmt.Sprintf("run:%s:%s", tenantID, runID)
}

// invalidateRun drops the cached view after any run mutation.
func (s *Service) invalidateRun(ctx context.Context, tenantID, runID string) {
	if err := s.cache.Delete(ctx, runCacheKey(tenantID, runID)); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", "run_id", runID, "error", err)
	}
}
