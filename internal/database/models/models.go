// Package models defines domain models for the database layer.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// FileStatus represents the state of a single subject file within a run.
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"
	FileStatusCompleted FileStatus = "completed"
	FileStatusFailed    FileStatus = "failed"
)

// TemplateStatus represents catalog visibility of a workflow template.
type TemplateStatus string

const (
	TemplateStatusDraft     TemplateStatus = "draft"
	TemplateStatusPublished TemplateStatus = "published"
)

// Tenant holds the per-tenant credit pools. PurchasedCredits is a
// decrementing balance; MonthlyCredits is a quota whose usage is computed
// from run history, never decremented here.
type Tenant struct {
	ID               string
	Name             string
	PurchasedCredits int64
	MonthlyCredits   int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Template is a workflow template owned by a tenant.
type Template struct {
	ID            string
	TenantID      string
	Name          string
	CreditsPerRun int64
	Status        TemplateStatus
	DeletedAt     sql.NullTime
	CreatedAt     time.Time
}

// IsDeleted returns true if the template has been soft-deleted.
func (t *Template) IsDeleted() bool {
	return t.DeletedAt.Valid
}

// TemplateVersion is one immutable version of a template definition.
type TemplateVersion struct {
	ID            string
	TemplateID    string
	VersionNumber int
	Definition    json.RawMessage
	IsCurrent     bool
	CreatedAt     time.Time
}

// Asset is a file stored in the vault, owned by a tenant.
type Asset struct {
	ID          string
	TenantID    string
	FileName    string
	ContentType sql.NullString
	SizeBytes   int64
	CreatedAt   time.Time
}

// WorkflowRun is one execution attempt of a workflow version for a tenant.
//
// CreditsConsumed always equals CreditsFromMonthly + CreditsFromPurchased.
// Topology is fixed at initiation and never changes afterwards. TotalJobs
// equals the subject-file count in fan-out mode, 1 otherwise.
type WorkflowRun struct {
	ID                   string
	TenantID             string
	VersionID            string
	Status               RunStatus
	StartedBy            string
	InputSnapshot        json.RawMessage
	CreditsConsumed      int64
	CreditsFromMonthly   int64
	CreditsFromPurchased int64
	IsTestRun            bool
	Topology             string
	TotalJobs            int
	CompletedJobs        int
	FailedJobs           int
	MaxRetryCount        int
	LastRetriedAt        sql.NullTime
	ErrorMessage         sql.NullString
	CreatedAt            time.Time
	UpdatedAt            time.Time

	// Files is the ordered per-file result list, loaded alongside the run.
	Files []PerFileResult
}

// PerFileResult is one subject file's outcome within a run. Index is
// origin-assigned and never renumbered across retries.
type PerFileResult struct {
	RunID         string
	Index         int
	FileName      string
	AssetID       string
	Status        FileStatus
	OutputAssetID sql.NullString
	RetryAttempt  int
	ErrorMessage  sql.NullString
}

// NewWorkflowRun creates a queued run with sensible defaults, timestamped
// at now. Callers with an injected clock must pass its reading so the
// run's created_at lands in the same billing period the ledger computes.
func NewWorkflowRun(tenantID, versionID, startedBy string, now time.Time) *WorkflowRun {
	now = now.UTC()
	return &WorkflowRun{
		TenantID:      tenantID,
		VersionID:     versionID,
		Status:        RunStatusQueued,
		StartedBy:     startedBy,
		MaxRetryCount: 3,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewTenant creates a Tenant with sensible defaults.
func NewTenant(name string) *Tenant {
	now := time.Now().UTC()
	return &Tenant{
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FailedFiles returns the files currently in the failed state.
func (r *WorkflowRun) FailedFiles() []PerFileResult {
	var out []PerFileResult
	for _, f := range r.Files {
		if f.Status == FileStatusFailed {
			out = append(out, f)
		}
	}
	return out
}

// RetryableFiles returns the files eligible for a retry pass: those that
// failed plus those never attempted.
func (r *WorkflowRun) RetryableFiles() []PerFileResult {
	var out []PerFileResult
	for _, f := range r.Files {
		if f.Status == FileStatusFailed || f.Status == FileStatusPending {
			out = append(out, f)
		}
	}
	return out
}

// IsFinished returns true when every job has reported an outcome.
func (r *WorkflowRun) IsFinished() bool {
	return r.TotalJobs > 0 && r.CompletedJobs+r.FailedJobs >= r.TotalJobs
}
