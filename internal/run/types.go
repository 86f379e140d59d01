// Package run implements workflow run coordination: input validation,
// credit metering, job dispatch, compensation and retry.
package run

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bargom/runforge/internal/database/models"
)

// InputRole classifies a declared input.
type InputRole string

const (
	// RoleSubject marks the per-file input that causes fan-out.
	RoleSubject InputRole = "subject"
	// RoleContext marks inputs shared by every job in a run.
	RoleContext InputRole = "context"
)

// InputSource is a value kind a declared input accepts.
type InputSource string

const (
	SourceUpload InputSource = "upload"
	SourceText   InputSource = "text"
)

// ProcessingMode selects the job topology for runs with subject files.
type ProcessingMode string

const (
	// ModeParallel fans out one job per subject file. The default.
	ModeParallel ProcessingMode = "parallel"
	// ModeBatch processes all subject files in a single job.
	ModeBatch ProcessingMode = "batch"
)

// DeclaredInput is one input slot declared by a workflow definition.
type DeclaredInput struct {
	Name     string        `json:"name"`
	Role     InputRole     `json:"role"`
	Required bool          `json:"required"`
	Sources  []InputSource `json:"sources"`
}

// Accepts reports whether the declared input allows the given source.
func (d DeclaredInput) Accepts(source InputSource) bool {
	for _, s := range d.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// Definition is the parsed workflow definition a version carries.
type Definition struct {
	ModelID        string          `json:"modelId"`
	ProcessingMode ProcessingMode  `json:"processingMode"`
	Inputs         []DeclaredInput `json:"inputs"`
}

// ParseDefinition decodes a stored definition document.
func ParseDefinition(raw json.RawMessage) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}
	if def.ProcessingMode == "" {
		def.ProcessingMode = ModeParallel
	}
	return &def, nil
}

// SubjectInput returns the definition's single subject-role input, or nil.
func (d *Definition) SubjectInput() *DeclaredInput {
	for i := range d.Inputs {
		if d.Inputs[i].Role == RoleSubject {
			return &d.Inputs[i]
		}
	}
	return nil
}

// Input returns the declared input with the given name, or nil.
func (d *Definition) Input(name string) *DeclaredInput {
	for i := range d.Inputs {
		if d.Inputs[i].Name == name {
			return &d.Inputs[i]
		}
	}
	return nil
}

// InputValueType discriminates supplied input values.
type InputValueType string

const (
	InputValueAsset InputValueType = "asset"
	InputValueText  InputValueType = "text"
)

// InputValue is one supplied input: either asset references or plain text.
type InputValue struct {
	Type     InputValueType `json:"type"`
	AssetIDs []string       `json:"assetIds,omitempty"`
	Text     string         `json:"text,omitempty"`
}

// Source maps the value to the declared-source vocabulary.
func (v InputValue) Source() InputSource {
	if v.Type == InputValueText {
		return SourceText
	}
	return SourceUpload
}

// Request carries the caller's intent to start a run.
type Request struct {
	TemplateID string                `json:"templateId"`
	Inputs     map[string]InputValue `json:"inputs"`
}

// Snapshot is the immutable copy of everything a retry needs to rebuild
// dispatch payloads without re-resolving the catalog.
type Snapshot struct {
	TemplateID    string                `json:"templateId"`
	TemplateName  string                `json:"templateName"`
	VersionID     string                `json:"versionId"`
	VersionNumber int                   `json:"versionNumber"`
	Definition    json.RawMessage       `json:"definition"`
	Inputs        map[string]InputValue `json:"inputs"`
}

// unmarshalSnapshot decodes a run's stored input snapshot.
func unmarshalSnapshot(raw json.RawMessage, snap *Snapshot) error {
	if err := json.Unmarshal(raw, snap); err != nil {
		return fmt.Errorf("parsing input snapshot: %w", err)
	}
	return nil
}

// JobFile identifies one subject file inside a job payload. Index is the
// file's permanent position in the run, reused verbatim on retries.
type JobFile struct {
	Index    int    `json:"index"`
	AssetID  string `json:"assetId"`
	FileName string `json:"fileName"`
}

// JobPayload is the document submitted to the queue for one job.
type JobPayload struct {
	RunID     string                `json:"runId"`
	TenantID  string                `json:"tenantId"`
	VersionID string                `json:"versionId"`
	ModelID   string                `json:"modelId"`
	Mode      ProcessingMode        `json:"mode"`
	IsTestRun bool                  `json:"isTestRun"`
	Context   map[string]InputValue `json:"context,omitempty"`
	Files     []JobFile             `json:"files,omitempty"`
}

// FileView is the API projection of a per-file result.
type FileView struct {
	Index         int    `json:"index"`
	FileName      string `json:"fileName"`
	Status        string `json:"status"`
	OutputAssetID string `json:"outputAssetId,omitempty"`
	RetryAttempt  int    `json:"retryAttempt"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// View is the API projection of a workflow run.
type View struct {
	ID                   string     `json:"id"`
	TenantID             string     `json:"tenantId"`
	VersionID            string     `json:"versionId"`
	Status               string     `json:"status"`
	StartedBy            string     `json:"startedBy"`
	CreditsConsumed      int64      `json:"creditsConsumed"`
	CreditsFromMonthly   int64      `json:"creditsFromMonthly"`
	CreditsFromPurchased int64      `json:"creditsFromPurchased"`
	IsTestRun            bool       `json:"isTestRun"`
	TotalJobs            int        `json:"totalJobs"`
	CompletedJobs        int        `json:"completedJobs"`
	FailedJobs           int        `json:"failedJobs"`
	PerFileResults       []FileView `json:"perFileResults"`
	OutputAssetIDs       []string   `json:"outputAssetIds"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// ViewFromModel converts a persisted run into its API projection.
func ViewFromModel(run *models.WorkflowRun) *View {
	v := &View{
		ID:                   run.ID,
		TenantID:             run.TenantID,
		VersionID:            run.VersionID,
		Status:               string(run.Status),
		StartedBy:            run.StartedBy,
		CreditsConsumed:      run.CreditsConsumed,
		CreditsFromMonthly:   run.CreditsFromMonthly,
		CreditsFromPurchased: run.CreditsFromPurchased,
		IsTestRun:            run.IsTestRun,
		TotalJobs:            run.TotalJobs,
		CompletedJobs:        run.CompletedJobs,
		FailedJobs:           run.FailedJobs,
		PerFileResults:       make([]FileView, 0, len(run.Files)),
		CreatedAt:            run.CreatedAt,
	}
	for _, f := range run.Files {
		fv := FileView{
			Index:        f.Index,
			FileName:     f.FileName,
			Status:       string(f.Status),
			RetryAttempt: f.RetryAttempt,
		}
		if f.OutputAssetID.Valid {
			fv.OutputAssetID = f.OutputAssetID.String
			v.OutputAssetIDs = append(v.OutputAssetIDs, f.OutputAssetID.String)
		}
		if f.ErrorMessage.Valid {
			fv.ErrorMessage = f.ErrorMessage.String
		}
		v.PerFileResults = append(v.PerFileResults, fv)
	}
	return v
}

// FileOutcome is a worker's report for one finished job or file.
type FileOutcome struct {
	Completed     bool
	OutputAssetID string
	ErrorMessage  string
}
