package types

import (
	"time"

	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/run"
)

// Pagination defaults for list endpoints.
const (
	DefaultLimit    = 20
	DefaultMaxLimit = 100
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// ListRunsResponse is a page of run views.
type ListRunsResponse struct {
	Runs  []*run.View `json:"runs"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

// OutputFileResponse describes the output asset of a completed file.
type OutputFileResponse struct {
	AssetID     string    `json:"assetId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType,omitempty"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// OutputFileFromModel converts an asset to its API projection.
func OutputFileFromModel(a *models.Asset) *OutputFileResponse {
	resp := &OutputFileResponse{
		AssetID:   a.ID,
		FileName:  a.FileName,
		SizeBytes: a.SizeBytes,
		CreatedAt: a.CreatedAt,
	}
	if a.ContentType.Valid {
		resp.ContentType = a.ContentType.String
	}
	return resp
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}
