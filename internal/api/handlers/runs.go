package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bargom/runforge/internal/api/types"
	"github.com/bargom/runforge/internal/auth"
	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/run"
)

// InitiateRun handles POST /runs.
func (h *Handler) InitiateRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req types.InitiateRunRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	view, err := h.runs.InitiateRun(r.Context(), actor, req.ToRunRequest())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, view)
}

// RetryRun handles POST /runs/{id}/retry.
func (h *Handler) RetryRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	view, err := h.runs.RetryFailed(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// ListRuns handles GET /runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	page, limit := getPageParams(r)
	status := models.RunStatus(r.URL.Query().Get("status"))

	views, total, err := h.runs.ListRuns(r.Context(), actor.TenantID, status, page, limit)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, types.ListRunsResponse{
		Runs:  views,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	view, err := h.runs.GetRun(r.Context(), actor.TenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// GetOutputFile handles GET /runs/{id}/files/{index}/output.
func (h *Handler) GetOutputFile(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		h.respondError(w, http.StatusBadRequest, "file index must be a non-negative integer")
		return
	}

	asset, err := h.runs.GetOutputFile(r.Context(), actor.TenantID, chi.URLParam(r, "id"), index)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, types.OutputFileFromModel(asset))
}

// RecordFileResult handles POST /runs/{id}/files/{index}/result, the
// worker callback for one subject file's outcome.
func (h *Handler) RecordFileResult(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		h.respondError(w, http.StatusBadRequest, "file index must be a non-negative integer")
		return
	}

	var req types.FileResultRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	view, err := h.runs.RecordFileOutcome(r.Context(), actor.TenantID, chi.URLParam(r, "id"), index, run.FileOutcome{
		Completed:     req.Completed,
		OutputAssetID: req.OutputAssetID,
		ErrorMessage:  req.ErrorMessage,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

// RecordRunResult handles POST /runs/{id}/result, the worker callback
// for single-job runs.
func (h *Handler) RecordRunResult(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req types.RunResultRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.respondValidationError(w, err)
		return
	}

	view, err := h.runs.RecordRunOutcome(r.Context(), actor.TenantID, chi.URLParam(r, "id"), req.Completed, req.ErrorMessage)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}
