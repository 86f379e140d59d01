// Package handlers contains HTTP request handlers for the API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/bargom/runforge/internal/api/types"
	"github.com/bargom/runforge/internal/catalog"
	"github.com/bargom/runforge/internal/credit"
	"github.com/bargom/runforge/internal/database/repository"
	"github.com/bargom/runforge/internal/run"
	"github.com/bargom/runforge/pkg/logging"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	runs     *run.Service
	validate *validator.Validate
	logger   *logging.Logger
	dbPing   func(ctx context.Context) error
	qPing    func(ctx context.Context) error
}

// NewHandler creates a new Handler over the run service.
func NewHandler(runs *run.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		runs:     runs,
		validate: validator.New(),
		logger:   logger.WithComponent("api"),
	}
}

// WithHealthChecks registers component health probes for the Health endpoint.
func (h *Handler) WithHealthChecks(db, queue func(ctx context.Context) error) *Handler {
	h.dbPing = db
	h.qPing = queue
	return h
}

// respondJSON writes a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Response already started, nothing left to do.
			return
		}
	}
}

// respondError writes a JSON error response with the given status code.
func (h *Handler) respondError(w http.ResponseWriter, code int, message string) {
	h.respondJSON(w, code, types.ErrorResponse{Error: message})
}

// respondServiceError maps a service error onto an HTTP status.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *run.ValidationError
		unresolved    *run.UnresolvedAssetsError
		insufficient  *credit.InsufficientCreditsError
		dispatchErr   *run.DispatchError
	)

	switch {
	case errors.As(err, &validationErr), errors.As(err, &unresolved):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotPublished), errors.Is(err, run.ErrModelUnavailable):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficient):
		h.respondJSON(w, http.StatusPaymentRequired, types.ErrorResponse{
			Error: "insufficient credits",
			Details: map[string]string{
				"required":  strconv.FormatInt(insufficient.Required, 10),
				"available": strconv.FormatInt(insufficient.Available(), 10),
			},
		})
	case errors.Is(err, repository.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, run.ErrRunAlreadyRunning),
		errors.Is(err, run.ErrNothingToRetry),
		errors.Is(err, run.ErrMaxRetriesExceeded),
		errors.Is(err, run.ErrOutputNotReady):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &dispatchErr):
		h.logger.ErrorContext(r.Context(), "dispatch failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "run could not be dispatched")
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondValidationError writes a JSON validation error response.
func (h *Handler) respondValidationError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make(map[string]string)
		for _, e := range validationErrs {
			details[e.Field()] = formatValidationError(e)
		}
		h.respondJSON(w, http.StatusBadRequest, types.ErrorResponse{
			Error:   "validation failed",
			Details: details,
		})
		return
	}
	h.respondError(w, http.StatusBadRequest, "invalid input")
}

// formatValidationError formats a validation error into a human-readable message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

// decodeAndValidate decodes and validates a JSON request body.
func (h *Handler) decodeAndValidate(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

// getPageParams extracts page/limit query parameters.
func getPageParams(r *http.Request) (page, limit int) {
	page, limit = 1, types.DefaultLimit

	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			if parsed > types.DefaultMaxLimit {
				parsed = types.DefaultMaxLimit
			}
			limit = parsed
		}
	}
	return page, limit
}
