package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/bargom/runforge/internal/api/types"
)

// Health handles GET /health. A degraded component turns the overall
// status unhealthy and the response code 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string)
	healthy := true

	check := func(name string, ping func(ctx context.Context) error) {
		if ping == nil {
			return
		}
		if err := ping(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			healthy = false
			return
		}
		components[name] = "healthy"
	}
	check("database", h.dbPing)
	check("queue", h.qPing)

	resp := types.HealthResponse{
		Status:     "healthy",
		Components: components,
		Timestamp:  time.Now().UTC(),
	}
	code := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	h.respondJSON(w, code, resp)
}
