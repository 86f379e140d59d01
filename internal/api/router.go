// Package api provides the HTTP API for runforge.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bargom/runforge/internal/api/handlers"
	"github.com/bargom/runforge/internal/auth"
	"github.com/bargom/runforge/pkg/logging"
	"github.com/bargom/runforge/pkg/metrics"
)

// RouterConfig holds optional collaborators for the router.
type RouterConfig struct {
	Auth     *auth.Middleware
	Logger   *logging.Logger
	Registry *metrics.Registry
}

// NewRouter creates a Chi router with all routes and middleware configured.
// Health and metrics are public; every run route requires a bearer token.
func NewRouter(h *handlers.Handler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if cfg.Logger != nil {
		r.Use(logging.RequestLogger(cfg.Logger.Logger))
	}
	if cfg.Registry != nil {
		r.Use(metrics.HTTPMiddleware(cfg.Registry, "/health", "/metrics"))
	}
	r.Use(jsonContentType)

	r.Get("/health", h.Health)
	if cfg.Registry != nil {
		r.Handle("/metrics", cfg.Registry.Handler())
	}

	r.Route("/runs", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Authenticate)
		}
		r.Post("/", h.InitiateRun)
		r.Get("/", h.ListRuns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetRun)
			r.Post("/retry", h.RetryRun)
			r.Post("/result", h.RecordRunResult)
			r.Route("/files/{index}", func(r chi.Router) {
				r.Get("/output", h.GetOutputFile)
				r.Post("/result", h.RecordFileResult)
			})
		})
	})

	return r
}

// jsonContentType is middleware that sets the Content-Type header to application/json.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
