package metrics

import (
	"net/http"
	"regexp"
	"time"
)

// metricsResponseWriter wraps http.ResponseWriter to capture the status code.
type metricsResponseWriter struct {
	http.ResponseWriter
	status int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		status:         http.StatusOK,
	}
}

func (w *metricsResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush implements http.Flusher for streaming responses.
func (w *metricsResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap returns the original ResponseWriter for http.ResponseController.
func (w *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// HTTPMiddleware returns an HTTP middleware that records metrics for each request.
// Path segments that look like identifiers are normalized to keep cardinality bounded.
func HTTPMiddleware(registry *Registry, skipPaths ...string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := NormalizePath(r.URL.Path)
			if skip[path] {
				next.ServeHTTP(w, r)
				return
			}

			method := r.Method
			httpMetrics := registry.HTTP()

			httpMetrics.IncActiveRequests(method, path)
			defer httpMetrics.DecActiveRequests(method, path)

			wrapped := newMetricsResponseWriter(w)
			start := time.Now()

			next.ServeHTTP(wrapped, r)

			httpMetrics.RecordRequest(method, path, wrapped.status, time.Since(start).Seconds())
		})
	}
}

var (
	uuidPattern      = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	numericIDPattern = regexp.MustCompile(`/\d+(?:/|$)`)
)

// NormalizePath replaces dynamic path segments with placeholders.
func NormalizePath(path string) string {
	path = uuidPattern.ReplaceAllString(path, "{id}")
	path = numericIDPattern.ReplaceAllStringFunc(path, func(s string) string {
		if s[len(s)-1] == '/' {
			return "/{id}/"
		}
		return "/{id}"
	})
	return path
}
