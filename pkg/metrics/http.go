package metrics

import (
	"strconv"
)

// HTTPMetrics provides methods to record HTTP-related metrics.
type HTTPMetrics struct {
	registry *Registry
}

// HTTP returns the HTTP metrics interface for the registry.
func (r *Registry) HTTP() *HTTPMetrics {
	return &HTTPMetrics{registry: r}
}

// RecordRequest records metrics for a completed HTTP request.
func (m *HTTPMetrics) RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	m.registry.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.registry.httpRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// IncActiveRequests increments the active request gauge.
func (m *HTTPMetrics) IncActiveRequests(method, path string) {
	m.registry.httpActiveRequests.WithLabelValues(method, path).Inc()
}

// DecActiveRequests decrements the active request gauge.
func (m *HTTPMetrics) DecActiveRequests(method, path string) {
	m.registry.httpActiveRequests.WithLabelValues(method, path).Dec()
}
