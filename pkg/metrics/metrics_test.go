package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/runs", "/runs"},
		{"/runs/550e8400-e29b-41d4-a716-446655440000", "/runs/{id}"},
		{"/runs/550e8400-e29b-41d4-a716-446655440000/retry", "/runs/{id}/retry"},
		{"/runs/550e8400-e29b-41d4-a716-446655440000/files/3/output", "/runs/{id}/files/{id}/output"},
		{"/health", "/health"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePath(tt.in))
		})
	}
}

func TestRunMetrics_Record(t *testing.T) {
	registry := NewRegistry(DefaultConfig())
	rm := registry.Run()

	rm.RecordInitiation(OutcomeAccepted)
	rm.RecordInitiation(OutcomeAccepted)
	rm.RecordInitiation(OutcomeInsufficientFunds)
	rm.RecordRetry(OutcomeConflict)
	rm.RecordDeduction(2, 1)
	rm.RecordRefund(1)
	rm.RecordJobsDispatched("fan-out", 3)
	rm.RecordDispatchFailure()
	rm.RecordCompensation(OutcomeCompensated)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(registry.runsInitiatedTotal.WithLabelValues(string(OutcomeAccepted))))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.runsInitiatedTotal.WithLabelValues(string(OutcomeInsufficientFunds))))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.runRetriesTotal.WithLabelValues(string(OutcomeConflict))))
	assert.Equal(t, float64(2),
		testutil.ToFloat64(registry.creditsDeductedTotal.WithLabelValues("monthly")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.creditsDeductedTotal.WithLabelValues("purchased")))
	assert.Equal(t, float64(1), testutil.ToFloat64(registry.creditsRefundedTotal))
	assert.Equal(t, float64(3),
		testutil.ToFloat64(registry.jobsDispatchedTotal.WithLabelValues("fan-out")))
	assert.Equal(t, float64(1), testutil.ToFloat64(registry.dispatchFailuresTotal))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.compensationsTotal.WithLabelValues(string(OutcomeCompensated))))
}

func TestHTTPMiddleware(t *testing.T) {
	registry := NewRegistry(DefaultConfig())

	handler := HTTPMiddleware(registry, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/runs/550e8400-e29b-41d4-a716-446655440000", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, float64(1), testutil.ToFloat64(
		registry.httpRequestsTotal.WithLabelValues(http.MethodGet, "/runs/{id}", "200")))

	// Skipped paths are never recorded.
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	count, err := testutil.GatherAndCount(registry.PrometheusRegistry(),
		"runforge_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegistryHandler(t *testing.T) {
	registry := NewRegistry(DefaultConfig())
	registry.Run().RecordInitiation(OutcomeAccepted)

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "runforge_run_initiated_total"))
}
