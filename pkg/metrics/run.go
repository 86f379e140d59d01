package metrics

import (
	"time"
)

// RunMetrics provides methods to record run and credit related metrics.
type RunMetrics struct {
	registry *Registry
}

// Run returns the run metrics interface for the registry.
func (r *Registry) Run() *RunMetrics {
	return &RunMetrics{registry: r}
}

// Outcome labels the result of an initiation, retry or compensation attempt.
type Outcome string

const (
	OutcomeAccepted           Outcome = "accepted"
	OutcomeValidationFailed   Outcome = "validation_failed"
	OutcomeInsufficientFunds  Outcome = "insufficient_funds"
	OutcomeDispatchFailed     Outcome = "dispatch_failed"
	OutcomeConflict           Outcome = "conflict"
	OutcomeError              Outcome = "error"
	OutcomeCompensated        Outcome = "compensated"
	OutcomeCompensationFailed Outcome = "compensation_failed"
)

// RecordInitiation records the outcome of a run initiation attempt.
func (m *RunMetrics) RecordInitiation(outcome Outcome) {
	m.registry.runsInitiatedTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordRetry records the outcome of a run retry attempt.
func (m *RunMetrics) RecordRetry(outcome Outcome) {
	m.registry.runRetriesTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordInitiationDuration records how long a successful initiation took,
// labelled by the topology that was dispatched.
func (m *RunMetrics) RecordInitiationDuration(topology string, duration time.Duration) {
	m.registry.runInitiationDuration.WithLabelValues(topology).Observe(duration.Seconds())
}

// RecordJobsDispatched records jobs accepted by the queue for a run.
func (m *RunMetrics) RecordJobsDispatched(topology string, count int) {
	m.registry.jobsDispatchedTotal.WithLabelValues(topology).Add(float64(count))
}

// RecordDispatchFailure records a run whose dispatch failed after commit.
func (m *RunMetrics) RecordDispatchFailure() {
	m.registry.dispatchFailuresTotal.Inc()
}

// RecordCompensation records a compensation attempt outcome.
func (m *RunMetrics) RecordCompensation(outcome Outcome) {
	m.registry.compensationsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordDeduction records a successful credit deduction split across pools.
func (m *RunMetrics) RecordDeduction(fromMonthly, fromPurchased int) {
	if fromMonthly > 0 {
		m.registry.creditsDeductedTotal.WithLabelValues("monthly").Add(float64(fromMonthly))
	}
	if fromPurchased > 0 {
		m.registry.creditsDeductedTotal.WithLabelValues("purchased").Add(float64(fromPurchased))
	}
}

// RecordRefund records purchased credits returned by compensation.
func (m *RunMetrics) RecordRefund(amount int) {
	if amount > 0 {
		m.registry.creditsRefundedTotal.Add(float64(amount))
	}
}

// InitiationTimer times a run initiation through to dispatch.
type InitiationTimer struct {
	metrics *RunMetrics
	start   time.Time
}

// NewInitiationTimer creates a timer starting now.
func (m *RunMetrics) NewInitiationTimer() *InitiationTimer {
	return &InitiationTimer{metrics: m, start: time.Now()}
}

// Done records the elapsed duration for the given topology.
func (t *InitiationTimer) Done(topology string) {
	t.metrics.RecordInitiationDuration(topology, time.Since(t.start))
}
