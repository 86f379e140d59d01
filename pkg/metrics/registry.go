package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry manages all Prometheus metrics for runforge.
type Registry struct {
	config   Config
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpActiveRequests  *prometheus.GaugeVec

	// Run metrics
	runsInitiatedTotal    *prometheus.CounterVec
	runRetriesTotal       *prometheus.CounterVec
	runInitiationDuration *prometheus.HistogramVec
	jobsDispatchedTotal   *prometheus.CounterVec
	dispatchFailuresTotal prometheus.Counter
	compensationsTotal    *prometheus.CounterVec

	// Credit metrics
	creditsDeductedTotal *prometheus.CounterVec
	creditsRefundedTotal prometheus.Counter
}

// Global registry instance
var (
	globalRegistry *Registry
	once           sync.Once
)

// NewRegistry creates a new metrics registry with the given configuration.
func NewRegistry(config Config) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		config:   config,
		registry: reg,
	}

	r.registerHTTPMetrics()
	r.registerRunMetrics()
	r.registerCreditMetrics()

	// Register process and runtime metrics if enabled
	if config.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if config.EnableRuntimeMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}

	return r
}

// Global returns the global registry instance, initializing it with default config if needed.
func Global() *Registry {
	once.Do(func() {
		globalRegistry = NewRegistry(DefaultConfig())
	})
	return globalRegistry
}

// SetGlobal sets the global registry instance.
func SetGlobal(r *Registry) {
	globalRegistry = r
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.config
}

func (r *Registry) registerHTTPMetrics() {
	ns := r.config.Namespace

	r.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status_code"},
	)

	r.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   r.config.HistogramBuckets.HTTPDuration,
		},
		[]string{"method", "path"},
	)

	r.httpActiveRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of currently active HTTP requests",
		},
		[]string{"method", "path"},
	)

	r.registry.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.httpActiveRequests,
	)
}

func (r *Registry) registerRunMetrics() {
	ns := r.config.Namespace

	r.runsInitiatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "initiated_total",
			Help:      "Total number of run initiation attempts",
		},
		[]string{"outcome"},
	)

	r.runRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "retries_total",
			Help:      "Total number of run retry attempts",
		},
		[]string{"outcome"},
	)

	r.runInitiationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "initiation_duration_seconds",
			Help:      "Run initiation duration in seconds",
			Buckets:   r.config.HistogramBuckets.InitiationDuration,
		},
		[]string{"topology"},
	)

	r.jobsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "jobs_dispatched_total",
			Help:      "Total number of jobs accepted by the queue",
		},
		[]string{"topology"},
	)

	r.dispatchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "dispatch_failures_total",
			Help:      "Total number of runs whose job dispatch failed after commit",
		},
	)

	r.compensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "run",
			Name:      "compensations_total",
			Help:      "Total number of credit compensation attempts after dispatch failure",
		},
		[]string{"outcome"},
	)

	r.registry.MustRegister(
		r.runsInitiatedTotal,
		r.runRetriesTotal,
		r.runInitiationDuration,
		r.jobsDispatchedTotal,
		r.dispatchFailuresTotal,
		r.compensationsTotal,
	)
}

func (r *Registry) registerCreditMetrics() {
	ns := r.config.Namespace

	r.creditsDeductedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "credit",
			Name:      "deducted_total",
			Help:      "Total credits deducted, by pool",
		},
		[]string{"pool"},
	)

	r.creditsRefundedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "credit",
			Name:      "refunded_total",
			Help:      "Total purchased credits refunded by compensation",
		},
	)

	r.registry.MustRegister(
		r.creditsDeductedTotal,
		r.creditsRefundedTotal,
	)
}
