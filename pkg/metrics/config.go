// Package metrics provides Prometheus metrics collection for runforge.
package metrics

// Config holds configuration for the metrics module.
type Config struct {
	// Namespace is the prefix for all metrics (default: "runforge")
	Namespace string

	// EnableProcessMetrics enables Go process metrics (CPU, memory, goroutines)
	EnableProcessMetrics bool

	// EnableRuntimeMetrics enables Go runtime metrics
	EnableRuntimeMetrics bool

	// HistogramBuckets allows customizing default histogram buckets
	HistogramBuckets HistogramBucketsConfig
}

// HistogramBucketsConfig holds custom bucket configurations for different metric types.
type HistogramBucketsConfig struct {
	// HTTPDuration buckets for HTTP request duration in seconds
	HTTPDuration []float64

	// InitiationDuration buckets for run initiation duration in seconds,
	// covering validation, the credit transaction and dispatch
	InitiationDuration []float64
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:            "runforge",
		EnableProcessMetrics: true,
		EnableRuntimeMetrics: true,
		HistogramBuckets:     DefaultHistogramBuckets(),
	}
}

// DefaultHistogramBuckets returns the default histogram bucket configurations.
func DefaultHistogramBuckets() HistogramBucketsConfig {
	return HistogramBucketsConfig{
		HTTPDuration:       []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		InitiationDuration: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}
}
