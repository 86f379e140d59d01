package logging

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"
	// TenantIDKey is the context key for tenant IDs.
	TenantIDKey contextKey = "tenant_id"
)

// WithRequestID returns a context carrying the given request ID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithTenantID returns a context carrying the given tenant ID.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantIDKey, tenantID)
}

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
	config Config
}

// New creates a new Logger with the given configuration.
func New(config Config) *Logger {
	return NewWithWriter(config, config.GetOutput())
}

// NewWithWriter creates a new Logger with a custom writer.
func NewWithWriter(config Config, w io.Writer) *Logger {
	level := ParseLevel(config.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	// Wrap with context handler to extract values from context
	contextHandler := &ContextHandler{
		Handler:    handler,
		sampleRate: config.SampleRate,
	}

	return &Logger{
		Logger: slog.New(contextHandler),
		config: config,
	}
}

// SetDefault sets this logger as the default slog logger.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

// With returns a new Logger with the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		config: l.config,
	}
}

// WithComponent returns a new Logger with component context.
func (l *Logger) WithComponent(component string) *Logger {
	return l.With("component", component)
}

// WithTenant returns a new Logger with tenant context.
func (l *Logger) WithTenant(tenantID string) *Logger {
	return l.With("tenant_id", tenantID)
}

// WithRun returns a new Logger with run context.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithJob returns a new Logger with job context.
func (l *Logger) WithJob(jobID string) *Logger {
	return l.With("job_id", jobID)
}

// ContextHandler is a slog.Handler that extracts context values.
type ContextHandler struct {
	slog.Handler
	sampleRate float64
}

// Enabled reports whether the handler handles records at the given level.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Apply sampling for debug logs
	if level == slog.LevelDebug && h.sampleRate < 1.0 {
		if rand.Float64() > h.sampleRate {
			return false
		}
	}
	return h.Handler.Enabled(ctx, level)
}

// Handle adds context values to the log record and passes to the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		r.AddAttrs(slog.String("request_id", requestID))
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok && tenantID != "" {
		r.AddAttrs(slog.String("tenant_id", tenantID))
	}

	return h.Handler.Handle(ctx, r)
}

// WithAttrs returns a new ContextHandler with the given attributes.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		Handler:    h.Handler.WithAttrs(attrs),
		sampleRate: h.sampleRate,
	}
}

// WithGroup returns a new ContextHandler with the given group.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{
		Handler:    h.Handler.WithGroup(name),
		sampleRate: h.sampleRate,
	}
}

// Default returns a default logger using environment configuration.
func Default() *Logger {
	return New(ConfigFromEnv())
}
