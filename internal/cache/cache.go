// Package cache provides read caching with Redis and in-memory backends.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not found in the cache.
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the interface for cache operations.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Typed operations
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error

	// Key management
	DeletePattern(ctx context.Context, pattern string) error

	// Lifecycle
	Close() error
	Health(ctx context.Context) error

	// Stats
	Stats() Stats
}

// Stats holds cache statistics.
type Stats struct {
	Hits   int64
	Misses int64
	Keys   int64
}

// Config holds cache configuration.
type Config struct {
	// Type is the cache backend type: "redis" or "memory"
	Type string

	// Redis configuration
	Addr     string
	Password string
	DB       int

	// Connection pool settings
	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	// General settings
	DefaultTTL time.Duration
	Prefix     string

	// Memory cache settings
	MaxItems int // Maximum number of items (0 = unlimited)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:         "memory",
		Addr:         "localhost:6379",
		DefaultTTL:   5 * time.Minute,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		MaxItems:     10000,
	}
}

// New creates a new cache instance based on configuration.
func New(cfg Config) (Cache, error) {
	switch cfg.Type {
	case "redis":
		return NewRedisCache(cfg), nil
	case "memory", "":
		return NewMemoryCache(cfg), nil
	default:
		return nil, errors.New("unsupported cache type: " + cfg.Type)
	}
}
