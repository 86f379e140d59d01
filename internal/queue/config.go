// Package queue provides the job queue client, backed by Asynq.
package queue

import (
	"os"
	"strconv"
	"time"
)

// Config holds queue configuration.
type Config struct {
	// Redis configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Default task options
	MaxRetry     int
	Timeout      time.Duration
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RedisAddr:    "localhost:6379",
		RedisDB:      0,
		MaxRetry:     3,
		Timeout:      15 * time.Minute,
		InitialDelay: 10 * time.Second,
		MaxDelay:     10 * time.Minute,
	}
}

// ConfigFromEnv creates a Config from environment variables
// (QUEUE_REDIS_ADDR, QUEUE_REDIS_PASSWORD, QUEUE_REDIS_DB, QUEUE_MAX_RETRY).
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if addr := os.Getenv("QUEUE_REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
	if password := os.Getenv("QUEUE_REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}
	if db := os.Getenv("QUEUE_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.RedisDB = n
		}
	}
	if retry := os.Getenv("QUEUE_MAX_RETRY"); retry != "" {
		if n, err := strconv.Atoi(retry); err == nil && n >= 0 {
			cfg.MaxRetry = n
		}
	}

	return cfg
}

// Queue name constants.
const (
	QueueRuns = "runs"
)
