package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	job, err := NewJob("run-1:file:0", TypeRunProcess, map[string]string{"runId": "run-1"})
	require.NoError(t, err)

	assert.Equal(t, "run-1:file:0", job.ID)
	assert.Equal(t, TypeRunProcess, job.Type)
	assert.Equal(t, QueueRuns, job.Queue)
	assert.JSONEq(t, `{"runId":"run-1"}`, string(job.Payload))

	t.Run("unmarshalable payload", func(t *testing.T) {
		_, err := NewJob("id", TypeRunProcess, make(chan int))
		assert.Error(t, err)
	})
}

func TestJobBuilders(t *testing.T) {
	job, err := NewJob("run-1", TypeRunProcess, nil)
	require.NoError(t, err)

	job.WithQueue("priority").WithMaxRetry(5).WithTimeout(time.Minute)
	assert.Equal(t, "priority", job.Queue)
	assert.Equal(t, 5, job.MaxRetry)
	assert.Equal(t, time.Minute, job.Timeout)
}

func TestManager_RetryDelay(t *testing.T) {
	m := NewManager(Config{
		InitialDelay: 10 * time.Second,
		MaxDelay:     time.Minute,
	})

	assert.Equal(t, 10*time.Second, m.RetryDelay(0))
	assert.Equal(t, 20*time.Second, m.RetryDelay(1))
	assert.Equal(t, 40*time.Second, m.RetryDelay(2))
	// Capped at the configured maximum.
	assert.Equal(t, time.Minute, m.RetryDelay(3))
	assert.Equal(t, time.Minute, m.RetryDelay(10))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("QUEUE_REDIS_ADDR", "redis-test:6380")
	t.Setenv("QUEUE_REDIS_DB", "2")
	t.Setenv("QUEUE_MAX_RETRY", "7")

	cfg := ConfigFromEnv()
	assert.Equal(t, "redis-test:6380", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 7, cfg.MaxRetry)
	assert.Equal(t, 15*time.Minute, cfg.Timeout)
}
