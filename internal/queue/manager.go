package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Manager wraps the Asynq client for job submission. The queue has no
// knowledge of database transactions; callers must enqueue only after
// their owning transaction has committed.
type Manager struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	config    Config
}

// NewManager creates a new queue manager.
func NewManager(cfg Config) *Manager {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	return &Manager{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		config:    cfg,
	}
}

// Enqueue submits a job. The job's ID doubles as the task ID, giving
// at-most-once acceptance: a duplicate submission is reported via
// accepted=false and no error. Worker-side retries back off exponentially,
// capped at the configured maximum delay.
func (m *Manager) Enqueue(ctx context.Context, job *Job) (accepted bool, err error) {
	task := asynq.NewTask(job.Type, job.Payload)

	maxRetry := job.MaxRetry
	if maxRetry <= 0 {
		maxRetry = m.config.MaxRetry
	}
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = m.config.Timeout
	}
	queue := job.Queue
	if queue == "" {
		queue = QueueRuns
	}

	opts := []asynq.Option{
		asynq.TaskID(job.ID),
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(timeout),
	}

	_, err = m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return false, nil
		}
		return false, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return true, nil
}

// RetryDelay computes the delay before the nth worker-side retry,
// exponential with the configured cap. Exposed for server configuration.
func (m *Manager) RetryDelay(n int) time.Duration {
	delay := m.config.InitialDelay
	for i := 0; i < n; i++ {
		delay *= 2
		if delay > m.config.MaxDelay {
			return m.config.MaxDelay
		}
	}
	return delay
}

// GetTaskInfo retrieves queue-side information about a task.
func (m *Manager) GetTaskInfo(queue, taskID string) (*asynq.TaskInfo, error) {
	info, err := m.inspector.GetTaskInfo(queue, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task info: %w", err)
	}
	return info, nil
}

// Ping verifies connectivity to the queue backend.
func (m *Manager) Ping(ctx context.Context) error {
	if _, err := m.inspector.Queues(); err != nil {
		return fmt.Errorf("pinging queue: %w", err)
	}
	return nil
}

// Close releases the client and inspector connections.
func (m *Manager) Close() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("close client: %w", err)
	}
	if err := m.inspector.Close(); err != nil {
		return fmt.Errorf("close inspector: %w", err)
	}
	return nil
}
