package queue

import (
	"encoding/json"
	"time"
)

// TypeRunProcess is the task type consumed by the run workers.
const TypeRunProcess = "run:process"

// Job is a unit of work submitted to the queue. ID is the idempotency key:
// the queue accepts at most one task per ID.
type Job struct {
	// ID is the deterministic job identifier (idempotency key).
	ID string

	// Type is the task type identifier.
	Type string

	// Payload is the task payload data.
	Payload json.RawMessage

	// Queue is the queue name (defaults to "runs").
	Queue string

	// MaxRetry is the maximum number of worker-side retries.
	MaxRetry int

	// Timeout is the task execution timeout.
	Timeout time.Duration
}

// NewJob creates a job with the given id, type and payload.
func NewJob(id, jobType string, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:      id,
		Type:    jobType,
		Payload: data,
		Queue:   QueueRuns,
	}, nil
}

// WithQueue sets the queue for the job.
func (j *Job) WithQueue(queue string) *Job {
	j.Queue = queue
	return j
}

// WithMaxRetry sets the worker-side retry count for the job.
func (j *Job) WithMaxRetry(maxRetry int) *Job {
	j.MaxRetry = maxRetry
	return j
}

// WithTimeout sets the execution timeout for the job.
func (j *Job) WithTimeout(timeout time.Duration) *Job {
	j.Timeout = timeout
	return j
}
