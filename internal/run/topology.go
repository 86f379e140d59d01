package run

import (
	"fmt"

	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/queue"
)

// Topology describes how a run maps onto queue jobs.
type Topology string

const (
	// TopologyContextOnly is a run with no subject files: one job.
	TopologyContextOnly Topology = "context-only"
	// TopologyBatch carries all subject files in a single job.
	TopologyBatch Topology = "batch"
	// TopologyFanOut dispatches one job per subject file.
	TopologyFanOut Topology = "fan-out"
)

// SelectTopology picks the job topology for the given mode and file count.
func SelectTopology(mode ProcessingMode, subjectFileCount int) Topology {
	if subjectFileCount == 0 {
		return TopologyContextOnly
	}
	if mode == ModeBatch {
		return TopologyBatch
	}
	return TopologyFanOut
}

// JobCount returns totalJobs for the topology.
func (t Topology) JobCount(subjectFileCount int) int {
	if t == TopologyFanOut {
		return subjectFileCount
	}
	return 1
}

// RunJobID is the job identifier for single-job topologies. It doubles as
// the queue-level idempotency key.
func RunJobID(runID string) string {
	return runID
}

// FileJobID is the job identifier for one subject file in fan-out mode.
// The index is the file's permanent position in the run, never a
// retry-local counter, so retried dispatches reuse the original id.
func FileJobID(runID string, index int) string {
	return fmt.Sprintf("%s:file:%d", runID, index)
}

// buildJobs constructs the queue jobs for a run. Files carry their
// permanent indices; for retries the caller passes only the files being
// re-dispatched and the ids still address the original slots.
func buildJobs(run *models.WorkflowRun, def *Definition, contextInputs map[string]InputValue, files []JobFile) ([]*queue.Job, error) {
	payload := JobPayload{
		RunID:     run.ID,
		TenantID:  run.TenantID,
		VersionID: run.VersionID,
		ModelID:   def.ModelID,
		Mode:      def.ProcessingMode,
		IsTestRun: run.IsTestRun,
		Context:   contextInputs,
	}

	topology := SelectTopology(def.ProcessingMode, len(files))
	maxRetry := run.MaxRetryCount

	if topology != TopologyFanOut {
		payload.Files = files
		job, err := queue.NewJob(RunJobID(run.ID), queue.TypeRunProcess, payload)
		if err != nil {
			return nil, fmt.Errorf("building job for run %s: %w", run.ID, err)
		}
		return []*queue.Job{job.WithMaxRetry(maxRetry)}, nil
	}

	jobs := make([]*queue.Job, 0, len(files))
	for _, f := range files {
		p := payload
		p.Files = []JobFile{f}
		job, err := queue.NewJob(FileJobID(run.ID, f.Index), queue.TypeRunProcess, p)
		if err != nil {
			return nil, fmt.Errorf("building job for run %s file %d: %w", run.ID, f.Index, err)
		}
		jobs = append(jobs, job.WithMaxRetry(maxRetry))
	}
	return jobs, nil
}

// contextInputs extracts the non-subject inputs shared by every job.
func contextInputs(def *Definition, inputs map[string]InputValue) map[string]InputValue {
	subject := def.SubjectInput()
	out := make(map[string]InputValue, len(inputs))
	for name, value := range inputs {
		if subject != nil && name == subject.Name {
			continue
		}
		out[name] = value
	}
	return out
}
