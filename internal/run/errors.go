package run

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for state-machine guards and lookups. All are
// caller-correctable; none trigger automatic retries.
var (
	// ErrRunAlreadyRunning rejects a retry of a run still in progress.
	ErrRunAlreadyRunning = errors.New("run is already in progress")
	// ErrNothingToRetry rejects a retry with no failed or pending files.
	ErrNothingToRetry = errors.New("nothing to retry")
	// ErrMaxRetriesExceeded rejects a retry past a file's retry budget.
	ErrMaxRetriesExceeded = errors.New("max retry count exceeded")
	// ErrModelUnavailable rejects a run whose model cannot be served.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrOutputNotReady rejects an output read for a non-completed file.
	ErrOutputNotReady = errors.New("output not available for this file")
)

// ValidationError reports every violation found when checking supplied
// inputs against the definition. No partial validation state persists.
type ValidationError struct {
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid input: " + e.Violations[0]
	}
	return fmt.Sprintf("invalid input (%d violations): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

func (e *ValidationError) add(format string, args ...any) {
	e.Violations = append(e.Violations, fmt.Sprintf(format, args...))
}

func (e *ValidationError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// UnresolvedAssetsError reports every supplied asset reference that did
// not resolve to a tenant-owned asset, not just the first one.
type UnresolvedAssetsError struct {
	InputName string
	AssetIDs  []string
}

// Error implements the error interface.
func (e *UnresolvedAssetsError) Error() string {
	return fmt.Sprintf("input %q references unknown assets: %s", e.InputName, strings.Join(e.AssetIDs, ", "))
}

// DispatchError wraps a queue submission failure. The original cause is
// always surfaced to the caller, whatever the compensation outcome.
type DispatchError struct {
	RunID string
	JobID string
	Err   error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatching job %s for run %s: %v", e.JobID, e.RunID, e.Err)
}

// Unwrap returns the underlying queue error.
func (e *DispatchError) Unwrap() error {
	return e.Err
}
