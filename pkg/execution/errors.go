package execution

import (
	"errors"
	"fmt"
)

// Sentinel errors for dispatch outcomes.
var (
	// ErrEmptyTrajectory is returned when a trajectory has no waypoints.
	ErrEmptyTrajectory = errors.New("execution: no points to execute")

	// ErrCancelled is returned when the context ends during a confirmation
	// wait or a completion wait.
	ErrCancelled = errors.New("execution: cancelled")

	// ErrBackendRejected is returned when the managed backend refuses a submission.
	ErrBackendRejected = errors.New("execution: backend rejected trajectory")

	// ErrBackendFailed is returned when execution control fails.
	ErrBackendFailed = errors.New("execution: backend failed")

	// ErrPreempted is returned when execution was preempted by another command.
	ErrPreempted = errors.New("execution: preempted")

	// ErrTimedOut is returned when execution did not finish in time.
	ErrTimedOut = errors.New("execution: timed out")

	// ErrPersistenceFailed is logged when a trajectory cannot be archived.
	// Dispatch continues.
	ErrPersistenceFailed = errors.New("execution: failed to save trajectory")

	// ErrNotSupported is returned for operations a backend cannot perform.
	ErrNotSupported = errors.New("execution: not supported")

	// ErrPublishFailed is returned when a command could not be handed to
	// the transport.
	ErrPublishFailed = errors.New("execution: publish failed")
)

// BackendError wraps a failure with the mode of the backend that produced it.
type BackendError struct {
	Backend Mode
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("execution [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

func wrapBackend(mode Mode, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: mode, Err: err}
}
