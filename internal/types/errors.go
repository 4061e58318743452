package types

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id is unknown
var ErrRunNotFound = errors.New("run not found")

// ErrInvalidTransition is matched by every InvalidTransitionError
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrCircuitOpen is wrapped by the transient error returned while a breaker fails fast
var ErrCircuitOpen = errors.New("circuit breaker open")

// TransientError is a timeout, network failure or rate limit. It is retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError is a structurally invalid request, exhausted quota or storage failure.
// It is never retried.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal failure in %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// ValidationError means a step's output failed its declared check
type ValidationError struct {
	Step   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %s output failed validation: %s", e.Step, e.Reason)
}

// ExhaustedError is returned once a step has used all of its attempts on transient failures
type ExhaustedError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// ConflictError rejects a submission because the project already has an active run
type ConflictError struct {
	ProjectID     string
	ExistingRunID uuid.UUID
}

func (e *ConflictError) Error() string {
	if e.ExistingRunID == uuid.Nil {
		return fmt.Sprintf("project %s already has an active run", e.ProjectID)
	}
	return fmt.Sprintf("project %s already has an active run: %s", e.ProjectID, e.ExistingRunID)
}

// ReviewRequired asks the engine to pause the run before the step's result is accepted.
// It is a control signal, not a failure.
type ReviewRequired struct {
	Step   string
	Reason string
}

func (e *ReviewRequired) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("step %s requires review", e.Step)
	}
	return fmt.Sprintf("step %s requires review: %s", e.Step, e.Reason)
}

// InvalidTransitionError rejects a status change the state machine does not allow
type InvalidTransitionError struct {
	RunID uuid.UUID
	From  RunStatus
	To    RunStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("run %s cannot move from %s to %s", e.RunID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsRetryable reports whether err should be retried by the step executor.
// Validation failures are retried as well; fatal errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return false
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var validation *ValidationError
	return errors.As(err, &validation)
}
