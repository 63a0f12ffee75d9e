package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound is returned when no snapshot exists for a key.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRateLimited marks collaborator failures caused by exhausted quota.
	ErrRateLimited = errors.New("rate limited")

	// ErrPermissionDenied marks repository writes rejected for insufficient scope.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrFileNotFound is returned by repository reads of missing paths.
	ErrFileNotFound = errors.New("file not found")

	// ErrIssueNotFound is returned by issue sources for unknown issue numbers.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrPrecondition marks a step that ran without the state it needs.
	ErrPrecondition = errors.New("precondition failed")

	// ErrWorkflowBusy is returned when an operation is already running for a key.
	ErrWorkflowBusy = errors.New("workflow is busy")

	// ErrNotAwaitingDecision is returned by decisions submitted outside the review gate.
	ErrNotAwaitingDecision = errors.New("workflow is not awaiting a decision")

	ErrInvalidKey = errors.New("invalid workflow key")

	// ErrInvalidInput marks user-supplied text that cannot be accepted.
	ErrInvalidInput = errors.New("invalid input")
)

type preconditionError struct {
	msg string
}

func (e *preconditionError) Error() string { return e.msg }
func (e *preconditionError) Unwrap() error { return ErrPrecondition }

// Precondition returns an error matching ErrPrecondition whose message is msg.
func Precondition(format string, args ...any) error {
	return &preconditionError{msg: fmt.Sprintf(format, args...)}
}

// ErrorKind is the classification of a step failure.
type ErrorKind string

const (
	KindGeneric     ErrorKind = "generic"
	KindRateLimited ErrorKind = "rate_limited"
)

// StepError is a classified failure of a single step.
type StepError struct {
	Step Step
	Kind ErrorKind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
