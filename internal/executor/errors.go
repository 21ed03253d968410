package executor

import (
	"errors"
	"fmt"
)

// ErrCancelled reports that an external cancel request was observed at a
// step boundary. Remaining pending steps transition to cancelled.
var ErrCancelled = errors.New("execution cancelled")

// ComputeError wraps a failed compute step. Compute failures always abort
// the run: a broken expression is a definition bug, not a transient fault.
type ComputeError struct {
	StepName string
	Err      error
}

// Error implements the error interface.
func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute step %q: %v", e.StepName, e.Err)
}

// Unwrap supports errors.Is/As.
func (e *ComputeError) Unwrap() error {
	return e.Err
}

// ChildrenFailedError lists the children of a fail-fast parallel block
// that failed.
type ChildrenFailedError struct {
	Children []string
}

// Error implements the error interface.
func (e *ChildrenFailedError) Error() string {
	return fmt.Sprintf("%d parallel children failed: %v", len(e.Children), e.Children)
}

// StepFailedError reports the step whose fail policy aborted the run.
type StepFailedError struct {
	StepName string
	Err      error
}

// Error implements the error interface.
func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.StepName, e.Err)
}

// Unwrap supports errors.Is/As.
func (e *StepFailedError) Unwrap() error {
	return e.Err
}
