package autoheal

import (
	"fmt"

	"github.com/harrison/skillrunner/internal/models"
)

// ToolInvocationError wraps a failed tool call with its classification.
type ToolInvocationError struct {
	Tool           string
	Classification models.Classification
	Err            error
}

// Error implements the error interface.
func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %q failed (%s): %v", e.Tool, e.Classification, e.Err)
}

// Unwrap supports errors.Is/As.
func (e *ToolInvocationError) Unwrap() error {
	return e.Err
}

// ExhaustedError reports that remediation was attempted and the retry
// budget is used up. It wraps the last invocation error.
type ExhaustedError struct {
	Tool     string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("auto-heal exhausted for tool %q after %d attempts: %v", e.Tool, e.Attempts, e.Err)
}

// Unwrap supports errors.Is/As.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
