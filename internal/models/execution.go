package models

import (
	"time"
)

// RunStatus is the overall state of one skill execution.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	// RunPartial means the run finished but at least one failure was
	// absorbed by a continue policy.
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunPaused    RunStatus = "paused"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a final state. Paused is not
// terminal: a paused run can still be resumed or cancelled.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunPartial, RunFailed, RunCancelled:
		return true
	}
	return false
}

// StepStatus is the state of one step within a run.
type StepStatus string

const (
	StepPending              StepStatus = "pending"
	StepRunning              StepStatus = "running"
	StepSkipped              StepStatus = "skipped"
	StepCompleted            StepStatus = "completed"
	// StepHealed means the step completed after auto-heal remediation.
	StepHealed               StepStatus = "healed"
	// StepCompletedWithError means the failure was recorded and absorbed
	// by a continue policy (or a non-fail-fast parallel block).
	StepCompletedWithError   StepStatus = "completed_with_error"
	StepFailed               StepStatus = "failed"
	StepAwaitingConfirmation StepStatus = "awaiting_confirmation"
	StepCancelled            StepStatus = "cancelled"
)

// StepOutcome is the recorded result of one step.
type StepOutcome struct {
	StepName  string        `json:"step_name"`
	Kind      StepKind      `json:"kind"`
	Status    StepStatus    `json:"status"`
	Output    interface{}   `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	Healed    bool          `json:"healed,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ExecutionContext is the mutable per-run state. It is owned exclusively by
// one executor instance for the run's lifetime, or by the resuming instance
// after a pause. Never shared between concurrent executions.
type ExecutionContext struct {
	ExecutionID string                 `json:"execution_id"`
	SkillName   string                 `json:"skill_name"`
	Bindings    map[string]interface{} `json:"bindings"`
	StepHistory []StepOutcome          `json:"step_history"`
	Status      RunStatus              `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
}

// NewExecutionContext creates a running context with the given identity and
// initial input bindings.
func NewExecutionContext(executionID, skillName string, inputs map[string]interface{}) *ExecutionContext {
	bindings := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		bindings[k] = v
	}
	return &ExecutionContext{
		ExecutionID: executionID,
		SkillName:   skillName,
		Bindings:    bindings,
		Status:      RunRunning,
		StartedAt:   time.Now(),
	}
}

// Bind stores a step output. Bindings grow monotonically; later steps may
// reference earlier outputs but never silently overwrite them, so Bind is a
// no-op guard point for the executor (uniqueness is enforced at load time).
func (ec *ExecutionContext) Bind(name string, value interface{}) {
	if name == "" {
		return
	}
	ec.Bindings[name] = value
}

// Record appends a step outcome to the ordered history.
func (ec *ExecutionContext) Record(outcome StepOutcome) {
	ec.StepHistory = append(ec.StepHistory, outcome)
}

// PausedInfo describes the pending confirmation of a paused run.
type PausedInfo struct {
	ExecutionID string          `json:"execution_id"`
	StepName    string          `json:"step_name"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Options     []ConfirmOption `json:"options"`
}

// RunResult is the caller-facing outcome of Run or Resume. It always carries
// an ordered per-step outcome and a human-readable summary; callers never
// need to inspect internal errors to understand what happened.
type RunResult struct {
	ExecutionID string        `json:"execution_id"`
	SkillName   string        `json:"skill_name"`
	Status      RunStatus     `json:"status"`
	Steps       []StepOutcome `json:"steps"`
	Summary     string        `json:"summary"`
	Paused      *PausedInfo   `json:"paused,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// ExecutionSummary is a compact view of one execution for listing and
// history queries.
type ExecutionSummary struct {
	ExecutionID string    `json:"execution_id"`
	SkillName   string    `json:"skill_name"`
	Status      RunStatus `json:"status"`
	StepsTotal  int       `json:"steps_total"`
	StepsFailed int       `json:"steps_failed"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
}
