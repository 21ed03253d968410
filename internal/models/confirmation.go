package models

import "time"

// ResponseSource records which backend resolved a confirmation.
type ResponseSource string

const (
	SourceLearned     ResponseSource = "learned"
	SourceAI          ResponseSource = "ai"
	SourceInteractive ResponseSource = "interactive"
	// SourceDefault marks a timeout-driven default resolution; logged
	// distinctly from an explicit selection.
	SourceDefault ResponseSource = "default"
)

// ConfirmationRequest is dispatched when a confirm step suspends execution.
// A request is consumed exactly once; a duplicate response for an
// already-resolved request is rejected as stale.
type ConfirmationRequest struct {
	ExecutionID string          `json:"execution_id"`
	StepName    string          `json:"step_name"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Options     []ConfirmOption `json:"options"`
	// ContextSnapshot carries the bindings visible at suspension time so
	// AI-assisted backends can decide without re-reading run state.
	ContextSnapshot map[string]interface{} `json:"context_snapshot,omitempty"`
	AIAssist        bool                   `json:"ai_assist,omitempty"`
	Timeout         time.Duration          `json:"timeout,omitempty"`
	// DefaultValue is the step's timeout fallback, carried so a persisted
	// request can expire without reloading the skill definition.
	DefaultValue string    `json:"default_value,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasOption reports whether value is one of the request's option values.
func (r *ConfirmationRequest) HasOption(value string) bool {
	for _, opt := range r.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// ConfirmationResponse resolves a pending request.
type ConfirmationResponse struct {
	Selected string         `json:"selected"`
	Source   ResponseSource `json:"source"`
	// Remember persists the selection keyed by (skill, step) so future
	// runs skip the prompt entirely.
	Remember bool `json:"remember,omitempty"`
}
