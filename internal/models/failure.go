package models

import "time"

// Classification buckets a tool failure for remediation. Classification is
// data-driven keyword/regex matching, deliberately simple and auditable.
type Classification string

const (
	ClassAuth    Classification = "auth"
	ClassNetwork Classification = "network"
	ClassUnknown Classification = "unknown"
)

// FailureRecord is one entry in the cross-run failure history. Appended to
// the shared store and never mutated afterwards, except for bounded
// retention pruning on write.
type FailureRecord struct {
	ID             int64          `json:"id,omitempty"`
	ToolName       string         `json:"tool_name"`
	Classification Classification `json:"classification"`
	ErrorSnippet   string         `json:"error_snippet"`
	// Remediation names the fix that was applied, empty when none was.
	Remediation string        `json:"remediation,omitempty"`
	Success     bool          `json:"success"`
	Latency     time.Duration `json:"latency,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// LearnedFix maps a past failure signature to a remediation that succeeded.
// Reused on matching failures to skip re-diagnosis.
type LearnedFix struct {
	ToolName     string    `json:"tool_name"`
	Signature    string    `json:"signature"`
	Remediation  string    `json:"remediation"`
	SuccessCount int       `json:"success_count"`
	LastUsed     time.Time `json:"last_used"`
	CreatedAt    time.Time `json:"created_at"`
}
