package models

import (
	"fmt"
)

// StepKind identifies the variant of a Step.
type StepKind string

const (
	StepTool        StepKind = "tool"
	StepCompute     StepKind = "compute"
	StepConfirm     StepKind = "confirm"
	StepConditional StepKind = "conditional"
	StepParallel    StepKind = "parallel"
)

// OnErrorPolicy controls what the executor does when a tool step fails
// after all remediation attempts are exhausted.
type OnErrorPolicy string

const (
	// OnErrorFail aborts the whole run immediately.
	OnErrorFail OnErrorPolicy = "fail"

	// OnErrorContinue records the error and proceeds to the next step.
	OnErrorContinue OnErrorPolicy = "continue"

	// OnErrorAutoHeal triggers classification-driven remediation and retry.
	// On exhaustion it falls back to the Fallback sub-policy.
	OnErrorAutoHeal OnErrorPolicy = "auto_heal"
)

// InputSpec declares a single skill input.
type InputSpec struct {
	Name     string      `yaml:"name" json:"name"`
	Type     string      `yaml:"type,omitempty" json:"type,omitempty"`
	Required bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Default  interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// RetryConfig bounds auto-heal retries for a tool step.
type RetryConfig struct {
	// MaxAttempts is the number of retries after the initial call.
	// A persistently failing tool is therefore invoked at most
	// MaxAttempts+1 times.
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`

	// Timeout overrides the configured per-call tool timeout.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ConfirmOption is one selectable answer on a confirmation step.
type ConfirmOption struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// Step is a tagged variant over the five step kinds. Kind-specific fields
// are flat rather than nested so skill documents stay terse; the validator
// rejects fields that do not belong to the declared kind.
type Step struct {
	// Name uniquely identifies the step within its skill.
	Name string `yaml:"name" json:"name"`

	// Kind selects the variant. The loader infers it from which
	// kind-specific field is present when omitted.
	Kind StepKind `yaml:"kind,omitempty" json:"kind"`

	// Condition optionally guards whether the step runs at all.
	// Evaluated against the current bindings; false marks the step Skipped.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	// Output is the binding name the step's result is stored under.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// Tool step fields.
	Tool    string                 `yaml:"tool,omitempty" json:"tool,omitempty"`
	Args    map[string]interface{} `yaml:"args,omitempty" json:"args,omitempty"`
	OnError OnErrorPolicy          `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	// Fallback is the policy applied when auto_heal exhausts its budget.
	Fallback OnErrorPolicy `yaml:"fallback,omitempty" json:"fallback,omitempty"`
	Retry    RetryConfig   `yaml:"retry,omitempty" json:"retry,omitempty"`

	// Compute step fields.
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// Confirm step fields.
	Message         string          `yaml:"message,omitempty" json:"message,omitempty"`
	Options         []ConfirmOption `yaml:"options,omitempty" json:"options,omitempty"`
	AIAssist        bool            `yaml:"ai_assist,omitempty" json:"ai_assist,omitempty"`
	Timeout         Duration        `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	LearnPreference bool            `yaml:"learn_preference,omitempty" json:"learn_preference,omitempty"`
	// DefaultValue is applied when the confirmation times out.
	DefaultValue string `yaml:"default_value,omitempty" json:"default_value,omitempty"`

	// Conditional step fields.
	Predicate string `yaml:"predicate,omitempty" json:"predicate,omitempty"`
	Then      []Step `yaml:"then,omitempty" json:"then,omitempty"`
	Else      []Step `yaml:"else,omitempty" json:"else,omitempty"`

	// Parallel step fields.
	Children []Step `yaml:"children,omitempty" json:"children,omitempty"`
	FailFast bool   `yaml:"fail_fast,omitempty" json:"fail_fast,omitempty"`
}

// EffectiveOnError returns the step's error policy, defaulting to fail.
func (s *Step) EffectiveOnError() OnErrorPolicy {
	if s.OnError == "" {
		return OnErrorFail
	}
	return s.OnError
}

// EffectiveFallback returns the policy applied after auto-heal exhaustion.
func (s *Step) EffectiveFallback() OnErrorPolicy {
	if s.Fallback == "" {
		return OnErrorFail
	}
	return s.Fallback
}

// SkillDefinition is an immutable, validated skill document. Loaded once per
// run (or cached) and never mutated by the executor.
type SkillDefinition struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      []InputSpec `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Steps       []Step      `yaml:"steps" json:"steps"`

	// Destructive flags the skill for the pre-run safety guard.
	Destructive bool `yaml:"destructive,omitempty" json:"destructive,omitempty"`
}

// Input returns the named input spec, or nil if not declared.
func (d *SkillDefinition) Input(name string) *InputSpec {
	for i := range d.Inputs {
		if d.Inputs[i].Name == name {
			return &d.Inputs[i]
		}
	}
	return nil
}

// ResolveInputs merges supplied values with declared defaults and reports
// missing required inputs. The returned map is a fresh copy.
func (d *SkillDefinition) ResolveInputs(supplied map[string]interface{}) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(d.Inputs))
	for _, spec := range d.Inputs {
		if v, ok := supplied[spec.Name]; ok {
			resolved[spec.Name] = v
			continue
		}
		if spec.Default != nil {
			resolved[spec.Name] = spec.Default
			continue
		}
		if spec.Required {
			return nil, fmt.Errorf("required input %q not supplied", spec.Name)
		}
	}
	// Pass through extras (e.g. override flags) so the guard can see them.
	for k, v := range supplied {
		if _, ok := resolved[k]; !ok {
			resolved[k] = v
		}
	}
	return resolved, nil
}
