package skill

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/harrison/skillrunner/internal/models"
	"github.com/harrison/skillrunner/internal/resolver"
)

// ValidationError reports every problem found in a skill document. Callers
// get the full list in one pass instead of fixing problems one at a time.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("invalid skill: %s", e.Problems[0])
	}
	return fmt.Sprintf("invalid skill: %d problems: %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

// validator accumulates problems while walking a definition.
type validator struct {
	problems    []string
	stepNames   map[string]bool
	outputNames map[string]bool
}

func (v *validator) addf(format string, args ...interface{}) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// Validate checks a skill definition for structural problems. It returns a
// *ValidationError listing all of them, or nil when the definition is valid.
func Validate(def *models.SkillDefinition) error {
	v := &validator{
		stepNames:   map[string]bool{},
		outputNames: map[string]bool{},
	}

	if def.Name == "" {
		v.addf("skill name is required")
	}
	if len(def.Steps) == 0 {
		v.addf("skill must declare at least one step")
	}

	inputNames := map[string]bool{}
	for _, in := range def.Inputs {
		if in.Name == "" {
			v.addf("input with empty name")
			continue
		}
		if inputNames[in.Name] {
			v.addf("duplicate input name %q", in.Name)
		}
		inputNames[in.Name] = true
		// Inputs occupy binding names too; outputs must not shadow them.
		v.outputNames[in.Name] = true
	}

	v.walkSteps(def.Steps, "")

	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

func (v *validator) walkSteps(steps []models.Step, prefix string) {
	for i := range steps {
		v.checkStep(&steps[i], prefix)
	}
}

func (v *validator) checkStep(step *models.Step, prefix string) {
	where := step.Name
	if where == "" {
		where = fmt.Sprintf("%s(unnamed step)", prefix)
		v.addf("step without a name under %q", prefix)
	} else {
		if v.stepNames[step.Name] {
			v.addf("duplicate step name %q", step.Name)
		}
		v.stepNames[step.Name] = true
	}

	if step.Output != "" {
		if v.outputNames[step.Output] {
			v.addf("step %q: output name %q already declared", where, step.Output)
		}
		v.outputNames[step.Output] = true
	}

	v.checkExpression(where, "condition", step.Condition)

	switch step.Kind {
	case models.StepTool:
		v.checkToolStep(step, where)
	case models.StepCompute:
		if step.Expression == "" {
			v.addf("step %q: compute step requires an expression", where)
		}
		v.checkExpression(where, "expression", step.Expression)
	case models.StepConfirm:
		v.checkConfirmStep(step, where)
	case models.StepConditional:
		if step.Predicate == "" {
			v.addf("step %q: conditional step requires a predicate", where)
		}
		v.checkExpression(where, "predicate", step.Predicate)
		if len(step.Then) == 0 {
			v.addf("step %q: conditional step requires a then branch", where)
		}
		v.walkSteps(step.Then, where+".then.")
		v.walkSteps(step.Else, where+".else.")
	case models.StepParallel:
		v.checkParallelStep(step, where)
	case "":
		v.addf("step %q: cannot determine step kind (no tool, expression, message, predicate or children)", where)
	default:
		v.addf("step %q: unknown step kind %q", where, step.Kind)
	}
}

func (v *validator) checkToolStep(step *models.Step, where string) {
	if step.Tool == "" {
		v.addf("step %q: tool step requires a tool name", where)
	}
	switch step.OnError {
	case "", models.OnErrorFail, models.OnErrorContinue, models.OnErrorAutoHeal:
	default:
		v.addf("step %q: invalid on_error policy %q", where, step.OnError)
	}
	switch step.Fallback {
	case "", models.OnErrorFail, models.OnErrorContinue:
	default:
		v.addf("step %q: invalid fallback policy %q (must be fail or continue)", where, step.Fallback)
	}
	if step.Fallback != "" && step.OnError != models.OnErrorAutoHeal {
		v.addf("step %q: fallback is only meaningful with on_error: auto_heal", where)
	}
	if step.Retry.MaxAttempts < 0 {
		v.addf("step %q: retry.max_attempts cannot be negative", where)
	}
	v.checkTemplatedArgs(where, step.Args)
}

func (v *validator) checkConfirmStep(step *models.Step, where string) {
	if step.Message == "" {
		v.addf("step %q: confirm step requires a message", where)
	}
	v.checkTemplate(where, "message", step.Message)
	if len(step.Options) == 0 {
		v.addf("step %q: confirm step requires at least one option", where)
	}
	seen := map[string]bool{}
	for _, opt := range step.Options {
		if opt.Value == "" {
			v.addf("step %q: confirm option with empty value", where)
			continue
		}
		if seen[opt.Value] {
			v.addf("step %q: duplicate confirm option value %q", where, opt.Value)
		}
		seen[opt.Value] = true
	}
	if step.DefaultValue != "" && len(step.Options) > 0 && !seen[step.DefaultValue] {
		v.addf("step %q: default_value %q is not among the options", where, step.DefaultValue)
	}
	if step.Timeout < 0 {
		v.addf("step %q: timeout cannot be negative", where)
	}
}

func (v *validator) checkParallelStep(step *models.Step, where string) {
	if len(step.Children) == 0 {
		v.addf("step %q: parallel step requires children", where)
	}
	if step.Output == "" {
		v.addf("step %q: parallel step requires an output name for its result map", where)
	}

	// Children may not reference outputs produced inside the same block:
	// those are not available at fan-out time.
	siblingOutputs := map[string]bool{}
	for i := range step.Children {
		if out := step.Children[i].Output; out != "" {
			siblingOutputs[out] = true
		}
	}
	for i := range step.Children {
		child := &step.Children[i]
		for sibling := range siblingOutputs {
			if sibling == child.Output {
				continue
			}
			if stepReferences(child, sibling) {
				v.addf("step %q: parallel child %q references sibling output %q, which is not available at fan-out time",
					where, child.Name, sibling)
			}
		}
	}

	// Confirmation steps suspend the whole run, which cannot happen
	// mid-barrier; they are only allowed in sequential step lists.
	for i := range step.Children {
		forbidConfirm(v, &step.Children[i], where)
	}

	v.walkSteps(step.Children, where+".")
}

func forbidConfirm(v *validator, step *models.Step, where string) {
	if step.Kind == models.StepConfirm {
		v.addf("step %q: confirm step %q cannot run inside a parallel block", where, step.Name)
	}
	for i := range step.Then {
		forbidConfirm(v, &step.Then[i], where)
	}
	for i := range step.Else {
		forbidConfirm(v, &step.Else[i], where)
	}
	for i := range step.Children {
		forbidConfirm(v, &step.Children[i], where)
	}
}

// checkTemplate verifies template syntax for a templated field.
func (v *validator) checkTemplate(where, field, tmpl string) {
	if tmpl == "" {
		return
	}
	if err := resolver.CheckTemplate(tmpl); err != nil {
		v.addf("step %q: %s: %v", where, field, err)
	}
}

// checkExpression verifies expression syntax without an environment.
func (v *validator) checkExpression(where, field, exprStr string) {
	if exprStr == "" {
		return
	}
	if _, err := expr.Compile(exprStr, expr.AllowUndefinedVariables()); err != nil {
		v.addf("step %q: %s: %v", where, field, err)
	}
}

// checkTemplatedArgs verifies template syntax on every string leaf.
func (v *validator) checkTemplatedArgs(where string, args map[string]interface{}) {
	var walk func(val interface{})
	walk = func(val interface{}) {
		switch t := val.(type) {
		case string:
			v.checkTemplate(where, "args", t)
		case map[string]interface{}:
			for _, item := range t {
				walk(item)
			}
		case []interface{}:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(args)
}

var identRe = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)

// stepReferences reports whether any templated or expression field of the
// step (or its nested steps) mentions the given binding name.
func stepReferences(step *models.Step, name string) bool {
	mentions := func(s string) bool {
		if s == "" {
			return false
		}
		for _, ident := range identRe.FindAllString(s, -1) {
			if ident == name {
				return true
			}
		}
		return false
	}

	if mentions(step.Condition) || mentions(step.Expression) ||
		mentions(step.Predicate) || mentions(step.Message) {
		return true
	}

	var argMentions func(val interface{}) bool
	argMentions = func(val interface{}) bool {
		switch t := val.(type) {
		case string:
			return strings.Contains(t, "{{") && mentions(t)
		case map[string]interface{}:
			for _, item := range t {
				if argMentions(item) {
					return true
				}
			}
		case []interface{}:
			for _, item := range t {
				if argMentions(item) {
					return true
				}
			}
		}
		return false
	}
	if argMentions(step.Args) {
		return true
	}

	for i := range step.Then {
		if stepReferences(&step.Then[i], name) {
			return true
		}
	}
	for i := range step.Else {
		if stepReferences(&step.Else[i], name) {
			return true
		}
	}
	for i := range step.Children {
		if stepReferences(&step.Children[i], name) {
			return true
		}
	}
	return false
}
