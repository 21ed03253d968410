// Package resolver evaluates template interpolations and sandboxed
// expressions against the bindings of a running execution.
//
// Two surfaces are exposed: {{ ... }} string interpolation for templated
// fields (tool args, confirmation messages), and an expression language for
// step conditions, conditional predicates, and compute steps. Expressions
// are compiled with expr-lang against an environment containing only the
// current bindings and registered pure functions, so a compute step cannot
// perform I/O or mutate anything beyond its own declared output.
package resolver

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/expr-lang/expr"
)

// ResolutionError reports an unbound name or invalid expression.
type ResolutionError struct {
	Expr string
	Err  error
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Expr, e.Err)
}

// Unwrap supports errors.Is/As.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Scope is the lookup environment for one step. Resolution order is
// step-local scratch values first, then run bindings (declared inputs and
// prior step outputs). There is no ambient or global fallback.
type Scope struct {
	Bindings map[string]interface{}
	Scratch  map[string]interface{}
}

// NewScope wraps run bindings without scratch values.
func NewScope(bindings map[string]interface{}) Scope {
	return Scope{Bindings: bindings}
}

// WithScratch returns a copy of the scope with step-local scratch values
// layered on top. Used for parallel children so siblings never observe each
// other's values.
func (s Scope) WithScratch(scratch map[string]interface{}) Scope {
	return Scope{Bindings: s.Bindings, Scratch: scratch}
}

// flatten merges the scope into one map, scratch winning over bindings.
func (s Scope) flatten() map[string]interface{} {
	env := make(map[string]interface{}, len(s.Bindings)+len(s.Scratch))
	for k, v := range s.Bindings {
		env[k] = v
	}
	for k, v := range s.Scratch {
		env[k] = v
	}
	return env
}

// lookup resolves a name through the scope layers.
func (s Scope) lookup(name string) (interface{}, bool) {
	if v, ok := s.Scratch[name]; ok {
		return v, true
	}
	v, ok := s.Bindings[name]
	return v, ok
}

// Resolver evaluates templates and expressions. Filter functions registered
// on a Resolver are available inside expressions; they must be pure.
type Resolver struct {
	filters map[string]interface{}
}

// New creates a Resolver with no user filters registered.
func New() *Resolver {
	return &Resolver{filters: map[string]interface{}{}}
}

// RegisterFilter exposes a pure function to expressions under the given
// name. The function must not perform I/O or mutate its arguments; the
// resolver cannot verify this, so registration is the trust boundary.
func (r *Resolver) RegisterFilter(name string, fn interface{}) {
	r.filters[name] = fn
}

// templateActionRe captures whole {{ ... }} actions.
var templateActionRe = regexp.MustCompile(`\{\{[^}]*\}\}`)

// templateVarRe extracts variable roots from template actions like
// {{ .name }} or {{ .name.field | upper }}.
var templateVarRe = regexp.MustCompile(`\.([a-zA-Z_][a-zA-Z0-9_]*)`)

// templateDefaultRe matches actions that invoke the default function, either
// piped ({{ .x | default "y" }}) or in call position ({{ default "y" .x }}).
// A field named default_branch does not match.
var templateDefaultRe = regexp.MustCompile(`(\{\{-?|\|)\s*default\b`)

// CheckTemplate verifies that a template string parses. Used by the
// validator to reject malformed templates at load time.
func CheckTemplate(tmpl string) error {
	if !strings.Contains(tmpl, "{{") {
		return nil
	}
	if _, err := template.New("").Funcs(builtinFuncs()).Parse(tmpl); err != nil {
		return &ResolutionError{Expr: tmpl, Err: err}
	}
	return nil
}

// Resolve evaluates a template string against the scope and returns the
// rendered result. A reference to an unbound name fails unless the action
// supplies an explicit default.
func (r *Resolver) Resolve(tmpl string, scope Scope) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil // fast path for literals
	}

	if err := r.checkUnbound(tmpl, scope); err != nil {
		return "", err
	}

	t, err := template.New("").Funcs(builtinFuncs()).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", &ResolutionError{Expr: tmpl, Err: err}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, r.templateEnv(tmpl, scope)); err != nil {
		return "", &ResolutionError{Expr: tmpl, Err: err}
	}
	return buf.String(), nil
}

// templateEnv flattens the scope and seeds nil entries for unbound names
// that appear inside default actions, so missingkey=error never fires on a
// name the template explicitly defaults.
func (r *Resolver) templateEnv(tmpl string, scope Scope) map[string]interface{} {
	env := scope.flatten()
	for _, action := range templateActionRe.FindAllString(tmpl, -1) {
		if !templateDefaultRe.MatchString(action) {
			continue
		}
		for _, m := range templateVarRe.FindAllStringSubmatch(action, -1) {
			if _, ok := env[m[1]]; !ok {
				env[m[1]] = nil
			}
		}
	}
	return env
}

// checkUnbound rejects references to names absent from the scope, unless
// the enclosing action pipes through an explicit default.
func (r *Resolver) checkUnbound(tmpl string, scope Scope) error {
	for _, action := range templateActionRe.FindAllString(tmpl, -1) {
		if templateDefaultRe.MatchString(action) {
			continue
		}
		for _, m := range templateVarRe.FindAllStringSubmatch(action, -1) {
			name := m[1]
			if _, ok := scope.lookup(name); !ok {
				return &ResolutionError{
					Expr: tmpl,
					Err:  fmt.Errorf("unbound name %q", name),
				}
			}
		}
	}
	return nil
}

// ResolveArgs deep-resolves every string leaf of a tool argument map.
// Non-string values pass through untouched.
func (r *Resolver) ResolveArgs(args map[string]interface{}, scope Scope) (map[string]interface{}, error) {
	if args == nil {
		return nil, nil
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		resolved, err := r.resolveValue(v, scope)
		if err != nil {
			return nil, fmt.Errorf("arg %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func (r *Resolver) resolveValue(v interface{}, scope Scope) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return r.Resolve(val, scope)
	case map[string]interface{}:
		return r.ResolveArgs(val, scope)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			resolved, err := r.resolveValue(item, scope)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// EvalBool evaluates a condition expression. An empty expression is true
// (no condition means the step always runs).
func (r *Resolver) EvalBool(exprStr string, scope Scope) (bool, error) {
	exprStr = strings.TrimSpace(exprStr)
	if exprStr == "" {
		return true, nil
	}

	env := r.exprEnv(scope)
	program, err := expr.Compile(exprStr, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, &ResolutionError{Expr: exprStr, Err: err}
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return false, &ResolutionError{Expr: exprStr, Err: err}
	}
	b, ok := output.(bool)
	if !ok {
		return false, &ResolutionError{
			Expr: exprStr,
			Err:  fmt.Errorf("condition did not return bool (got %T)", output),
		}
	}
	return b, nil
}

// EvalExpr evaluates a compute expression and returns its value. The
// expression runs in the sandboxed environment: bindings, scratch values,
// and registered filters only.
func (r *Resolver) EvalExpr(exprStr string, scope Scope) (interface{}, error) {
	exprStr = strings.TrimSpace(exprStr)
	if exprStr == "" {
		return nil, &ResolutionError{Expr: exprStr, Err: fmt.Errorf("empty expression")}
	}

	env := r.exprEnv(scope)
	program, err := expr.Compile(exprStr, expr.Env(env))
	if err != nil {
		return nil, &ResolutionError{Expr: exprStr, Err: err}
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return nil, &ResolutionError{Expr: exprStr, Err: err}
	}
	return output, nil
}

// exprEnv builds the expression environment from the scope plus filters.
func (r *Resolver) exprEnv(scope Scope) map[string]interface{} {
	env := scope.flatten()
	for name, fn := range r.filters {
		env[name] = fn
	}
	return env
}

// builtinFuncs provides template functions available in interpolations.
func builtinFuncs() template.FuncMap {
	return template.FuncMap{
		"default": func(def, val interface{}) interface{} {
			if val == nil || val == "" {
				return def
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
		"join": func(sep string, items []interface{}) string {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = fmt.Sprint(item)
			}
			return strings.Join(parts, sep)
		},
		"quote": func(v interface{}) string {
			return fmt.Sprintf("%q", fmt.Sprint(v))
		},
	}
}
