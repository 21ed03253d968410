package resolver

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	r := New()
	scope := NewScope(map[string]interface{}{
		"service": "api",
		"env":     "staging",
		"count":   3,
	})

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{name: "literal passes through", tmpl: "no templates here", want: "no templates here"},
		{name: "single variable", tmpl: "{{ .service }}", want: "api"},
		{name: "embedded variable", tmpl: "deploy {{ .service }} to {{ .env }}", want: "deploy api to staging"},
		{name: "non-string binding", tmpl: "retries={{ .count }}", want: "retries=3"},
		{name: "upper filter", tmpl: "{{ .service | upper }}", want: "API"},
		{name: "default fills unbound", tmpl: "{{ .region | default \"us-east-1\" }}", want: "us-east-1"},
		{name: "default ignored when bound", tmpl: "{{ .env | default \"prod\" }}", want: "staging"},
		{name: "default in call position", tmpl: "{{ default \"eu-west-1\" .region }}", want: "eu-west-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.tmpl, scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUnboundName(t *testing.T) {
	r := New()
	scope := NewScope(map[string]interface{}{"service": "api"})

	_, err := r.Resolve("deploy {{ .missing }}", scope)
	require.Error(t, err)

	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Error(), "missing")
}

func TestResolveUnboundNameContainingDefault(t *testing.T) {
	r := New()
	scope := NewScope(map[string]interface{}{"service": "api"})

	// A field whose name merely contains "default" gets no exemption.
	for _, tmpl := range []string{
		"branch is {{ .default_branch }}",
		"{{ .defaults }}",
	} {
		_, err := r.Resolve(tmpl, scope)
		require.Error(t, err, tmpl)
		assert.NotContains(t, err.Error(), "<no value>")
	}

	// The exemption still applies when default is actually invoked.
	got, err := r.Resolve("{{ .default_branch | default \"main\" }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "main", got)
}

func TestScopeScratchWinsOverBindings(t *testing.T) {
	r := New()
	scope := NewScope(map[string]interface{}{"name": "outer"}).
		WithScratch(map[string]interface{}{"name": "inner"})

	got, err := r.Resolve("{{ .name }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "inner", got)

	// Scratch values are invisible without the layer.
	got, err = r.Resolve("{{ .name }}", NewScope(map[string]interface{}{"name": "outer"}))
	require.NoError(t, err)
	assert.Equal(t, "outer", got)
}

func TestResolveArgs(t *testing.T) {
	r := New()
	scope := NewScope(map[string]interface{}{"service": "api", "replicas": 4})

	args := map[string]interface{}{
		"name":  "{{ .service }}",
		"count": 4,
		"nested": map[string]interface{}{
			"target": "{{ .service }}-{{ .replicas }}",
		},
		"list": []interface{}{"{{ .service }}", 7},
	}

	out, err := r.ResolveArgs(args, scope)
	require.NoError(t, err)
	assert.Equal(t, "api", out["name"])
	assert.Equal(t, 4, out["count"])
	assert.Equal(t, "api-4", out["nested"].(map[string]interface{})["target"])
	assert.Equal(t, "api", out["list"].([]interface{})[0])
	assert.Equal(t, 7, out["list"].([]interface{})[1])
}

func TestEvalBool(t *testing.T) {
	r := New()
	scope := NewScope(map[string]interface{}{"count": 3, "env": "staging"})

	tests := []struct {
		name    string
		expr    string
		want    bool
		wantErr bool
	}{
		{name: "empty is true", expr: "", want: true},
		{name: "comparison", expr: "count > 2", want: true},
		{name: "string equality", expr: `env == "prod"`, want: false},
		{name: "boolean combination", expr: `count >= 3 && env != "prod"`, want: true},
		{name: "unbound name fails", expr: "unknown > 1", wantErr: true},
		{name: "non-bool fails", expr: "count + 1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.EvalBool(tt.expr, scope)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalExpr(t *testing.T) {
	r := New()
	scope := NewScope(map[string]interface{}{"x": 2, "items": []interface{}{"a", "b"}})

	got, err := r.EvalExpr("x * 3", scope)
	require.NoError(t, err)
	assert.EqualValues(t, 6, got)

	got, err = r.EvalExpr("items[1]", scope)
	require.NoError(t, err)
	assert.Equal(t, "b", got)

	_, err = r.EvalExpr("", scope)
	require.Error(t, err)
}

func TestRegisterFilter(t *testing.T) {
	r := New()
	r.RegisterFilter("shout", func(s string) string {
		return strings.ToUpper(s) + "!"
	})

	got, err := r.EvalExpr(`shout(name)`, NewScope(map[string]interface{}{"name": "go"}))
	require.NoError(t, err)
	assert.Equal(t, "GO!", got)
}

func TestCheckTemplate(t *testing.T) {
	require.NoError(t, CheckTemplate("plain text"))
	require.NoError(t, CheckTemplate("{{ .ok }}"))
	require.Error(t, CheckTemplate("{{ .broken"))
	require.Error(t, CheckTemplate("{{ if }}"))
}
