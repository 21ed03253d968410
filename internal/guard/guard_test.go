package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/skillrunner/internal/config"
	"github.com/harrison/skillrunner/internal/models"
)

// fakeInspector reports a fixed target and cleanliness.
type fakeInspector struct {
	target string
	clean  bool
}

func (f *fakeInspector) CurrentTarget(ctx context.Context) (string, error) {
	return f.target, nil
}

func (f *fakeInspector) IsCleanState(ctx context.Context) (bool, error) {
	return f.clean, nil
}

func destructiveSkill() *models.SkillDefinition {
	return &models.SkillDefinition{Name: "nuke", Destructive: true}
}

func TestGuardCheck(t *testing.T) {
	cfg := &config.GuardConfig{
		Enabled:          true,
		ProtectedTargets: []string{"main", "master"},
	}

	tests := []struct {
		name      string
		def       *models.SkillDefinition
		target    string
		inputs    map[string]interface{}
		violation bool
	}{
		{
			name:      "protected target refused",
			def:       destructiveSkill(),
			target:    "main",
			violation: true,
		},
		{
			name:   "unprotected target passes",
			def:    destructiveSkill(),
			target: "feature/cleanup",
		},
		{
			name:   "override input bypasses",
			def:    destructiveSkill(),
			target: "main",
			inputs: map[string]interface{}{"force": true},
		},
		{
			name:   "string override bypasses",
			def:    destructiveSkill(),
			target: "main",
			inputs: map[string]interface{}{"force": "true"},
		},
		{
			name:      "false override still refused",
			def:       destructiveSkill(),
			target:    "main",
			inputs:    map[string]interface{}{"force": "no"},
			violation: true,
		},
		{
			name:   "non-destructive skill ignored",
			def:    &models.SkillDefinition{Name: "report"},
			target: "main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(&fakeInspector{target: tt.target, clean: true}, cfg, nil)
			err := g.Check(context.Background(), tt.def, tt.inputs)
			if tt.violation {
				var v *Violation
				require.ErrorAs(t, err, &v)
				assert.Equal(t, tt.target, v.Target)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGuardRequireCleanState(t *testing.T) {
	cfg := &config.GuardConfig{
		Enabled:           true,
		ProtectedTargets:  []string{"main"},
		RequireCleanState: true,
	}

	g := New(&fakeInspector{target: "feature/x", clean: false}, cfg, nil)
	err := g.Check(context.Background(), destructiveSkill(), nil)
	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.Reason, "uncommitted changes")

	g = New(&fakeInspector{target: "feature/x", clean: true}, cfg, nil)
	require.NoError(t, g.Check(context.Background(), destructiveSkill(), nil))
}

func TestGuardDisabled(t *testing.T) {
	cfg := &config.GuardConfig{Enabled: false}
	g := New(&fakeInspector{target: "main"}, cfg, nil)
	require.NoError(t, g.Check(context.Background(), destructiveSkill(), nil))
}

func TestNilGuardApprovesEverything(t *testing.T) {
	var g *Guard
	require.NoError(t, g.Check(context.Background(), destructiveSkill(), nil))
}
