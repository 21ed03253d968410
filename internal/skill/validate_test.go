package skill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/skillrunner/internal/models"
)

func validSkill() *models.SkillDefinition {
	return &models.SkillDefinition{
		Name: "deploy",
		Steps: []models.Step{
			{Name: "build", Kind: models.StepTool, Tool: "shell", Output: "result"},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	require.NoError(t, Validate(validSkill()))
}

func TestValidateCollectsAllProblems(t *testing.T) {
	def := &models.SkillDefinition{
		// No name, duplicate inputs, and two broken steps: everything
		// must surface in a single pass.
		Inputs: []models.InputSpec{
			{Name: "service"},
			{Name: "service"},
		},
		Steps: []models.Step{
			{Name: "a", Kind: models.StepTool}, // missing tool name
			{Name: "a", Kind: models.StepCompute}, // duplicate name, missing expression
		},
	}

	err := Validate(def)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Problems), 4)
	assert.Contains(t, err.Error(), "skill name is required")
	assert.Contains(t, err.Error(), `duplicate input name "service"`)
	assert.Contains(t, err.Error(), `duplicate step name "a"`)
	assert.Contains(t, err.Error(), "requires an expression")
}

func TestValidateStepKinds(t *testing.T) {
	tests := []struct {
		name string
		step models.Step
		want string
	}{
		{
			name: "tool requires name",
			step: models.Step{Name: "s", Kind: models.StepTool},
			want: "requires a tool name",
		},
		{
			name: "invalid on_error",
			step: models.Step{Name: "s", Kind: models.StepTool, Tool: "shell", OnError: "retry"},
			want: "invalid on_error policy",
		},
		{
			name: "fallback without auto_heal",
			step: models.Step{Name: "s", Kind: models.StepTool, Tool: "shell", Fallback: models.OnErrorContinue},
			want: "only meaningful with on_error: auto_heal",
		},
		{
			name: "negative retries",
			step: models.Step{Name: "s", Kind: models.StepTool, Tool: "shell",
				Retry: models.RetryConfig{MaxAttempts: -1}},
			want: "cannot be negative",
		},
		{
			name: "confirm requires options",
			step: models.Step{Name: "s", Kind: models.StepConfirm, Message: "sure?"},
			want: "at least one option",
		},
		{
			name: "duplicate option values",
			step: models.Step{Name: "s", Kind: models.StepConfirm, Message: "sure?",
				Options: []models.ConfirmOption{{Value: "yes"}, {Value: "yes"}}},
			want: "duplicate confirm option value",
		},
		{
			name: "default not among options",
			step: models.Step{Name: "s", Kind: models.StepConfirm, Message: "sure?",
				Options:      []models.ConfirmOption{{Value: "yes"}, {Value: "no"}},
				DefaultValue: "maybe"},
			want: "not among the options",
		},
		{
			name: "conditional requires then",
			step: models.Step{Name: "s", Kind: models.StepConditional, Predicate: "true"},
			want: "requires a then branch",
		},
		{
			name: "parallel requires output",
			step: models.Step{Name: "s", Kind: models.StepParallel,
				Children: []models.Step{{Name: "c", Kind: models.StepTool, Tool: "shell"}}},
			want: "requires an output name",
		},
		{
			name: "broken condition expression",
			step: models.Step{Name: "s", Kind: models.StepTool, Tool: "shell", Condition: "count >"},
			want: "condition",
		},
		{
			name: "broken arg template",
			step: models.Step{Name: "s", Kind: models.StepTool, Tool: "shell",
				Args: map[string]interface{}{"command": "{{ .broken"}},
			want: "args",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &models.SkillDefinition{Name: "x", Steps: []models.Step{tt.step}}
			err := Validate(def)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateOutputShadowsInput(t *testing.T) {
	def := &models.SkillDefinition{
		Name:   "x",
		Inputs: []models.InputSpec{{Name: "service"}},
		Steps: []models.Step{
			{Name: "s", Kind: models.StepTool, Tool: "shell", Output: "service"},
		},
	}
	err := Validate(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `output name "service" already declared`)
}

func TestValidateParallelSiblingReference(t *testing.T) {
	def := &models.SkillDefinition{
		Name: "x",
		Steps: []models.Step{
			{
				Name: "fan", Kind: models.StepParallel, Output: "results",
				Children: []models.Step{
					{Name: "first", Kind: models.StepTool, Tool: "shell", Output: "first_out"},
					{Name: "second", Kind: models.StepTool, Tool: "shell",
						Args: map[string]interface{}{"command": "echo {{ .first_out }}"}},
				},
			},
		},
	}
	err := Validate(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sibling output")
}

func TestValidateConfirmInsideParallel(t *testing.T) {
	def := &models.SkillDefinition{
		Name: "x",
		Steps: []models.Step{
			{
				Name: "fan", Kind: models.StepParallel, Output: "results",
				Children: []models.Step{
					{Name: "ask", Kind: models.StepConfirm, Message: "sure?",
						Options: []models.ConfirmOption{{Value: "yes"}}},
				},
			},
		},
	}
	err := Validate(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot run inside a parallel block")

	// Nested inside a conditional branch of a child as well.
	def.Steps[0].Children = []models.Step{
		{
			Name: "branch", Kind: models.StepConditional, Predicate: "true",
			Then: []models.Step{
				{Name: "ask", Kind: models.StepConfirm, Message: "sure?",
					Options: []models.ConfirmOption{{Value: "yes"}}},
			},
		},
	}
	err = Validate(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot run inside a parallel block")
}
