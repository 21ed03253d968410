package skill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/skillrunner/internal/models"
)

const yamlSkill = `
name: deploy
description: Deploy a service
inputs:
  - name: service
    required: true
  - name: env
    default: staging
steps:
  - name: build
    tool: shell
    args:
      command: "make build SERVICE={{ .service }}"
    output: build_result
  - name: replicas
    expression: "2 * 2"
    output: replica_count
  - name: check_env
    predicate: env == "prod"
    then:
      - name: notify
        tool: shell
        args:
          command: "echo prod deploy"
`

func TestLoadYAML(t *testing.T) {
	l := NewLoader()
	def, err := l.LoadYAML([]byte(yamlSkill))
	require.NoError(t, err)

	assert.Equal(t, "deploy", def.Name)
	require.Len(t, def.Steps, 3)

	// Kind inference from the present field.
	assert.Equal(t, models.StepTool, def.Steps[0].Kind)
	assert.Equal(t, models.StepCompute, def.Steps[1].Kind)
	assert.Equal(t, models.StepConditional, def.Steps[2].Kind)
	assert.Equal(t, models.StepTool, def.Steps[2].Then[0].Kind)

	require.Len(t, def.Inputs, 2)
	assert.True(t, def.Inputs[0].Required)
	assert.Equal(t, "staging", def.Inputs[1].Default)
}

func TestLoadYAMLDeterministic(t *testing.T) {
	l := NewLoader()
	first, err := l.LoadYAML([]byte(yamlSkill))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := l.LoadYAML([]byte(yamlSkill))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLoadMarkdown(t *testing.T) {
	doc := `---
name: cleanup
description: Remove stale resources
destructive: true
---

# Cleanup skill

Removes stale resources from the cluster.

` + "```yaml" + `
name: ignored-by-frontmatter
steps:
  - name: sweep
    tool: shell
    args:
      command: "echo sweep"
` + "```" + `
`
	l := NewLoader()
	def, err := l.LoadMarkdown([]byte(doc))
	require.NoError(t, err)

	// Frontmatter wins over the fenced block.
	assert.Equal(t, "cleanup", def.Name)
	assert.Equal(t, "Remove stale resources", def.Description)
	assert.True(t, def.Destructive)
	require.Len(t, def.Steps, 1)
	assert.Equal(t, models.StepTool, def.Steps[0].Kind)
}

func TestLoadMarkdownWithoutYAMLBlock(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadMarkdown([]byte("# Just prose\n\nNo skill here.\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fenced yaml block")
}

func TestLoadYAMLMalformed(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadYAML([]byte("steps: [unclosed"))
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLoadByName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy.yaml"), []byte(yamlSkill), 0644))

	l := NewLoader()
	def, err := l.LoadByName(dir, "deploy")
	require.NoError(t, err)
	assert.Equal(t, "deploy", def.Name)

	_, err = l.LoadByName(dir, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
