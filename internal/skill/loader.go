// Package skill loads skill documents and validates them into executable
// definitions.
//
// Skills are authored either as plain YAML files or as SKILL.md files whose
// YAML frontmatter carries the metadata and whose fenced "yaml" code block
// carries the step definition. Validation collects every discovered problem
// rather than failing on the first; tool existence is deliberately not
// checked here, tools are resolved dynamically at execution time.
package skill

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/harrison/skillrunner/internal/models"
)

// Loader parses and validates skill documents.
type Loader struct {
	markdown goldmark.Markdown
}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{markdown: goldmark.New()}
}

// LoadFile loads a skill from a YAML or Markdown file, inferring the format
// from the extension.
func (l *Loader) LoadFile(path string) (*models.SkillDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return l.LoadMarkdown(data)
	default:
		return l.LoadYAML(data)
	}
}

// LoadByName locates a skill by name under skillDir, trying
// <name>.yaml, <name>.yml and <name>.md in that order.
func (l *Loader) LoadByName(skillDir, name string) (*models.SkillDefinition, error) {
	for _, ext := range []string{".yaml", ".yml", ".md"} {
		path := filepath.Join(skillDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return l.LoadFile(path)
		}
	}
	return nil, fmt.Errorf("skill %q not found in %s", name, skillDir)
}

// LoadYAML parses and validates a YAML skill document.
func (l *Loader) LoadYAML(data []byte) (*models.SkillDefinition, error) {
	var def models.SkillDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("malformed YAML: %v", err)}}
	}
	normalize(&def)
	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadMarkdown parses a SKILL.md document. Frontmatter supplies name and
// description; the first fenced yaml code block supplies inputs and steps.
// Frontmatter values win over the code block on conflict.
func (l *Loader) LoadMarkdown(data []byte) (*models.SkillDefinition, error) {
	body, frontmatter := extractFrontmatter(data)

	var meta struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Destructive bool   `yaml:"destructive"`
	}
	if frontmatter != nil {
		if err := yaml.Unmarshal(frontmatter, &meta); err != nil {
			return nil, &ValidationError{Problems: []string{fmt.Sprintf("malformed frontmatter: %v", err)}}
		}
	}

	block, err := l.extractYAMLBlock(body)
	if err != nil {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}

	var def models.SkillDefinition
	if err := yaml.Unmarshal(block, &def); err != nil {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("malformed skill block: %v", err)}}
	}
	if meta.Name != "" {
		def.Name = meta.Name
	}
	if meta.Description != "" {
		def.Description = meta.Description
	}
	if meta.Destructive {
		def.Destructive = true
	}

	normalize(&def)
	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// extractYAMLBlock walks the Markdown AST and returns the content of the
// first fenced code block tagged yaml.
func (l *Loader) extractYAMLBlock(source []byte) ([]byte, error) {
	doc := l.markdown.Parser().Parse(text.NewReader(source))

	var block []byte
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || block != nil {
			return ast.WalkContinue, nil
		}
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := string(fenced.Language(source))
		if lang != "yaml" && lang != "yml" {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		for i := 0; i < fenced.Lines().Len(); i++ {
			line := fenced.Lines().At(i)
			buf.Write(line.Value(source))
		}
		block = buf.Bytes()
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}
	if block == nil {
		return nil, fmt.Errorf("no fenced yaml block found in skill document")
	}
	return block, nil
}

// extractFrontmatter splits YAML frontmatter from markdown content.
// Returns the body without frontmatter and the frontmatter bytes (nil when
// absent).
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))
	if len(lines) < 2 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}
	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}
	return content, nil
}

// normalize infers missing step kinds from which kind-specific field is
// present, recursively.
func normalize(def *models.SkillDefinition) {
	normalizeSteps(def.Steps)
}

func normalizeSteps(steps []models.Step) {
	for i := range steps {
		step := &steps[i]
		if step.Kind == "" {
			switch {
			case step.Tool != "":
				step.Kind = models.StepTool
			case step.Expression != "":
				step.Kind = models.StepCompute
			case step.Message != "" || len(step.Options) > 0:
				step.Kind = models.StepConfirm
			case step.Predicate != "" || len(step.Then) > 0 || len(step.Else) > 0:
				step.Kind = models.StepConditional
			case len(step.Children) > 0:
				step.Kind = models.StepParallel
			}
		}
		normalizeSteps(step.Then)
		normalizeSteps(step.Else)
		normalizeSteps(step.Children)
	}
}
