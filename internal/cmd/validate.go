package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/skillrunner/internal/models"
	"github.com/harrison/skillrunner/internal/skill"
)

// NewValidateCommand creates and returns the validate subcommand
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <skill-name-or-file>...",
		Short: "Validate one or more skill documents",
		Long: `Parse and validate skill documents, checking for:
  - Structural well-formedness of every step
  - Unique step and output names
  - Well-formed template and expression syntax in every templated field
  - Parallel children not referencing sibling outputs
  - Confirmation options, defaults and timeouts

All problems are reported, not just the first.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCLIConfig(cmd)
			if err != nil {
				return err
			}
			return validateSkills(args, cfg.SkillDir, cmd.OutOrStdout())
		},
		SilenceUsage: true,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .skillrunner/config.yaml)")
	cmd.Flags().String("skill-dir", "", "Directory skills are loaded from")

	return cmd
}

// validateSkills loads and validates each named skill, reporting every
// problem found across all of them.
func validateSkills(names []string, skillDir string, output io.Writer) error {
	loader := skill.NewLoader()
	failed := 0

	for _, name := range names {
		loaded, err := loadForValidation(loader, skillDir, name)
		if err != nil {
			var verr *skill.ValidationError
			if errors.As(err, &verr) {
				fmt.Fprintf(output, "✗ %s: %d problem(s)\n", name, len(verr.Problems))
				for _, p := range verr.Problems {
					fmt.Fprintf(output, "    ✗ %s\n", p)
				}
			} else {
				fmt.Fprintf(output, "✗ %s: %v\n", name, err)
			}
			failed++
			continue
		}

		fmt.Fprintf(output, "✓ %s: %d step(s), valid\n", loaded.Name, len(loaded.Steps))
	}

	if failed > 0 {
		return fmt.Errorf("validation failed for %d of %d skill(s)", failed, len(names))
	}
	return nil
}

// loadForValidation resolves a CLI argument as a file path or a skill name.
func loadForValidation(loader *skill.Loader, skillDir, nameOrPath string) (*models.SkillDefinition, error) {
	if looksLikeSkillPath(nameOrPath) {
		return loader.LoadFile(nameOrPath)
	}
	return loader.LoadByName(skillDir, nameOrPath)
}

func looksLikeSkillPath(s string) bool {
	return strings.ContainsAny(s, "/\\.")
}
