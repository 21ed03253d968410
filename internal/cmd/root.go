// Package cmd implements the skillrunner command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for skillrunner
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skillrunner",
		Short: "Deterministic skill execution engine",
		Long: `Skillrunner executes declarative, multi-step skills: sequences of tool
invocations, computed values, conditional branches, parallel groups and
confirmation points.

Skills are loaded from YAML or Markdown documents, validated up front, and
driven through a step state machine with auto-heal failure recovery,
pause/resume confirmation handling and a safety guard for destructive
skills. Every run is recorded in a local execution history.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewResumeCommand())
	cmd.AddCommand(NewCancelCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewLearningCommand())

	return cmd
}
