package cmd

import (
	"github.com/spf13/cobra"
)

// NewLearningCommand creates the 'skillrunner learning' parent command
func NewLearningCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Failure-learning commands",
		Long: `Commands for viewing and managing learned failure data.

The learning subsystem records every tool failure, the remediation that
was applied and whether it worked, so future failures with the same
signature are fixed without guesswork.`,
	}

	// Add subcommands
	cmd.AddCommand(NewLearningShowCommand())
	cmd.AddCommand(NewLearningStatsCommand())
	cmd.AddCommand(newLearningClearCommand())

	return cmd
}
