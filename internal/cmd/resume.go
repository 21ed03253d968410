package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/skillrunner/internal/models"
)

// NewResumeCommand creates the resume command
func NewResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <execution-id>",
		Short: "Resume a paused execution",
		Long: `Resume an execution that paused at a confirmation step.

The answer must be one of the step's declared option values; with no
--answer the step's configured default applies. Paused state is consumed
on resume: resuming the same execution ID twice fails.

Examples:
  skillrunner resume 2f1c9a3e-... --answer proceed
  skillrunner resume 2f1c9a3e-...            # use the step default`,
		Args: cobra.ExactArgs(1),
		RunE: resumeCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .skillrunner/config.yaml)")
	cmd.Flags().String("answer", "", "Selected option value for the pending confirmation")
	cmd.Flags().String("source", "interactive", "Who decided the answer (interactive, ai, learned)")
	cmd.Flags().String("skill-dir", "", "Directory skills are loaded from")
	cmd.Flags().String("tool-timeout", "", "Per-call tool timeout (e.g. 30s, 5m)")
	cmd.Flags().String("log-level", "", "Console log level (trace, debug, info, warn, error)")
	cmd.Flags().String("db-path", "", "Path to the learning database")
	cmd.Flags().Bool("verbose", false, "Show detailed execution information")

	return cmd
}

// resumeCommand implements the resume command logic
func resumeCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	answer, _ := cmd.Flags().GetString("answer")
	sourceFlag, _ := cmd.Flags().GetString("source")
	source := models.ResponseSource(sourceFlag)
	switch source {
	case models.SourceInteractive, models.SourceAI, models.SourceLearned:
	default:
		return fmt.Errorf("invalid source %q: expected interactive, ai or learned", sourceFlag)
	}

	result, err := eng.ResumeWithSource(ctx, args[0], answer, source)
	printResult(cmd.OutOrStdout(), result)
	if err != nil {
		return err
	}
	if result != nil && result.Status == models.RunFailed {
		return fmt.Errorf("skill failed")
	}
	return nil
}
