package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewLearningShowCommand creates the 'skillrunner learning show' command
func NewLearningShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [tool-name]",
		Short: "Show learned fixes and recent failures",
		Long: `Display learned fixes ordered by success count, and optionally the
recent failure records for one tool.

Examples:
  skillrunner learning show
  skillrunner learning show kubectl --failures 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLearningShow,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .skillrunner/config.yaml)")
	cmd.Flags().String("db-path", "", "Path to the learning database")
	cmd.Flags().Int("limit", 20, "Maximum learned fixes to show")
	cmd.Flags().Int("failures", 0, "Also show this many recent failures for the tool")

	return cmd
}

// runLearningShow executes the learning show command
func runLearningShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if eng.Store() == nil {
		return fmt.Errorf("learning is disabled in configuration")
	}

	output := cmd.OutOrStdout()
	ctx := context.Background()
	limit, _ := cmd.Flags().GetInt("limit")

	fixes, err := eng.Store().ListLearnedFixes(ctx, limit)
	if err != nil {
		return fmt.Errorf("list learned fixes: %w", err)
	}

	if len(fixes) == 0 {
		fmt.Fprintf(output, "No learned fixes recorded.\n")
	} else {
		bold := color.New(color.Bold).SprintFunc()
		fmt.Fprintf(output, "%s\n", bold("Learned fixes:"))
		for _, fix := range fixes {
			fmt.Fprintf(output, "  %-20s  %-18s  %3d success(es)  %s\n",
				fix.ToolName, fix.Remediation, fix.SuccessCount, fix.Signature)
		}
	}

	failureCount, _ := cmd.Flags().GetInt("failures")
	if failureCount > 0 && len(args) == 1 {
		recs, err := eng.Store().QueryFailures(ctx, args[0], failureCount)
		if err != nil {
			return fmt.Errorf("query failures: %w", err)
		}
		fmt.Fprintf(output, "\nRecent failures for %s:\n", args[0])
		if len(recs) == 0 {
			fmt.Fprintf(output, "  none\n")
		}
		for _, rec := range recs {
			status := "unresolved"
			if rec.Success {
				status = "healed"
			}
			fmt.Fprintf(output, "  [%s] %-8s %-10s %s\n",
				rec.Timestamp.Format("2006-01-02 15:04"), rec.Classification, status, rec.ErrorSnippet)
		}
	}

	return nil
}
