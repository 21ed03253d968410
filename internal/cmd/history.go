package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/skillrunner/internal/learning"
	"github.com/harrison/skillrunner/internal/models"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [skill-name]",
		Short: "Show recorded executions",
		Long: `Show execution history, most recent first, optionally filtered by
skill name and status.

Examples:
  skillrunner history
  skillrunner history deploy --status failed --limit 10
  skillrunner history --since 24h`,
		Args: cobra.MaximumNArgs(1),
		RunE: historyCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .skillrunner/config.yaml)")
	cmd.Flags().String("db-path", "", "Path to the learning database")
	cmd.Flags().String("status", "", "Filter by status (completed, partial, failed, paused, cancelled)")
	cmd.Flags().String("since", "", "Only executions newer than this duration (e.g. 24h, 7d as 168h)")
	cmd.Flags().Int("limit", 20, "Maximum rows to show")

	return cmd
}

// historyCommand implements the history command logic
func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	filter := learning.ExecutionFilter{}
	if len(args) == 1 {
		filter.SkillName = args[0]
	}
	if status, _ := cmd.Flags().GetString("status"); status != "" {
		filter.Status = models.RunStatus(status)
	}
	if sinceStr, _ := cmd.Flags().GetString("since"); sinceStr != "" {
		d, err := time.ParseDuration(sinceStr)
		if err != nil {
			return fmt.Errorf("invalid since duration %q: %w", sinceStr, err)
		}
		filter.Since = time.Now().Add(-d)
	}
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	sums, err := eng.QueryHistory(context.Background(), filter)
	if err != nil {
		return err
	}

	output := cmd.OutOrStdout()
	if len(sums) == 0 {
		fmt.Fprintf(output, "No executions recorded.\n")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, sum := range sums {
		status := string(sum.Status)
		switch sum.Status {
		case models.RunCompleted:
			status = green(status)
		case models.RunFailed:
			status = red(status)
		case models.RunPartial, models.RunPaused:
			status = yellow(status)
		}
		fmt.Fprintf(output, "  %s  %-20s  %-10s  %d steps (%d failed)  %s\n",
			sum.ExecutionID, sum.SkillName, status,
			sum.StepsTotal, sum.StepsFailed,
			sum.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
