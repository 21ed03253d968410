package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewLearningStatsCommand creates the 'skillrunner learning stats' command
func NewLearningStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show auto-heal statistics",
		Long: `Display auto-heal attempt and success counts per tool and
classification, bucketed daily or weekly.

Examples:
  skillrunner learning stats
  skillrunner learning stats --period weekly --limit 52`,
		Args: cobra.NoArgs,
		RunE: runLearningStats,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .skillrunner/config.yaml)")
	cmd.Flags().String("db-path", "", "Path to the learning database")
	cmd.Flags().String("period", "daily", "Bucket period (daily or weekly)")
	cmd.Flags().Int("limit", 30, "Maximum buckets to show")

	return cmd
}

// runLearningStats executes the learning stats command
func runLearningStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	period, _ := cmd.Flags().GetString("period")
	if period != "daily" && period != "weekly" {
		return fmt.Errorf("invalid period %q: expected daily or weekly", period)
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if eng.Store() == nil {
		return fmt.Errorf("learning is disabled in configuration")
	}

	limit, _ := cmd.Flags().GetInt("limit")
	stats, err := eng.Store().QueryHealStats(context.Background(), period, limit)
	if err != nil {
		return fmt.Errorf("query heal stats: %w", err)
	}

	output := cmd.OutOrStdout()
	if len(stats) == 0 {
		fmt.Fprintf(output, "No auto-heal activity recorded.\n")
		return nil
	}

	fmt.Fprintf(output, "%-12s %-20s %-10s %9s %9s %6s\n",
		"period", "tool", "class", "attempts", "healed", "rate")
	for _, st := range stats {
		rate := 0.0
		if st.Attempts > 0 {
			rate = float64(st.Successes) / float64(st.Attempts) * 100
		}
		fmt.Fprintf(output, "%-12s %-20s %-10s %9d %9d %5.0f%%\n",
			st.PeriodStart, st.ToolName, st.Classification, st.Attempts, st.Successes, rate)
	}
	return nil
}
