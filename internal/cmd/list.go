package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List paused executions",
		Long: `List executions parked at a confirmation step, oldest first.

With --expire, confirmations whose timeout has elapsed are resolved with
their configured default before listing.`,
		Args: cobra.NoArgs,
		RunE: listCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .skillrunner/config.yaml)")
	cmd.Flags().String("db-path", "", "Path to the learning database")
	cmd.Flags().Bool("expire", false, "Resolve timed-out confirmations with their defaults first")

	return cmd
}

// listCommand implements the list command logic
func listCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	output := cmd.OutOrStdout()

	if expire, _ := cmd.Flags().GetBool("expire"); expire {
		if err := eng.ExpireStale(context.Background()); err != nil {
			return fmt.Errorf("expire stale confirmations: %w", err)
		}
	}

	states, err := eng.ListPaused()
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Fprintf(output, "No paused executions.\n")
		return nil
	}

	fmt.Fprintf(output, "Paused executions:\n")
	for _, st := range states {
		fmt.Fprintf(output, "  %s  %-20s  at %q  since %s\n",
			st.Context.ExecutionID, st.Context.SkillName,
			st.Request.StepName, st.SavedAt.Format(time.RFC3339))
	}
	return nil
}
