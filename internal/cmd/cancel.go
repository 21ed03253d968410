package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCancelCommand creates the cancel command
func NewCancelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Cancel a paused execution",
		Long: `Discard the persisted state of a paused execution.

Live runs are cancelled with Ctrl-C in the terminal that started them;
this command removes executions parked at a confirmation step.`,
		Args: cobra.ExactArgs(1),
		RunE: cancelCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .skillrunner/config.yaml)")
	cmd.Flags().String("db-path", "", "Path to the learning database")

	return cmd
}

// cancelCommand implements the cancel command logic
func cancelCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Cancel(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled execution %s\n", args[0])
	return nil
}
