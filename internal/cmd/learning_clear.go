package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newLearningClearCommand creates the 'skillrunner learning clear' command
func newLearningClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear [skill-name]",
		Short: "Clear learning data",
		Long: `Clear learned confirmation preferences for one skill, or with --all
the entire learned dataset: fixes, heal statistics and failure records.

Examples:
  # Forget the remembered confirmation answers of one skill
  skillrunner learning clear deploy

  # Clear everything (requires confirmation)
  skillrunner learning clear --all`,
		Args: func(cmd *cobra.Command, args []string) error {
			clearAll, _ := cmd.Flags().GetBool("all")
			if clearAll && len(args) > 0 {
				return fmt.Errorf("cannot specify skill name when using --all flag")
			}
			if !clearAll && len(args) != 1 {
				return fmt.Errorf("requires skill name argument or --all flag")
			}
			return nil
		},
		RunE: runLearningClear,
	}

	cmd.Flags().Bool("all", false, "Clear the entire learned dataset")
	cmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	cmd.Flags().String("config", "", "Path to config file (default: .skillrunner/config.yaml)")
	cmd.Flags().String("db-path", "", "Path to the learning database")

	return cmd
}

// runLearningClear executes the clear command
func runLearningClear(cmd *cobra.Command, args []string) error {
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
	clearAll, _ := cmd.Flags().GetBool("all")
	skipPrompt, _ := cmd.Flags().GetBool("yes")

	if clearAll {
		fmt.Fprintf(output, "WARNING: This will delete ALL learned fixes, statistics and failure records.\n")
		if !skipPrompt && !confirmAction(output) {
			fmt.Fprintf(output, "Operation cancelled.\n")
			return nil
		}
		if err := eng.Store().Clear(ctx); err != nil {
			return fmt.Errorf("clear learning data: %w", err)
		}
		fmt.Fprintf(output, "Learning data cleared.\n")
		return nil
	}

	if err := eng.Store().ClearPreferences(ctx, args[0]); err != nil {
		return fmt.Errorf("clear preferences: %w", err)
	}
	fmt.Fprintf(output, "Cleared confirmation preferences for %q.\n", args[0])
	return nil
}

// confirmAction prompts for a yes/no answer on stdin.
func confirmAction(output io.Writer) bool {
	fmt.Fprintf(output, "Continue? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
