package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harrison/skillrunner/internal/config"
	"github.com/harrison/skillrunner/internal/confirm"
	"github.com/harrison/skillrunner/internal/engine"
	"github.com/harrison/skillrunner/internal/guard"
	"github.com/harrison/skillrunner/internal/logger"
	"github.com/harrison/skillrunner/internal/models"
	"github.com/harrison/skillrunner/internal/tools"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <skill-name-or-file>",
		Short: "Execute a skill",
		Long: `Execute a skill by name (looked up in the configured skill directory)
or by an explicit file path.

Inputs are supplied with repeated --input key=value flags, or a YAML file
via --inputs-file. Declared defaults fill anything not supplied.

Configuration is loaded from .skillrunner/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  skillrunner run deploy --input service=api --input env=staging
  skillrunner run ./skills/cleanup.yaml --inputs-file inputs.yaml
  skillrunner run rollback --input force=true  # bypass the safety guard`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .skillrunner/config.yaml)")
	cmd.Flags().StringArray("input", nil, "Skill input as key=value (repeatable)")
	cmd.Flags().String("inputs-file", "", "YAML file of skill inputs")
	cmd.Flags().String("skill-dir", "", "Directory skills are loaded from")
	cmd.Flags().String("tool-timeout", "", "Per-call tool timeout (e.g. 30s, 5m)")
	cmd.Flags().String("log-level", "", "Console log level (trace, debug, info, warn, error)")
	cmd.Flags().String("db-path", "", "Path to the learning database")
	cmd.Flags().Bool("verbose", false, "Show detailed execution information")

	return cmd
}

// loadCLIConfig loads configuration honoring --config and merges the common
// override flags shared by several subcommands.
func loadCLIConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var skillDirPtr, logLevelPtr, dbPathPtr *string
	var timeoutPtr *time.Duration

	if cmd.Flags().Changed("skill-dir") {
		v, _ := cmd.Flags().GetString("skill-dir")
		skillDirPtr = &v
	}
	if cmd.Flags().Changed("tool-timeout") {
		v, _ := cmd.Flags().GetString("tool-timeout")
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid tool-timeout %q: %w", v, err)
		}
		timeoutPtr = &timeout
	}
	if cmd.Flags().Changed("log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		logLevelPtr = &v
	}
	if cmd.Flags().Changed("db-path") {
		v, _ := cmd.Flags().GetString("db-path")
		dbPathPtr = &v
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		debug := "debug"
		logLevelPtr = &debug
	}

	cfg.MergeWithFlags(skillDirPtr, timeoutPtr, logLevelPtr, dbPathPtr)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newEngine builds a fully wired engine for CLI use: shell-backed tool
// registry, git target inspector, console confirmation backends and
// config-driven shell remedies.
func newEngine(cfg *config.Config) (*engine.Engine, error) {
	registry := tools.NewFuncRegistry()
	tools.RegisterShellTool(registry)

	return engine.New(cfg, engine.Options{
		Registry:    registry,
		Inspector:   guard.NewGitInspector(""),
		Remedies:    &tools.ShellRemedyRunner{Commands: cfg.AutoHeal.Remedies},
		Interactive: confirm.NewConsoleInteractive(),
		Log:         logger.NewConsoleLogger(os.Stdout, cfg.LogLevel),
	})
}

// parseInputs merges --inputs-file contents with --input flags; flags win.
func parseInputs(cmd *cobra.Command) (map[string]interface{}, error) {
	inputs := map[string]interface{}{}

	if path, _ := cmd.Flags().GetString("inputs-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read inputs file: %w", err)
		}
		if err := yaml.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("parse inputs file: %w", err)
		}
	}

	pairs, _ := cmd.Flags().GetStringArray("input")
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid input %q: expected key=value", pair)
		}
		inputs[key] = value
	}
	return inputs, nil
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadCLIConfig(cmd)
	if err != nil {
		return err
	}

	inputs, err := parseInputs(cmd)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	// Ctrl-C cancels at the next step boundary.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := eng.Run(ctx, args[0], inputs)
	printResult(cmd.OutOrStdout(), result)
	if err != nil {
		return err
	}
	if result != nil && result.Status == models.RunFailed {
		return fmt.Errorf("skill failed")
	}
	return nil
}

// printResult renders a run result: per-step lines, then the summary, then
// resume instructions if the run paused.
func printResult(out io.Writer, result *models.RunResult) {
	if result == nil {
		return
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(out, "\n")
	for _, s := range result.Steps {
		switch s.Status {
		case models.StepCompleted:
			fmt.Fprintf(out, "  %s %s (%s)\n", green("✓"), s.StepName, s.Duration.Round(time.Millisecond))
		case models.StepHealed:
			fmt.Fprintf(out, "  %s %s healed after %d attempt(s) (%s)\n", green("✓"), s.StepName, s.Attempts, s.Duration.Round(time.Millisecond))
		case models.StepSkipped:
			fmt.Fprintf(out, "  - %s skipped\n", s.StepName)
		case models.StepCompletedWithError:
			fmt.Fprintf(out, "  %s %s completed with error: %s\n", yellow("!"), s.StepName, s.Error)
		case models.StepFailed:
			fmt.Fprintf(out, "  %s %s: %s\n", red("✗"), s.StepName, s.Error)
		case models.StepCancelled:
			fmt.Fprintf(out, "  - %s cancelled\n", s.StepName)
		case models.StepAwaitingConfirmation:
			fmt.Fprintf(out, "  %s %s awaiting confirmation\n", yellow("?"), s.StepName)
		}
	}

	fmt.Fprintf(out, "\n%s\n", result.Summary)

	if result.Paused != nil {
		fmt.Fprintf(out, "\n%s\n", result.Paused.Message)
		for i, opt := range result.Paused.Options {
			label := opt.Label
			if label == "" {
				label = opt.Value
			}
			fmt.Fprintf(out, "  %d) %s\n", i+1, label)
		}
		fmt.Fprintf(out, "\nResume with: skillrunner resume %s --answer <value>\n", result.ExecutionID)
	}
}
