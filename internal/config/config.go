// Package config loads and validates skillrunner configuration.
//
// Configuration lives in a YAML file (default .skillrunner/config.yaml).
// A missing file is not an error: defaults apply. A malformed file is.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/skillrunner/internal/models"
)

// GuardConfig configures the pre-run safety guard.
type GuardConfig struct {
	// Enabled enables the guard for skills flagged destructive.
	Enabled bool `yaml:"enabled"`

	// ProtectedTargets are target names (e.g. VCS branches) the guard
	// refuses to run destructive skills against.
	ProtectedTargets []string `yaml:"protected_targets"`

	// RequireCleanState blocks destructive skills when the target has
	// uncommitted changes.
	RequireCleanState bool `yaml:"require_clean_state"`

	// OverrideInput is the run input name that bypasses the guard.
	OverrideInput string `yaml:"override_input"`
}

// AutoHealConfig configures the failure-recovery subsystem.
type AutoHealConfig struct {
	// Enabled enables classification-driven remediation and retry.
	Enabled bool `yaml:"enabled"`

	// MaxAttempts is the default retry budget when a step declares none.
	MaxAttempts int `yaml:"max_attempts"`

	// PatternFile optionally points at a YAML file of extra
	// classification patterns merged over the built-in set.
	PatternFile string `yaml:"pattern_file"`

	// EnableDiagnosis allows handing unknown failures to an external
	// diagnosis collaborator for a single proposed-fix retry.
	EnableDiagnosis bool `yaml:"enable_diagnosis"`

	// Remedies maps remediation names (optionally prefixed "tool:") to
	// shell commands that apply them.
	Remedies map[string]string `yaml:"remedies"`
}

// ConfirmConfig configures the confirmation manager.
type ConfirmConfig struct {
	// DefaultTimeout applies to confirm steps that declare no timeout.
	DefaultTimeout models.Duration `yaml:"default_timeout"`

	// LearnPreferences enables persisting "always proceed" selections.
	LearnPreferences bool `yaml:"learn_preferences"`
}

// LearningConfig configures the shared history and learned-pattern store.
type LearningConfig struct {
	// Enabled enables the learning store. When disabled, failures are
	// still classified but nothing is persisted or looked up.
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the SQLite database file.
	DBPath string `yaml:"db_path"`

	// KeepFailuresDays is the retention window for failure records.
	// Older rows are pruned on write, not by a separate sweep.
	KeepFailuresDays int `yaml:"keep_failures_days"`

	// MaxFailuresPerTool caps retained failure records per tool.
	MaxFailuresPerTool int `yaml:"max_failures_per_tool"`

	// KeepExecutionsDays is the retention window for execution summaries.
	KeepExecutionsDays int `yaml:"keep_executions_days"`
}

// Config holds all skillrunner configuration options.
type Config struct {
	// SkillDir is the directory skills are loaded from by name.
	SkillDir string `yaml:"skill_dir"`

	// ToolTimeout is the per-call timeout applied to every tool
	// invocation unless the step's retry config overrides it.
	ToolTimeout models.Duration `yaml:"tool_timeout"`

	// MaxParallel bounds concurrent children of a parallel step
	// (0 = one goroutine per child).
	MaxParallel int `yaml:"max_parallel"`

	// LogLevel sets console verbosity (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogDir is where per-run log files are written.
	LogDir string `yaml:"log_dir"`

	// PausedDir is where paused execution snapshots are persisted.
	PausedDir string `yaml:"paused_dir"`

	Guard    GuardConfig    `yaml:"guard"`
	AutoHeal AutoHealConfig `yaml:"auto_heal"`
	Confirm  ConfirmConfig  `yaml:"confirm"`
	Learning LearningConfig `yaml:"learning"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		SkillDir:    ".skillrunner/skills",
		ToolTimeout: models.Duration(2 * time.Minute),
		MaxParallel: 0,
		LogLevel:    "info",
		LogDir:      ".skillrunner/logs",
		PausedDir:   ".skillrunner/paused",
		Guard: GuardConfig{
			Enabled:           true,
			ProtectedTargets:  []string{"main", "master", "develop"},
			RequireCleanState: true,
			OverrideInput:     "force",
		},
		AutoHeal: AutoHealConfig{
			Enabled:         true,
			MaxAttempts:     1,
			EnableDiagnosis: false,
		},
		Confirm: ConfirmConfig{
			DefaultTimeout:   models.Duration(5 * time.Minute),
			LearnPreferences: true,
		},
		Learning: LearningConfig{
			Enabled:            true,
			DBPath:             ".skillrunner/history.db",
			KeepFailuresDays:   90,
			MaxFailuresPerTool: 500,
			KeepExecutionsDays: 90,
		},
	}
}

// LoadConfig loads configuration from the given path. If the file does not
// exist, defaults are returned without error. A malformed file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from dir/config.yaml.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, "config.yaml"))
}

// Validate checks configuration values for consistency.
func (c *Config) Validate() error {
	if c.ToolTimeout < 0 {
		return fmt.Errorf("tool_timeout cannot be negative")
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel cannot be negative")
	}
	if c.AutoHeal.MaxAttempts < 0 {
		return fmt.Errorf("auto_heal.max_attempts cannot be negative")
	}
	if c.Confirm.DefaultTimeout < 0 {
		return fmt.Errorf("confirm.default_timeout cannot be negative")
	}
	if c.Learning.KeepFailuresDays < 0 {
		return fmt.Errorf("learning.keep_failures_days cannot be negative")
	}
	if c.Learning.MaxFailuresPerTool < 0 {
		return fmt.Errorf("learning.max_failures_per_tool cannot be negative")
	}
	switch normalized := c.LogLevel; normalized {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", normalized)
	}
	return nil
}

// MergeWithFlags overrides configuration with explicitly set CLI flags.
// Nil pointers mean the flag was not provided.
func (c *Config) MergeWithFlags(skillDir *string, toolTimeout *time.Duration, logLevel *string, dbPath *string) {
	if skillDir != nil && *skillDir != "" {
		c.SkillDir = *skillDir
	}
	if toolTimeout != nil && *toolTimeout > 0 {
		c.ToolTimeout = models.Duration(*toolTimeout)
	}
	if logLevel != nil && *logLevel != "" {
		c.LogLevel = *logLevel
	}
	if dbPath != nil && *dbPath != "" {
		c.Learning.DBPath = *dbPath
	}
}
