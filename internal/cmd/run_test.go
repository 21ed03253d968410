package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/skillrunner/internal/models"
)

func TestParseInputsFromFlags(t *testing.T) {
	cmd := NewRunCommand()
	if err := cmd.Flags().Set("input", "service=api"); err != nil {
		t.Fatalf("set input flag: %v", err)
	}
	if err := cmd.Flags().Set("input", "env=staging"); err != nil {
		t.Fatalf("set input flag: %v", err)
	}

	inputs, err := parseInputs(cmd)
	if err != nil {
		t.Fatalf("parseInputs: %v", err)
	}
	if inputs["service"] != "api" {
		t.Errorf("Expected service=api, got %v", inputs["service"])
	}
	if inputs["env"] != "staging" {
		t.Errorf("Expected env=staging, got %v", inputs["env"])
	}
}

func TestParseInputsRejectsMalformedPair(t *testing.T) {
	cmd := NewRunCommand()
	if err := cmd.Flags().Set("input", "no-equals-sign"); err != nil {
		t.Fatalf("set input flag: %v", err)
	}

	if _, err := parseInputs(cmd); err == nil {
		t.Error("Expected error for input without key=value form")
	}
}

func TestParseInputsFileAndFlagsMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inputs.yaml")
	content := "service: worker\nreplicas: 3\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write inputs file: %v", err)
	}

	cmd := NewRunCommand()
	if err := cmd.Flags().Set("inputs-file", path); err != nil {
		t.Fatalf("set inputs-file flag: %v", err)
	}
	// An explicit flag wins over the file.
	if err := cmd.Flags().Set("input", "service=api"); err != nil {
		t.Fatalf("set input flag: %v", err)
	}

	inputs, err := parseInputs(cmd)
	if err != nil {
		t.Fatalf("parseInputs: %v", err)
	}
	if inputs["service"] != "api" {
		t.Errorf("Flag should override file value, got %v", inputs["service"])
	}
	if inputs["replicas"] != 3 {
		t.Errorf("Expected replicas=3 from file, got %v", inputs["replicas"])
	}
}

func TestPrintResultRendersSteps(t *testing.T) {
	result := &models.RunResult{
		ExecutionID: "exec-print",
		SkillName:   "deploy",
		Status:      models.RunPartial,
		Summary:     `skill "deploy" completed with errors: 2 completed (1 healed), 1 failed, 1 skipped`,
		Steps: []models.StepOutcome{
			{StepName: "checkout", Status: models.StepCompleted, Duration: 120 * time.Millisecond},
			{StepName: "restart", Status: models.StepHealed, Attempts: 2, Duration: time.Second},
			{StepName: "smoke-test", Status: models.StepCompletedWithError, Error: "exit status 1"},
			{StepName: "announce", Status: models.StepSkipped},
		},
	}

	buf := new(bytes.Buffer)
	printResult(buf, result)
	output := buf.String()

	for _, want := range []string{
		"checkout",
		"restart healed after 2 attempt(s)",
		"smoke-test completed with error: exit status 1",
		"announce skipped",
		"completed with errors",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Output should contain %q, got:\n%s", want, output)
		}
	}
}

func TestPrintResultPausedShowsResumeHint(t *testing.T) {
	result := &models.RunResult{
		ExecutionID: "exec-paused",
		SkillName:   "release",
		Status:      models.RunPaused,
		Summary:     `skill "release" paused at "approve" awaiting confirmation (1 steps completed)`,
		Steps: []models.StepOutcome{
			{StepName: "build", Status: models.StepCompleted},
			{StepName: "approve", Status: models.StepAwaitingConfirmation},
		},
		Paused: &models.PausedInfo{
			ExecutionID: "exec-paused",
			StepName:    "approve",
			Message:     "Ship it?",
			Options: []models.ConfirmOption{
				{Label: "Ship it", Value: "proceed"},
				{Value: "abort"},
			},
		},
	}

	buf := new(bytes.Buffer)
	printResult(buf, result)
	output := buf.String()

	if !strings.Contains(output, "Ship it?") {
		t.Errorf("Output should contain the pending message, got:\n%s", output)
	}
	if !strings.Contains(output, "1) Ship it") {
		t.Errorf("Output should list labelled options, got:\n%s", output)
	}
	if !strings.Contains(output, "2) abort") {
		t.Errorf("Output should fall back to the option value, got:\n%s", output)
	}
	if !strings.Contains(output, "resume exec-paused") {
		t.Errorf("Output should show the resume command, got:\n%s", output)
	}
}
