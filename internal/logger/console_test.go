package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConsoleLoggerLevelFiltering(t *testing.T) {
	buf := new(bytes.Buffer)
	log := NewConsoleLogger(buf, "warn")

	log.Tracef("trace line")
	log.Debugf("debug line")
	log.Infof("info line")
	log.Warnf("warn line")
	log.Errorf("error line")

	output := buf.String()
	for _, hidden := range []string{"trace line", "debug line", "info line"} {
		if strings.Contains(output, hidden) {
			t.Errorf("Output should not contain %q at warn level, got:\n%s", hidden, output)
		}
	}
	for _, shown := range []string{"warn line", "error line"} {
		if !strings.Contains(output, shown) {
			t.Errorf("Output should contain %q, got:\n%s", shown, output)
		}
	}
}

func TestConsoleLoggerDefaultsToInfo(t *testing.T) {
	buf := new(bytes.Buffer)
	log := NewConsoleLogger(buf, "bogus-level")

	log.Debugf("debug line")
	log.Infof("info line")

	output := buf.String()
	if strings.Contains(output, "debug line") {
		t.Errorf("Debug should be hidden at default level, got:\n%s", output)
	}
	if !strings.Contains(output, "info line") {
		t.Errorf("Info should be shown at default level, got:\n%s", output)
	}
}

func TestConsoleLoggerNilWriter(t *testing.T) {
	log := NewConsoleLogger(nil, "info")
	// Must not panic.
	log.Infof("goes nowhere")
}

func TestFileLoggerWritesAndCloses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	fl, err := NewFileLogger(dir, "exec-log-1")
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	fl.Infof("step %q completed", "build")
	fl.Errorf("step %q failed", "deploy")
	if err := fl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(fl.Path())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `step "build" completed`) {
		t.Errorf("Log should contain the info line, got:\n%s", content)
	}
	if !strings.Contains(content, `step "deploy" failed`) {
		t.Errorf("Log should contain the error line, got:\n%s", content)
	}
}

// captureLogger records formatted lines for sink assertions.
type captureLogger struct {
	lines []string
}

func (c *captureLogger) record(f string, a ...interface{}) {
	c.lines = append(c.lines, fmt.Sprintf(f, a...))
}

func (c *captureLogger) Tracef(f string, a ...interface{}) { c.record(f, a...) }
func (c *captureLogger) Debugf(f string, a ...interface{}) { c.record(f, a...) }
func (c *captureLogger) Infof(f string, a ...interface{})  { c.record(f, a...) }
func (c *captureLogger) Warnf(f string, a ...interface{})  { c.record(f, a...) }
func (c *captureLogger) Errorf(f string, a ...interface{}) { c.record(f, a...) }

func TestLogSinkEmitsEvents(t *testing.T) {
	logged := &captureLogger{}
	sink := NewLogSink(logged)

	sink.StepStarted("0123456789abcdef", "build", "tool")
	sink.ConfirmationAnswered("0123456789abcdef", "approve", "proceed", "learned")

	if len(logged.lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %v", len(logged.lines), logged.lines)
	}
	// Execution IDs are truncated for readability.
	if !strings.Contains(logged.lines[0], "[01234567]") {
		t.Errorf("Expected truncated execution ID, got: %s", logged.lines[0])
	}
	if !strings.Contains(logged.lines[1], `answered "proceed"`) {
		t.Errorf("Expected answer line, got: %s", logged.lines[1])
	}
}
