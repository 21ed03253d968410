package logger

import (
	"time"

	"github.com/harrison/skillrunner/internal/models"
)

// Logger is the minimal leveled logging interface the engine packages
// depend on. *ConsoleLogger and *FileLogger satisfy it; nil-safe callers
// should still guard against a nil interface value.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// EventSink receives the engine's observability stream: per-step lifecycle,
// auto-heal activity, and confirmation activity. Consumed by external UI
// layers; implementations must be safe for concurrent use.
type EventSink interface {
	StepStarted(executionID, stepName string, kind models.StepKind)
	StepCompleted(executionID string, outcome models.StepOutcome)
	StepFailed(executionID string, outcome models.StepOutcome)

	HealTriggered(executionID, tool string, classification models.Classification)
	HealCompleted(executionID, tool, remediation string, success bool, latency time.Duration)

	ConfirmationRequired(req models.ConfirmationRequest)
	ConfirmationAnswered(executionID, stepName, selected string, source models.ResponseSource)
	ConfirmationExpired(executionID, stepName, defaultValue string)
}

// LogSink implements EventSink by emitting log lines through a Logger.
type LogSink struct {
	Log Logger
}

// NewLogSink wraps a Logger as an EventSink.
func NewLogSink(log Logger) *LogSink {
	return &LogSink{Log: log}
}

func (s *LogSink) log() Logger {
	if s == nil || s.Log == nil {
		return nil
	}
	return s.Log
}

// StepStarted logs a step start event.
func (s *LogSink) StepStarted(executionID, stepName string, kind models.StepKind) {
	if l := s.log(); l != nil {
		l.Debugf("[%s] step %s (%s) started", shortID(executionID), stepName, kind)
	}
}

// StepCompleted logs a step completion event.
func (s *LogSink) StepCompleted(executionID string, outcome models.StepOutcome) {
	if l := s.log(); l != nil {
		l.Infof("[%s] step %s %s (%.2fs)", shortID(executionID), outcome.StepName,
			outcome.Status, outcome.Duration.Seconds())
	}
}

// StepFailed logs a step failure event.
func (s *LogSink) StepFailed(executionID string, outcome models.StepOutcome) {
	if l := s.log(); l != nil {
		l.Errorf("[%s] step %s failed: %s", shortID(executionID), outcome.StepName, outcome.Error)
	}
}

// HealTriggered logs the start of an auto-heal attempt.
func (s *LogSink) HealTriggered(executionID, tool string, classification models.Classification) {
	if l := s.log(); l != nil {
		l.Warnf("[%s] auto-heal triggered for %s (classified %s)", shortID(executionID), tool, classification)
	}
}

// HealCompleted logs the outcome of an auto-heal attempt.
func (s *LogSink) HealCompleted(executionID, tool, remediation string, success bool, latency time.Duration) {
	l := s.log()
	if l == nil {
		return
	}
	if success {
		l.Infof("[%s] auto-heal for %s succeeded via %s (%.2fs)", shortID(executionID), tool, remediation, latency.Seconds())
	} else {
		l.Warnf("[%s] auto-heal for %s via %s did not recover", shortID(executionID), tool, remediation)
	}
}

// ConfirmationRequired logs a pending confirmation.
func (s *LogSink) ConfirmationRequired(req models.ConfirmationRequest) {
	if l := s.log(); l != nil {
		l.Infof("[%s] confirmation required at step %s: %s", shortID(req.ExecutionID), req.StepName, req.Title)
	}
}

// ConfirmationAnswered logs a resolved confirmation.
func (s *LogSink) ConfirmationAnswered(executionID, stepName, selected string, source models.ResponseSource) {
	if l := s.log(); l != nil {
		l.Infof("[%s] confirmation at %s answered %q (source: %s)", shortID(executionID), stepName, selected, source)
	}
}

// ConfirmationExpired logs a timeout-driven default resolution.
func (s *LogSink) ConfirmationExpired(executionID, stepName, defaultValue string) {
	if l := s.log(); l != nil {
		l.Warnf("[%s] confirmation at %s expired, applied default %q", shortID(executionID), stepName, defaultValue)
	}
}

// NopSink is an EventSink that discards all events.
type NopSink struct{}

func (NopSink) StepStarted(string, string, models.StepKind)                        {}
func (NopSink) StepCompleted(string, models.StepOutcome)                           {}
func (NopSink) StepFailed(string, models.StepOutcome)                              {}
func (NopSink) HealTriggered(string, string, models.Classification)                {}
func (NopSink) HealCompleted(string, string, string, bool, time.Duration)          {}
func (NopSink) ConfirmationRequired(models.ConfirmationRequest)                    {}
func (NopSink) ConfirmationAnswered(string, string, string, models.ResponseSource) {}
func (NopSink) ConfirmationExpired(string, string, string)                         {}

// shortID truncates an execution ID for log readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
