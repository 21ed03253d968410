package autoheal

import (
	"context"
	"time"

	"github.com/harrison/skillrunner/internal/logger"
	"github.com/harrison/skillrunner/internal/models"
)

// Remediation action names. Actions are idempotent side-effecting
// operations external to the engine; the RemedyRunner owns their bodies.
const (
	RemedyReauthenticate = "reauthenticate"
	RemedyReconnect      = "reconnect"
)

// RemedyRunner applies a named remediation for a tool (re-authenticate,
// reconnect, or a tool-specific learned action). Implementations must be
// idempotent: the healer may invoke the same remedy across runs.
type RemedyRunner interface {
	Remedy(ctx context.Context, tool, remediation string) error
}

// Fix is a remediation proposed by an external diagnosis collaborator.
type Fix struct {
	Remediation string `json:"remediation"`
	Rationale   string `json:"rationale,omitempty"`
}

// FailureContext is the information handed to a Diagnoser.
type FailureContext struct {
	Tool           string                 `json:"tool"`
	ErrorText      string                 `json:"error_text"`
	Classification models.Classification  `json:"classification"`
	Args           map[string]interface{} `json:"args,omitempty"`
}

// Diagnoser is the narrow interface to an external diagnosis capability
// (e.g. the orchestrating AI client). A proposed fix is applied and retried
// exactly once before the healer gives up.
type Diagnoser interface {
	ProposeFix(ctx context.Context, fc FailureContext) (Fix, error)
}

// HistoryStore is the slice of the learning store the healer depends on.
type HistoryStore interface {
	CheckKnownIssues(ctx context.Context, toolName, errorText string) ([]models.LearnedFix, error)
	AppendFailure(ctx context.Context, rec *models.FailureRecord) error
	RecordFixSuccess(ctx context.Context, toolName, errorText, remediation string) error
	FoldHealStat(ctx context.Context, toolName string, class models.Classification, success bool, at time.Time) error
}

// CallFunc re-invokes the original tool call with identical arguments.
type CallFunc func(ctx context.Context) (string, error)

// Report summarizes one heal attempt for the executor's step outcome.
type Report struct {
	Classification models.Classification
	Remediation    string
	Attempts       int // total tool invocations, initial call included
	Healed         bool
}

// Healer coordinates classification, learned-fix lookup, remediation and
// bounded retry for failed tool calls.
type Healer struct {
	classifier *Classifier
	store      HistoryStore
	remedies   RemedyRunner
	diagnoser  Diagnoser
	sink       logger.EventSink
	enabled    bool
}

// NewHealer creates a Healer. store, remedies, diagnoser and sink may be
// nil; each missing collaborator degrades that capability gracefully.
func NewHealer(classifier *Classifier, store HistoryStore, remedies RemedyRunner, diagnoser Diagnoser, sink logger.EventSink, enabled bool) *Healer {
	if classifier == nil {
		classifier = NewClassifier()
	}
	if sink == nil {
		sink = logger.NopSink{}
	}
	return &Healer{
		classifier: classifier,
		store:      store,
		remedies:   remedies,
		diagnoser:  diagnoser,
		sink:       sink,
		enabled:    enabled,
	}
}

// Classify exposes the classifier for callers that only need the bucket.
func (h *Healer) Classify(errorText string) models.Classification {
	return h.classifier.Classify(errorText)
}

// record appends a failure record and folds stats; storage failures are
// logged through the sink path but never block execution.
func (h *Healer) record(ctx context.Context, rec *models.FailureRecord) {
	if h.store == nil {
		return
	}
	// Every handled error lands in the store, healed or not.
	_ = h.store.AppendFailure(ctx, rec)
	_ = h.store.FoldHealStat(ctx, rec.ToolName, rec.Classification, rec.Success, rec.Timestamp)
}

// resolveRemediation picks the remediation for a failure: learned fix
// first, then the generic classification fix, then external diagnosis for
// unknowns. Empty means nothing applicable.
func (h *Healer) resolveRemediation(ctx context.Context, executionID, tool, errorText string, class models.Classification, args map[string]interface{}) string {
	if h.store != nil {
		if fixes, err := h.store.CheckKnownIssues(ctx, tool, errorText); err == nil && len(fixes) > 0 {
			return fixes[0].Remediation
		}
	}

	switch class {
	case models.ClassAuth:
		return RemedyReauthenticate
	case models.ClassNetwork:
		return RemedyReconnect
	}

	if h.diagnoser != nil {
		fix, err := h.diagnoser.ProposeFix(ctx, FailureContext{
			Tool:           tool,
			ErrorText:      errorText,
			Classification: class,
			Args:           args,
		})
		if err == nil && fix.Remediation != "" {
			return fix.Remediation
		}
	}
	return ""
}

// Run executes a tool call under the auto-heal contract: initial call, and
// on failure classification, remediation and retries with identical
// arguments bounded by maxAttempts. A persistently failing tool is invoked
// at most maxAttempts+1 times. The same remediation is not re-applied
// within one retry budget when the identical failure recurs immediately.
func (h *Healer) Run(ctx context.Context, executionID, tool string, args map[string]interface{}, call CallFunc, maxAttempts int) (string, Report, error) {
	report := Report{}

	start := time.Now()
	result, err := call(ctx)
	report.Attempts = 1
	if err == nil {
		return result, report, nil
	}

	class := h.classifier.Classify(err.Error())
	report.Classification = class
	invErr := &ToolInvocationError{Tool: tool, Classification: class, Err: err}

	if !h.enabled || maxAttempts <= 0 {
		h.record(ctx, &models.FailureRecord{
			ToolName:       tool,
			Classification: class,
			ErrorSnippet:   snippet(err.Error()),
			Success:        false,
			Latency:        time.Since(start),
			Timestamp:      time.Now(),
		})
		return "", report, invErr
	}

	h.sink.HealTriggered(executionID, tool, class)

	remediation := h.resolveRemediation(ctx, executionID, tool, err.Error(), class, args)
	report.Remediation = remediation

	// The failed initial call, with the remediation we are about to apply.
	h.record(ctx, &models.FailureRecord{
		ToolName:       tool,
		Classification: class,
		ErrorSnippet:   snippet(err.Error()),
		Remediation:    remediation,
		Success:        false,
		Latency:        time.Since(start),
		Timestamp:      time.Now(),
	})

	if remediation == "" {
		// Nothing applicable: no retry is going to change the outcome.
		return "", report, &ExhaustedError{Tool: tool, Attempts: report.Attempts, Err: invErr}
	}

	lastSignature := signatureOf(err)
	remediationApplied := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !remediationApplied && h.remedies != nil {
			if remErr := h.remedies.Remedy(ctx, tool, remediation); remErr != nil {
				h.sink.HealCompleted(executionID, tool, remediation, false, time.Since(start))
				return "", report, &ExhaustedError{Tool: tool, Attempts: report.Attempts, Err: invErr}
			}
		}
		remediationApplied = true

		retryStart := time.Now()
		result, err = call(ctx)
		report.Attempts++

		if err == nil {
			report.Healed = true
			h.record(ctx, &models.FailureRecord{
				ToolName:       tool,
				Classification: class,
				ErrorSnippet:   "",
				Remediation:    remediation,
				Success:        true,
				Latency:        time.Since(retryStart),
				Timestamp:      time.Now(),
			})
			if h.store != nil {
				_ = h.store.RecordFixSuccess(ctx, tool, invErr.Err.Error(), remediation)
			}
			h.sink.HealCompleted(executionID, tool, remediation, true, time.Since(start))
			return result, report, nil
		}

		retryClass := h.classifier.Classify(err.Error())
		h.record(ctx, &models.FailureRecord{
			ToolName:       tool,
			Classification: retryClass,
			ErrorSnippet:   snippet(err.Error()),
			Remediation:    remediation,
			Success:        false,
			Latency:        time.Since(retryStart),
			Timestamp:      time.Now(),
		})
		invErr = &ToolInvocationError{Tool: tool, Classification: retryClass, Err: err}

		// A different failure may warrant fresh remediation on the next
		// pass; the identical one immediately recurring does not.
		if sig := signatureOf(err); sig != lastSignature {
			lastSignature = sig
			remediationApplied = false
			remediation = h.resolveRemediation(ctx, executionID, tool, err.Error(), retryClass, args)
			if remediation == "" {
				break
			}
			report.Remediation = remediation
		}
	}

	h.sink.HealCompleted(executionID, tool, remediation, false, time.Since(start))
	return "", report, &ExhaustedError{Tool: tool, Attempts: report.Attempts, Err: invErr}
}

// snippet bounds stored error text.
func snippet(s string) string {
	const max = 500
	if len(s) > max {
		return s[:max]
	}
	return s
}

func signatureOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
