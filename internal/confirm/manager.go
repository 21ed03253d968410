// Package confirm resolves confirmation steps through a chain of backends:
// learned preference first, then the AI-assisted path (which pauses the run
// rather than blocking), then interactive prompting with a timeout-driven
// default.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrison/skillrunner/internal/logger"
	"github.com/harrison/skillrunner/internal/models"
)

// ErrAwaitDecision signals that resolution requires handing control back to
// the orchestrating client: the run must pause and persist its state rather
// than block in-process.
var ErrAwaitDecision = errors.New("confirmation awaits external decision")

// ErrUnsupported is returned by an interactive backend that cannot serve
// the current environment (e.g. no TTY); the chain falls through to the
// next backend.
var ErrUnsupported = errors.New("interactive backend unsupported here")

// ErrCancelled reports that the surrounding run was cancelled while a
// confirmation was pending.
var ErrCancelled = errors.New("confirmation cancelled")

// PreferenceStore persists "always proceed" selections keyed by
// (skill, step). The learning store satisfies it.
type PreferenceStore interface {
	GetPreference(ctx context.Context, skillName, stepName string) (string, error)
	SetPreference(ctx context.Context, skillName, stepName, selected string) error
}

// Interactive presents a request to a human and blocks until a selection,
// an error, or context cancellation. Backends are chained richest first.
type Interactive interface {
	Prompt(ctx context.Context, req models.ConfirmationRequest) (selected string, remember bool, err error)
}

// Manager resolves confirmation requests. Backends are tried in strict
// priority order; the first success wins.
type Manager struct {
	prefs          PreferenceStore
	interactive    []Interactive
	sink           logger.EventSink
	defaultTimeout time.Duration
	learn          bool
}

// NewManager creates a Manager. prefs may be nil (no learned preferences);
// interactive may be empty (timeouts resolve to defaults immediately).
func NewManager(prefs PreferenceStore, interactive []Interactive, sink logger.EventSink, defaultTimeout time.Duration, learn bool) *Manager {
	if sink == nil {
		sink = logger.NopSink{}
	}
	return &Manager{
		prefs:          prefs,
		interactive:    interactive,
		sink:           sink,
		defaultTimeout: defaultTimeout,
		learn:          learn,
	}
}

// Resolve attempts to answer a confirmation request without pausing.
//
// Returns ErrAwaitDecision when the request is AI-assisted: the caller must
// persist state and return a paused result. Returns ErrCancelled when ctx
// is cancelled while waiting. On timeout with no response, the request's
// default option is applied and reported with SourceDefault.
func (m *Manager) Resolve(ctx context.Context, skillName string, req models.ConfirmationRequest, defaultValue string, learnPreference bool) (*models.ConfirmationResponse, error) {
	// Backend 1: previously recorded preference.
	if m.prefs != nil {
		selected, err := m.prefs.GetPreference(ctx, skillName, req.StepName)
		if err == nil && selected != "" && req.HasOption(selected) {
			m.sink.ConfirmationAnswered(req.ExecutionID, req.StepName, selected, models.SourceLearned)
			return &models.ConfirmationResponse{
				Selected: selected,
				Source:   models.SourceLearned,
			}, nil
		}
	}

	m.sink.ConfirmationRequired(req)

	// Backend 2: AI-assisted. Control goes back to the orchestrating
	// client; this path never blocks the process.
	if req.AIAssist {
		return nil, ErrAwaitDecision
	}

	// Backend 3: interactive chain, bounded by the step timeout.
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}

	resp, err := m.promptChain(ctx, req, timeout)
	if err == nil {
		if resp.Remember && learnPreference {
			m.remember(ctx, skillName, req.StepName, resp.Selected)
		}
		m.sink.ConfirmationAnswered(req.ExecutionID, req.StepName, resp.Selected, resp.Source)
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
		return nil, ErrCancelled
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	// Timeout: apply the configured default, logged distinctly from an
	// explicit selection.
	if defaultValue == "" {
		return nil, &TimeoutError{StepName: req.StepName, Timeout: timeout}
	}
	m.sink.ConfirmationExpired(req.ExecutionID, req.StepName, defaultValue)
	return &models.ConfirmationResponse{
		Selected: defaultValue,
		Source:   models.SourceDefault,
	}, nil
}

// promptChain tries each interactive backend in order under one shared
// deadline. ErrUnsupported falls through; any other outcome is final.
func (m *Manager) promptChain(parent context.Context, req models.ConfirmationRequest, timeout time.Duration) (*models.ConfirmationResponse, error) {
	if len(m.interactive) == 0 {
		// No interactive surface: behave as an immediate timeout so the
		// default applies after the declared wait.
		select {
		case <-parent.Done():
			return nil, ErrCancelled
		case <-time.After(timeout):
			return nil, context.DeadlineExceeded
		}
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	for _, backend := range m.interactive {
		selected, remember, err := backend.Prompt(ctx, req)
		if errors.Is(err, ErrUnsupported) {
			continue
		}
		if err != nil {
			if parent.Err() != nil {
				return nil, ErrCancelled
			}
			if ctx.Err() != nil {
				return nil, context.DeadlineExceeded
			}
			return nil, err
		}
		if !req.HasOption(selected) {
			return nil, fmt.Errorf("selected value %q is not a valid option for step %s", selected, req.StepName)
		}
		return &models.ConfirmationResponse{
			Selected: selected,
			Source:   models.SourceInteractive,
			Remember: remember,
		}, nil
	}
	// Every backend declined; wait out the deadline for the default path.
	select {
	case <-parent.Done():
		return nil, ErrCancelled
	case <-ctx.Done():
		return nil, context.DeadlineExceeded
	}
}

func (m *Manager) remember(ctx context.Context, skillName, stepName, selected string) {
	if m.prefs == nil || !m.learn {
		return
	}
	// Best effort: a failed preference write must not fail the run.
	_ = m.prefs.SetPreference(ctx, skillName, stepName, selected)
}

// Remember records a preference on behalf of an externally resolved
// confirmation, such as one answered during resume.
func (m *Manager) Remember(ctx context.Context, skillName, stepName, selected string) {
	m.remember(ctx, skillName, stepName, selected)
}

// TimeoutError reports a confirmation that expired with no configured
// default to fall back on.
type TimeoutError struct {
	StepName string
	Timeout  time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("confirmation at step %q timed out after %s with no default", e.StepName, e.Timeout)
}
