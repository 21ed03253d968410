// Package engine wires the loader, resolver, guard, healer, confirmation
// manager and executor into the run/resume/cancel surface the CLI and any
// embedding host use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/skillrunner/internal/autoheal"
	"github.com/harrison/skillrunner/internal/config"
	"github.com/harrison/skillrunner/internal/confirm"
	"github.com/harrison/skillrunner/internal/executor"
	"github.com/harrison/skillrunner/internal/guard"
	"github.com/harrison/skillrunner/internal/learning"
	"github.com/harrison/skillrunner/internal/logger"
	"github.com/harrison/skillrunner/internal/models"
	"github.com/harrison/skillrunner/internal/pause"
	"github.com/harrison/skillrunner/internal/resolver"
	"github.com/harrison/skillrunner/internal/skill"
	"github.com/harrison/skillrunner/internal/tools"
)

// ErrExecutionNotFound is returned when a resume or cancel names an
// execution that is neither live nor paused.
var ErrExecutionNotFound = errors.New("execution not found")

// liveRun tracks one in-flight execution for cancellation and listing.
type liveRun struct {
	executionID string
	skillName   string
	startedAt   time.Time
	cancel      context.CancelFunc
}

// RunningExecution is a snapshot of a live run for listing.
type RunningExecution struct {
	ExecutionID string    `json:"execution_id"`
	SkillName   string    `json:"skill_name"`
	StartedAt   time.Time `json:"started_at"`
}

// Options carries the external collaborators an Engine may be given. All
// fields are optional; missing collaborators degrade the corresponding
// capability.
type Options struct {
	// Registry resolves tool names to implementations. Required.
	Registry tools.Registry
	// Inspector reports the current target environment state for the
	// safety guard.
	Inspector guard.TargetInspector
	// Remedies applies auto-heal remediation actions.
	Remedies autoheal.RemedyRunner
	// Diagnoser proposes fixes for unclassified failures.
	Diagnoser autoheal.Diagnoser
	// Interactive confirmation backends, tried in order.
	Interactive []confirm.Interactive
	// Log receives engine and step events.
	Log logger.Logger
}

// Engine owns every component of the skill runner and exposes the
// execution lifecycle: Run, Resume, Cancel, listing and history queries.
type Engine struct {
	cfg      *config.Config
	loader   *skill.Loader
	resolver *resolver.Resolver
	store    *learning.Store
	paused   *pause.Store
	guard    *guard.Guard
	confirms *confirm.Manager
	healer   *autoheal.Healer
	registry tools.Registry
	exec     *executor.Executor
	log      logger.Logger
	sink     logger.EventSink

	mu   sync.Mutex
	live map[string]*liveRun
}

// New builds an Engine from configuration and collaborators.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("engine requires a tool registry")
	}
	log := opts.Log
	if log == nil {
		log = logger.NewConsoleLogger(nil, cfg.LogLevel)
	}
	sink := logger.NewLogSink(log)

	// With learning disabled failures are still classified and healed,
	// but nothing is persisted or looked up.
	var store *learning.Store
	var history autoheal.HistoryStore
	var prefs confirm.PreferenceStore
	if cfg.Learning.Enabled {
		var err error
		store, err = learning.NewStore(cfg.Learning.DBPath,
			learning.WithRetention(cfg.Learning.KeepFailuresDays, cfg.Learning.MaxFailuresPerTool, cfg.Learning.KeepExecutionsDays))
		if err != nil {
			return nil, fmt.Errorf("open learning store: %w", err)
		}
		history = store
		prefs = store
	}

	pausedStore, err := pause.NewStore(cfg.PausedDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open paused store: %w", err)
	}

	classifier := autoheal.NewClassifier()
	if cfg.AutoHeal.PatternFile != "" {
		classifier, err = autoheal.NewClassifierFromFile(cfg.AutoHeal.PatternFile)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("load classifier patterns: %w", err)
		}
	}

	diagnoser := opts.Diagnoser
	if !cfg.AutoHeal.EnableDiagnosis {
		diagnoser = nil
	}
	healer := autoheal.NewHealer(classifier, history, opts.Remedies, diagnoser, sink, cfg.AutoHeal.Enabled)

	confirms := confirm.NewManager(prefs, opts.Interactive, sink,
		time.Duration(cfg.Confirm.DefaultTimeout), cfg.Confirm.LearnPreferences)

	res := resolver.New()

	exec, err := executor.New(executor.Options{
		Registry:           opts.Registry,
		Resolver:           res,
		Healer:             healer,
		Confirms:           confirms,
		Sink:               sink,
		Log:                log,
		ToolTimeout:        time.Duration(cfg.ToolTimeout),
		MaxParallel:        cfg.MaxParallel,
		DefaultMaxAttempts: cfg.AutoHeal.MaxAttempts,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		loader:   skill.NewLoader(),
		resolver: res,
		store:    store,
		paused:   pausedStore,
		guard:    guard.New(opts.Inspector, &cfg.Guard, log),
		confirms: confirms,
		healer:   healer,
		registry: opts.Registry,
		exec:     exec,
		log:      log,
		sink:     sink,
		live:     make(map[string]*liveRun),
	}, nil
}

// Close releases the engine's stores.
func (e *Engine) Close() error {
	return e.store.Close()
}

// RegisterFilter exposes a user-supplied filter function to skill
// expressions and templates.
func (e *Engine) RegisterFilter(name string, fn interface{}) {
	e.resolver.RegisterFilter(name, fn)
}

// LoadSkill loads a skill definition by name from the configured skill
// directory, or from an explicit file path.
func (e *Engine) LoadSkill(nameOrPath string) (*models.SkillDefinition, error) {
	if looksLikePath(nameOrPath) {
		return e.loader.LoadFile(nameOrPath)
	}
	return e.loader.LoadByName(e.cfg.SkillDir, nameOrPath)
}

// Run executes a skill from its first step. Supplied inputs are resolved
// against the skill's declared inputs; the guard runs once before any step
// for destructive skills.
func (e *Engine) Run(ctx context.Context, nameOrPath string, supplied map[string]interface{}) (*models.RunResult, error) {
	def, err := e.LoadSkill(nameOrPath)
	if err != nil {
		return nil, err
	}
	if err := skill.Validate(def); err != nil {
		return nil, err
	}

	inputs, err := def.ResolveInputs(supplied)
	if err != nil {
		return nil, err
	}

	if err := e.guard.Check(ctx, def, inputs); err != nil {
		return nil, err
	}

	executionID := uuid.New().String()
	ec := models.NewExecutionContext(executionID, def.Name, inputs)

	e.log.Infof("starting skill %q (execution %s)", def.Name, executionID)
	return e.drive(ctx, def, ec, nil, nil)
}

// Resume continues a paused execution with an answer supplied at the
// terminal. The paused state is consumed atomically: a second resume of
// the same ID fails with ErrExecutionNotFound.
func (e *Engine) Resume(ctx context.Context, executionID, answer string) (*models.RunResult, error) {
	return e.ResumeWithSource(ctx, executionID, answer, models.SourceInteractive)
}

// ResumeWithSource continues a paused execution with a decision produced
// elsewhere, recording where it came from so history and events report
// the real decider rather than assuming a person at the terminal.
func (e *Engine) ResumeWithSource(ctx context.Context, executionID, answer string, source models.ResponseSource) (*models.RunResult, error) {
	state, err := e.paused.Take(executionID)
	if errors.Is(err, pause.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	if err != nil {
		return nil, err
	}
	resp := &models.ConfirmationResponse{
		Selected: answer,
		Source:   source,
	}
	return e.resumeState(ctx, state, resp)
}

func (e *Engine) resumeState(ctx context.Context, state *pause.State, resp *models.ConfirmationResponse) (*models.RunResult, error) {
	def, err := e.LoadSkill(state.Context.SkillName)
	if err != nil {
		return nil, fmt.Errorf("reload skill %q: %w", state.Context.SkillName, err)
	}
	if resp.Selected == "" {
		resp.Selected = state.Request.DefaultValue
	}
	if len(state.Request.Options) > 0 && !state.Request.HasOption(resp.Selected) {
		// The answer must be one of the offered options; put the state
		// back so the caller can retry.
		if saveErr := e.paused.Save(state); saveErr != nil {
			return nil, fmt.Errorf("invalid answer %q (restore failed: %v)", resp.Selected, saveErr)
		}
		return nil, fmt.Errorf("invalid answer %q for step %q", resp.Selected, state.Request.StepName)
	}

	e.log.Infof("resuming skill %q (execution %s) at %q", state.Context.SkillName,
		state.Context.ExecutionID, state.Request.StepName)
	return e.drive(ctx, def, state.Context, state.Cursor, resp)
}

// drive runs or resumes one execution through the executor and handles
// pause persistence, cancellation bookkeeping and history recording.
func (e *Engine) drive(ctx context.Context, def *models.SkillDefinition, ec *models.ExecutionContext, cursor []int, resp *models.ConfirmationResponse) (*models.RunResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.track(ec, cancel)
	defer e.untrack(ec.ExecutionID)

	fileLog, logErr := logger.NewFileLogger(e.cfg.LogDir, ec.ExecutionID)
	if logErr != nil {
		e.log.Warnf("run log unavailable: %v", logErr)
	} else {
		defer fileLog.Close()
	}

	var (
		result *models.RunResult
		paused *executor.Paused
		err    error
	)
	if resp == nil {
		result, paused, err = e.exec.Execute(runCtx, def, ec)
	} else {
		result, paused, err = e.exec.Resume(runCtx, def, ec, cursor, resp)
	}

	e.writeRunLog(fileLog, result, err)

	if paused != nil {
		state := &pause.State{
			Context: ec,
			Cursor:  paused.Cursor,
			Request: paused.Request,
		}
		if saveErr := e.paused.Save(state); saveErr != nil {
			return nil, fmt.Errorf("persist paused state: %w", saveErr)
		}
		e.sink.ConfirmationRequired(paused.Request)
		e.recordSummary(ec, result)
		return result, nil
	}

	e.recordSummary(ec, result)
	if err != nil && !errors.Is(err, executor.ErrCancelled) {
		return result, err
	}
	return result, nil
}

// Cancel requests cancellation of a live run, or deletes the paused state
// of a suspended one.
func (e *Engine) Cancel(executionID string) error {
	e.mu.Lock()
	run, ok := e.live[executionID]
	e.mu.Unlock()
	if ok {
		e.log.Infof("cancelling execution %s", executionID)
		run.cancel()
		return nil
	}
	if _, err := e.paused.Take(executionID); err == nil {
		e.log.Infof("discarded paused execution %s", executionID)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
}

// ListRunning returns the currently live executions.
func (e *Engine) ListRunning() []RunningExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RunningExecution, 0, len(e.live))
	for _, run := range e.live {
		out = append(out, RunningExecution{
			ExecutionID: run.executionID,
			SkillName:   run.skillName,
			StartedAt:   run.startedAt,
		})
	}
	return out
}

// ListPaused returns the persisted paused executions.
func (e *Engine) ListPaused() ([]*pause.State, error) {
	return e.paused.List()
}

// ExpireStale resumes every paused execution whose confirmation timeout
// has elapsed, resolving each with its configured default. Executions
// without a default stay paused.
func (e *Engine) ExpireStale(ctx context.Context) error {
	states, err := e.paused.List()
	if err != nil {
		return err
	}
	for _, st := range states {
		timeout := st.Request.Timeout
		if timeout <= 0 {
			timeout = time.Duration(e.cfg.Confirm.DefaultTimeout)
		}
		if timeout <= 0 || time.Since(st.Request.CreatedAt) < timeout {
			continue
		}
		def := st.Request.DefaultValue
		if def == "" {
			continue
		}
		taken, err := e.paused.Take(st.Context.ExecutionID)
		if errors.Is(err, pause.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		e.sink.ConfirmationExpired(taken.Context.ExecutionID, taken.Request.StepName, def)
		resp := &models.ConfirmationResponse{Selected: def, Source: models.SourceDefault}
		if _, err := e.resumeState(ctx, taken, resp); err != nil {
			e.log.Warnf("expire paused execution %s: %v", taken.Context.ExecutionID, err)
		}
	}
	return nil
}

// QueryHistory returns recorded execution summaries. With learning
// disabled there is no history to query.
func (e *Engine) QueryHistory(ctx context.Context, filter learning.ExecutionFilter) ([]models.ExecutionSummary, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.QueryExecutions(ctx, filter)
}

// Store exposes the learning store for history and learned-fix commands.
func (e *Engine) Store() *learning.Store {
	return e.store
}

func (e *Engine) track(ec *models.ExecutionContext, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.live[ec.ExecutionID] = &liveRun{
		executionID: ec.ExecutionID,
		skillName:   ec.SkillName,
		startedAt:   ec.StartedAt,
		cancel:      cancel,
	}
}

func (e *Engine) untrack(executionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.live, executionID)
}

// recordSummary appends the run's summary row to history. Best effort:
// history unavailability never fails a run.
func (e *Engine) recordSummary(ec *models.ExecutionContext, result *models.RunResult) {
	if result == nil || e.store == nil {
		return
	}
	failed := 0
	for _, s := range result.Steps {
		if s.Status == models.StepFailed || s.Status == models.StepCompletedWithError {
			failed++
		}
	}
	sum := models.ExecutionSummary{
		ExecutionID: ec.ExecutionID,
		SkillName:   ec.SkillName,
		Status:      result.Status,
		StepsTotal:  len(result.Steps),
		StepsFailed: failed,
		StartedAt:   ec.StartedAt,
	}
	if result.Status.Terminal() {
		sum.EndedAt = time.Now()
	}
	if err := e.store.RecordExecution(context.Background(), sum); err != nil {
		e.log.Warnf("record execution history: %v", err)
	}
}

// writeRunLog appends the run's full step record to the per-run log file.
func (e *Engine) writeRunLog(fl *logger.FileLogger, result *models.RunResult, runErr error) {
	if fl == nil || result == nil {
		return
	}
	for _, s := range result.Steps {
		switch s.Status {
		case models.StepFailed, models.StepCompletedWithError:
			fl.Errorf("step %q (%s): %s after %s: %s", s.StepName, s.Kind, s.Status, s.Duration, s.Error)
		default:
			fl.Infof("step %q (%s): %s after %s", s.StepName, s.Kind, s.Status, s.Duration)
		}
	}
	if runErr != nil {
		fl.Errorf("%s", runErr)
	}
	fl.Infof("%s", result.Summary)
}

func looksLikePath(s string) bool {
	for _, r := range s {
		if r == '/' || r == '\\' || r == '.' {
			return true
		}
	}
	return false
}
