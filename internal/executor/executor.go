// Package executor implements the step state machine that drives one skill
// execution: per-step condition gating, kind dispatch, auto-heal
// consultation, confirmation suspension, parallel fan-out and outcome
// recording.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrison/skillrunner/internal/autoheal"
	"github.com/harrison/skillrunner/internal/confirm"
	"github.com/harrison/skillrunner/internal/logger"
	"github.com/harrison/skillrunner/internal/models"
	"github.com/harrison/skillrunner/internal/resolver"
	"github.com/harrison/skillrunner/internal/tools"
)

// Paused carries what the engine must persist when a run suspends: the
// cursor of the suspended confirm step and the pending request.
type Paused struct {
	Cursor  []int
	Request models.ConfirmationRequest
}

// Executor walks a skill's steps for one execution. One Executor serves
// many runs; all per-run state lives in the ExecutionContext.
type Executor struct {
	registry    tools.Registry
	resolver    *resolver.Resolver
	healer      *autoheal.Healer
	confirms    *confirm.Manager
	sink        logger.EventSink
	log         logger.Logger
	toolTimeout time.Duration
	maxParallel int
	// defaultMaxAttempts applies to auto_heal steps that declare no
	// retry budget.
	defaultMaxAttempts int
}

// Options configures an Executor.
type Options struct {
	Registry           tools.Registry
	Resolver           *resolver.Resolver
	Healer             *autoheal.Healer
	Confirms           *confirm.Manager
	Sink               logger.EventSink
	Log                logger.Logger
	ToolTimeout        time.Duration
	MaxParallel        int
	DefaultMaxAttempts int
}

// New creates an Executor. Registry is required; the rest degrade
// gracefully when absent.
func New(opts Options) (*Executor, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("executor requires a tool registry")
	}
	if opts.Resolver == nil {
		opts.Resolver = resolver.New()
	}
	if opts.Sink == nil {
		opts.Sink = logger.NopSink{}
	}
	if opts.DefaultMaxAttempts <= 0 {
		opts.DefaultMaxAttempts = 1
	}
	return &Executor{
		registry:           opts.Registry,
		resolver:           opts.Resolver,
		healer:             opts.Healer,
		confirms:           opts.Confirms,
		sink:               opts.Sink,
		log:                opts.Log,
		toolTimeout:        opts.ToolTimeout,
		maxParallel:        opts.MaxParallel,
		defaultMaxAttempts: opts.DefaultMaxAttempts,
	}, nil
}

// resumeState carries the cursor being replayed and the confirmation
// response to inject at its end. Consumed exactly once.
type resumeState struct {
	cursor   []int
	response *models.ConfirmationResponse
}

func (rs *resumeState) active() bool {
	return rs != nil && len(rs.cursor) > 0
}

// stepExec is the internal result of executing one step.
type stepExec struct {
	outcome  models.StepOutcome
	value    interface{}
	hasValue bool
	absorbed bool
	paused   *Paused
	abort    error
}

// Execute runs the definition from the first step. The returned Paused is
// non-nil when the run suspended at a confirm step.
func (x *Executor) Execute(ctx context.Context, def *models.SkillDefinition, ec *models.ExecutionContext) (*models.RunResult, *Paused, error) {
	return x.run(ctx, def, ec, nil)
}

// Resume continues a previously suspended run, injecting the resolved
// confirmation value at the cursor and executing from the next step.
func (x *Executor) Resume(ctx context.Context, def *models.SkillDefinition, ec *models.ExecutionContext, cursor []int, resp *models.ConfirmationResponse) (*models.RunResult, *Paused, error) {
	if resp == nil {
		return nil, nil, fmt.Errorf("resume requires a confirmation response")
	}
	return x.run(ctx, def, ec, &resumeState{cursor: cursor, response: resp})
}

func (x *Executor) run(ctx context.Context, def *models.SkillDefinition, ec *models.ExecutionContext, rs *resumeState) (*models.RunResult, *Paused, error) {
	ec.Status = models.RunRunning

	absorbed, paused, err := x.runList(ctx, def, ec, def.Steps, nil, nil, rs)

	switch {
	case paused != nil:
		ec.Status = models.RunPaused
	case err != nil && errors.Is(err, ErrCancelled):
		ec.Status = models.RunCancelled
	case err != nil:
		ec.Status = models.RunFailed
	case absorbed:
		ec.Status = models.RunPartial
	default:
		ec.Status = models.RunCompleted
	}

	result := x.buildResult(def, ec, paused)
	return result, paused, err
}

// runList executes a step list in declared order. scratch, when non-nil,
// is the bind target for a parallel child; otherwise outputs bind into the
// run's bindings. prefix is the absolute cursor path of the list.
func (x *Executor) runList(ctx context.Context, def *models.SkillDefinition, ec *models.ExecutionContext, steps []models.Step, scratch map[string]interface{}, prefix []int, rs *resumeState) (bool, *Paused, error) {
	absorbed := false

	start := 0
	if rs.active() {
		start = rs.cursor[0]
	}

	for i := start; i < len(steps); i++ {
		step := &steps[i]
		path := append(append([]int{}, prefix...), i)

		if rs.active() && i == rs.cursor[0] {
			if len(rs.cursor) == 1 {
				// The suspended confirm step: inject the resolved value
				// and continue from the next step.
				x.injectConfirm(def, ec, step, scratch, rs.response)
				rs.cursor = nil
				continue
			}
			// Descend into the branch recorded at suspension time; the
			// predicate is not re-evaluated.
			branch := step.Then
			branchName := "then"
			if rs.cursor[1] == 1 {
				branch = step.Else
				branchName = "else"
			}
			started := time.Now()
			sub := &resumeState{cursor: rs.cursor[2:], response: rs.response}
			branchAbsorbed, paused, err := x.runList(ctx, def, ec, branch,
				scratch, append(path, rs.cursor[1]), sub)
			absorbed = absorbed || branchAbsorbed
			rs.cursor = nil
			if paused != nil || err != nil {
				return absorbed, paused, err
			}
			// The branch finished, so the conditional itself completes
			// exactly as it would on an uninterrupted run.
			out := x.outcome(step, models.StepCompleted, started, branchName, nil)
			ec.Record(out)
			x.sink.StepCompleted(ec.ExecutionID, out)
			if step.Output != "" {
				x.bind(ec, scratch, step.Output, branchName)
			}
			continue
		}

		// Cancellation is checked at step boundaries, never mid-call.
		if ctx.Err() != nil {
			x.markCancelled(ec, steps[i:])
			return absorbed, nil, ErrCancelled
		}

		res := x.execStep(ctx, def, ec, step, scratch, path)
		if res.outcome.StepName != "" {
			ec.Record(res.outcome)
			switch res.outcome.Status {
			case models.StepFailed, models.StepCompletedWithError:
				x.sink.StepFailed(ec.ExecutionID, res.outcome)
			default:
				x.sink.StepCompleted(ec.ExecutionID, res.outcome)
			}
		}
		if res.paused != nil {
			return absorbed, res.paused, nil
		}
		if res.abort != nil {
			return absorbed, nil, res.abort
		}
		if res.hasValue && step.Output != "" {
			x.bind(ec, scratch, step.Output, res.value)
		}
		absorbed = absorbed || res.absorbed
	}

	return absorbed, nil, nil
}

// bind stores a value into the child scratch when present, otherwise into
// the run bindings.
func (x *Executor) bind(ec *models.ExecutionContext, scratch map[string]interface{}, name string, value interface{}) {
	if scratch != nil {
		scratch[name] = value
		return
	}
	ec.Bind(name, value)
}

func (x *Executor) scope(ec *models.ExecutionContext, scratch map[string]interface{}) resolver.Scope {
	s := resolver.NewScope(ec.Bindings)
	if scratch != nil {
		s = s.WithScratch(scratch)
	}
	return s
}

// execStep dispatches one step through condition gating and its kind
// handler.
func (x *Executor) execStep(ctx context.Context, def *models.SkillDefinition, ec *models.ExecutionContext, step *models.Step, scratch map[string]interface{}, path []int) stepExec {
	started := time.Now()
	scope := x.scope(ec, scratch)

	if step.Condition != "" {
		ok, err := x.resolver.EvalBool(step.Condition, scope)
		if err != nil {
			// A broken condition is a definition bug, fatal like compute.
			return stepExec{
				outcome: x.outcome(step, models.StepFailed, started, nil, err),
				abort:   &StepFailedError{StepName: step.Name, Err: err},
			}
		}
		if !ok {
			return stepExec{outcome: x.outcome(step, models.StepSkipped, started, nil, nil)}
		}
	}

	x.sink.StepStarted(ec.ExecutionID, step.Name, step.Kind)

	switch step.Kind {
	case models.StepTool:
		return x.execTool(ctx, ec, step, scope, started)
	case models.StepCompute:
		return x.execCompute(step, scope, started)
	case models.StepConfirm:
		return x.execConfirm(ctx, def, ec, step, scope, path, started)
	case models.StepConditional:
		return x.execConditional(ctx, def, ec, step, scratch, scope, path, started)
	case models.StepParallel:
		return x.execParallel(ctx, def, ec, step, scratch, path, started)
	default:
		err := fmt.Errorf("unknown step kind %q", step.Kind)
		return stepExec{
			outcome: x.outcome(step, models.StepFailed, started, nil, err),
			abort:   &StepFailedError{StepName: step.Name, Err: err},
		}
	}
}

// execTool invokes the tool through the auto-heal contract and applies the
// step's error policy to the final outcome.
func (x *Executor) execTool(ctx context.Context, ec *models.ExecutionContext, step *models.Step, scope resolver.Scope, started time.Time) stepExec {
	args, err := x.resolver.ResolveArgs(step.Args, scope)
	if err != nil {
		// Unresolvable args are a definition bug, not a tool fault.
		return stepExec{
			outcome: x.outcome(step, models.StepFailed, started, nil, err),
			abort:   &StepFailedError{StepName: step.Name, Err: err},
		}
	}

	call := func(callCtx context.Context) (string, error) {
		timeout := x.toolTimeout
		if step.Retry.Timeout > 0 {
			timeout = time.Duration(step.Retry.Timeout)
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, timeout)
			defer cancel()
		}
		return x.registry.Invoke(callCtx, step.Tool, args)
	}

	policy := step.EffectiveOnError()
	maxAttempts := 0
	if policy == models.OnErrorAutoHeal {
		maxAttempts = step.Retry.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = x.defaultMaxAttempts
		}
	}

	var (
		result string
		report autoheal.Report
	)
	if x.healer != nil {
		result, report, err = x.healer.Run(ctx, ec.ExecutionID, step.Tool, args, call, maxAttempts)
	} else {
		result, err = call(ctx)
		report.Attempts = 1
	}

	if err == nil {
		status := models.StepCompleted
		if report.Healed {
			status = models.StepHealed
		}
		out := x.outcome(step, status, started, result, nil)
		out.Healed = report.Healed
		out.Attempts = report.Attempts
		return stepExec{outcome: out, value: result, hasValue: true}
	}

	// Final failure: apply the step's policy. Auto-heal exhaustion falls
	// back to the step's declared sub-policy.
	effective := policy
	if policy == models.OnErrorAutoHeal {
		effective = step.EffectiveFallback()
	}

	out := x.outcome(step, models.StepFailed, started, nil, err)
	out.Attempts = report.Attempts

	if effective == models.OnErrorContinue {
		out.Status = models.StepCompletedWithError
		return stepExec{outcome: out, absorbed: true}
	}
	return stepExec{outcome: out, abort: &StepFailedError{StepName: step.Name, Err: err}}
}

// execCompute evaluates the step expression. Failures are always fatal.
func (x *Executor) execCompute(step *models.Step, scope resolver.Scope, started time.Time) stepExec {
	value, err := x.resolver.EvalExpr(step.Expression, scope)
	if err != nil {
		return stepExec{
			outcome: x.outcome(step, models.StepFailed, started, nil, err),
			abort:   &ComputeError{StepName: step.Name, Err: err},
		}
	}
	return stepExec{
		outcome:  x.outcome(step, models.StepCompleted, started, value, nil),
		value:    value,
		hasValue: true,
	}
}

// execConfirm resolves a confirmation or suspends the run.
func (x *Executor) execConfirm(ctx context.Context, def *models.SkillDefinition, ec *models.ExecutionContext, step *models.Step, scope resolver.Scope, path []int, started time.Time) stepExec {
	msg, err := x.resolver.Resolve(step.Message, scope)
	if err != nil {
		return stepExec{
			outcome: x.outcome(step, models.StepFailed, started, nil, err),
			abort:   &StepFailedError{StepName: step.Name, Err: err},
		}
	}

	req := models.ConfirmationRequest{
		ExecutionID:     ec.ExecutionID,
		StepName:        step.Name,
		Title:           fmt.Sprintf("%s: %s", def.Name, step.Name),
		Message:         msg,
		Options:         step.Options,
		ContextSnapshot: snapshotBindings(ec.Bindings),
		AIAssist:        step.AIAssist,
		Timeout:         time.Duration(step.Timeout),
		DefaultValue:    step.DefaultValue,
		CreatedAt:       time.Now(),
	}

	if x.confirms == nil {
		err := fmt.Errorf("confirm step %q with no confirmation manager configured", step.Name)
		return stepExec{
			outcome: x.outcome(step, models.StepFailed, started, nil, err),
			abort:   &StepFailedError{StepName: step.Name, Err: err},
		}
	}

	resp, err := x.confirms.Resolve(ctx, def.Name, req, step.DefaultValue, step.LearnPreference)
	switch {
	case errors.Is(err, confirm.ErrAwaitDecision):
		out := x.outcome(step, models.StepAwaitingConfirmation, started, nil, nil)
		return stepExec{outcome: out, paused: &Paused{Cursor: path, Request: req}}
	case errors.Is(err, confirm.ErrCancelled):
		out := x.outcome(step, models.StepCancelled, started, nil, err)
		return stepExec{outcome: out, abort: ErrCancelled}
	case err != nil:
		return stepExec{
			outcome: x.outcome(step, models.StepFailed, started, nil, err),
			abort:   &StepFailedError{StepName: step.Name, Err: err},
		}
	}

	out := x.outcome(step, models.StepCompleted, started, resp.Selected, nil)
	return stepExec{outcome: out, value: resp.Selected, hasValue: true}
}

// injectConfirm completes a suspended confirm step with the externally
// resolved value during resume.
func (x *Executor) injectConfirm(def *models.SkillDefinition, ec *models.ExecutionContext, step *models.Step, scratch map[string]interface{}, resp *models.ConfirmationResponse) {
	x.sink.ConfirmationAnswered(ec.ExecutionID, step.Name, resp.Selected, resp.Source)
	if resp.Remember && step.LearnPreference && x.confirms != nil {
		x.confirms.Remember(context.Background(), def.Name, step.Name, resp.Selected)
	}
	out := x.outcome(step, models.StepCompleted, time.Now(), resp.Selected, nil)
	ec.Record(out)
	if step.Output != "" {
		x.bind(ec, scratch, step.Output, resp.Selected)
	}
}

// execConditional evaluates the predicate once and executes only the
// matching branch.
func (x *Executor) execConditional(ctx context.Context, def *models.SkillDefinition, ec *models.ExecutionContext, step *models.Step, scratch map[string]interface{}, scope resolver.Scope, path []int, started time.Time) stepExec {
	match, err := x.resolver.EvalBool(step.Predicate, scope)
	if err != nil {
		return stepExec{
			outcome: x.outcome(step, models.StepFailed, started, nil, err),
			abort:   &StepFailedError{StepName: step.Name, Err: err},
		}
	}

	branch := step.Then
	branchIdx := 0
	branchName := "then"
	if !match {
		branch = step.Else
		branchIdx = 1
		branchName = "else"
	}

	absorbed, paused, err := x.runList(ctx, def, ec, branch, scratch, append(path, branchIdx), nil)
	if paused != nil {
		return stepExec{paused: paused}
	}
	if err != nil {
		// Branch outcomes are already recorded; the conditional itself
		// carries no extra outcome on abort.
		return stepExec{abort: err}
	}

	out := x.outcome(step, models.StepCompleted, started, branchName, nil)
	return stepExec{outcome: out, value: branchName, hasValue: step.Output != "", absorbed: absorbed}
}

// outcome builds a StepOutcome with the common fields filled in.
func (x *Executor) outcome(step *models.Step, status models.StepStatus, started time.Time, output interface{}, err error) models.StepOutcome {
	out := models.StepOutcome{
		StepName:  step.Name,
		Kind:      step.Kind,
		Status:    status,
		Output:    output,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// markCancelled records cancelled outcomes for steps that never ran.
func (x *Executor) markCancelled(ec *models.ExecutionContext, remaining []models.Step) {
	now := time.Now()
	for i := range remaining {
		ec.Record(models.StepOutcome{
			StepName:  remaining[i].Name,
			Kind:      remaining[i].Kind,
			Status:    models.StepCancelled,
			StartedAt: now,
		})
	}
}

// buildResult assembles the caller-facing RunResult.
func (x *Executor) buildResult(def *models.SkillDefinition, ec *models.ExecutionContext, paused *Paused) *models.RunResult {
	result := &models.RunResult{
		ExecutionID: ec.ExecutionID,
		SkillName:   ec.SkillName,
		Status:      ec.Status,
		Steps:       append([]models.StepOutcome{}, ec.StepHistory...),
		StartedAt:   ec.StartedAt,
		Duration:    time.Since(ec.StartedAt),
	}
	if paused != nil {
		result.Paused = &models.PausedInfo{
			ExecutionID: ec.ExecutionID,
			StepName:    paused.Request.StepName,
			Title:       paused.Request.Title,
			Message:     paused.Request.Message,
			Options:     paused.Request.Options,
		}
	}
	result.Summary = summarize(def, result)
	return result
}

// summarize renders the human-readable run summary.
func summarize(def *models.SkillDefinition, result *models.RunResult) string {
	var completed, healed, skipped, failed, cancelled int
	for _, s := range result.Steps {
		switch s.Status {
		case models.StepCompleted:
			completed++
		case models.StepHealed:
			healed++
			completed++
		case models.StepSkipped:
			skipped++
		case models.StepFailed, models.StepCompletedWithError:
			failed++
		case models.StepCancelled:
			cancelled++
		}
	}

	switch result.Status {
	case models.RunPaused:
		return fmt.Sprintf("skill %q paused at %q awaiting confirmation (%d steps completed)",
			result.SkillName, result.Paused.StepName, completed)
	case models.RunCancelled:
		return fmt.Sprintf("skill %q cancelled: %d completed, %d cancelled", result.SkillName, completed, cancelled)
	case models.RunFailed:
		return fmt.Sprintf("skill %q failed: %d completed, %d failed, %d skipped", result.SkillName, completed, failed, skipped)
	case models.RunPartial:
		return fmt.Sprintf("skill %q completed with errors: %d completed (%d healed), %d failed, %d skipped",
			result.SkillName, completed, healed, failed, skipped)
	default:
		if healed > 0 {
			return fmt.Sprintf("skill %q completed: %d steps (%d healed), %d skipped", result.SkillName, completed, healed, skipped)
		}
		return fmt.Sprintf("skill %q completed: %d steps, %d skipped", result.SkillName, completed, skipped)
	}
}

// snapshotBindings shallow-copies bindings for a confirmation context
// snapshot.
func snapshotBindings(bindings map[string]interface{}) map[string]interface{} {
	snap := make(map[string]interface{}, len(bindings))
	for k, v := range bindings {
		snap[k] = v
	}
	return snap
}
