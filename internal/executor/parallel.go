package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harrison/skillrunner/internal/models"
)

// childResult is the fan-in record for one parallel child.
type childResult struct {
	index   int
	exec    stepExec
	scratch map[string]interface{}
}

// execParallel runs the step's children concurrently under the executor's
// parallelism bound and joins them at a barrier. The bound output is a map
// whose key set always equals the declared child names; an extra
// "<output>_failed" binding lists the children that failed so downstream
// steps can branch on partial success.
func (x *Executor) execParallel(ctx context.Context, def *models.SkillDefinition, ec *models.ExecutionContext, step *models.Step, parent map[string]interface{}, path []int, started time.Time) stepExec {
	children := step.Children

	limit := x.maxParallel
	if limit <= 0 {
		limit = len(children)
	}

	childCtx := ctx
	var cancelChildren context.CancelFunc
	if step.FailFast {
		childCtx, cancelChildren = context.WithCancel(ctx)
		defer cancelChildren()
	}

	sem := make(chan struct{}, limit)
	results := make(chan childResult, len(children))
	var wg sync.WaitGroup

	for i := range children {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if childCtx.Err() != nil {
				results <- childResult{index: idx, exec: stepExec{
					outcome: x.outcome(&children[idx], models.StepCancelled, time.Now(), nil, nil),
				}}
				return
			}

			// Each child gets an isolated scratch scope; siblings never
			// observe each other's bindings.
			scratch := map[string]interface{}{}
			res := x.execStep(childCtx, def, ec, &children[idx], scratch, append(append([]int{}, path...), idx))
			if step.FailFast && (res.abort != nil || res.absorbed) {
				cancelChildren()
			}
			results <- childResult{index: idx, exec: res, scratch: scratch}
		}(i)
	}

	wg.Wait()
	close(results)

	byIndex := make([]childResult, len(children))
	for r := range results {
		byIndex[r.index] = r
	}

	// Key set is the declared child names, independent of completion
	// order or individual failures.
	output := make(map[string]interface{}, len(children))
	var failed []string
	cancelled := false

	for i := range children {
		child := &children[i]
		res := byIndex[i].exec

		// Outcomes are recorded after the barrier in declared order so the
		// history reads deterministically.
		if res.outcome.StepName != "" {
			ec.Record(res.outcome)
			switch res.outcome.Status {
			case models.StepFailed, models.StepCompletedWithError:
				x.sink.StepFailed(ec.ExecutionID, res.outcome)
			case models.StepCancelled:
			default:
				x.sink.StepCompleted(ec.ExecutionID, res.outcome)
			}
		}

		key := child.Name
		switch {
		case res.hasValue:
			output[key] = res.value
		default:
			output[key] = nil
		}

		switch {
		case res.abort != nil && errors.Is(res.abort, ErrCancelled):
			cancelled = true
		case res.abort != nil, res.absorbed:
			failed = append(failed, key)
		case res.outcome.Status == models.StepCancelled:
			cancelled = true
		}
	}

	if ctx.Err() != nil || (cancelled && !step.FailFast) {
		out := x.outcome(step, models.StepCancelled, started, nil, ctx.Err())
		return stepExec{outcome: out, abort: ErrCancelled}
	}

	if step.FailFast && len(failed) > 0 {
		err := &StepFailedError{StepName: step.Name, Err: &ChildrenFailedError{Children: failed}}
		out := x.outcome(step, models.StepFailed, started, output, err)
		return stepExec{outcome: out, abort: err}
	}

	status := models.StepCompleted
	absorbed := false
	if len(failed) > 0 {
		status = models.StepCompletedWithError
		absorbed = true
	}

	// The companion binding lets later conditions test partial failure
	// without disturbing the stable key set of the main output.
	x.bind(ec, parent, step.Output+"_failed", append([]string{}, failed...))

	out := x.outcome(step, status, started, output, nil)
	return stepExec{outcome: out, value: output, hasValue: true, absorbed: absorbed}
}
