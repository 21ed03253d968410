// Package guard implements the pre-run safety gate for destructive skills.
//
// The guard runs once, before the first step, and only for skills flagged
// destructive. It is a single synchronous gate, not a per-step check: it
// exists to cheaply prevent the "ran a destructive skill against the wrong
// target" class of incidents. Target changes that occur mid-run are out of
// scope; skills do not change their own target after start.
package guard

import (
	"context"
	"fmt"
	"strconv"

	"github.com/harrison/skillrunner/internal/config"
	"github.com/harrison/skillrunner/internal/logger"
	"github.com/harrison/skillrunner/internal/models"
)

// TargetInspector reports the current state of the environment a
// destructive skill would act on (e.g. the active VCS branch). Implemented
// tool-side; the guard only consumes it.
type TargetInspector interface {
	CurrentTarget(ctx context.Context) (string, error)
	IsCleanState(ctx context.Context) (bool, error)
}

// Violation is the error returned when the guard refuses a run. The run
// fails before any step executes.
type Violation struct {
	Target string
	Reason string
}

// Error implements the error interface.
func (v *Violation) Error() string {
	return fmt.Sprintf("safety guard violation on target %q: %s", v.Target, v.Reason)
}

// Guard checks destructive skills against the protected-target set.
type Guard struct {
	inspector TargetInspector
	cfg       *config.GuardConfig
	log       logger.Logger
}

// New creates a Guard. Returns nil when inspector or cfg is nil so callers
// can degrade gracefully (a nil guard approves everything).
func New(inspector TargetInspector, cfg *config.GuardConfig, log logger.Logger) *Guard {
	if inspector == nil || cfg == nil {
		return nil
	}
	return &Guard{inspector: inspector, cfg: cfg, log: log}
}

// Check runs the gate. Non-destructive skills always pass. Destructive
// skills fail with a *Violation when the current target is protected or
// dirty, unless the run's inputs carry the configured override flag.
func (g *Guard) Check(ctx context.Context, def *models.SkillDefinition, inputs map[string]interface{}) error {
	if g == nil || !def.Destructive || !g.cfg.Enabled {
		return nil
	}

	if g.override(inputs) {
		if g.log != nil {
			g.log.Warnf("safety guard bypassed for skill %q via %s input", def.Name, g.overrideInput())
		}
		return nil
	}

	target, err := g.inspector.CurrentTarget(ctx)
	if err != nil {
		return fmt.Errorf("inspect current target: %w", err)
	}

	if g.isProtected(target) {
		return &Violation{
			Target: target,
			Reason: fmt.Sprintf("skill %q is destructive and %q is a protected target", def.Name, target),
		}
	}

	if g.cfg.RequireCleanState {
		clean, err := g.inspector.IsCleanState(ctx)
		if err != nil {
			return fmt.Errorf("inspect target state: %w", err)
		}
		if !clean {
			return &Violation{
				Target: target,
				Reason: "target has uncommitted changes; commit, stash or pass the override input",
			}
		}
	}

	return nil
}

func (g *Guard) isProtected(target string) bool {
	protected := g.cfg.ProtectedTargets
	if len(protected) == 0 {
		protected = []string{"main", "master", "develop"}
	}
	for _, p := range protected {
		if target == p {
			return true
		}
	}
	return false
}

func (g *Guard) overrideInput() string {
	if g.cfg.OverrideInput != "" {
		return g.cfg.OverrideInput
	}
	return "force"
}

// override interprets the configured override input leniently: booleans,
// and string forms of truth.
func (g *Guard) override(inputs map[string]interface{}) bool {
	v, ok := inputs[g.overrideInput()]
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		return err == nil && b
	default:
		return false
	}
}
