package guard

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitInspector reports the active git branch and working-tree cleanliness
// as the guard's target environment state.
type GitInspector struct {
	// WorkDir is the directory git commands run in (empty = current dir).
	WorkDir string
}

// NewGitInspector creates a GitInspector for the given directory.
func NewGitInspector(workDir string) *GitInspector {
	return &GitInspector{WorkDir: workDir}
}

func (g *GitInspector) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if g.WorkDir != "" {
		cmd.Dir = g.WorkDir
	}
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentTarget returns the active branch name.
func (g *GitInspector) CurrentTarget(ctx context.Context) (string, error) {
	return g.run(ctx, "branch", "--show-current")
}

// IsCleanState reports whether the working tree has no uncommitted changes.
func (g *GitInspector) IsCleanState(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}
