package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RegisterShellTool adds a "shell" tool that runs its "command" argument
// through sh -c. Stdout is the tool result; a non-zero exit combines the
// exit error with stderr so classification has text to match on.
func RegisterShellTool(r *FuncRegistry) {
	r.Register("shell", func(ctx context.Context, args map[string]interface{}) (string, error) {
		command, _ := args["command"].(string)
		if command == "" {
			return "", fmt.Errorf("shell tool requires a command argument")
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		if dir, ok := args["dir"].(string); ok && dir != "" {
			cmd.Dir = dir
		}

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = strings.TrimSpace(stdout.String())
			}
			if msg != "" {
				return "", fmt.Errorf("%w: %s", err, msg)
			}
			return "", err
		}
		return strings.TrimSpace(stdout.String()), nil
	})
}

// ShellRemedyRunner applies remediation actions through configured shell
// commands, keyed by "tool:remediation" with a bare "remediation" fallback.
type ShellRemedyRunner struct {
	Commands map[string]string
}

// Remedy runs the configured command for the remediation. An unconfigured
// remediation is an error so the healer can record the miss.
func (s *ShellRemedyRunner) Remedy(ctx context.Context, tool, remediation string) error {
	command, ok := s.Commands[tool+":"+remediation]
	if !ok {
		command, ok = s.Commands[remediation]
	}
	if !ok {
		return fmt.Errorf("no remedy command configured for %q", remediation)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("remedy %q: %w: %s", remediation, err, msg)
		}
		return fmt.Errorf("remedy %q: %w", remediation, err)
	}
	return nil
}
