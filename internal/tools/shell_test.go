package tools

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell tool requires sh")
	}
}

func TestShellTool(t *testing.T) {
	skipWithoutShell(t)
	reg := NewFuncRegistry()
	RegisterShellTool(reg)

	out, err := reg.Invoke(context.Background(), "shell",
		map[string]interface{}{"command": "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestShellToolWorkingDirectory(t *testing.T) {
	skipWithoutShell(t)
	reg := NewFuncRegistry()
	RegisterShellTool(reg)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), nil, 0644))

	out, err := reg.Invoke(context.Background(), "shell",
		map[string]interface{}{"command": "ls", "dir": dir})
	require.NoError(t, err)
	assert.Equal(t, "marker", out)
}

func TestShellToolFailureCarriesStderr(t *testing.T) {
	skipWithoutShell(t)
	reg := NewFuncRegistry()
	RegisterShellTool(reg)

	_, err := reg.Invoke(context.Background(), "shell",
		map[string]interface{}{"command": "echo 'connection refused' >&2; exit 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestShellToolRequiresCommand(t *testing.T) {
	reg := NewFuncRegistry()
	RegisterShellTool(reg)

	_, err := reg.Invoke(context.Background(), "shell", map[string]interface{}{})
	require.Error(t, err)
}

func TestRegistryUnknownTool(t *testing.T) {
	reg := NewFuncRegistry()
	_, err := reg.Invoke(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestShellRemedyRunner(t *testing.T) {
	skipWithoutShell(t)
	marker := filepath.Join(t.TempDir(), "touched")
	runner := &ShellRemedyRunner{Commands: map[string]string{
		"deploy:reconnect": "touch " + marker,
		"reconnect":        "false",
	}}

	// The tool-scoped command wins over the bare fallback.
	require.NoError(t, runner.Remedy(context.Background(), "deploy", "reconnect"))
	_, err := os.Stat(marker)
	assert.NoError(t, err)

	// Without a tool match the bare key applies.
	err = runner.Remedy(context.Background(), "other", "reconnect")
	require.Error(t, err)

	// Unconfigured remediations are reported, not silently skipped.
	err = runner.Remedy(context.Background(), "deploy", "rotate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no remedy command configured")
}
