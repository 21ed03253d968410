package confirm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/skillrunner/internal/models"
)

// memoryPrefs is an in-memory PreferenceStore.
type memoryPrefs struct {
	prefs map[string]string
}

func newMemoryPrefs() *memoryPrefs {
	return &memoryPrefs{prefs: map[string]string{}}
}

func (m *memoryPrefs) GetPreference(ctx context.Context, skillName, stepName string) (string, error) {
	return m.prefs[skillName+"/"+stepName], nil
}

func (m *memoryPrefs) SetPreference(ctx context.Context, skillName, stepName, selected string) error {
	m.prefs[skillName+"/"+stepName] = selected
	return nil
}

// scriptedBackend answers every prompt with a fixed selection.
type scriptedBackend struct {
	selected string
	remember bool
	err      error
	prompts  int
}

func (s *scriptedBackend) Prompt(ctx context.Context, req models.ConfirmationRequest) (string, bool, error) {
	s.prompts++
	if s.err != nil {
		return "", false, s.err
	}
	return s.selected, s.remember, nil
}

func testRequest(timeout time.Duration) models.ConfirmationRequest {
	return models.ConfirmationRequest{
		ExecutionID: "exec-1",
		StepName:    "confirm_prod",
		Message:     "Deploy to prod?",
		Options: []models.ConfirmOption{
			{Label: "Proceed", Value: "proceed"},
			{Label: "Abort", Value: "abort"},
		},
		Timeout:   timeout,
		CreatedAt: time.Now(),
	}
}

// A remembered preference answers without prompting at all.
func TestResolveLearnedPreference(t *testing.T) {
	prefs := newMemoryPrefs()
	require.NoError(t, prefs.SetPreference(context.Background(), "deploy", "confirm_prod", "proceed"))

	backend := &scriptedBackend{selected: "abort"}
	m := NewManager(prefs, []Interactive{backend}, nil, time.Second, true)

	resp, err := m.Resolve(context.Background(), "deploy", testRequest(time.Second), "", true)
	require.NoError(t, err)
	assert.Equal(t, "proceed", resp.Selected)
	assert.Equal(t, models.SourceLearned, resp.Source)
	assert.Zero(t, backend.prompts)
}

func TestResolveIgnoresStalePreference(t *testing.T) {
	prefs := newMemoryPrefs()
	// A preference that is no longer a valid option must not short-circuit.
	require.NoError(t, prefs.SetPreference(context.Background(), "deploy", "confirm_prod", "yolo"))

	backend := &scriptedBackend{selected: "abort"}
	m := NewManager(prefs, []Interactive{backend}, nil, time.Second, true)

	resp, err := m.Resolve(context.Background(), "deploy", testRequest(time.Second), "", true)
	require.NoError(t, err)
	assert.Equal(t, "abort", resp.Selected)
	assert.Equal(t, 1, backend.prompts)
}

func TestResolveInteractive(t *testing.T) {
	backend := &scriptedBackend{selected: "proceed", remember: true}
	prefs := newMemoryPrefs()
	m := NewManager(prefs, []Interactive{backend}, nil, time.Second, true)

	resp, err := m.Resolve(context.Background(), "deploy", testRequest(time.Second), "", true)
	require.NoError(t, err)
	assert.Equal(t, "proceed", resp.Selected)
	assert.Equal(t, models.SourceInteractive, resp.Source)

	// Remember persisted the selection for the next run.
	saved, _ := prefs.GetPreference(context.Background(), "deploy", "confirm_prod")
	assert.Equal(t, "proceed", saved)
}

func TestResolveUnsupportedFallsThrough(t *testing.T) {
	first := &scriptedBackend{err: ErrUnsupported}
	second := &scriptedBackend{selected: "abort"}
	m := NewManager(nil, []Interactive{first, second}, nil, time.Second, false)

	resp, err := m.Resolve(context.Background(), "deploy", testRequest(time.Second), "", false)
	require.NoError(t, err)
	assert.Equal(t, "abort", resp.Selected)
	assert.Equal(t, 1, first.prompts)
	assert.Equal(t, 1, second.prompts)
}

func TestResolveAIAssistPauses(t *testing.T) {
	m := NewManager(nil, nil, nil, time.Second, false)

	req := testRequest(time.Second)
	req.AIAssist = true
	_, err := m.Resolve(context.Background(), "deploy", req, "", false)
	require.ErrorIs(t, err, ErrAwaitDecision)
}

// With no backend able to answer, the default applies after the timeout
// has fully elapsed, never before.
func TestResolveTimeoutDefault(t *testing.T) {
	m := NewManager(nil, nil, nil, time.Second, false)

	timeout := 50 * time.Millisecond
	start := time.Now()
	resp, err := m.Resolve(context.Background(), "deploy", testRequest(timeout), "abort", false)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "abort", resp.Selected)
	assert.Equal(t, models.SourceDefault, resp.Source)
	assert.GreaterOrEqual(t, elapsed, timeout)
}

func TestResolveTimeoutWithoutDefault(t *testing.T) {
	m := NewManager(nil, nil, nil, time.Second, false)

	_, err := m.Resolve(context.Background(), "deploy", testRequest(10*time.Millisecond), "", false)
	require.Error(t, err)

	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "confirm_prod", terr.StepName)
}

func TestResolveCancelled(t *testing.T) {
	m := NewManager(nil, nil, nil, time.Second, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Resolve(ctx, "deploy", testRequest(time.Minute), "abort", false)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestResolveRejectsInvalidSelection(t *testing.T) {
	backend := &scriptedBackend{selected: "nonsense"}
	m := NewManager(nil, []Interactive{backend}, nil, time.Second, false)

	_, err := m.Resolve(context.Background(), "deploy", testRequest(time.Second), "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid option")
}

func TestConsoleInteractiveParse(t *testing.T) {
	req := testRequest(time.Second)

	tests := []struct {
		name     string
		input    string
		want     string
		remember bool
		wantErr  bool
	}{
		{name: "by number", input: "1\n", want: "proceed"},
		{name: "by value", input: "abort\n", want: "abort"},
		{name: "remember suffix", input: "2!\n", want: "abort", remember: true},
		{name: "out of range", input: "9\n", wantErr: true},
		{name: "unrecognized", input: "maybe\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ConsoleInteractive{In: strings.NewReader(tt.input), Out: &strings.Builder{}}
			selected, remember, err := c.Prompt(context.Background(), req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, selected)
			assert.Equal(t, tt.remember, remember)
		})
	}
}

func TestConsoleInteractiveRequiresTTY(t *testing.T) {
	c := &ConsoleInteractive{In: strings.NewReader("1\n"), Out: &strings.Builder{}, RequireTTY: true}
	_, _, err := c.Prompt(context.Background(), testRequest(time.Second))
	require.ErrorIs(t, err, ErrUnsupported)
}
