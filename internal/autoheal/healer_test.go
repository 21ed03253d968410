package autoheal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/skillrunner/internal/models"
)

// memoryStore is an in-memory HistoryStore for healer tests.
type memoryStore struct {
	failures []models.FailureRecord
	fixes    map[string]models.LearnedFix // keyed by tool
	statCnt  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{fixes: map[string]models.LearnedFix{}}
}

func (m *memoryStore) CheckKnownIssues(ctx context.Context, toolName, errorText string) ([]models.LearnedFix, error) {
	if fix, ok := m.fixes[toolName]; ok {
		return []models.LearnedFix{fix}, nil
	}
	return nil, nil
}

func (m *memoryStore) AppendFailure(ctx context.Context, rec *models.FailureRecord) error {
	m.failures = append(m.failures, *rec)
	return nil
}

func (m *memoryStore) RecordFixSuccess(ctx context.Context, toolName, errorText, remediation string) error {
	fix := m.fixes[toolName]
	fix.ToolName = toolName
	fix.Remediation = remediation
	fix.SuccessCount++
	m.fixes[toolName] = fix
	return nil
}

func (m *memoryStore) FoldHealStat(ctx context.Context, toolName string, class models.Classification, success bool, at time.Time) error {
	m.statCnt++
	return nil
}

// recordingRemedies captures applied remediations.
type recordingRemedies struct {
	applied []string
	err     error
}

func (r *recordingRemedies) Remedy(ctx context.Context, tool, remediation string) error {
	r.applied = append(r.applied, remediation)
	return r.err
}

// failingCall returns a CallFunc that fails with errText for the first
// failures invocations, then succeeds.
func failingCall(errText string, failures int) (CallFunc, *int) {
	calls := 0
	return func(ctx context.Context) (string, error) {
		calls++
		if calls <= failures {
			return "", errors.New(errText)
		}
		return "ok", nil
	}, &calls
}

func TestHealerPassesThroughSuccess(t *testing.T) {
	h := NewHealer(nil, nil, nil, nil, nil, true)
	call, calls := failingCall("", 0)

	result, report, err := h.Run(context.Background(), "exec", "gh", nil, call, 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 1, report.Attempts)
	assert.False(t, report.Healed)
}

// A persistently failing auth tool with one retry: exactly one remediation,
// one retry, and two failure records.
func TestHealerAuthFailureExhausted(t *testing.T) {
	store := newMemoryStore()
	remedies := &recordingRemedies{}
	h := NewHealer(nil, store, remedies, nil, nil, true)

	call, calls := failingCall("401 unauthorized", 99)
	_, report, err := h.Run(context.Background(), "exec", "gh", nil, call, 1)

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)

	assert.Equal(t, 2, *calls) // initial + one retry
	assert.Equal(t, []string{RemedyReauthenticate}, remedies.applied)
	assert.Equal(t, models.ClassAuth, report.Classification)
	assert.False(t, report.Healed)

	require.Len(t, store.failures, 2)
	assert.False(t, store.failures[0].Success)
	assert.False(t, store.failures[1].Success)
	assert.Equal(t, RemedyReauthenticate, store.failures[0].Remediation)
}

func TestHealerHealsNetworkFailure(t *testing.T) {
	store := newMemoryStore()
	remedies := &recordingRemedies{}
	h := NewHealer(nil, store, remedies, nil, nil, true)

	call, calls := failingCall("connection refused", 1)
	result, report, err := h.Run(context.Background(), "exec", "kubectl", nil, call, 2)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, *calls)
	assert.True(t, report.Healed)
	assert.Equal(t, RemedyReconnect, report.Remediation)
	assert.Equal(t, []string{RemedyReconnect}, remedies.applied)

	// Failure then heal success are both recorded, and the fix is learned.
	require.Len(t, store.failures, 2)
	assert.False(t, store.failures[0].Success)
	assert.True(t, store.failures[1].Success)
	assert.Equal(t, 1, store.fixes["kubectl"].SuccessCount)
}

// The invocation bound holds: max_attempts retries plus the initial call.
func TestHealerInvocationBound(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("max_attempts=%d", maxAttempts), func(t *testing.T) {
			h := NewHealer(nil, newMemoryStore(), &recordingRemedies{}, nil, nil, true)
			call, calls := failingCall("connection refused", 99)

			_, _, err := h.Run(context.Background(), "exec", "kubectl", nil, call, maxAttempts)
			require.Error(t, err)
			assert.Equal(t, maxAttempts+1, *calls)
		})
	}
}

// The same failure recurring within one budget is not re-remediated.
func TestHealerNoRepeatRemediationForSameSignature(t *testing.T) {
	remedies := &recordingRemedies{}
	h := NewHealer(nil, newMemoryStore(), remedies, nil, nil, true)

	call, _ := failingCall("connection refused", 99)
	_, _, err := h.Run(context.Background(), "exec", "kubectl", nil, call, 3)
	require.Error(t, err)
	assert.Equal(t, []string{RemedyReconnect}, remedies.applied)
}

func TestHealerLearnedFixPreferred(t *testing.T) {
	store := newMemoryStore()
	store.fixes["gh"] = models.LearnedFix{
		ToolName:    "gh",
		Remediation: "rotate-keys",
	}
	remedies := &recordingRemedies{}
	h := NewHealer(nil, store, remedies, nil, nil, true)

	call, _ := failingCall("401 unauthorized", 1)
	_, report, err := h.Run(context.Background(), "exec", "gh", nil, call, 1)

	require.NoError(t, err)
	assert.True(t, report.Healed)
	// The learned fix wins over the generic auth remediation.
	assert.Equal(t, []string{"rotate-keys"}, remedies.applied)
	assert.Equal(t, 1, store.fixes["gh"].SuccessCount)
}

// A proposed fix from the diagnoser handles unknown classifications.
type fixedDiagnoser struct {
	fix Fix
	err error
}

func (d *fixedDiagnoser) ProposeFix(ctx context.Context, fc FailureContext) (Fix, error) {
	return d.fix, d.err
}

func TestHealerDiagnoserForUnknown(t *testing.T) {
	remedies := &recordingRemedies{}
	diag := &fixedDiagnoser{fix: Fix{Remediation: "clear-cache"}}
	h := NewHealer(nil, newMemoryStore(), remedies, diag, nil, true)

	call, _ := failingCall("segmentation fault", 1)
	_, report, err := h.Run(context.Background(), "exec", "custom", nil, call, 1)

	require.NoError(t, err)
	assert.True(t, report.Healed)
	assert.Equal(t, []string{"clear-cache"}, remedies.applied)
}

func TestHealerUnknownWithoutDiagnoserFailsFast(t *testing.T) {
	h := NewHealer(nil, newMemoryStore(), &recordingRemedies{}, nil, nil, true)

	call, calls := failingCall("segmentation fault", 99)
	_, _, err := h.Run(context.Background(), "exec", "custom", nil, call, 3)

	require.Error(t, err)
	// No applicable remediation means no retries are spent.
	assert.Equal(t, 1, *calls)
}

func TestHealerDisabledRecordsAndReturns(t *testing.T) {
	store := newMemoryStore()
	h := NewHealer(nil, store, &recordingRemedies{}, nil, nil, false)

	call, calls := failingCall("401 unauthorized", 99)
	_, _, err := h.Run(context.Background(), "exec", "gh", nil, call, 3)

	require.Error(t, err)
	var invErr *ToolInvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, models.ClassAuth, invErr.Classification)
	assert.Equal(t, 1, *calls)
	require.Len(t, store.failures, 1)
}

func TestHealerZeroBudgetRecordsFailure(t *testing.T) {
	store := newMemoryStore()
	h := NewHealer(nil, store, &recordingRemedies{}, nil, nil, true)

	call, calls := failingCall("connection refused", 99)
	_, _, err := h.Run(context.Background(), "exec", "kubectl", nil, call, 0)

	require.Error(t, err)
	assert.Equal(t, 1, *calls)
	require.Len(t, store.failures, 1)
	assert.Equal(t, models.ClassNetwork, store.failures[0].Classification)
}
