package harness

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revops/internal/runs"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_LifecycleEvents(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "stale_and_lifecycle"))
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Events, 3)
	assert.Equal(t, "reopen", result.Events[2].Command)
	assert.Equal(t, runs.Snoozed, result.Events[2].From)

	stale := result.Issues[0]
	assert.Equal(t, runs.Open, stale.Status)
	assert.True(t, stale.IsUnread)
	assert.Nil(t, stale.SnoozedUntil)
}

func TestRun_ReportsFailedAssertions(t *testing.T) {
	s := loadScenario(t, "duplicate_accounts")
	s.Assertions = append(s.Assertions, Assertion{Type: AssertIssueCount, Count: 5})

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "5 issue(s) for all issues")
}

func TestRun_UnexpectedStepError(t *testing.T) {
	s := loadScenario(t, "duplicate_accounts")
	s.Steps = append(s.Steps, Step{Command: "acknowledge", Issue: "issue-0042"})

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "issue not found")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	s := loadScenario(t, "duplicate_accounts")
	s.ExpectError = "boom"

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected evaluation error containing "boom"`)
}

func TestRun_UnexpectedEvaluationError(t *testing.T) {
	s := loadScenario(t, "slipping_malformed_date")
	s.ExpectError = ""

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a date")
}

func TestRun_BadSettings(t *testing.T) {
	s := loadScenario(t, "duplicate_accounts")
	s.Settings = map[string]any{"stale_opportunity.low_days": -1}

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settings:")
}

func TestRun_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := Run(context.Background(), loadScenario(t, "stale_and_lifecycle"), WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "run recorded")
	assert.Contains(t, buf.String(), "step applied")
	assert.Contains(t, buf.String(), "evaluation complete")
}
