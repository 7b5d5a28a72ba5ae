package harness

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlsleep/internal/sleep"
	"github.com/roach88/sqlsleep/internal/sqlext"
)

func intPtr(n int) *int { return &n }

func TestRun_PassingScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "pass",
		Description: "single sleep",
		Steps: []Step{
			{SQL: "SELECT sleep(1.5)", Expect: &ExpectClause{Outcome: OutcomeOK, Elapsed: "1.5s", Rows: intPtr(1)}},
		},
		Assertions: []Assertion{
			{Type: AssertWaitCount, Function: sleep.FuncSleep, Count: 1},
			{Type: AssertTotalElapsed, Elapsed: "1500ms"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1500*time.Millisecond, result.Elapsed)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, EventQuery, result.Trace[0].Type)
	assert.Equal(t, EventWait, result.Trace[1].Type)
	assert.Equal(t, "1.5s", result.Trace[1].Elapsed)
	assert.Equal(t, EventResult, result.Trace[2].Type)
	assert.Equal(t, 3, result.Trace[2].Seq)
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "wrong expectations",
		Steps: []Step{
			{SQL: "SELECT sleep(1)", Expect: &ExpectClause{Outcome: OutcomeCancelled, Elapsed: "2s", Rows: intPtr(3)}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"steps[0]: expected outcome cancelled, got ok",
		"steps[0]: expected elapsed 2s, got 1s",
		"steps[0]: expected 3 rows, got 1",
	}, result.Errors)
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "query fails without an expect clause",
		Steps:       []Step{{SQL: "SELECT sleep('NaN')"}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Contains(t, result.Errors[0], "cannot be NaN")
}

func TestRun_SetupFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "setup",
		Description: "broken setup",
		Setup:       []string{"CREATE TABLE"},
		Steps:       []Step{{SQL: "SELECT 1"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0]")
}

func TestRun_SetupMustNotSleep(t *testing.T) {
	scenario := &Scenario{
		Name:        "setup_sleeps",
		Description: "setup calls sleep",
		Setup:       []string{"SELECT sleep(1)"},
		Steps:       []Step{{SQL: "SELECT 1"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not sleep")
}

func TestRun_CancelAfterIsPerStep(t *testing.T) {
	scenario := &Scenario{
		Name:        "per_step",
		Description: "cancel_after counts from the step start",
		Steps: []Step{
			{SQL: "SELECT sleep(2)", Expect: &ExpectClause{Outcome: OutcomeOK, Elapsed: "2s"}},
			{SQL: "SELECT sleep(2)", CancelAfter: "1s", Expect: &ExpectClause{Outcome: OutcomeCancelled, Elapsed: "1s"}},
			{SQL: "SELECT sleep(2)", Expect: &ExpectClause{Outcome: OutcomeOK, Elapsed: "2s"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 5*time.Second, result.Elapsed)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, OutcomeOK},
		{"nan", fmt.Errorf("query failed: %w", sleep.NewNaNError()), OutcomeInvalidArgument},
		{"cancelled", fmt.Errorf("query failed: %w", sleep.NewCancelledError(nil)), OutcomeCancelled},
		{"argument", fmt.Errorf("query failed: %w", &sqlext.ArgumentError{Function: "sleep", Value: "x", Err: errors.New("bad")}), OutcomeArgumentError},
		{"other", errors.New("no such table: t"), OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestCheckExpect_NilClause(t *testing.T) {
	assert.Nil(t, checkExpect(nil, OutcomeError, time.Second, 0))
}

func TestRun_UnparsedCancelAfterFailsStep(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_cancel",
		Description: "built in code, never validated",
		Steps: []Step{
			{SQL: "SELECT sleep(2)", CancelAfter: "soon"},
			{SQL: "SELECT sleep(1)", Expect: &ExpectClause{Outcome: OutcomeOK, Elapsed: "1s"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0]: cancel_after:")
	assert.Equal(t, time.Second, result.Elapsed, "the bad step must not run")
}

func TestRun_ZeroCancelAfterCancelsAtFirstSlice(t *testing.T) {
	scenario := &Scenario{
		Name:        "zero_cancel",
		Description: "cancel_after 0s cancels after the first slice",
		Steps: []Step{
			{SQL: "SELECT sleep(2)", CancelAfter: "0s", Expect: &ExpectClause{Outcome: OutcomeCancelled, Elapsed: "100ms"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestCheckExpect_UnparsedElapsed(t *testing.T) {
	msgs := checkExpect(&ExpectClause{Outcome: OutcomeOK, Elapsed: "later"}, OutcomeOK, 0, 1)

	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "expect: elapsed:")
}
