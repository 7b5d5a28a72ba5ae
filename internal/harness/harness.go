package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/sqlsleep/internal/sleep"
	"github.com/roach88/sqlsleep/internal/sqlext"
	"github.com/roach88/sqlsleep/internal/testutil"
)

// Epoch is the fake clock's time when a scenario starts.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness is the test execution engine.
// It runs scenarios with a fake clock and fixed query IDs.
type Harness struct {
	db     *sqlext.DB
	clock  *testutil.FakeClock
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create a Sleeper on a fake clock, tracing into the result
// 2. Open a fresh in-memory database with the sleep functions
// 3. Execute setup statements
// 4. Execute steps with expect validation
// 5. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenario.SleepConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewFakeClock(Epoch)
	result := NewResult()

	s := sleep.New(cfg,
		sleep.WithClock(clock),
		sleep.WithLogger(logger),
		sleep.WithObserver(result),
	)

	db, err := sqlext.Open(":memory:", s,
		sqlext.WithLogger(logger),
		sqlext.WithQueryIDGenerator(testutil.NewFixedQueryIDGenerator(scenario.QueryID)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory database: %w", err)
	}
	defer db.Close()

	h := &Harness{db: db, clock: clock, logger: logger}
	ctx := context.Background()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	h.executeSteps(ctx, scenario.Steps, result)
	result.Elapsed = clock.Elapsed()

	actx := &AssertionContext{DB: db, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeSetup runs setup statements. They are not traced and advance
// no time unless they call a sleep function themselves.
func (h *Harness) executeSetup(ctx context.Context, setup []string) error {
	start := h.clock.Now()
	for i, stmt := range setup {
		if _, err := h.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	if !h.clock.Now().Equal(start) {
		return errors.New("setup statements must not sleep")
	}
	return nil
}

// executeSteps runs every step and records expect mismatches as errors.
// A failing query does not stop the scenario.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) {
	for i, step := range steps {
		after, cancels, err := step.cancelAfter()
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			continue
		}

		result.AddQueryTrace(step.SQL, step.Args)

		outcome, elapsed, rows, err := h.runStep(ctx, step, after, cancels)
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		result.AddResultTrace(outcome, elapsed, rows, errMsg)

		h.logger.Info("step completed",
			"step", i,
			"outcome", outcome,
			"elapsed", elapsed,
		)

		for _, msg := range checkExpect(step.Expect, outcome, elapsed, rows) {
			result.AddError(fmt.Sprintf("steps[%d]: %s", i, msg))
		}
		if step.Expect == nil && err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", i, err))
		}
	}
}

// runStep runs one query, cancelling its context once the fake clock
// passes after. Without cancels the step runs to completion.
func (h *Harness) runStep(ctx context.Context, step Step, after time.Duration, cancels bool) (string, time.Duration, int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := h.clock.Now()
	if cancels {
		h.clock.OnSleep(func(now time.Time) {
			if now.Sub(start) >= after {
				cancel()
			}
		})
		defer h.clock.OnSleep(nil)
	}

	rs, err := h.db.Query(ctx, step.SQL, step.Args...)
	elapsed := h.clock.Now().Sub(start)
	if err != nil {
		return classify(err), elapsed, 0, err
	}
	return OutcomeOK, elapsed, len(rs.Rows), nil
}

// classify maps a query error to a step outcome.
func classify(err error) string {
	var argErr *sqlext.ArgumentError
	switch {
	case err == nil:
		return OutcomeOK
	case sleep.IsInvalidArgument(err):
		return OutcomeInvalidArgument
	case sleep.IsCancelled(err):
		return OutcomeCancelled
	case errors.As(err, &argErr):
		return OutcomeArgumentError
	default:
		return OutcomeError
	}
}

// checkExpect compares a step's result with its expect clause.
func checkExpect(expect *ExpectClause, outcome string, elapsed time.Duration, rows int) []string {
	if expect == nil {
		return nil
	}

	var msgs []string
	if expect.Outcome != outcome {
		msgs = append(msgs, fmt.Sprintf("expected outcome %s, got %s", expect.Outcome, outcome))
	}
	want, ok, err := expect.elapsed()
	switch {
	case err != nil:
		msgs = append(msgs, fmt.Sprintf("expect: %v", err))
	case ok && want != elapsed:
		msgs = append(msgs, fmt.Sprintf("expected elapsed %s, got %s", want, elapsed))
	}
	if expect.Rows != nil && *expect.Rows != rows {
		msgs = append(msgs, fmt.Sprintf("expected %d rows, got %d", *expect.Rows, rows))
	}
	return msgs
}
