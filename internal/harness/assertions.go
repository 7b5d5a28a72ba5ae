package harness

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/roach88/sqlsleep/internal/sqlext"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describeEvent(event))
		}
	}

	return buf.String()
}

func describeEvent(e TraceEvent) string {
	switch e.Type {
	case EventQuery:
		return fmt.Sprintf("query %s", e.SQL)
	case EventWait:
		return fmt.Sprintf("wait %s %s after %s", e.Function, e.Outcome, e.Elapsed)
	case EventNull:
		return fmt.Sprintf("null %s", e.Function)
	case EventResult:
		if e.Error != "" {
			return fmt.Sprintf("result %s after %s: %s", e.Outcome, e.Elapsed, e.Error)
		}
		return fmt.Sprintf("result %s after %s", e.Outcome, e.Elapsed)
	}
	return e.Type
}

// assertWaitCount checks the number of wait events matching the optional
// function and outcome filters.
func assertWaitCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type != EventWait {
			continue
		}
		if assertion.Function != "" && event.Function != assertion.Function {
			continue
		}
		if assertion.Outcome != "" && event.Outcome != assertion.Outcome {
			continue
		}
		count++
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertWaitCount,
			Expected: fmt.Sprintf("%d waits%s", assertion.Count, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d waits", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertNullCount checks the number of null rows for the optional function.
func assertNullCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventNull && (assertion.Function == "" || event.Function == assertion.Function) {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertNullCount,
			Expected: fmt.Sprintf("%d null rows%s", assertion.Count, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d null rows", count),
			Trace:    trace,
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Function != "" {
		parts = append(parts, "function="+a.Function)
	}
	if a.Outcome != "" {
		parts = append(parts, "outcome="+a.Outcome)
	}
	if len(parts) == 0 {
		return ""
	}
	return " with " + strings.Join(parts, " ")
}

// assertTotalElapsed checks how far the fake clock moved over all steps.
func assertTotalElapsed(result *Result, assertion Assertion) error {
	want, err := time.ParseDuration(assertion.Elapsed)
	if err != nil {
		return fmt.Errorf("total_elapsed: %w", err)
	}
	if result.Elapsed != want {
		return &AssertionError{
			Type:     AssertTotalElapsed,
			Expected: want.String(),
			Actual:   result.Elapsed.String(),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState runs the assertion's query and compares every row.
func assertFinalState(ctx context.Context, db *sqlext.DB, assertion Assertion) error {
	rs, err := db.Query(ctx, assertion.Query)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query %s", assertion.Query),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	if len(rs.Rows) != len(assertion.Rows) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d rows from %s", len(assertion.Rows), assertion.Query),
			Actual:   fmt.Sprintf("%d rows: %v", len(rs.Rows), rs.Rows),
		}
	}

	for i, want := range assertion.Rows {
		got := rs.Rows[i]
		if len(got) != len(want) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("row %d with %d columns", i, len(want)),
				Actual:   fmt.Sprintf("%d columns: %v", len(got), got),
			}
		}
		for j := range want {
			if !stateValuesEqual(want[j], got[j]) {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("row %d column %s = %v (type %T)", i, rs.Columns[j], want[j], want[j]),
					Actual:   fmt.Sprintf("%v (type %T)", got[j], got[j]),
				}
			}
		}
	}

	return nil
}

// stateValuesEqual compares a YAML-decoded expected value with a value
// read from SQLite, which returns int64 for integers and float64 for reals.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case int:
		switch act := actual.(type) {
		case int64:
			return int64(exp) == act
		case float64:
			return float64(exp) == act
		}
		return false
	case float64:
		switch act := actual.(type) {
		case float64:
			return exp == act
		case int64:
			return exp == float64(act)
		}
		return false
	case bool:
		// SQLite stores booleans as integers
		if act, ok := actual.(int64); ok {
			return exp == (act != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	DB  *sqlext.DB
	Ctx context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertWaitCount:
			err = assertWaitCount(result.Trace, assertion)
		case AssertNullCount:
			err = assertNullCount(result.Trace, assertion)
		case AssertTotalElapsed:
			err = assertTotalElapsed(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.DB == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.DB, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
