package harness

import (
	"sync"
	"time"

	"github.com/roach88/sqlsleep/internal/sleep"
)

// Trace event types.
const (
	EventQuery  = "query"
	EventWait   = "wait"
	EventNull   = "null"
	EventResult = "result"
)

// TraceEvent is one entry in a scenario trace. Which fields are set
// depends on Type.
type TraceEvent struct {
	Seq      int    `json:"seq"`
	Type     string `json:"type"`
	SQL      string `json:"sql,omitempty"`
	Args     []any  `json:"args,omitempty"`
	Function string `json:"function,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Elapsed  string `json:"elapsed,omitempty"`
	Rows     *int   `json:"rows,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains queries, the waits they caused and their results,
	// in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Elapsed is how far the fake clock moved over all steps.
	Elapsed time.Duration `json:"elapsed"`

	mu sync.Mutex
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(e TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, e)
}

// AddQueryTrace adds a query to the trace.
func (r *Result) AddQueryTrace(sql string, args []any) {
	r.add(TraceEvent{Type: EventQuery, SQL: sql, Args: args})
}

// AddResultTrace adds a query's result to the trace.
func (r *Result) AddResultTrace(outcome string, elapsed time.Duration, rows int, errMsg string) {
	e := TraceEvent{Type: EventResult, Outcome: outcome, Elapsed: elapsed.String(), Error: errMsg}
	if outcome == OutcomeOK {
		e.Rows = &rows
	}
	r.add(e)
}

// ObserveWait implements sleep.Observer, tracing every finished wait.
func (r *Result) ObserveWait(function string, outcome sleep.Outcome, elapsed time.Duration) {
	r.add(TraceEvent{Type: EventWait, Function: function, Outcome: string(outcome), Elapsed: elapsed.String()})
}

// ObserveNull implements sleep.Observer.
func (r *Result) ObserveNull(function string) {
	r.add(TraceEvent{Type: EventNull, Function: function})
}
