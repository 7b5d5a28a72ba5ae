package sqlext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlsleep/internal/sleep"
)

// Name is the extension name.
const Name = "sleep"

// Version is stamped at build time with -ldflags "-X ...sqlext.Version=...".
var Version = "dev"

// FunctionInfo describes one registered SQL function.
type FunctionInfo struct {
	Name        string `json:"name"`
	ArgType     string `json:"arg_type"`
	ReturnType  string `json:"return_type"`
	Volatile    bool   `json:"volatile"`
	Description string `json:"description"`
}

// Functions lists the SQL functions every connection registers.
func Functions() []FunctionInfo {
	return []FunctionInfo{
		{
			Name:        sleep.FuncSleep,
			ArgType:     "DOUBLE",
			ReturnType:  "NULL",
			Volatile:    true,
			Description: "Delays execution for at least the given number of seconds.",
		},
		{
			Name:        sleep.FuncSleepFor,
			ArgType:     "INTERVAL",
			ReturnType:  "NULL",
			Volatile:    true,
			Description: "Delays execution for at least the given interval.",
		},
		{
			Name:        sleep.FuncSleepUntil,
			ArgType:     "TIMESTAMP",
			ReturnType:  "NULL",
			Volatile:    true,
			Description: "Delays execution until at least the given timestamp.",
		},
	}
}

// ArgumentError reports a value the host could not bind to a function's
// parameter type. It is raised before any wait.
type ArgumentError struct {
	Function string
	Value    any
	Err      error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: cannot use %s as %s: %v", e.Function, describe(e.Value), argType(e.Function), e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

func describe(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case []byte:
		return fmt.Sprintf("blob(%d bytes)", len(x))
	default:
		return fmt.Sprintf("%v (%T)", x, x)
	}
}

func argType(function string) string {
	for _, f := range Functions() {
		if f.Name == function {
			return strings.ToLower(f.ArgType)
		}
	}
	return "argument"
}

// registerFunctions installs the three functions on conn. pure=false keeps
// SQLite from treating them as deterministic.
func registerFunctions(conn *sqlite3.SQLiteConn, s *sleep.Sleeper, state *connState) error {
	impls := []struct {
		name string
		impl func(any) (any, error)
	}{
		{sleep.FuncSleep, func(v any) (any, error) {
			col, err := float64Column(v)
			if err == nil {
				_, err = s.Sleep(col, state)
			}
			return nil, state.record(err)
		}},
		{sleep.FuncSleepFor, func(v any) (any, error) {
			col, err := intervalColumn(v)
			if err == nil {
				_, err = s.SleepFor(col, state)
			}
			return nil, state.record(err)
		}},
		{sleep.FuncSleepUntil, func(v any) (any, error) {
			col, err := timestampColumn(v)
			if err == nil {
				_, err = s.SleepUntil(col, state)
			}
			return nil, state.record(err)
		}},
	}

	for _, f := range impls {
		if err := conn.RegisterFunc(f.name, f.impl, false); err != nil {
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}
	return nil
}

// SQLite calls scalar functions one row at a time; each call becomes a
// single-row batch.

// isNull reports whether v is a SQL NULL. go-sqlite3 hands NULL to
// generic callbacks as a nil []byte rather than a nil interface.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	b, ok := v.([]byte)
	return ok && b == nil
}

func float64Column(v any) (sleep.Float64Column, error) {
	if isNull(v) {
		return sleep.Float64Column{Values: []float64{0}, Nulls: []bool{true}}, nil
	}
	switch x := v.(type) {
	case float64:
		return sleep.Float64Column{Values: []float64{x}}, nil
	case int64:
		return sleep.Float64Column{Values: []float64{float64(x)}}, nil
	case string:
		f, err := sleep.ParseSeconds(x)
		if err != nil {
			return sleep.Float64Column{}, &ArgumentError{Function: sleep.FuncSleep, Value: v, Err: err}
		}
		return sleep.Float64Column{Values: []float64{f}}, nil
	}
	return sleep.Float64Column{}, &ArgumentError{Function: sleep.FuncSleep, Value: v, Err: errUnsupported}
}

func intervalColumn(v any) (sleep.IntervalColumn, error) {
	if isNull(v) {
		return sleep.IntervalColumn{Values: []sleep.Interval{{}}, Nulls: []bool{true}}, nil
	}
	if x, ok := v.(string); ok {
		iv, err := sleep.ParseInterval(x)
		if err != nil {
			return sleep.IntervalColumn{}, &ArgumentError{Function: sleep.FuncSleepFor, Value: v, Err: err}
		}
		return sleep.IntervalColumn{Values: []sleep.Interval{iv}}, nil
	}
	return sleep.IntervalColumn{}, &ArgumentError{Function: sleep.FuncSleepFor, Value: v, Err: errUnsupported}
}

func timestampColumn(v any) (sleep.TimestampColumn, error) {
	if isNull(v) {
		return sleep.TimestampColumn{Values: []sleep.Timestamp{0}, Nulls: []bool{true}}, nil
	}
	switch x := v.(type) {
	case int64:
		return sleep.TimestampColumn{Values: []sleep.Timestamp{sleep.Timestamp(x)}}, nil
	case string:
		ts, err := sleep.ParseTimestamp(x)
		if err != nil {
			return sleep.TimestampColumn{}, &ArgumentError{Function: sleep.FuncSleepUntil, Value: v, Err: err}
		}
		return sleep.TimestampColumn{Values: []sleep.Timestamp{ts}}, nil
	}
	return sleep.TimestampColumn{}, &ArgumentError{Function: sleep.FuncSleepUntil, Value: v, Err: errUnsupported}
}
