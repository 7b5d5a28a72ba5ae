package sleep

import (
	"context"
	"errors"
	"fmt"
)

// Error is returned by the normalizer and the waiter.
//
// Only two kinds exist:
//   - ErrCodeInvalidArgument: a direct-seconds input was NaN
//   - ErrCodeCancelled: the signal was observed during a wait
//
// Every other extreme input is normalized rather than rejected.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Function names the SQL entry point, when known.
	Function string

	// Row is the zero-based batch row that failed, or -1.
	Row int

	// Err is the underlying cause (e.g. context.Canceled), if any.
	Err error
}

// ErrorCode categorizes sleep errors.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates a NaN duration.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeCancelled indicates the wait was interrupted.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Function != "" && e.Row >= 0 {
		return fmt.Sprintf("%s: %s (function=%s, row=%d)", e.Code, e.Message, e.Function, e.Row)
	}
	if e.Function != "" {
		return fmt.Sprintf("%s: %s (function=%s)", e.Code, e.Message, e.Function)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsInvalidArgument returns true if err is, or wraps, an invalid argument error.
func IsInvalidArgument(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == ErrCodeInvalidArgument
	}
	return false
}

// IsCancelled returns true if err is, or wraps, a cancellation error.
func IsCancelled(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == ErrCodeCancelled
	}
	return false
}

// NewNaNError creates the error for a NaN duration.
func NewNaNError() *Error {
	return &Error{
		Code:    ErrCodeInvalidArgument,
		Message: "sleep duration cannot be NaN",
		Row:     -1,
	}
}

// NewCancelledError creates the error for an interrupted wait.
// cause may be nil.
func NewCancelledError(cause error) *Error {
	return &Error{
		Code:    ErrCodeCancelled,
		Message: "sleep interrupted",
		Row:     -1,
		Err:     cause,
	}
}

// withRow annotates a sleep error with its batch position.
// Non-sleep errors are returned unchanged.
func withRow(err error, function string, row int) error {
	var se *Error
	if !errors.As(err, &se) {
		return err
	}
	annotated := *se
	annotated.Function = function
	annotated.Row = row
	return &annotated
}

// cancelCause extracts a cause from signals that carry one.
func cancelCause(sig Signal) error {
	if c, ok := sig.(interface{ Err() error }); ok {
		return c.Err()
	}
	return context.Canceled
}
