package sleep

import (
	"context"
	"sync/atomic"
)

// Signal reports whether the calling execution context asked to stop.
//
// The waiter only reads a Signal. The owner may flip it at any time from
// another goroutine; the change is observed at the next quantum boundary.
type Signal interface {
	Cancelled() bool
}

// SignalFunc adapts a plain function to Signal.
type SignalFunc func() bool

// Cancelled implements Signal.
func (f SignalFunc) Cancelled() bool { return f() }

// Never is a Signal that is never cancelled.
var Never Signal = SignalFunc(func() bool { return false })

// Flag is a Signal owned by a single external writer.
// The zero value is an unraised flag and is safe for concurrent use.
type Flag struct {
	raised atomic.Bool
}

// Raise marks the flag cancelled.
func (f *Flag) Raise() { f.raised.Store(true) }

// Reset clears the flag.
func (f *Flag) Reset() { f.raised.Store(false) }

// Cancelled implements Signal.
func (f *Flag) Cancelled() bool { return f.raised.Load() }

// ContextSignal is cancelled once ctx is done.
type ContextSignal struct {
	ctx context.Context
}

// FromContext returns a Signal backed by ctx.
func FromContext(ctx context.Context) *ContextSignal {
	return &ContextSignal{ctx: ctx}
}

// Cancelled implements Signal.
func (s *ContextSignal) Cancelled() bool { return s.ctx.Err() != nil }

// Err returns the context's cancellation cause.
func (s *ContextSignal) Err() error { return context.Cause(s.ctx) }
