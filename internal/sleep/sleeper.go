package sleep

import (
	"log/slog"
	"time"
)

// SQL entry point names, used for error annotation, logs and metrics.
const (
	FuncSleep      = "sleep"
	FuncSleepFor   = "sleep_for"
	FuncSleepUntil = "sleep_until"

	// funcWait labels direct calls to Sleeper.Wait.
	funcWait = "wait"
)

// Outcome classifies a finished row.
type Outcome string

const (
	OutcomeElapsed   Outcome = "elapsed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeInvalid   Outcome = "invalid"
)

// Observer receives one event per processed row. Implementations must be
// safe for concurrent use when the Sleeper is shared between connections.
type Observer interface {
	// ObserveWait is called after a non-null row finished, with the time
	// actually spent waiting.
	ObserveWait(function string, outcome Outcome, elapsed time.Duration)

	// ObserveNull is called for a null row. No wait happens for it.
	ObserveNull(function string)
}

type nopObserver struct{}

func (nopObserver) ObserveWait(string, Outcome, time.Duration) {}
func (nopObserver) ObserveNull(string)                         {}

// Sleeper owns the limits, clock and instrumentation shared by the three
// entry points. It holds no per-call state, so one Sleeper may serve many
// goroutines.
type Sleeper struct {
	cfg      Config
	clock    Clock
	logger   *slog.Logger
	observer Observer
}

// Option configures a Sleeper.
type Option func(*Sleeper)

// WithClock replaces the real clock, typically with a fake in tests.
func WithClock(c Clock) Option {
	return func(s *Sleeper) { s.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Sleeper) { s.logger = l }
}

// WithObserver installs a row observer.
func WithObserver(o Observer) Option {
	return func(s *Sleeper) { s.observer = o }
}

// New creates a Sleeper. cfg is used as given; call cfg.Validate first
// when it comes from user input.
func New(cfg Config, opts ...Option) *Sleeper {
	s := &Sleeper{
		cfg:      cfg,
		clock:    RealClock{},
		logger:   slog.Default(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the limits the Sleeper was created with.
func (s *Sleeper) Config() Config {
	return s.cfg
}

// Now samples the Sleeper's clock as a Timestamp.
func (s *Sleeper) Now() Timestamp {
	return TimestampOf(s.clock.Now())
}
