package sleep

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultMaxSleepSeconds caps every wait at one hour.
	DefaultMaxSleepSeconds = 3600.0

	// DefaultCheckInterval is the polling quantum between cancellation checks.
	DefaultCheckInterval = 100 * time.Millisecond
)

// Config holds the startup-time limits of a Sleeper.
// It is not a per-call parameter.
type Config struct {
	// MaxSleepSeconds is the ceiling every canonical duration is clamped to.
	MaxSleepSeconds float64

	// CheckInterval bounds how long the waiter sleeps between
	// cancellation checks.
	CheckInterval time.Duration
}

// DefaultConfig returns the default limits (1h ceiling, 100ms quantum).
func DefaultConfig() Config {
	return Config{
		MaxSleepSeconds: DefaultMaxSleepSeconds,
		CheckInterval:   DefaultCheckInterval,
	}
}

// Validate reports whether the limits are usable.
func (c Config) Validate() error {
	if math.IsNaN(c.MaxSleepSeconds) || math.IsInf(c.MaxSleepSeconds, 0) || c.MaxSleepSeconds <= 0 {
		return fmt.Errorf("max sleep seconds must be a positive finite number, got %v", c.MaxSleepSeconds)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check interval must be positive, got %s", c.CheckInterval)
	}
	return nil
}

// MaxSleep returns the ceiling as a time.Duration.
func (c Config) MaxSleep() time.Duration {
	return secondsToDuration(c.MaxSleepSeconds)
}

// secondsToDuration converts canonical seconds to a Duration.
// Callers pass values already clamped to the ceiling, so no overflow occurs.
func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
