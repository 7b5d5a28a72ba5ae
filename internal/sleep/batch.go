package sleep

import "fmt"

// Column is one typed input column of a row batch. Nulls marks absent rows;
// a nil Nulls means no row is null.
type Column[T any] struct {
	Values []T
	Nulls  []bool
}

// Float64Column feeds sleep.
type Float64Column = Column[float64]

// IntervalColumn feeds sleep_for.
type IntervalColumn = Column[Interval]

// TimestampColumn feeds sleep_until.
type TimestampColumn = Column[Timestamp]

// Len returns the row count.
func (c Column[T]) Len() int { return len(c.Values) }

// IsNull reports whether row i is absent.
func (c Column[T]) IsNull(i int) bool {
	return c.Nulls != nil && c.Nulls[i]
}

func (c Column[T]) validate() error {
	if c.Nulls != nil && len(c.Nulls) != len(c.Values) {
		return fmt.Errorf("column has %d values but %d null flags", len(c.Values), len(c.Nulls))
	}
	return nil
}

// NullColumn is the output of every entry point: Len rows, all null.
// The functions run for their blocking side effect only.
type NullColumn struct {
	Len int
}

// Sleep waits once per non-null row for the given number of seconds.
// A NaN row fails the batch with ErrCodeInvalidArgument.
func (s *Sleeper) Sleep(col Float64Column, sig Signal) (NullColumn, error) {
	return runBatch(s, FuncSleep, col, sig, func(v float64) (float64, error) {
		return NormalizeSeconds(v, s.cfg.MaxSleepSeconds)
	})
}

// SleepFor waits once per non-null row for the given interval.
func (s *Sleeper) SleepFor(col IntervalColumn, sig Signal) (NullColumn, error) {
	return runBatch(s, FuncSleepFor, col, sig, func(iv Interval) (float64, error) {
		return IntervalSeconds(iv, s.cfg.MaxSleepSeconds), nil
	})
}

// SleepUntil waits once per non-null row until the given timestamp.
// "Now" is sampled separately for every row.
func (s *Sleeper) SleepUntil(col TimestampColumn, sig Signal) (NullColumn, error) {
	return runBatch(s, FuncSleepUntil, col, sig, func(ts Timestamp) (float64, error) {
		return SecondsUntil(ts, s.Now(), s.cfg.MaxSleepSeconds), nil
	})
}

// runBatch processes rows strictly in order. The first failing row aborts
// the batch and no later row is started.
func runBatch[T any](s *Sleeper, function string, col Column[T], sig Signal, normalize func(T) (float64, error)) (NullColumn, error) {
	if err := col.validate(); err != nil {
		return NullColumn{}, fmt.Errorf("%s: %w", function, err)
	}

	for i, v := range col.Values {
		if col.IsNull(i) {
			s.observer.ObserveNull(function)
			continue
		}

		seconds, err := normalize(v)
		if err != nil {
			s.observer.ObserveWait(function, OutcomeInvalid, 0)
			return NullColumn{}, withRow(err, function, i)
		}
		if err := s.wait(function, seconds, sig); err != nil {
			return NullColumn{}, withRow(err, function, i)
		}
	}

	return NullColumn{Len: col.Len()}, nil
}
