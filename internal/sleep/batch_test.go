package sleep

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlsleep/internal/testutil"
)

// recordingObserver counts rows per outcome.
type recordingObserver struct {
	mu     sync.Mutex
	waits  []Outcome
	nulls  int
	ranFor []string
}

func (o *recordingObserver) ObserveWait(function string, outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waits = append(o.waits, outcome)
	o.ranFor = append(o.ranFor, function)
}

func (o *recordingObserver) ObserveNull(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nulls++
}

func newObservedSleeper(t *testing.T, max float64) (*Sleeper, *testutil.FakeClock, *recordingObserver) {
	t.Helper()
	clock := testutil.NewFakeClock(testEpoch)
	obs := &recordingObserver{}
	s := New(Config{MaxSleepSeconds: max, CheckInterval: 100 * time.Millisecond},
		WithClock(clock), WithObserver(obs))
	return s, clock, obs
}

func TestSleep_SumsRowsInOrder(t *testing.T) {
	s, clock, obs := newObservedSleeper(t, 3600)

	out, err := s.Sleep(Float64Column{Values: []float64{0.1, 0.2, -3}}, Never)

	require.NoError(t, err)
	assert.Equal(t, NullColumn{Len: 3}, out)
	assert.Equal(t, 300*time.Millisecond, clock.Elapsed())
	assert.Equal(t, []Outcome{OutcomeElapsed, OutcomeElapsed, OutcomeElapsed}, obs.waits)
}

func TestSleep_NullRowsNeverWait(t *testing.T) {
	s, clock, obs := newObservedSleeper(t, 3600)

	out, err := s.Sleep(Float64Column{
		Values: []float64{5, 0.1, 5},
		Nulls:  []bool{true, false, true},
	}, Never)

	require.NoError(t, err)
	assert.Equal(t, 3, out.Len)
	assert.Equal(t, 100*time.Millisecond, clock.Elapsed())
	assert.Equal(t, 2, obs.nulls)
	assert.Len(t, obs.waits, 1)
}

func TestSleep_AllNullColumn(t *testing.T) {
	for _, run := range []func(s *Sleeper) (NullColumn, error){
		func(s *Sleeper) (NullColumn, error) {
			return s.Sleep(Float64Column{Values: []float64{math.NaN()}, Nulls: []bool{true}}, Never)
		},
		func(s *Sleeper) (NullColumn, error) {
			return s.SleepFor(IntervalColumn{Values: []Interval{{Months: 1}}, Nulls: []bool{true}}, Never)
		},
		func(s *Sleeper) (NullColumn, error) {
			return s.SleepUntil(TimestampColumn{Values: []Timestamp{PositiveInfinity}, Nulls: []bool{true}}, Never)
		},
	} {
		s, clock, obs := newObservedSleeper(t, 3600)

		out, err := run(s)

		require.NoError(t, err)
		assert.Equal(t, 1, out.Len)
		assert.Empty(t, clock.Sleeps())
		assert.Empty(t, obs.waits, "waiter must not run for null rows")
		assert.Equal(t, 1, obs.nulls)
	}
}

func TestSleep_NaNAbortsBeforeLaterRows(t *testing.T) {
	s, clock, obs := newObservedSleeper(t, 3600)

	_, err := s.Sleep(Float64Column{Values: []float64{0.1, math.NaN(), 0.5}}, Never)

	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, FuncSleep, se.Function)
	assert.Equal(t, 1, se.Row)
	assert.Contains(t, err.Error(), "row=1")
	// Only the first row slept; the third never started.
	assert.Equal(t, 100*time.Millisecond, clock.Elapsed())
	assert.Equal(t, []Outcome{OutcomeElapsed, OutcomeInvalid}, obs.waits)
}

func TestSleep_CancellationAbortsBatch(t *testing.T) {
	s, clock, obs := newObservedSleeper(t, 3600)
	flag := &Flag{}
	clock.OnSleep(func(now time.Time) {
		if now.Sub(testEpoch) >= 250*time.Millisecond {
			flag.Raise()
		}
	})

	_, err := s.Sleep(Float64Column{Values: []float64{0.2, 1, 1}}, flag)

	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Row)
	assert.Equal(t, 300*time.Millisecond, clock.Elapsed())
	assert.Equal(t, []Outcome{OutcomeElapsed, OutcomeCancelled}, obs.waits)
}

func TestSleep_MismatchedNullMask(t *testing.T) {
	s, _, _ := newObservedSleeper(t, 3600)

	_, err := s.Sleep(Float64Column{Values: []float64{1, 2}, Nulls: []bool{false}}, Never)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 values but 1 null flags")
	assert.False(t, IsInvalidArgument(err))
}

func TestSleepFor(t *testing.T) {
	tests := []struct {
		name string
		iv   Interval
		max  float64
		want time.Duration
	}{
		{"half second", Interval{Micros: 500_000}, 3600, 500 * time.Millisecond},
		{"month observed as ceiling", Interval{Months: 1}, 3, 3 * time.Second},
		{"negative interval", Interval{Days: -2}, 3600, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock, obs := newObservedSleeper(t, tt.max)

			out, err := s.SleepFor(IntervalColumn{Values: []Interval{tt.iv}}, Never)

			require.NoError(t, err)
			assert.Equal(t, 1, out.Len)
			assert.Equal(t, tt.want, clock.Elapsed())
			assert.Equal(t, []string{FuncSleepFor}, obs.ranFor)
		})
	}
}

func TestSleepUntil(t *testing.T) {
	now := TimestampOf(testEpoch)

	tests := []struct {
		name   string
		target Timestamp
		max    float64
		want   time.Duration
	}{
		{"one hour ago", now - Timestamp(time.Hour.Microseconds()), 3600, 0},
		{"one and a half seconds ahead", now + 1_500_000, 3600, 1500 * time.Millisecond},
		{"positive infinity", PositiveInfinity, 2, 2 * time.Second},
		{"negative infinity", NegativeInfinity, 2, 0},
		{"far future clamped", now + Timestamp(48*time.Hour.Microseconds()), 2, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock, _ := newObservedSleeper(t, tt.max)

			_, err := s.SleepUntil(TimestampColumn{Values: []Timestamp{tt.target}}, Never)

			require.NoError(t, err)
			assert.Equal(t, tt.want, clock.Elapsed())
		})
	}
}

func TestSleepUntil_SamplesNowPerRow(t *testing.T) {
	s, clock, _ := newObservedSleeper(t, 3600)
	target := TimestampOf(testEpoch) + 1_000_000

	// The second row targets the same instant the first row waited for.
	_, err := s.SleepUntil(TimestampColumn{Values: []Timestamp{target, target}}, Never)

	require.NoError(t, err)
	assert.Equal(t, time.Second, clock.Elapsed())
}

func TestColumn_IsNull(t *testing.T) {
	c := Float64Column{Values: []float64{1, 2}}
	assert.False(t, c.IsNull(0))
	assert.False(t, c.IsNull(1))

	c.Nulls = []bool{false, true}
	assert.False(t, c.IsNull(0))
	assert.True(t, c.IsNull(1))
	assert.Equal(t, 2, c.Len())
}
