package sqlext

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlsleep/internal/sleep"
	"github.com/roach88/sqlsleep/internal/testutil"
)

var testEpoch = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openFake opens an in-memory database whose sleeps run on a fake clock.
func openFake(t *testing.T, max float64) (*DB, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(testEpoch)
	s := sleep.New(sleep.Config{MaxSleepSeconds: max, CheckInterval: 100 * time.Millisecond},
		sleep.WithClock(clock), sleep.WithLogger(quietLogger()))

	db, err := Open(":memory:", s,
		WithLogger(quietLogger()),
		WithQueryIDGenerator(testutil.NewFixedQueryIDGenerator("q-1")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func TestOpen_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s := sleep.New(sleep.DefaultConfig(), sleep.WithLogger(quietLogger()))

	db, err := Open(path, s, WithLogger(quietLogger()), WithMaxOpenConns(2))
	require.NoError(t, err)
	defer db.Close()

	var timeout int
	require.NoError(t, db.SQL().QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestIsMemoryDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want bool
	}{
		{":memory:", true},
		{"", true},
		{"file::memory:", true},
		{"file::memory:?cache=shared", true},
		{"file:x?mode=memory", true},
		{"file:x?cache=shared&mode=memory", true},
		{"file:x.db?mode=rwc", false},
		{"file:x.db", false},
		{"x.db", false},
		{"/tmp/memory.db", false},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, isMemoryDSN(tt.dsn))
		})
	}
}

func TestOpen_MemoryURIUsesOneConnection(t *testing.T) {
	s := sleep.New(sleep.DefaultConfig(), sleep.WithLogger(quietLogger()))

	db, err := Open("file:pinned?mode=memory", s, WithLogger(quietLogger()), WithMaxOpenConns(4))
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 1, db.SQL().Stats().MaxOpenConnections)

	ctx := context.Background()
	_, err = db.Exec(ctx, "CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)
	_, err = db.Exec(ctx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs, err := db.Query(ctx, "SELECT x FROM t")
			assert.NoError(t, err)
			if err == nil {
				assert.Equal(t, [][]any{{int64(1)}}, rs.Rows)
			}
		}()
	}
	wg.Wait()
}

func TestOpen_BadPath(t *testing.T) {
	s := sleep.New(sleep.DefaultConfig())
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "x.db"), s, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to database")
}

func TestClose_Idempotent(t *testing.T) {
	var db DB
	assert.NoError(t, db.Close())
}

func TestQuery_SleepReturnsNull(t *testing.T) {
	db, clock := openFake(t, 3600)

	rs, err := db.Query(context.Background(), "SELECT sleep(0.5) AS s")

	require.NoError(t, err)
	assert.Equal(t, "q-1", rs.QueryID)
	assert.Equal(t, []string{"s"}, rs.Columns)
	assert.Equal(t, [][]any{{nil}}, rs.Rows)
	assert.Equal(t, 500*time.Millisecond, clock.Elapsed())
}

func TestQuery_BoundParameter(t *testing.T) {
	db, clock := openFake(t, 3600)

	_, err := db.Query(context.Background(), "SELECT sleep(?)", 0.2)

	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, clock.Elapsed())
}

func TestQuery_SleepNormalization(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  time.Duration
	}{
		{"null never waits", "SELECT sleep(NULL)", 0},
		{"negative is a no-op", "SELECT sleep(-5)", 0},
		{"integer seconds", "SELECT sleep(1)", time.Second},
		{"infinity text clamps", "SELECT sleep('Infinity')", 2 * time.Second},
		{"negative infinity text is a no-op", "SELECT sleep('-Inf')", 0},
		{"overlong clamps", "SELECT sleep(1e9)", 2 * time.Second},
		{"out of range text clamps", "SELECT sleep('1e400')", 2 * time.Second},
		{"negative out of range text is a no-op", "SELECT sleep('-1e400')", 0},
		{"numeric text", "SELECT sleep(' 0.3 ')", 300 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, clock := openFake(t, 2)

			rs, err := db.Query(context.Background(), tt.query)

			require.NoError(t, err)
			assert.Equal(t, [][]any{{nil}}, rs.Rows)
			assert.Equal(t, tt.want, clock.Elapsed())
		})
	}
}

func TestQuery_SleepNaN(t *testing.T) {
	db, clock := openFake(t, 3600)

	_, err := db.Query(context.Background(), "SELECT sleep('NaN')")

	require.Error(t, err)
	assert.True(t, sleep.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "cannot be NaN")
	var se *sleep.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, sleep.FuncSleep, se.Function)
	assert.Empty(t, clock.Sleeps())
}

func TestQuery_SleepFor(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  time.Duration
	}{
		{"milliseconds", "SELECT sleep_for('500 milliseconds')", 500 * time.Millisecond},
		{"iso 8601", "SELECT sleep_for('PT1.5S')", 1500 * time.Millisecond},
		{"month observed as ceiling", "SELECT sleep_for('1 mon')", 3 * time.Second},
		{"negative interval", "SELECT sleep_for('-2 days')", 0},
		{"null", "SELECT sleep_for(NULL)", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, clock := openFake(t, 3)

			_, err := db.Query(context.Background(), tt.query)

			require.NoError(t, err)
			assert.Equal(t, tt.want, clock.Elapsed())
		})
	}
}

func TestQuery_SleepUntil(t *testing.T) {
	tests := []struct {
		name  string
		query string
		args  []any
		want  time.Duration
	}{
		{"one hour ago", "SELECT sleep_until('2026-10-17 11:00:00')", nil, 0},
		{"text target", "SELECT sleep_until('2026-10-17 12:00:01.5')", nil, 1500 * time.Millisecond},
		{"rfc 3339 target", "SELECT sleep_until('2026-10-17T14:00:02+02:00')", nil, 2 * time.Second},
		{"integer micros", "SELECT sleep_until(?)", []any{sleep.TimestampOf(testEpoch.Add(700 * time.Millisecond))}, 700 * time.Millisecond},
		{"positive infinity", "SELECT sleep_until('infinity')", nil, 3 * time.Second},
		{"negative infinity", "SELECT sleep_until('-infinity')", nil, 0},
		{"null", "SELECT sleep_until(NULL)", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, clock := openFake(t, 3)

			_, err := db.Query(context.Background(), tt.query, tt.args...)

			require.NoError(t, err)
			assert.Equal(t, tt.want, clock.Elapsed())
		})
	}
}

func TestQuery_EveryRowIsEvaluated(t *testing.T) {
	db, clock := openFake(t, 3600)

	// Non-deterministic registration: SQLite must call sleep for each row.
	rs, err := db.Query(context.Background(),
		"SELECT sleep(0.1) FROM (VALUES (1), (2), (3))")

	require.NoError(t, err)
	assert.Len(t, rs.Rows, 3)
	assert.Equal(t, 300*time.Millisecond, clock.Elapsed())
}

func TestQuery_NullRowsInColumn(t *testing.T) {
	db, clock := openFake(t, 3600)

	rs, err := db.Query(context.Background(),
		"SELECT sleep(column1) FROM (VALUES (0.1), (NULL), (0.2))")

	require.NoError(t, err)
	assert.Equal(t, [][]any{{nil}, {nil}, {nil}}, rs.Rows)
	assert.Equal(t, 300*time.Millisecond, clock.Elapsed())
}

func TestQuery_CancelledMidSleep(t *testing.T) {
	db, clock := openFake(t, 3600)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.OnSleep(func(now time.Time) {
		if now.Sub(testEpoch) >= 250*time.Millisecond {
			cancel()
		}
	})

	_, err := db.Query(ctx, "SELECT sleep(10)")

	require.Error(t, err)
	assert.True(t, sleep.IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 300*time.Millisecond, clock.Elapsed())
}

func TestQuery_CancellationStopsLaterRows(t *testing.T) {
	db, clock := openFake(t, 3600)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.OnSleep(func(now time.Time) {
		if now.Sub(testEpoch) >= 1500*time.Millisecond {
			cancel()
		}
	})

	_, err := db.Query(ctx, "SELECT sleep(1) FROM (VALUES (1), (2), (3))")

	require.Error(t, err)
	assert.True(t, sleep.IsCancelled(err))
	assert.Equal(t, 1600*time.Millisecond, clock.Elapsed())
}

func TestQuery_AlreadyCancelledContext(t *testing.T) {
	db, clock := openFake(t, 3600)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.Query(ctx, "SELECT sleep(10)")

	require.Error(t, err)
	assert.True(t, sleep.IsCancelled(err))
	assert.Empty(t, clock.Sleeps())
}

func TestQuery_IndependentAfterCancellation(t *testing.T) {
	db, clock := openFake(t, 3600)
	ctx, cancel := context.WithCancel(context.Background())
	clock.OnSleep(func(time.Time) { cancel() })

	_, err := db.Query(ctx, "SELECT sleep(5)")
	require.Error(t, err)

	clock.OnSleep(nil)
	clock.Reset()
	_, err = db.Query(context.Background(), "SELECT sleep(0.2)")
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, clock.Elapsed())
}

func TestQuery_ArgumentErrors(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		function string
	}{
		{"sleep text", "SELECT sleep('abc')", sleep.FuncSleep},
		{"sleep blob", "SELECT sleep(x'00')", sleep.FuncSleep},
		{"sleep_for number", "SELECT sleep_for(5)", sleep.FuncSleepFor},
		{"sleep_for bad text", "SELECT sleep_for('5 fortnights')", sleep.FuncSleepFor},
		{"sleep_until real", "SELECT sleep_until(1.5)", sleep.FuncSleepUntil},
		{"sleep_until bad text", "SELECT sleep_until('yesterday')", sleep.FuncSleepUntil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, clock := openFake(t, 3600)

			_, err := db.Query(context.Background(), tt.query)

			require.Error(t, err)
			var ae *ArgumentError
			require.True(t, errors.As(err, &ae), "got %v", err)
			assert.Equal(t, tt.function, ae.Function)
			assert.False(t, sleep.IsInvalidArgument(err))
			assert.Empty(t, clock.Sleeps())
		})
	}
}

func TestQuery_PlainSQLError(t *testing.T) {
	db, _ := openFake(t, 3600)

	_, err := db.Query(context.Background(), "SELECT * FROM missing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
	assert.False(t, sleep.IsCancelled(err))
}

func TestExec_UpdateSleepsPerRow(t *testing.T) {
	db, clock := openFake(t, 3600)
	ctx := context.Background()

	_, err := db.Exec(ctx, "CREATE TABLE jobs (id INTEGER PRIMARY KEY, delay REAL, done TEXT)")
	require.NoError(t, err)
	_, err = db.Exec(ctx, "INSERT INTO jobs (delay) VALUES (0.1), (NULL), (0.3)")
	require.NoError(t, err)

	res, err := db.Exec(ctx, "UPDATE jobs SET done = sleep(delay)")
	require.NoError(t, err)

	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 400*time.Millisecond, clock.Elapsed())

	rs, err := db.Query(ctx, "SELECT COUNT(*) FROM jobs WHERE done IS NULL")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(3)}}, rs.Rows)
}

func TestExec_NaNAbortsStatement(t *testing.T) {
	db, _ := openFake(t, 3600)

	_, err := db.Exec(context.Background(), "SELECT sleep('nan')")

	require.Error(t, err)
	assert.True(t, sleep.IsInvalidArgument(err))
}

func TestQuery_ConcurrentConnections(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time test")
	}
	path := filepath.Join(t.TempDir(), "concurrent.db")
	s := sleep.New(sleep.Config{MaxSleepSeconds: 1, CheckInterval: 10 * time.Millisecond},
		sleep.WithLogger(quietLogger()))
	db, err := Open(path, s, WithLogger(quietLogger()), WithMaxOpenConns(2))
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	var longErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, longErr = db.Query(ctx, "SELECT sleep(30)")
	}()

	// A second connection keeps working while the first one sleeps.
	start := time.Now()
	_, err = db.Query(context.Background(), "SELECT sleep(0.05)")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	cancel()
	wg.Wait()
	require.Error(t, longErr)
	assert.True(t, sleep.IsCancelled(longErr))
}
