package sqlext

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlsleep/internal/sleep"
)

var errUnsupported = errors.New("unsupported storage class")

// DB is a SQLite database with the sleep functions registered on every
// connection.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
	ids    QueryIDGenerator
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	maxOpenConns int
	ids          QueryIDGenerator
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxOpenConns sets the pool size. In-memory databases always use one
// connection, since each connection would otherwise see its own database.
func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

// WithQueryIDGenerator overrides the UUIDv7 query IDs (for testing).
func WithQueryIDGenerator(g QueryIDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// Open opens (creating if needed) the SQLite database at path.
// Use ":memory:" (or a file: URI with mode=memory) for a throwaway database.
//
// Every connection is configured with:
//   - 5-second busy timeout for lock contention
//   - sleep, sleep_for and sleep_until bound to s
func Open(path string, s *sleep.Sleeper, opts ...Option) (*DB, error) {
	o := options{
		logger:       slog.Default(),
		maxOpenConns: 4,
		ids:          UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if isMemoryDSN(path) || o.maxOpenConns < 1 {
		o.maxOpenConns = 1
	}

	db := sql.OpenDB(&connector{
		driver:  &sqlite3.SQLiteDriver{},
		dsn:     path,
		sleeper: s,
		logger:  o.logger,
	})
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxOpenConns)

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{db: db, logger: o.logger, ids: o.ids}, nil
}

// isMemoryDSN reports whether every connection to path would open its own
// private database: ":memory:", the empty temporary name, and file: URIs
// naming :memory: or mode=memory.
func isMemoryDSN(path string) bool {
	if path == "" || path == ":memory:" {
		return true
	}
	rest, ok := strings.CutPrefix(path, "file:")
	if !ok {
		return false
	}
	name, query, _ := strings.Cut(rest, "?")
	if name == ":memory:" {
		return true
	}
	params, err := url.ParseQuery(query)
	return err == nil && params.Get("mode") == "memory"
}

// Close closes the database.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// SQL returns the underlying sql.DB. Statements run through it directly
// are never cancelled mid-sleep; prefer Exec and Query.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// ResultSet holds a fully read query result. TEXT and BLOB columns are
// copied, so the values stay valid after the statement finishes.
type ResultSet struct {
	QueryID string
	Columns []string
	Rows    [][]any
}

// Exec runs a statement that returns no rows. Cancelling ctx interrupts
// any sleep in progress within one polling quantum.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	_, err := d.run(ctx, query, func(conn *sql.Conn) error {
		var err error
		res, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

// Query runs a statement and reads every row before returning, so the
// context stays bound for the whole statement.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	rs := &ResultSet{}
	id, err := d.run(ctx, query, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		rs.Columns, err = rows.Columns()
		if err != nil {
			return err
		}
		for rows.Next() {
			values := make([]any, len(rs.Columns))
			ptrs := make([]any, len(values))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			for i, v := range values {
				if b, ok := v.([]byte); ok {
					values[i] = string(b)
				}
			}
			rs.Rows = append(rs.Rows, values)
		}
		return rows.Err()
	})
	rs.QueryID = id
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// run pins a connection, binds ctx to its signal and runs fn.
func (d *DB) run(ctx context.Context, query string, fn func(conn *sql.Conn) error) (string, error) {
	id := d.ids.Generate()
	logger := d.logger.With("query_id", id)

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return id, resolveError(ctx, nil, fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Close()

	var state *connState
	if err := conn.Raw(func(dc any) error {
		tc, ok := dc.(*sleepConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", dc)
		}
		state = tc.state
		return nil
	}); err != nil {
		return id, err
	}

	b := state.bind(ctx)
	defer state.unbind()

	logger.Debug("query started", "sql", query)
	start := time.Now()
	if err := fn(conn); err != nil {
		err = resolveError(ctx, b, err)
		logger.Debug("query failed", "elapsed", time.Since(start), "error", err)
		return id, err
	}
	logger.Debug("query finished", "elapsed", time.Since(start))
	return id, nil
}

// resolveError prefers the typed error raised inside a sleep function over
// the flattened text go-sqlite3 reports, and maps a cancelled context to a
// sleep cancellation.
func resolveError(ctx context.Context, b *binding, err error) error {
	if b != nil {
		if recorded := b.recorded(); recorded != nil {
			return fmt.Errorf("query failed: %w", recorded)
		}
	}
	if ctx.Err() != nil && !sleep.IsCancelled(err) {
		return fmt.Errorf("query failed: %w", sleep.NewCancelledError(context.Cause(ctx)))
	}
	return fmt.Errorf("query failed: %w", err)
}

// connector opens go-sqlite3 connections and installs the sleep functions
// on each, in place of a global sql.Register + ConnectHook.
type connector struct {
	driver  *sqlite3.SQLiteDriver
	dsn     string
	sleeper *sleep.Sleeper
	logger  *slog.Logger
}

// Connect implements driver.Connector.
func (c *connector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	sc, ok := conn.(*sqlite3.SQLiteConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("unexpected sqlite3 connection %T", conn)
	}

	if err := applyPragmas(sc); err != nil {
		sc.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	state := &connState{}
	if err := registerFunctions(sc, c.sleeper, state); err != nil {
		sc.Close()
		return nil, err
	}

	c.logger.Debug("sqlite connection opened", "dsn", c.dsn)
	return &sleepConn{SQLiteConn: sc, state: state}, nil
}

// Driver implements driver.Connector.
func (c *connector) Driver() driver.Driver {
	return c.driver
}

// applyPragmas sets per-connection SQLite configuration.
func applyPragmas(conn *sqlite3.SQLiteConn) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma, nil); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// sleepConn carries the connection's signal next to the driver connection.
// All driver interfaces are promoted from the embedded *SQLiteConn.
type sleepConn struct {
	*sqlite3.SQLiteConn
	state *connState
}

// connState is the cancellation signal of one physical connection.
// It implements sleep.Signal.
type connState struct {
	current atomic.Pointer[binding]
}

// binding ties a running statement's context to the connection.
type binding struct {
	ctx context.Context

	mu  sync.Mutex
	err error
}

func (b *binding) recorded() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (c *connState) bind(ctx context.Context) *binding {
	b := &binding{ctx: ctx}
	c.current.Store(b)
	return b
}

func (c *connState) unbind() {
	c.current.Store(nil)
}

// Cancelled implements sleep.Signal. Outside a bound statement the
// connection is never cancelled.
func (c *connState) Cancelled() bool {
	b := c.current.Load()
	return b != nil && b.ctx.Err() != nil
}

// Err returns the bound context's cancellation cause.
func (c *connState) Err() error {
	if b := c.current.Load(); b != nil {
		return context.Cause(b.ctx)
	}
	return context.Canceled
}

// record keeps the first error raised by a function during the bound
// statement and returns err unchanged.
func (c *connState) record(err error) error {
	if err == nil {
		return nil
	}
	if b := c.current.Load(); b != nil {
		b.mu.Lock()
		if b.err == nil {
			b.err = err
		}
		b.mu.Unlock()
	}
	return err
}
