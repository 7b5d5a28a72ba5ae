package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlsleep/internal/metrics"
	"github.com/roach88/sqlsleep/internal/sleep"
	"github.com/roach88/sqlsleep/internal/sqlext"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	MetricsAddr string

	// QueryIDs allows overriding the query ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	QueryIDs sqlext.QueryIDGenerator
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	QueryID string   `json:"query_id"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <db> <sql> [args...]",
		Short: "Run SQL with the sleep functions registered",
		Long: `Run one SQL statement against a SQLite database with sleep,
sleep_for and sleep_until registered. Extra arguments bind to ? placeholders
as text. Use ":memory:" for a throwaway database.

Ctrl-C cancels the statement; a sleeping row notices within one check
interval and the statement fails with a cancellation error.

Examples:
  sqlsleep query :memory: "SELECT sleep(1.5)"
  sqlsleep query ./jobs.db "UPDATE jobs SET done = 1 WHERE sleep_for(delay) IS NULL"
  sqlsleep query :memory: "SELECT sleep_until(?)" "2026-10-17 12:00:00"
  sqlsleep query ./jobs.db "SELECT sleep(60)" --metrics-addr :2112`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], args[1], args[2:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the query runs")

	return cmd
}

func runQuery(opts *QueryOptions, path, query string, rawArgs []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	if cfg.MetricsAddr != "" {
		metrics.Serve(ctx, cfg.MetricsAddr, logger)
	}

	s := sleep.New(cfg.Sleep,
		sleep.WithLogger(logger),
		sleep.WithObserver(metrics.NewWaiter()),
	)

	dbOpts := []sqlext.Option{
		sqlext.WithLogger(logger),
		sqlext.WithMaxOpenConns(cfg.MaxOpenConns),
	}
	if opts.QueryIDs != nil {
		dbOpts = append(dbOpts, sqlext.WithQueryIDGenerator(opts.QueryIDs))
	}

	db, err := sqlext.Open(path, s, dbOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = a
	}

	f.VerboseLog("running %q on %s", query, path)
	rs, err := db.Query(ctx, query, args...)
	if err != nil {
		return f.Fail("query failed", err)
	}

	if f.Format == "json" {
		rows := rs.Rows
		if rows == nil {
			rows = [][]any{}
		}
		return f.Success(QueryResult{QueryID: rs.QueryID, Columns: rs.Columns, Rows: rows})
	}

	return writeTable(f.Writer, rs)
}

// writeTable prints a result set as aligned columns, NULL for nil.
func writeTable(w io.Writer, rs *sqlext.ResultSet) error {
	if len(rs.Columns) == 0 {
		fmt.Fprintln(w, "OK")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(rs.Columns, "\t"))
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "(%d rows)\n", len(rs.Rows))
	return nil
}
