package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlsleep/internal/metrics"
	"github.com/roach88/sqlsleep/internal/sleep"
)

// SleepResult is the output of the sleep commands.
type SleepResult struct {
	Function string `json:"function"`
	Argument string `json:"argument"`
	Null     bool   `json:"null,omitempty"`
	Elapsed  string `json:"elapsed"`
}

func (r SleepResult) String() string {
	if r.Null {
		return fmt.Sprintf("%s(NULL): no wait", r.Function)
	}
	return fmt.Sprintf("%s(%s): slept %s", r.Function, r.Argument, r.Elapsed)
}

// batchFunc runs one sleep entry point on a prepared column.
type batchFunc func(s *sleep.Sleeper, sig sleep.Signal) (sleep.NullColumn, error)

// NewSleepCommand creates the sleep command.
func NewSleepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sleep <seconds>",
		Short: "Sleep for a number of seconds",
		Long: `Run sleep(seconds) directly, without a database.

The argument accepts decimals, "Infinity", "-Infinity", "NaN" and "NULL".
Values out of float range clamp like infinities. Negative values must
follow "--", or they are read as flags. Ctrl-C interrupts the wait within
one check interval.

Exit codes:
  0 - Wait finished (or NULL)
  1 - Wait cancelled, or NaN
  2 - Command error (unparsable argument, bad config)

Examples:
  sqlsleep sleep 1.5
  sqlsleep sleep Infinity --max-sleep 10
  sqlsleep sleep -- -5
  sqlsleep sleep 30 --check-interval 1s --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSleep(rootOpts, sleep.FuncSleep, args[0], parseSeconds, cmd)
		},
	}
}

// NewSleepForCommand creates the sleep-for command.
func NewSleepForCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sleep-for <interval>",
		Short: "Sleep for an interval",
		Long: `Run sleep_for(interval) directly, without a database.

Intervals use PostgreSQL style ("1 day 02:00:00", "500 milliseconds",
"3 hours ago") or ISO 8601 ("PT1.5S"). A month counts as 30 days.
Intervals starting with "-" must follow "--".

Examples:
  sqlsleep sleep-for "2 seconds"
  sqlsleep sleep-for PT0.25S
  sqlsleep sleep-for -- "-3 hours"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSleep(rootOpts, sleep.FuncSleepFor, args[0], parseInterval, cmd)
		},
	}
}

// NewSleepUntilCommand creates the sleep-until command.
func NewSleepUntilCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sleep-until <timestamp>",
		Short: "Sleep until a point in time",
		Long: `Run sleep_until(timestamp) directly, without a database.

Timestamps without a zone are UTC. "infinity" waits for the ceiling and
"-infinity" returns at once.

Examples:
  sqlsleep sleep-until "2026-10-17 12:00:00"
  sqlsleep sleep-until 2026-10-17T14:00:00+02:00`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSleep(rootOpts, sleep.FuncSleepUntil, args[0], parseTimestamp, cmd)
		},
	}
}

func runSleep(opts *RootOptions, function, arg string, parse func(string) (batchFunc, bool, error), cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	run, null, err := parse(arg)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s argument", function), err)
	}

	s := sleep.New(cfg.Sleep,
		sleep.WithLogger(logger),
		sleep.WithObserver(metrics.NewWaiter()),
	)

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	f.VerboseLog("%s(%s): max %gs, check interval %s", function, arg, cfg.Sleep.MaxSleepSeconds, cfg.Sleep.CheckInterval)
	start := time.Now()
	if _, err := run(s, sleep.FromContext(ctx)); err != nil {
		return f.Fail(fmt.Sprintf("%s failed", function), err)
	}

	return f.Success(SleepResult{
		Function: function,
		Argument: arg,
		Null:     null,
		Elapsed:  time.Since(start).Round(time.Millisecond).String(),
	})
}

func isNullArg(arg string) bool {
	return strings.EqualFold(strings.TrimSpace(arg), "null")
}

func parseSeconds(arg string) (batchFunc, bool, error) {
	col := sleep.Float64Column{Values: []float64{0}, Nulls: []bool{true}}
	null := isNullArg(arg)
	if !null {
		v, err := sleep.ParseSeconds(arg)
		if err != nil {
			return nil, false, err
		}
		col = sleep.Float64Column{Values: []float64{v}}
	}
	return func(s *sleep.Sleeper, sig sleep.Signal) (sleep.NullColumn, error) {
		return s.Sleep(col, sig)
	}, null, nil
}

func parseInterval(arg string) (batchFunc, bool, error) {
	col := sleep.IntervalColumn{Values: []sleep.Interval{{}}, Nulls: []bool{true}}
	null := isNullArg(arg)
	if !null {
		iv, err := sleep.ParseInterval(arg)
		if err != nil {
			return nil, false, err
		}
		col = sleep.IntervalColumn{Values: []sleep.Interval{iv}}
	}
	return func(s *sleep.Sleeper, sig sleep.Signal) (sleep.NullColumn, error) {
		return s.SleepFor(col, sig)
	}, null, nil
}

func parseTimestamp(arg string) (batchFunc, bool, error) {
	col := sleep.TimestampColumn{Values: []sleep.Timestamp{0}, Nulls: []bool{true}}
	null := isNullArg(arg)
	if !null {
		ts, err := sleep.ParseTimestamp(arg)
		if err != nil {
			return nil, false, err
		}
		col = sleep.TimestampColumn{Values: []sleep.Timestamp{ts}}
	}
	return func(s *sleep.Sleeper, sig sleep.Signal) (sleep.NullColumn, error) {
		return s.SleepUntil(col, sig)
	}, null, nil
}
