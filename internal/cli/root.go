package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlsleep/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose       bool
	Format        string // "json" | "text"
	ConfigPath    string
	MaxSleep      float64
	CheckInterval time.Duration
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sqlsleep CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sqlsleep",
		Short: "sqlsleep - cancellable sleep functions for SQLite",
		Long: `Cancellable sleep functions for SQLite.

Registers sleep(seconds), sleep_for(interval) and sleep_until(timestamp) on
every connection. Waits are clamped to a ceiling and poll for cancellation,
so Ctrl-C interrupts a sleeping query within one check interval.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to CUE config file")
	cmd.PersistentFlags().Float64Var(&opts.MaxSleep, "max-sleep", 0, "override max_sleep_seconds")
	cmd.PersistentFlags().DurationVar(&opts.CheckInterval, "check-interval", 0, "override check_interval")

	cmd.SetFlagErrorFunc(flagError)

	// Add subcommands
	cmd.AddCommand(NewSleepCommand(opts))
	cmd.AddCommand(NewSleepForCommand(opts))
	cmd.AddCommand(NewSleepUntilCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewFunctionsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// flagError makes flag parsing failures command errors. A negative
// argument such as -5 reaches pflag as a shorthand flag, so point at "--".
func flagError(cmd *cobra.Command, err error) error {
	msg := err.Error()
	if strings.HasPrefix(msg, "unknown shorthand flag") {
		if i := strings.LastIndex(msg, " in -"); i >= 0 {
			arg := msg[i+len(" in "):]
			return WrapExitError(ExitCommandError,
				fmt.Sprintf("%s is read as a flag; put negative values after --, as in: %s -- %s", arg, cmd.CommandPath(), arg), err)
		}
	}
	return WrapExitError(ExitCommandError, "invalid flags", err)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig reads the config file and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	if o.MaxSleep != 0 {
		cfg.Sleep.MaxSleepSeconds = o.MaxSleep
	}
	if o.CheckInterval != 0 {
		cfg.Sleep.CheckInterval = o.CheckInterval
	}
	if o.Verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	if err := cfg.Sleep.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid flags", err)
	}
	return cfg, nil
}

// newLogger builds the text logger for cfg on w (the command's stderr) and
// installs it as the default.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
