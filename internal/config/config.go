// Package config loads sqlsleep startup configuration from a CUE file.
//
// The file is unified with an embedded schema (schema.cue), so type errors,
// out-of-range values and unknown fields are reported with CUE positions.
// Limits are startup-time only; nothing here changes per call.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/sqlsleep/internal/sleep"
)

//go:embed schema.cue
var schemaCUE string

// Config is the resolved startup configuration.
type Config struct {
	Sleep        sleep.Config
	LogLevel     slog.Level
	MaxOpenConns int
	MetricsAddr  string
}

// Default returns the configuration an empty file resolves to.
func Default() Config {
	cfg, err := resolve(nil, "")
	if err != nil {
		// The embedded schema's defaults are always concrete.
		panic(fmt.Sprintf("config: embedded schema defaults: %v", err))
	}
	return cfg
}

// Load reads and validates a CUE config file. An empty path yields Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return resolve(data, path)
}

// Parse validates CUE source held in memory. filename is used in errors.
func Parse(data []byte, filename string) (Config, error) {
	return resolve(data, filename)
}

func resolve(data []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compiling schema: %w", err)
	}
	value := schema.LookupPath(cue.ParsePath("#Config"))

	if data != nil {
		file := ctx.CompileBytes(data, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", filename, err)
		}
		value = value.Unify(file)
	}
	if err := value.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating %s: %w", displayName(filename), err)
	}

	return decode(value)
}

func decode(v cue.Value) (Config, error) {
	maxSleep, err := field(v, "max_sleep_seconds").Float64()
	if err != nil {
		return Config{}, fmt.Errorf("max_sleep_seconds: %w", err)
	}

	intervalText, err := field(v, "check_interval").String()
	if err != nil {
		return Config{}, fmt.Errorf("check_interval: %w", err)
	}
	interval, err := time.ParseDuration(intervalText)
	if err != nil {
		return Config{}, fmt.Errorf("check_interval: %w", err)
	}

	levelText, err := field(v, "log_level").String()
	if err != nil {
		return Config{}, fmt.Errorf("log_level: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelText)); err != nil {
		return Config{}, fmt.Errorf("log_level: %w", err)
	}

	conns, err := field(v, "max_open_conns").Int64()
	if err != nil {
		return Config{}, fmt.Errorf("max_open_conns: %w", err)
	}

	addr, err := field(v, "metrics_addr").String()
	if err != nil {
		return Config{}, fmt.Errorf("metrics_addr: %w", err)
	}

	cfg := Config{
		Sleep: sleep.Config{
			MaxSleepSeconds: maxSleep,
			CheckInterval:   interval,
		},
		LogLevel:     level,
		MaxOpenConns: int(conns),
		MetricsAddr:  addr,
	}
	if err := cfg.Sleep.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// field looks up a top-level field and resolves its default.
func field(v cue.Value, name string) cue.Value {
	f := v.LookupPath(cue.ParsePath(name))
	if d, ok := f.Default(); ok {
		return d
	}
	return f
}

func displayName(filename string) string {
	if filename == "" {
		return "defaults"
	}
	return filename
}
