package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlsleep/internal/sleep"
)

// Scenario defines a conformance test scenario.
// Scenarios run SQL against a fresh in-memory database whose sleep
// functions use a fake clock, then assert on the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides the default sleep limits.
	Config *ConfigOverride `yaml:"config,omitempty"`

	// Setup contains statements run before the steps (e.g. CREATE TABLE).
	// Setup statements are not traced and must succeed.
	Setup []string `yaml:"setup,omitempty"`

	// Steps are the traced queries, run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and database state.
	// Supported types: wait_count, null_count, total_elapsed, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// QueryID is an optional fixed query ID for deterministic logs.
	// If empty, defaults to "test-query-default".
	QueryID string `yaml:"query_id,omitempty"`
}

// ConfigOverride replaces parts of sleep.DefaultConfig().
type ConfigOverride struct {
	MaxSleepSeconds *float64 `yaml:"max_sleep_seconds,omitempty"`
	CheckInterval   string   `yaml:"check_interval,omitempty"`
}

// Step is one traced query.
type Step struct {
	// SQL is the statement to run. Every row is read.
	SQL string `yaml:"sql"`

	// Args are bound to the statement's placeholders.
	Args []any `yaml:"args,omitempty"`

	// CancelAfter cancels the query's context once the fake clock has
	// advanced this far into the step (e.g. "250ms").
	CancelAfter string `yaml:"cancel_after,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// cancelAfter parses CancelAfter. ok is false when the step is never
// cancelled.
func (s Step) cancelAfter() (d time.Duration, ok bool, err error) {
	if s.CancelAfter == "" {
		return 0, false, nil
	}
	d, err = time.ParseDuration(s.CancelAfter)
	if err != nil {
		return 0, false, fmt.Errorf("cancel_after: %w", err)
	}
	return d, true, nil
}

// ExpectClause specifies expected step behavior.
type ExpectClause struct {
	// Outcome is one of the Outcome* constants.
	Outcome string `yaml:"outcome"`

	// Elapsed is the exact fake-clock time the step must take, if set.
	Elapsed string `yaml:"elapsed,omitempty"`

	// Rows is the expected number of result rows, if set.
	Rows *int `yaml:"rows,omitempty"`
}

// elapsed parses Elapsed. ok is false when no elapsed time is expected.
func (e *ExpectClause) elapsed() (d time.Duration, ok bool, err error) {
	if e.Elapsed == "" {
		return 0, false, nil
	}
	d, err = time.ParseDuration(e.Elapsed)
	if err != nil {
		return 0, false, fmt.Errorf("elapsed: %w", err)
	}
	return d, true, nil
}

// Step outcomes.
const (
	OutcomeOK              = "ok"
	OutcomeInvalidArgument = "invalid_argument"
	OutcomeCancelled       = "cancelled"
	OutcomeArgumentError   = "argument_error"
	OutcomeError           = "error"
)

var validOutcomes = map[string]bool{
	OutcomeOK:              true,
	OutcomeInvalidArgument: true,
	OutcomeCancelled:       true,
	OutcomeArgumentError:   true,
	OutcomeError:           true,
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "wait_count": Count wait events, optionally filtered by function and outcome
	// - "null_count": Count null rows, optionally filtered by function
	// - "total_elapsed": Check the fake clock's total advance over all steps
	// - "final_state": Run a query and compare every row
	Type string `yaml:"type"`

	// Function filters events (used by wait_count, null_count).
	Function string `yaml:"function,omitempty"`

	// Outcome filters wait events (used by wait_count).
	Outcome string `yaml:"outcome,omitempty"`

	// Count is the expected number of events (used by wait_count, null_count).
	Count int `yaml:"count,omitempty"`

	// Elapsed is the expected total (used by total_elapsed).
	Elapsed string `yaml:"elapsed,omitempty"`

	// Query is the statement to run (used by final_state).
	Query string `yaml:"query,omitempty"`

	// Rows are the expected result rows (used by final_state).
	Rows [][]any `yaml:"rows,omitempty"`
}

// Assertion type constants.
const (
	AssertWaitCount    = "wait_count"
	AssertNullCount    = "null_count"
	AssertTotalElapsed = "total_elapsed"
	AssertFinalState   = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// SleepConfig applies the scenario's overrides to the defaults.
func (s *Scenario) SleepConfig() (sleep.Config, error) {
	cfg := sleep.DefaultConfig()
	if s.Config != nil {
		if s.Config.MaxSleepSeconds != nil {
			cfg.MaxSleepSeconds = *s.Config.MaxSleepSeconds
		}
		if s.Config.CheckInterval != "" {
			d, err := time.ParseDuration(s.Config.CheckInterval)
			if err != nil {
				return sleep.Config{}, fmt.Errorf("check_interval: %w", err)
			}
			cfg.CheckInterval = d
		}
	}
	if err := cfg.Validate(); err != nil {
		return sleep.Config{}, err
	}
	return cfg, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if _, err := s.SleepConfig(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	for i, stmt := range s.Setup {
		if stmt == "" {
			return fmt.Errorf("setup[%d]: statement is empty", i)
		}
	}

	for i, step := range s.Steps {
		if step.SQL == "" {
			return fmt.Errorf("steps[%d]: sql is required", i)
		}
		if _, _, err := step.cancelAfter(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Expect == nil {
			continue
		}
		if !validOutcomes[step.Expect.Outcome] {
			return fmt.Errorf("steps[%d].expect: unknown outcome %q", i, step.Expect.Outcome)
		}
		if _, _, err := step.Expect.elapsed(); err != nil {
			return fmt.Errorf("steps[%d].expect: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertWaitCount, AssertNullCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertTotalElapsed:
		if a.Elapsed == "" {
			return fmt.Errorf("assertions[%d]: elapsed is required for total_elapsed", index)
		}
		if _, err := time.ParseDuration(a.Elapsed); err != nil {
			return fmt.Errorf("assertions[%d]: elapsed: %w", index, err)
		}
	case AssertFinalState:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
