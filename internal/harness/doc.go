// Package harness provides conformance testing for the SQL sleep functions.
//
// The harness opens a fresh in-memory database per scenario, runs its
// queries against sleep functions driven by a fake clock, and validates the
// resulting trace of queries, waits and results.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  max_sleep_seconds: 2
//	  check_interval: 100ms
//	setup:
//	  - CREATE TABLE jobs (delay REAL)
//	steps:
//	  - sql: SELECT sleep(10)
//	    cancel_after: 250ms
//	    expect:
//	      outcome: cancelled
//	      elapsed: 300ms
//	assertions:
//	  - type: wait_count
//	    function: sleep
//	    outcome: cancelled
//	    count: 1
//	  - type: final_state
//	    query: SELECT COUNT(*) FROM jobs
//	    rows: [[0]]
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - wait_count: Counts wait events, filtered by function and outcome
//   - null_count: Counts null rows, filtered by function
//   - total_elapsed: Checks how far the fake clock moved over all steps
//   - final_state: Runs a query and compares every row
//
// # Deterministic Testing
//
// All scenarios execute with a fake clock starting at Epoch and a fixed
// query ID, so traces are identical across runs and can be compared
// against golden files. The fake clock only moves when a sleep function
// waits, so sleep_until targets are relative to Epoch plus the time spent
// by earlier steps.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/cancel.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
