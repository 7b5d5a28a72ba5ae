package harness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios_Golden runs every scenario under testdata/scenarios and
// compares its trace with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -run TestScenarios_Golden -update
func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalTrace_Deterministic(t *testing.T) {
	rows := 1
	trace := []TraceEvent{
		{Seq: 1, Type: EventQuery, SQL: "SELECT sleep(1) WHERE 1 < 2"},
		{Seq: 2, Type: EventResult, Outcome: OutcomeOK, Elapsed: time.Second.String(), Rows: &rows},
	}

	first, err := MarshalTrace("x", trace)
	require.NoError(t, err)
	second, err := MarshalTrace("x", trace)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, string(first), "1 < 2", "SQL must not be HTML-escaped")
	assert.Equal(t, byte('\n'), first[len(first)-1])
}
