package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/portalql/internal/esquery"
)

// Snapshot renders a result as canonical indented JSON. Each step shows
// its query, or its error code when it failed. Only the query is kept so
// that unrelated changes to projection or paging do not churn every
// golden file.
func Snapshot(name string, result *Result) ([]byte, error) {
	steps := make([]any, len(result.Steps))
	for i, sr := range result.Steps {
		step := map[string]any{"pql": sr.PQL}
		if sr.Error != "" {
			step["error"] = sr.Error
		} else {
			step["query"] = sr.Body["query"]
			if pf, ok := sr.Body["post_filter"]; ok {
				step["post_filter"] = pf
			}
		}
		steps[i] = step
	}
	return esquery.MarshalIndent(map[string]any{
		"scenario": name,
		"steps":    steps,
	})
}

// RunWithGolden runs scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The scenario's own expectations are checked too; any failure is
// reported through t.
func (h *Harness) RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := h.Run(scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	data, err := Snapshot(scenario.Name, result)
	if err != nil {
		t.Fatalf("snapshot scenario %s: %v", scenario.Name, err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result
}
