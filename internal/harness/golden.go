package harness

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the deterministic view of a run compared against golden
// files. Deliveries are sorted per consumer: independent orders finish in
// any order across workers.
type Snapshot struct {
	Scenario   string              `json:"scenario"`
	Session    string              `json:"session"`
	Pass       bool                `json:"pass"`
	Deliveries map[string][]string `json:"deliveries"`
	Outcomes   map[string]Outcome  `json:"outcomes"`
	Discarded  int                 `json:"discarded"`
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(scenarioName string, result *Result) Snapshot {
	deliveries := make(map[string][]string, len(result.Deliveries))
	for name, delivered := range result.Deliveries {
		sorted := append([]string{}, delivered...)
		sort.Strings(sorted)
		deliveries[name] = sorted
	}
	return Snapshot{
		Scenario:   scenarioName,
		Session:    result.Session,
		Pass:       result.Pass,
		Deliveries: deliveries,
		Outcomes:   result.Outcomes,
		Discarded:  result.Discarded,
	}
}

// MarshalSnapshot renders a snapshot as indented JSON. encoding/json sorts
// map keys, so output is stable.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(NewSnapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
