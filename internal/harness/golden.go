package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tally/internal/model"
)

// Snapshot is the golden form of a scenario result.
type Snapshot struct {
	ScenarioName string              `json:"scenario_name"`
	Runs         []RunOutcome        `json:"runs"`
	Occurrences  map[string][]string `json:"occurrences"`
}

// Marshal returns the canonical JSON of the snapshot followed by a newline.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := model.MarshalCanonical(s)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the result against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return result, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snap := Snapshot{
		ScenarioName: scenarioName,
		Runs:         result.Runs,
		Occurrences:  result.Occurrences,
	}
	data, err := snap.Marshal()
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
