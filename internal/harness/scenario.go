package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/model"
)

// Scenario is one recurrence test case.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MaxPerSource overrides the engine's per-source cap when positive.
	MaxPerSource int `yaml:"max_per_source,omitempty"`

	// Sources are inserted in order, so the first gets local id 1.
	Sources []SourceSpec `yaml:"sources"`

	// Occurrences exist before the first run.
	Occurrences []OccurrenceSpec `yaml:"occurrences,omitempty"`

	// Runs are executed in order against the same store.
	Runs []RunStep `yaml:"runs"`

	// Assertions check the final store contents.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SourceSpec is a recurring source transaction.
type SourceSpec struct {
	SyncID string `yaml:"sync_id"`
	Type   string `yaml:"type,omitempty"` // defaults to expense
	Amount string `yaml:"amount"`
	Memo   string `yaml:"memo,omitempty"`
	Date   string `yaml:"date"`

	// Recurrence is the pattern. Exactly one of Recurrence and
	// RawRecurrence must be set.
	Recurrence *PatternSpec `yaml:"recurrence,omitempty"`

	// RawRecurrence is written to the recurrence column verbatim.
	RawRecurrence string `yaml:"raw_recurrence,omitempty"`
}

// PatternSpec mirrors model.RecurrencePattern.
type PatternSpec struct {
	Type     string `yaml:"type"`
	Interval int    `yaml:"interval"`
	EndDate  string `yaml:"end_date,omitempty"`
}

// OccurrenceSpec is an occurrence that already exists.
type OccurrenceSpec struct {
	Source string `yaml:"source"`
	Date   string `yaml:"date"`
}

// RunStep is one engine run.
type RunStep struct {
	Today string `yaml:"today"`

	// ExpectCreated is the number of occurrences the run must create.
	ExpectCreated *int `yaml:"expect_created,omitempty"`

	// ExpectSkipped lists the sources the run must skip, by sync id.
	ExpectSkipped []string `yaml:"expect_skipped,omitempty"`

	// ExpectCapped lists the sources that must hit the per-run cap.
	ExpectCapped []string `yaml:"expect_capped,omitempty"`
}

// Assertion validates final store contents.
type Assertion struct {
	// Type is one of occurrence_dates, occurrence_count, no_duplicates.
	Type string `yaml:"type"`

	// Source is the source sync id (occurrence_dates, occurrence_count).
	Source string `yaml:"source,omitempty"`

	// Dates is the exact ordered list of occurrence dates (occurrence_dates).
	Dates []string `yaml:"dates,omitempty"`

	// Count is the expected number of occurrences (occurrence_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertOccurrenceDates = "occurrence_dates"
	AssertOccurrenceCount = "occurrence_count"
	AssertNoDuplicates    = "no_duplicates"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so that typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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

// validateScenario checks required fields and cross references.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Sources) == 0 {
		return fmt.Errorf("sources list is required and must be non-empty")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if s.MaxPerSource < 0 {
		return fmt.Errorf("max_per_source must be non-negative")
	}

	known := make(map[string]bool, len(s.Sources))
	for i, src := range s.Sources {
		if src.SyncID == "" {
			return fmt.Errorf("sources[%d]: sync_id is required", i)
		}
		if known[src.SyncID] {
			return fmt.Errorf("sources[%d]: duplicate sync_id %q", i, src.SyncID)
		}
		known[src.SyncID] = true

		if src.Amount == "" {
			return fmt.Errorf("sources[%d]: amount is required", i)
		}
		if _, err := model.ParseDate(src.Date); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if (src.Recurrence == nil) == (src.RawRecurrence == "") {
			return fmt.Errorf("sources[%d]: exactly one of recurrence and raw_recurrence is required", i)
		}
		if src.Recurrence != nil && src.Recurrence.EndDate != "" {
			if _, err := model.ParseDate(src.Recurrence.EndDate); err != nil {
				return fmt.Errorf("sources[%d].recurrence: %w", i, err)
			}
		}
	}

	for i, occ := range s.Occurrences {
		if !known[occ.Source] {
			return fmt.Errorf("occurrences[%d]: unknown source %q", i, occ.Source)
		}
		if _, err := model.ParseDate(occ.Date); err != nil {
			return fmt.Errorf("occurrences[%d]: %w", i, err)
		}
	}

	for i, run := range s.Runs {
		if _, err := model.ParseDate(run.Today); err != nil {
			return fmt.Errorf("runs[%d]: %w", i, err)
		}
		for _, id := range append(append([]string{}, run.ExpectSkipped...), run.ExpectCapped...) {
			if !known[id] {
				return fmt.Errorf("runs[%d]: unknown source %q", i, id)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], known); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, known map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOccurrenceDates, AssertOccurrenceCount:
		if !known[a.Source] {
			return fmt.Errorf("assertions[%d]: unknown source %q for %s", index, a.Source, a.Type)
		}
		if a.Type == AssertOccurrenceCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
		for _, d := range a.Dates {
			if _, err := model.ParseDate(d); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertNoDuplicates:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
