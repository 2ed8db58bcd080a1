package harness

import (
	"fmt"
	"slices"
)

// evaluateAssertion checks one assertion against the collected occurrences.
func evaluateAssertion(result *Result, index int, a Assertion) {
	switch a.Type {
	case AssertOccurrenceDates:
		got := result.Occurrences[a.Source]
		want := a.Dates
		if want == nil {
			want = []string{}
		}
		if !slices.Equal(got, want) {
			result.AddError(fmt.Sprintf("assertions[%d] %s %s: got %v, expected %v",
				index, a.Type, a.Source, got, want))
		}

	case AssertOccurrenceCount:
		if got := len(result.Occurrences[a.Source]); got != a.Count {
			result.AddError(fmt.Sprintf("assertions[%d] %s %s: got %d, expected %d",
				index, a.Type, a.Source, got, a.Count))
		}

	case AssertNoDuplicates:
		for source, dates := range result.Occurrences {
			seen := make(map[string]bool, len(dates))
			for _, d := range dates {
				if seen[d] {
					result.AddError(fmt.Sprintf("assertions[%d] %s: source %s has %s twice",
						index, a.Type, source, d))
				}
				seen[d] = true
			}
		}

	default:
		result.AddError(fmt.Sprintf("assertions[%d]: unknown assertion type %q", index, a.Type))
	}
}
