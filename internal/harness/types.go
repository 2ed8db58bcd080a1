package harness

// SkippedSource is a source a run skipped, with the recurrence error code.
type SkippedSource struct {
	Source string `json:"source"`
	Code   string `json:"code"`
}

// RunOutcome records what one engine run did.
type RunOutcome struct {
	Today   string          `json:"today"`
	Created int             `json:"created"`
	Skipped []SkippedSource `json:"skipped,omitempty"`
	Capped  []string        `json:"capped,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every run expectation and assertion held.
	Pass bool `json:"pass"`

	// Runs has one entry per executed run, in order.
	Runs []RunOutcome `json:"runs"`

	// Occurrences maps each source sync id to its occurrence dates,
	// ascending, as stored after the last run.
	Occurrences map[string][]string `json:"occurrences"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Runs:        []RunOutcome{},
		Occurrences: make(map[string][]string),
		Errors:      []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
