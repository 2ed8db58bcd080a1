package recurrence

import (
	"errors"
	"fmt"

	"github.com/roach88/tally/internal/model"
)

// Recurrence error codes (E200-E299)
const (
	ErrPatternMissing = "E201" // recurring source without a pattern
	ErrPatternSchema  = "E202" // pattern fails the #Pattern schema
	ErrNonAdvancing   = "E210" // computed candidate did not move forward
)

// PatternError reports a recurring source whose pattern cannot be used.
// The source is skipped; other sources are processed normally.
type PatternError struct {
	SourceID int64
	Code     string
	Message  string
	Pattern  model.RecurrencePattern
}

func (e *PatternError) Error() string {
	if e.SourceID != 0 {
		return fmt.Sprintf("[%s] source %d: %s", e.Code, e.SourceID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ConsistencyError reports a step that failed to advance past the previous
// candidate. Processing of that source stops without writing anything.
type ConsistencyError struct {
	SourceID  int64
	Previous  model.Date
	Candidate model.Date
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("[%s] source %d: candidate %s does not advance past %s",
		ErrNonAdvancing, e.SourceID, e.Candidate, e.Previous)
}

// IsPatternError reports whether err is or wraps a *PatternError.
func IsPatternError(err error) bool {
	var pe *PatternError
	return errors.As(err, &pe)
}

// IsConsistencyError reports whether err is or wraps a *ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// SourceError pairs a skipped source with the reason it was skipped.
type SourceError struct {
	SourceID int64
	SyncID   string
	Err      error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source %d (%s): %v", e.SourceID, e.SyncID, e.Err)
}

func (e SourceError) Unwrap() error { return e.Err }
