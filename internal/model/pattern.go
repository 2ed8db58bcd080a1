package model

// PatternType is the repeat unit of a recurrence pattern.
// Unrecognized values survive decoding so that one bad template can be
// reported and skipped instead of failing a whole table read.
type PatternType string

const (
	PatternNone    PatternType = "none"
	PatternDaily   PatternType = "daily"
	PatternWeekly  PatternType = "weekly"
	PatternMonthly PatternType = "monthly"
	PatternYearly  PatternType = "yearly"
)

// Known reports whether p is one of the defined pattern types.
func (p PatternType) Known() bool {
	switch p {
	case PatternNone, PatternDaily, PatternWeekly, PatternMonthly, PatternYearly:
		return true
	}
	return false
}

// RecurrencePattern describes how a recurring source repeats.
//
// JSON shape: {"type": "monthly", "interval": 1, "endDate": "2025-12-31"}
// endDate is optional and inclusive.
type RecurrencePattern struct {
	Type     PatternType `json:"type"`
	Interval int         `json:"interval"`
	EndDate  *Date       `json:"endDate,omitempty"`
}

// HasEnd reports whether the pattern carries an end date.
func (p RecurrencePattern) HasEnd() bool {
	return p.EndDate != nil && !p.EndDate.IsZero()
}
