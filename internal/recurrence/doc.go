// Package recurrence materializes the occurrences of recurring transactions.
//
// A recurring source is a transaction with IsRecurring set and a pattern
// (daily, weekly, monthly or yearly, every Interval units, optionally until
// an inclusive end date). Its own Date is the anchor. Each run computes, per
// source, every candidate date strictly after the source's cursor and no
// later than today, and writes one occurrence per date.
//
// # Cursor
//
// The cursor is not stored. It is recomputed on every run as the latest
// occurrence date of the source, or the anchor when there is none. Running
// twice for the same day therefore creates nothing the second time, and a
// run interrupted after some writes resumes where it stopped.
//
// Candidates step forward from the cursor. A cursor that is one of the
// anchor's own dates keeps the anchor's day of month, so clamped month-end
// dates do not drift; an occurrence moved by hand rebases the schedule.
//
// # Fault isolation
//
// Patterns are validated against an embedded CUE schema before use. A source
// with a missing or invalid pattern is skipped and reported; the remaining
// sources are processed. Store errors abort the run.
package recurrence
