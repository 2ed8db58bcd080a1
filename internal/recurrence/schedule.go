package recurrence

import (
	"time"

	"github.com/roach88/tally/internal/model"
)

// Candidate returns the k-th scheduled date of a source anchored at anchor,
// for k >= 1. Candidates are always computed from the anchor, never from
// the previous candidate, so month-end clamping does not drift: a source on
// Jan 31 yields Feb 28 (29 in leap years), Mar 31, Apr 30, and a yearly
// source on Feb 29 yields Feb 28 in common years.
//
// An unrecognized pattern type returns the anchor unchanged.
func Candidate(anchor model.Date, p model.RecurrencePattern, k int) model.Date {
	n := k * p.Interval
	switch p.Type {
	case model.PatternDaily:
		return anchor.AddDays(n)
	case model.PatternWeekly:
		return anchor.AddDays(7 * n)
	case model.PatternMonthly:
		return anchor.AddMonthsClamped(n)
	case model.PatternYearly:
		return anchor.AddYearsClamped(n)
	default:
		return anchor
	}
}

// DueDates returns the candidates that are strictly after last and no later
// than the tighter of today and the pattern's end date, both inclusive.
//
// Stepping starts from last. While last is one of the anchor's own
// candidates the anchor keeps the grid, so a source on the 31st still lands
// on Mar 31 after a clamped Feb 28. A last date moved off the grid (an
// occurrence edited by hand) becomes the new base.
//
// At most limit dates are returned (limit <= 0 means no limit); capped is
// true when further due dates were left for a later run. A candidate that
// does not advance past its predecessor yields a *ConsistencyError and no
// dates.
func DueDates(anchor, last model.Date, p model.RecurrencePattern, today model.Date, limit int) (dates []model.Date, capped bool, err error) {
	bound := today
	if p.HasEnd() && p.EndDate.Before(bound) {
		bound = *p.EndDate
	}
	if !bound.After(last) {
		return nil, false, nil
	}

	if last.After(anchor) && !onGrid(anchor, last, p) {
		anchor = last
	}

	k := firstIndex(anchor, last, p)
	prev := anchor
	if k > 1 {
		prev = Candidate(anchor, p, k-1)
	}

	for ; ; k++ {
		c := Candidate(anchor, p, k)
		if !c.After(prev) {
			return nil, false, &ConsistencyError{Previous: prev, Candidate: c}
		}
		prev = c

		if c.After(bound) {
			return dates, false, nil
		}
		if !c.After(last) {
			continue
		}
		if limit > 0 && len(dates) == limit {
			return dates, true, nil
		}
		dates = append(dates, c)
	}
}

// onGrid reports whether d is one of the candidates of anchor.
func onGrid(anchor, d model.Date, p model.RecurrencePattern) bool {
	k := firstIndex(anchor, d, p)
	for _, i := range []int{k, k + 1} {
		if Candidate(anchor, p, i).Equal(d) {
			return true
		}
	}
	return false
}

// firstIndex skips the candidates that certainly fall on or before last, so
// a long-lived daily source does not replay years of dates on every run.
// The estimate never overshoots: candidate k-1 is always before last.
func firstIndex(anchor, last model.Date, p model.RecurrencePattern) int {
	if p.Interval <= 0 || !last.After(anchor) {
		return 1
	}

	var units int
	switch p.Type {
	case model.PatternDaily:
		units = daysBetween(anchor, last)
	case model.PatternWeekly:
		units = daysBetween(anchor, last) / 7
	case model.PatternMonthly:
		units = monthsBetween(anchor, last)
	case model.PatternYearly:
		units = monthsBetween(anchor, last) / 12
	}

	k := units / p.Interval
	if k < 1 {
		k = 1
	}
	return k
}

func daysBetween(a, b model.Date) int {
	return int(b.Time().Sub(a.Time()) / (24 * time.Hour))
}

func monthsBetween(a, b model.Date) int {
	ay, am, _ := a.Time().Date()
	by, bm, _ := b.Time().Date()
	return (by-ay)*12 + int(bm-am)
}
