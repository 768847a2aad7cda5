// Package period tracks per-customer, per-type transaction counts
// within a counting window, combining durable counts from persisted
// transactions with transient counts accumulated inside one batch.
package period

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Window is a counting period, [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// CalendarMonth returns the calendar month containing the instant.
func CalendarMonth(at time.Time) Window {
	at = at.UTC()
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// Rolling returns a trailing window of the given number of days
// ending at the instant.
func Rolling(at time.Time, days int) Window {
	at = at.UTC()
	return Window{Start: at.AddDate(0, 0, -days), End: at}
}

// ForRule returns the counting window a rule tallies over: a rolling
// PeriodDays window when set, the calendar month otherwise.
func ForRule(rule *domain.ChargeRule, at time.Time) Window {
	if rule != nil && rule.PeriodDays > 0 {
		return Rolling(at, rule.PeriodDays)
	}
	return CalendarMonth(at)
}

// Contains reports whether the instant falls inside the window.
func (w Window) Contains(at time.Time) bool {
	return !at.Before(w.Start) && at.Before(w.End)
}
