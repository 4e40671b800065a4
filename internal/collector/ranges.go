package collector

import (
	"time"

	"github.com/reachlab/reach-data/internal/model"
)

// Resolve computes the date range a security still needs, given its last
// stored observation. The second return is false when the security is
// already current and no fetch is required.
//
// With no prior observation the range is the trailing window clamped to the
// provider's earliest available date. With a prior observation at D the range
// starts at D+1, so a start at or before D is never emitted and stored days
// are never re-fetched.
func Resolve(last *time.Time, earliest, today time.Time, window time.Duration) (model.DateRange, bool) {
	today = midnight(today)

	if last == nil {
		start := midnight(today.Add(-window))
		if e := midnight(earliest); start.Before(e) {
			start = e
		}
		return model.DateRange{Start: start, End: today}, true
	}

	start := midnight(*last).AddDate(0, 0, 1)
	if start.After(today) {
		return model.DateRange{}, false
	}
	return model.DateRange{Start: start, End: today}, true
}

// midnight truncates to UTC midnight so ranges compare by calendar day.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
