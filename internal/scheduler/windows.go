package scheduler

import "time"

// Window is a preferred day/hour slot for optimized scheduling.
type Window struct {
	Day    time.Weekday `json:"day"`
	Hour   int          `json:"hour"`
	Minute int          `json:"minute"`
}

// DefaultWindows returns the ranked posting windows: mid-week mornings and
// lunchtimes carry the most engagement for business audiences.
func DefaultWindows() []Window {
	return []Window{
		{Day: time.Tuesday, Hour: 8},
		{Day: time.Tuesday, Hour: 12},
		{Day: time.Wednesday, Hour: 8},
		{Day: time.Wednesday, Hour: 12},
		{Day: time.Thursday, Hour: 8},
		{Day: time.Thursday, Hour: 12},
	}
}

// nextOccurrence returns the first time strictly after now that falls in
// the window, in now's location.
func (w Window) nextOccurrence(now time.Time) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), w.Hour, w.Minute, 0, 0, now.Location())
	daysAhead := (int(w.Day) - int(now.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, daysAhead)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// nextWindowTime picks the earliest future slot across the ranked windows.
// Ties on time resolve in favor of the higher-ranked window.
func nextWindowTime(windows []Window, now time.Time) time.Time {
	var best time.Time
	for _, w := range windows {
		candidate := w.nextOccurrence(now)
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	return best
}
