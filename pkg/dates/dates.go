// Package dates splits reporting windows into the chunks vendor APIs accept.
package dates

import "time"

// DefaultIncrement is the chunk length, in days, used when Ranges is given
// a non-positive increment.
const DefaultIncrement = 30

// Layout is the YYYY-MM-DD layout used by every reporting API.
const Layout = "2006-01-02"

// Range is an inclusive [Start, End] window of days.
type Range struct {
	Start time.Time
	End   time.Time
}

// Ranges splits [start, end] into windows of at most incr days. Each
// window ends incr days after it starts, clamped to end, and the next one
// starts the day after. A start after end yields no windows.
func Ranges(start, end time.Time, incr int) []Range {
	if incr <= 0 {
		incr = DefaultIncrement
	}
	start, end = Truncate(start), Truncate(end)
	if start.After(end) {
		return nil
	}

	var out []Range
	cur := start
	for {
		stop := cur.AddDate(0, 0, incr)
		last := !stop.Before(end)
		if last {
			stop = end
		}
		out = append(out, Range{Start: cur, End: stop})
		if last {
			return out
		}
		cur = stop.AddDate(0, 0, 1)
	}
}

// MonthPeriods splits [start, end] on calendar month boundaries. The first
// window starts at start and the last ends at end.
func MonthPeriods(start, end time.Time) []Range {
	start, end = Truncate(start), Truncate(end)
	var out []Range
	for cur := start; !cur.After(end); {
		monthEnd := time.Date(cur.Year(), cur.Month()+1, 0, 0, 0, 0, 0, cur.Location())
		if monthEnd.After(end) {
			monthEnd = end
		}
		out = append(out, Range{Start: cur, End: monthEnd})
		cur = monthEnd.AddDate(0, 0, 1)
	}
	return out
}

// WeekStart returns the Sunday opening the Sunday-to-Saturday week that
// contains t.
func WeekStart(t time.Time) time.Time {
	t = Truncate(t)
	return t.AddDate(0, 0, -int(t.Weekday()))
}

// Truncate drops the time of day, keeping t's location.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Day formats t as YYYY-MM-DD.
func Day(t time.Time) string {
	return t.Format(Layout)
}

// Parse parses a YYYY-MM-DD string.
func Parse(s string) (time.Time, error) {
	return time.Parse(Layout, s)
}

// Today returns the current date in UTC with no time of day.
func Today() time.Time {
	return Truncate(time.Now().UTC())
}
