// Package timewindow computes move clocks against a daily active window.
//
// A window {Start, End} is expressed in seconds since UTC midnight and is
// half-open: Start is active, End is paused. When Start > End the window
// wraps around midnight; Start == End never pauses. A nil window means the
// clock always runs.
package timewindow

import (
	"time"

	"github.com/park285/turnkeeper/internal/domain"
)

const daySeconds = 24 * 60 * 60

const day = 24 * time.Hour

// TimerDuration returns the active length of the window per day, in seconds.
func TimerDuration(w domain.ActiveWindow) int {
	if w.Start < w.End {
		return w.End - w.Start
	}
	return daySeconds - w.Start + w.End
}

// IsPaused reports whether the clock is stopped at t.
func IsPaused(t time.Time, w *domain.ActiveWindow) bool {
	if alwaysActive(w) {
		return false
	}
	s := secondOfDay(t)
	if w.Start < w.End {
		return s < float64(w.Start) || s >= float64(w.End)
	}
	return s >= float64(w.End) && s < float64(w.Start)
}

// ElapsedSeconds returns the whole seconds of active time between since
// and now. It never returns a negative value.
func ElapsedSeconds(since time.Time, w *domain.ActiveWindow, now time.Time) int64 {
	if !now.After(since) {
		return 0
	}
	if alwaysActive(w) {
		return int64(now.Sub(since) / time.Second)
	}

	cursor := since
	if IsPaused(cursor, w) {
		cursor = nextStart(cursor, w)
	}
	var total time.Duration
	for cursor.Before(now) {
		end := segmentEnd(cursor, w)
		if !now.After(end) {
			total += now.Sub(cursor)
			break
		}
		total += end.Sub(cursor)
		cursor = nextStart(end, w)
	}
	return int64(total / time.Second)
}

// Deadline returns the instant at which remaining seconds of active time
// will have elapsed after since. With remaining == 0 the result is since,
// moved to the next window start when since is paused.
func Deadline(remaining int64, w *domain.ActiveWindow, since time.Time) time.Time {
	if remaining < 0 {
		remaining = 0
	}
	left := time.Duration(remaining) * time.Second
	if alwaysActive(w) {
		return since.Add(left)
	}

	cursor := since
	if IsPaused(cursor, w) {
		cursor = nextStart(cursor, w)
	}
	for {
		end := segmentEnd(cursor, w)
		avail := end.Sub(cursor)
		if left <= avail {
			return cursor.Add(left)
		}
		left -= avail
		cursor = nextStart(end, w)
	}
}

func alwaysActive(w *domain.ActiveWindow) bool {
	return w == nil || w.Start == w.End
}

func secondOfDay(t time.Time) float64 {
	return t.UTC().Sub(dayStart(t)).Seconds()
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func offset(base time.Time, seconds int) time.Time {
	return base.Add(time.Duration(seconds) * time.Second)
}

// nextStart returns the first window start at or after t.
func nextStart(t time.Time, w *domain.ActiveWindow) time.Time {
	start := offset(dayStart(t), w.Start)
	if start.Before(t) {
		start = start.Add(day)
	}
	return start
}

// segmentEnd returns the end of the active segment containing t.
// t must not be paused.
func segmentEnd(t time.Time, w *domain.ActiveWindow) time.Time {
	base := dayStart(t)
	if w.Start < w.End {
		return offset(base, w.End)
	}
	if secondOfDay(t) >= float64(w.Start) {
		return offset(base.Add(day), w.End)
	}
	return offset(base, w.End)
}
