package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/turnkeeper/internal/domain"
)

func at(day, hour, min, sec int) time.Time {
	return time.Date(2024, time.March, day, hour, min, sec, 0, time.UTC)
}

func hours(h int) int { return h * 3600 }

var (
	office = &domain.ActiveWindow{Start: hours(9), End: hours(17)}
	night  = &domain.ActiveWindow{Start: hours(22), End: hours(2)}
)

func TestTimerDuration(t *testing.T) {
	assert.Equal(t, 8*3600, TimerDuration(*office))
	assert.Equal(t, 4*3600, TimerDuration(*night))
	assert.Equal(t, daySeconds, TimerDuration(domain.ActiveWindow{Start: 100, End: 100}))
}

func TestIsPaused_NormalWindow(t *testing.T) {
	assert.True(t, IsPaused(at(1, 8, 59, 59), office))
	assert.False(t, IsPaused(at(1, 9, 0, 0), office), "start belongs to the active side")
	assert.False(t, IsPaused(at(1, 16, 59, 59), office))
	assert.True(t, IsPaused(at(1, 17, 0, 0), office), "end belongs to the paused side")
	assert.False(t, IsPaused(at(1, 3, 0, 0), nil))
}

func TestIsPaused_WrapWindow(t *testing.T) {
	assert.False(t, IsPaused(at(1, 23, 0, 0), night))
	assert.False(t, IsPaused(at(1, 1, 59, 59), night))
	assert.True(t, IsPaused(at(1, 2, 0, 0), night))
	assert.True(t, IsPaused(at(1, 12, 0, 0), night))
	assert.False(t, IsPaused(at(1, 22, 0, 0), night))
}

func TestIsPaused_AlwaysActive(t *testing.T) {
	for _, w := range []*domain.ActiveWindow{nil, {Start: 0, End: 0}, {Start: 3600, End: 3600}} {
		for s := 0; s < daySeconds; s += 937 {
			ts := at(4, 0, 0, 0).Add(time.Duration(s) * time.Second)
			assert.False(t, IsPaused(ts, w))
		}
	}
}

func TestElapsedSeconds_NoWindow(t *testing.T) {
	since := at(1, 10, 0, 0)
	assert.Equal(t, int64(90), ElapsedSeconds(since, nil, since.Add(90*time.Second+500*time.Millisecond)))
	assert.Equal(t, int64(0), ElapsedSeconds(since, nil, since.Add(-time.Hour)))
	assert.Equal(t, int64(0), ElapsedSeconds(since, nil, since))
}

func TestElapsedSeconds_NormalWindow(t *testing.T) {
	// 15:00 -> 17:00 counts 2h, paused overnight, 09:00 -> 10:00 counts 1h.
	got := ElapsedSeconds(at(1, 15, 0, 0), office, at(2, 10, 0, 0))
	assert.Equal(t, int64(3*3600), got)

	// Starting while paused advances to the next window start.
	got = ElapsedSeconds(at(1, 18, 0, 0), office, at(2, 9, 30, 0))
	assert.Equal(t, int64(1800), got)

	// Entirely inside a pause.
	got = ElapsedSeconds(at(1, 18, 0, 0), office, at(1, 23, 0, 0))
	assert.Equal(t, int64(0), got)

	// Several full days.
	got = ElapsedSeconds(at(1, 9, 0, 0), office, at(4, 9, 0, 0))
	assert.Equal(t, int64(3*8*3600), got)
}

func TestElapsedSeconds_WrapWindow(t *testing.T) {
	// 23:00 -> 02:00 is three active hours across midnight.
	got := ElapsedSeconds(at(1, 23, 0, 0), night, at(2, 3, 0, 0))
	assert.Equal(t, int64(3*3600), got)

	// From noon, the clock only starts at 22:00.
	got = ElapsedSeconds(at(1, 12, 0, 0), night, at(2, 1, 0, 0))
	assert.Equal(t, int64(3*3600), got)

	// Early morning segment belongs to the window opened the previous night.
	got = ElapsedSeconds(at(2, 1, 0, 0), night, at(2, 23, 0, 0))
	assert.Equal(t, int64(2*3600), got)
}

func TestDeadline_NoWindow(t *testing.T) {
	since := at(1, 10, 0, 0)
	assert.Equal(t, since.Add(time.Hour), Deadline(3600, nil, since))
	assert.Equal(t, since, Deadline(0, nil, since))
}

func TestDeadline_CarriesOverflow(t *testing.T) {
	// 2h left at 16:00: 1h today, 1h tomorrow from 09:00.
	assert.Equal(t, at(2, 10, 0, 0), Deadline(2*3600, office, at(1, 16, 0, 0)))

	// Exactly filling the segment ends on the boundary.
	assert.Equal(t, at(1, 17, 0, 0), Deadline(3600, office, at(1, 16, 0, 0)))

	// Wraparound window.
	assert.Equal(t, at(2, 1, 0, 0), Deadline(3*3600, night, at(1, 22, 0, 0)))
	assert.Equal(t, at(2, 23, 0, 0), Deadline(5*3600, night, at(1, 22, 0, 0)))
}

func TestDeadline_ZeroRemaining(t *testing.T) {
	assert.Equal(t, at(1, 12, 0, 0), Deadline(0, office, at(1, 12, 0, 0)))
	assert.Equal(t, at(2, 9, 0, 0), Deadline(0, office, at(1, 20, 0, 0)))
	assert.Equal(t, at(1, 22, 0, 0), Deadline(0, night, at(1, 5, 0, 0)))
}

func TestDeadline_RoundTrip(t *testing.T) {
	windows := []*domain.ActiveWindow{nil, office, night, {Start: 0, End: 60}, {Start: hours(23), End: hours(1)}}
	starts := []time.Time{
		at(1, 0, 0, 0),
		at(1, 8, 59, 59),
		at(1, 9, 0, 0),
		at(1, 16, 59, 59),
		at(1, 17, 0, 0),
		at(1, 23, 30, 0).Add(250 * time.Millisecond),
	}
	remaining := []int64{0, 1, 59, 60, 3599, 3600, 7200, 28800, 100000, 7 * 86400}
	for _, w := range windows {
		for _, since := range starts {
			for _, r := range remaining {
				d := Deadline(r, w, since)
				require.Equal(t, r, ElapsedSeconds(since, w, d), "window=%v since=%v r=%d", w, since, r)
			}
		}
	}
}

func TestDeadline_Monotonic(t *testing.T) {
	since := at(1, 16, 30, 0)
	for _, w := range []*domain.ActiveWindow{nil, office, night} {
		prev := Deadline(0, w, since)
		for r := int64(1); r < 200000; r += 3001 {
			d := Deadline(r, w, since)
			assert.False(t, d.Before(prev), "deadline went backwards at r=%d", r)
			prev = d
		}
	}
}
