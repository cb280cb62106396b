package clock

import (
	"fmt"
	"time"

	"github.com/willianribas/bots/internal/domain"
)

// TimeOfDay is a wall-clock time as minutes after midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func minuteOfDay(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// on returns the instant t falls on for the given day, in that day's location.
func (t TimeOfDay) on(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, day.Location())
}

// Gate is the daily operating window. Both bounds are inclusive to the minute.
type Gate struct {
	zone    *Zone
	enabled bool
	start   TimeOfDay
	end     TimeOfDay
}

// NewGate builds a gate from "HH:MM" bounds. A disabled gate is always open.
func NewGate(zone *Zone, enabled bool, start, end string) (*Gate, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return nil, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return nil, err
	}
	if e < s {
		return nil, fmt.Errorf("operating window end %s is before start %s", end, start)
	}
	return &Gate{zone: zone, enabled: enabled, start: s, end: e}, nil
}

// Open reports whether the current instant is inside the window.
func (g *Gate) Open() bool {
	if !g.enabled {
		return true
	}
	m := minuteOfDay(g.zone.Now())
	return m >= g.start && m <= g.end
}

// NextOpening returns when the window next opens and how long until then.
// If the window is open now it returns the current instant and zero.
func (g *Gate) NextOpening() (time.Time, time.Duration) {
	now := g.zone.Now()
	if g.Open() {
		return now, 0
	}
	next := g.start.on(now)
	if minuteOfDay(now) > g.end {
		next = g.start.on(now.AddDate(0, 0, 1))
	}
	return next, next.Sub(now)
}

// Start is the window's opening time.
func (g *Gate) Start() TimeOfDay { return g.start }

// End is the window's closing time.
func (g *Gate) End() TimeOfDay { return g.end }

// DailyWindow is a fixed slot each day during which a job is due once.
type DailyWindow struct {
	zone   *Zone
	start  TimeOfDay
	length time.Duration
}

// NewDailyWindow builds a window starting at "HH:MM" lasting length.
func NewDailyWindow(zone *Zone, start string, length time.Duration) (*DailyWindow, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, fmt.Errorf("daily window length must be positive, got %s", length)
	}
	return &DailyWindow{zone: zone, start: s, length: length}, nil
}

// Contains reports whether now falls in [start, start+length).
func (w *DailyWindow) Contains() bool {
	now := w.zone.Now()
	from := w.start.on(now)
	return !now.Before(from) && now.Before(from.Add(w.length))
}

// Due reports whether the window is open and the job has not run today.
// lastRun is the zone date of the previous run, zero if never.
func (w *DailyWindow) Due(lastRun time.Time) bool {
	if !w.Contains() {
		return false
	}
	if lastRun.IsZero() {
		return true
	}
	return w.zone.Today() != dateIn(lastRun, w.zone)
}

func dateIn(t time.Time, z *Zone) domain.Date {
	return domain.DateOf(t.In(z.loc))
}
