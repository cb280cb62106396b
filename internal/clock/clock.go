// Package clock resolves "now" and "today" in the operating time zone and
// decides whether the monitor should be working.
package clock

import (
	"fmt"
	"time"

	"github.com/willianribas/bots/internal/domain"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Func adapts a function to Clock.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

// Zone is a Clock pinned to a named location.
type Zone struct {
	loc   *time.Location
	clock Clock
}

// NewZone loads the named location. A nil clock means the system clock.
func NewZone(name string, c Clock) (*Zone, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	if c == nil {
		c = System{}
	}
	return &Zone{loc: loc, clock: c}, nil
}

// Now returns the current instant expressed in the zone.
func (z *Zone) Now() time.Time {
	return z.clock.Now().In(z.loc)
}

// Today returns the calendar date in the zone.
func (z *Zone) Today() domain.Date {
	return domain.DateOf(z.Now())
}

// Location returns the zone's location.
func (z *Zone) Location() *time.Location {
	return z.loc
}
