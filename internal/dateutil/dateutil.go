// Package dateutil holds the calendar-day helpers shared by the events cache:
// the upstream date format and the same-day freshness comparison.
package dateutil

import (
	"fmt"
	"time"
)

// Clock abstracts the current time so day boundaries can be simulated.
type Clock interface {
	Now() time.Time
}

// SystemClock reports wall-clock time in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FormatDate renders t as MM/DD/YYYY in t's own location.
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%02d/%02d/%04d", int(t.Month()), t.Day(), t.Year())
}

// SameDay reports whether a and b fall on the same calendar day in loc.
// A nil loc means time.Local.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// NextMidnight returns the start of the day after t, in loc.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// ResolveLocation loads an IANA zone, falling back to time.Local for an empty
// name.
func ResolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
