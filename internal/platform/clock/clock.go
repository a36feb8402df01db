// Package clock supplies the current instant to the rest of the system.
// Services never call time.Now directly; they hold a Clock so that tests
// can pin or advance time, and so that day boundaries are derived from a
// single, explicit source rather than ambient global state.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

// System returns a Clock backed by the wall clock in the local time zone.
func System() Clock {
	return &systemClock{loc: time.Local}
}

// SystemIn returns a Clock backed by the wall clock that reports instants
// in loc. The clinic's operating time zone decides where one calendar day
// ends and the next begins.
func SystemIn(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return &systemClock{loc: loc}
}

func (c *systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Mock is a Clock whose instant is set by the test.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMock returns a Mock pinned to t.
func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set pins the mock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the mock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// DayWindow is the half-open interval [Start, End) covering one calendar
// day in a particular location, plus the bare date for keying day-scoped
// records.
type DayWindow struct {
	Day   time.Time // midnight, the calendar date
	Start time.Time // inclusive
	End   time.Time // exclusive, midnight of the next day
}

// DayWindowOf returns the window of the calendar day containing t, in t's
// location. Derive it once per operation from the injected Clock and pass
// it down; repositories never compute "today" themselves.
func DayWindowOf(t time.Time) DayWindow {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return DayWindow{
		Day:   start,
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}
}

// Contains reports whether instant t falls inside the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// SameDay reports whether a calendar date (as stored, midnight-normalized)
// is the window's day. Comparison is by date components so a DATE column
// read back in UTC still matches a local-zone window.
func (w DayWindow) SameDay(date time.Time) bool {
	y1, m1, d1 := w.Day.Date()
	y2, m2, d2 := date.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
