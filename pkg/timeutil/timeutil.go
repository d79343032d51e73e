// Package timeutil provides clock injection and UTC day arithmetic.
// Canopy is a global platform, so all day boundaries are UTC and all
// persisted timestamps are unix milliseconds.
// No external dependencies - uses only standard library.
package timeutil

import (
	"sync"
	"time"
)

// Clock supplies the current time. Services take a Clock so tests can
// drive TTL expiry and timestamps deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a settable clock for tests.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a fixed clock starting at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t.UTC()}
}

// Now returns the fixed time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t.UTC()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// UnixMilli renders a time as persisted unix milliseconds; the zero time
// maps to 0.
func UnixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMilli parses a persisted timestamp; 0 maps to the zero time.
func FromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// StartOfDay returns 00:00:00 UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysSince returns whole days elapsed from then to now, by UTC day
// boundaries. Future times yield 0.
func DaysSince(now, then time.Time) int {
	days := int(StartOfDay(now).Sub(StartOfDay(then)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// IsSameDay checks if two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := t1.UTC(), t2.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// FormatDate renders a date as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
