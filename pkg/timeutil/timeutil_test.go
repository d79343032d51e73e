package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	clock := NewFixedClock(start)

	assert.Equal(t, start, clock.Now())

	clock.Advance(49 * time.Hour)
	assert.Equal(t, start.Add(49*time.Hour), clock.Now())

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestUnixMilliRoundTrip(t *testing.T) {
	assert.Equal(t, int64(0), UnixMilli(time.Time{}))
	assert.True(t, FromUnixMilli(0).IsZero())

	now := time.Date(2026, 1, 2, 3, 4, 5, 600000000, time.UTC)
	assert.Equal(t, now, FromUnixMilli(UnixMilli(now)))
}

func TestDaysSince(t *testing.T) {
	now := time.Date(2026, 8, 25, 1, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysSince(now, now))
	// Late yesterday is still one day boundary back.
	assert.Equal(t, 1, DaysSince(now, time.Date(2026, 8, 24, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 30, DaysSince(now, now.AddDate(0, 0, -30)))
	assert.Equal(t, 0, DaysSince(now, now.AddDate(0, 0, 3)))
}

func TestIsSameDay(t *testing.T) {
	a := time.Date(2026, 8, 25, 0, 1, 0, 0, time.UTC)
	b := time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)
	c := time.Date(2026, 8, 26, 0, 1, 0, 0, time.UTC)

	assert.True(t, IsSameDay(a, b))
	assert.False(t, IsSameDay(b, c))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2026-08-25", FormatDate(time.Date(2026, 8, 25, 15, 4, 5, 0, time.UTC)))
}
