package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Clock{}, fmt.Errorf("invalid time %q: expected HH:MM or HH:MM:SS", s)
	}

	limits := []int{23, 59, 59}
	values := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] || len(p) > 2 {
			return Clock{}, fmt.Errorf("invalid time %q", s)
		}
		values[i] = v
	}

	return Clock{Hour: values[0], Minute: values[1], Second: values[2]}, nil
}

func (c Clock) String() string {
	if c.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// on returns the clock time on the calendar day of t in tz, shifted by days.
func (c Clock) on(t time.Time, tz *time.Location, days int) time.Time {
	local := t.In(tz)
	return time.Date(local.Year(), local.Month(), local.Day()+days, c.Hour, c.Minute, c.Second, 0, tz)
}

// Next returns the first occurrence strictly after t.
func (c Clock) Next(after time.Time, tz *time.Location) time.Time {
	if t := c.on(after, tz, 0); t.After(after) {
		return t
	}
	return c.on(after, tz, 1)
}

// Prev returns the last occurrence strictly before t.
func (c Clock) Prev(before time.Time, tz *time.Location) time.Time {
	if t := c.on(before, tz, 0); t.Before(before) {
		return t
	}
	return c.on(before, tz, -1)
}
