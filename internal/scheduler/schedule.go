// Package scheduler fires actions at fixed times of day, at sun events or at
// fixed intervals. Different schedule types implement the Schedule interface.
package scheduler

import (
	"fmt"
	"time"

	"github.com/dokzlo13/lifxd/internal/geo"
)

// Schedule is the core abstraction for any source of timed events.
type Schedule interface {
	// ID returns the unique identifier for this schedule
	ID() string

	// Tag returns the optional tag for grouping schedules
	Tag() string

	// Next returns the next occurrence after the given time, or nil if none
	Next(after time.Time) *Occurrence

	// Prev returns the previous occurrence before the given time, or nil if none
	Prev(before time.Time) *Occurrence

	// ActionName returns the name of the action to invoke
	ActionName() string

	// ActionArgs returns the arguments to pass to the action
	ActionArgs() map[string]any

	// MisfirePolicy returns how to handle missed occurrences on boot
	MisfirePolicy() MisfirePolicy

	// Describe returns a short human-readable form ("22:15", "every 30m")
	Describe() string
}

// Occurrence represents a specific firing point of a schedule
type Occurrence struct {
	// ID uniquely identifies this occurrence ("evening/1735372800") and is
	// used as the idempotency key of the invocation.
	ID string

	ScheduleID string
	Time       time.Time
}

// NewOccurrence creates a new occurrence with the standard ID format
func NewOccurrence(scheduleID string, t time.Time) *Occurrence {
	return &Occurrence{
		ID:         fmt.Sprintf("%s/%d", scheduleID, t.Unix()),
		ScheduleID: scheduleID,
		Time:       t,
	}
}

// base carries the fields shared by every schedule type
type base struct {
	id            string
	tag           string
	actionName    string
	actionArgs    map[string]any
	misfirePolicy MisfirePolicy
}

func (b *base) ID() string                   { return b.id }
func (b *base) Tag() string                  { return b.tag }
func (b *base) ActionName() string           { return b.actionName }
func (b *base) ActionArgs() map[string]any   { return b.actionArgs }
func (b *base) MisfirePolicy() MisfirePolicy { return b.misfirePolicy }

// DailySchedule fires once a day at a fixed wall-clock time in its timezone.
type DailySchedule struct {
	base
	at Clock
	tz *time.Location
}

// NewDailySchedule creates a daily schedule from an "HH:MM[:SS]" expression.
func NewDailySchedule(
	id string,
	at string,
	actionName string,
	actionArgs map[string]any,
	tag string,
	misfirePolicy MisfirePolicy,
	tz *time.Location,
) (*DailySchedule, error) {
	clock, err := ParseClock(at)
	if err != nil {
		return nil, err
	}
	if tz == nil {
		tz = time.UTC
	}

	return &DailySchedule{
		base: base{
			id:            id,
			tag:           tag,
			actionName:    actionName,
			actionArgs:    actionArgs,
			misfirePolicy: misfirePolicy,
		},
		at: clock,
		tz: tz,
	}, nil
}

// Next returns the next occurrence after the given time.
func (s *DailySchedule) Next(after time.Time) *Occurrence {
	return NewOccurrence(s.id, s.at.Next(after, s.tz))
}

// Prev returns the previous occurrence before the given time.
func (s *DailySchedule) Prev(before time.Time) *Occurrence {
	return NewOccurrence(s.id, s.at.Prev(before, s.tz))
}

func (s *DailySchedule) Describe() string { return s.at.String() }

// PeriodicSchedule fires at a fixed interval anchored at its start time.
// Missed ticks are never replayed.
type PeriodicSchedule struct {
	base
	interval  time.Duration
	startTime time.Time
}

// NewPeriodicSchedule creates a periodic schedule whose first tick is at start.
func NewPeriodicSchedule(
	id string,
	interval time.Duration,
	actionName string,
	actionArgs map[string]any,
	tag string,
	start time.Time,
) (*PeriodicSchedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}

	return &PeriodicSchedule{
		base: base{
			id:            id,
			tag:           tag,
			actionName:    actionName,
			actionArgs:    actionArgs,
			misfirePolicy: MisfirePolicySkip,
		},
		interval:  interval,
		startTime: start,
	}, nil
}

// Next returns the next occurrence after the given time.
func (s *PeriodicSchedule) Next(after time.Time) *Occurrence {
	if after.Before(s.startTime) {
		return NewOccurrence(s.id, s.startTime)
	}

	ticks := int64(after.Sub(s.startTime) / s.interval)
	return NewOccurrence(s.id, s.startTime.Add(time.Duration(ticks+1)*s.interval))
}

// Prev returns the previous occurrence before the given time.
func (s *PeriodicSchedule) Prev(before time.Time) *Occurrence {
	if !before.After(s.startTime) {
		return nil
	}

	elapsed := before.Sub(s.startTime)
	ticks := int64(elapsed / s.interval)
	if elapsed%s.interval == 0 {
		ticks-- // exactly on a tick; the previous one is strictly before
	}
	return NewOccurrence(s.id, s.startTime.Add(time.Duration(ticks)*s.interval))
}

func (s *PeriodicSchedule) Describe() string { return "every " + s.interval.String() }

// Interval returns the schedule interval.
func (s *PeriodicSchedule) Interval() time.Duration {
	return s.interval
}

// SunSchedule fires once a day at a sun event shifted by an offset.
type SunSchedule struct {
	base
	event  string
	offset time.Duration
	calc   *geo.Calculator
	tz     *time.Location
}

// NewSunSchedule creates a schedule anchored to a sun event ("sunset") with
// an optional offset (negative fires before the event).
func NewSunSchedule(
	id string,
	event string,
	offset time.Duration,
	actionName string,
	actionArgs map[string]any,
	tag string,
	misfirePolicy MisfirePolicy,
	calc *geo.Calculator,
	tz *time.Location,
) (*SunSchedule, error) {
	if calc == nil {
		return nil, fmt.Errorf("sun event %q needs a location", event)
	}
	if !geo.IsEvent(event) {
		return nil, fmt.Errorf("unknown sun event %q", event)
	}
	if offset <= -12*time.Hour || offset >= 12*time.Hour {
		return nil, fmt.Errorf("offset %s must be within 12h", offset)
	}
	if tz == nil {
		tz = time.UTC
	}

	return &SunSchedule{
		base: base{
			id:            id,
			tag:           tag,
			actionName:    actionName,
			actionArgs:    actionArgs,
			misfirePolicy: misfirePolicy,
		},
		event:  event,
		offset: offset,
		calc:   calc,
		tz:     tz,
	}, nil
}

// on returns the firing time for the calendar day days away from t.
func (s *SunSchedule) on(t time.Time, days int) time.Time {
	local := t.In(s.tz)
	day := time.Date(local.Year(), local.Month(), local.Day()+days, 12, 0, 0, 0, s.tz)
	at, _ := s.calc.Times(day, s.tz).Event(s.event)
	return at.Add(s.offset)
}

// Next returns the next occurrence after the given time. The offset may move
// an occurrence onto a neighbouring day, so the day before is checked too.
func (s *SunSchedule) Next(after time.Time) *Occurrence {
	for days := -1; days <= 2; days++ {
		if at := s.on(after, days); at.After(after) {
			return NewOccurrence(s.id, at)
		}
	}
	return nil
}

// Prev returns the previous occurrence before the given time.
func (s *SunSchedule) Prev(before time.Time) *Occurrence {
	for days := 1; days >= -2; days-- {
		if at := s.on(before, days); at.Before(before) {
			return NewOccurrence(s.id, at)
		}
	}
	return nil
}

func (s *SunSchedule) Describe() string {
	switch {
	case s.offset > 0:
		return s.event + "+" + s.offset.String()
	case s.offset < 0:
		return s.event + s.offset.String()
	}
	return s.event
}
