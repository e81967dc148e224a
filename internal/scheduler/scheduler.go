package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/eventbus"
	"github.com/dokzlo13/lifxd/internal/geo"
	"github.com/dokzlo13/lifxd/internal/ledger"
)

// Event sources recorded on schedule events
const (
	SourceScheduler    = "scheduler"
	SourceBootRecovery = "boot_recovery"
)

// Scheduler manages schedule definitions and emits one bus event per
// occurrence. Execution happens in the bus handlers.
type Scheduler struct {
	mu        sync.RWMutex
	schedules map[string]Schedule

	bus    *eventbus.Bus
	ledger *ledger.Ledger
	tz     *time.Location
	sun    *geo.Calculator // nil until SetLocation
	now    func() time.Time

	reschedule chan struct{}
}

// New creates a scheduler evaluating daily schedules in timezone
func New(bus *eventbus.Bus, l *ledger.Ledger, timezone string) *Scheduler {
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", timezone).Msg("Failed to load timezone, using UTC")
		tz = time.UTC
	}

	return &Scheduler{
		schedules:  make(map[string]Schedule),
		bus:        bus,
		ledger:     l,
		tz:         tz,
		now:        time.Now,
		reschedule: make(chan struct{}, 1),
	}
}

// Register adds or replaces a schedule
func (s *Scheduler) Register(sched Schedule) {
	s.mu.Lock()
	s.schedules[sched.ID()] = sched
	s.mu.Unlock()

	log.Debug().
		Str("id", sched.ID()).
		Str("tag", sched.Tag()).
		Str("when", sched.Describe()).
		Str("action", sched.ActionName()).
		Msg("Schedule registered")

	s.notifyReschedule()
}

// Unregister removes a schedule. It reports whether the schedule existed.
func (s *Scheduler) Unregister(id string) bool {
	s.mu.Lock()
	_, existed := s.schedules[id]
	delete(s.schedules, id)
	s.mu.Unlock()

	if existed {
		s.notifyReschedule()
	}
	return existed
}

// Define creates and registers a daily schedule at "HH:MM[:SS]"
func (s *Scheduler) Define(id, at, actionName string, args map[string]any, tag string, misfirePolicy MisfirePolicy) error {
	sched, err := NewDailySchedule(id, at, actionName, args, tag, misfirePolicy, s.tz)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", id, err)
	}
	s.Register(sched)
	return nil
}

// DefinePeriodic creates and registers a periodic schedule whose first tick is
// one interval from now
func (s *Scheduler) DefinePeriodic(id string, interval time.Duration, actionName string, args map[string]any, tag string) error {
	sched, err := NewPeriodicSchedule(id, interval, actionName, args, tag, s.now().Add(interval))
	if err != nil {
		return fmt.Errorf("schedule %q: %w", id, err)
	}
	s.Register(sched)
	return nil
}

// SetLocation enables sun-event schedules at the given coordinates.
func (s *Scheduler) SetLocation(calc *geo.Calculator) {
	s.mu.Lock()
	s.sun = calc
	s.mu.Unlock()
}

// DefineSun creates and registers a schedule at a sun event plus offset
func (s *Scheduler) DefineSun(id, event string, offset time.Duration, actionName string, args map[string]any, tag string, misfirePolicy MisfirePolicy) error {
	s.mu.RLock()
	calc := s.sun
	s.mu.RUnlock()

	sched, err := NewSunSchedule(id, event, offset, actionName, args, tag, misfirePolicy, calc, s.tz)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", id, err)
	}
	s.Register(sched)
	return nil
}

// notifyReschedule signals the scheduler to recalculate
func (s *Scheduler) notifyReschedule() {
	select {
	case s.reschedule <- struct{}{}:
	default:
	}
}

// Run starts the scheduler loop. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Str("timezone", s.tz.String()).Msg("Scheduler started")

	for {
		occ, sched := s.nextOccurrence(s.now())

		sleepDuration := time.Hour // default if no schedules
		if occ != nil {
			sleepDuration = occ.Time.Sub(s.now())
			if sleepDuration < 0 {
				sleepDuration = 0
			}
		}

		log.Debug().Dur("sleep_duration", sleepDuration).Msg("Scheduler sleeping")

		timer := time.NewTimer(sleepDuration)

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Scheduler stopping")
			return nil

		case <-s.reschedule:
			timer.Stop()
			log.Debug().Msg("Schedule changed, recomputing")
			continue

		case <-timer.C:
			if occ != nil && sched != nil {
				s.emit(sched, occ, SourceScheduler)
			}
		}
	}
}

// RunBootRecovery handles occurrences missed while the daemon was down.
// Schedules with the run_latest policy whose previous occurrence never
// completed are grouped by tag (untagged schedules are their own group) and
// only the most recent occurrence of each group is emitted. Misses of
// skip-policy daily and sun schedules are recorded in the ledger. Periodic
// schedules are not recovered.
func (s *Scheduler) RunBootRecovery() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()

	type candidate struct {
		sched Schedule
		prev  *Occurrence
	}
	winners := make(map[string]candidate)

	for _, sched := range s.schedules {
		if _, periodic := sched.(*PeriodicSchedule); periodic {
			continue
		}

		prev := sched.Prev(now)
		if prev == nil || !s.missed(sched, prev) {
			continue
		}

		if sched.MisfirePolicy() != MisfirePolicyRunLatest {
			log.Info().
				Str("schedule", sched.ID()).
				Time("missed", prev.Time).
				Msg("Boot recovery: skipping missed occurrence")
			if err := s.ledger.AppendWithSource(ledger.EventActionSkipped, prev.ID, SourceBootRecovery, sched.ID(), map[string]any{
				"action": sched.ActionName(),
				"reason": "misfire",
			}); err != nil {
				log.Error().Err(err).Str("schedule", sched.ID()).Msg("Failed to record skipped occurrence")
			}
			continue
		}

		groupKey := sched.Tag()
		if groupKey == "" {
			groupKey = "__untagged:" + sched.ID()
		}

		existing, exists := winners[groupKey]
		if !exists || prev.Time.After(existing.prev.Time) {
			winners[groupKey] = candidate{sched: sched, prev: prev}
		}
	}

	for groupKey, winner := range winners {
		log.Info().
			Str("schedule", winner.sched.ID()).
			Str("group", groupKey).
			Time("prev_time", winner.prev.Time).
			Msg("Boot recovery: running most recent occurrence for group")
		s.emit(winner.sched, winner.prev, SourceBootRecovery)
	}
}

// missed reports whether prev never completed
func (s *Scheduler) missed(sched Schedule, prev *Occurrence) bool {
	last, err := s.ledger.LastCompleted(sched.ID())
	if err != nil {
		log.Error().Err(err).Str("schedule", sched.ID()).Msg("Failed to read last completion")
		return false
	}
	return last.Before(prev.Time)
}

// nextOccurrence finds the earliest next occurrence across all schedules
func (s *Scheduler) nextOccurrence(after time.Time) (*Occurrence, Schedule) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var earliest *Occurrence
	var source Schedule

	for _, sched := range s.schedules {
		if occ := sched.Next(after); occ != nil {
			if earliest == nil || occ.Time.Before(earliest.Time) {
				earliest = occ
				source = sched
			}
		}
	}

	return earliest, source
}

// emit publishes a schedule event unless the occurrence already completed
func (s *Scheduler) emit(sched Schedule, occ *Occurrence, source string) {
	if s.ledger.HasCompleted(occ.ID) {
		log.Debug().Str("occurrence", occ.ID).Msg("Already completed, skipping")
		return
	}

	log.Info().
		Str("schedule_id", sched.ID()).
		Str("occurrence_id", occ.ID).
		Str("action", sched.ActionName()).
		Time("time", occ.Time).
		Str("source", source).
		Msg("Emitting schedule event")

	s.bus.Publish(eventbus.NewEvent(eventbus.EventTypeSchedule, map[string]any{
		"schedule_id":   sched.ID(),
		"occurrence_id": occ.ID,
		"action_name":   sched.ActionName(),
		"action_args":   sched.ActionArgs(),
		"run_at":        occ.Time,
		"source":        source,
	}))
}

// Entry is one upcoming or past occurrence for display
type Entry struct {
	ID     string    `json:"id"`
	When   string    `json:"when"`
	Time   time.Time `json:"time"`
	Action string    `json:"action"`
	Tag    string    `json:"tag,omitempty"`
	IsPast bool      `json:"is_past"`
}

// Day returns every occurrence on the calendar day of day, sorted by time.
func (s *Scheduler) Day(day time.Time) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	local := day.In(s.tz)
	startOfDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.tz)
	endOfDay := startOfDay.AddDate(0, 0, 1)

	var entries []Entry
	for _, sched := range s.schedules {
		cursor := startOfDay.Add(-time.Nanosecond)
		for {
			occ := sched.Next(cursor)
			if occ == nil || !occ.Time.Before(endOfDay) {
				break
			}
			entries = append(entries, Entry{
				ID:     sched.ID(),
				When:   sched.Describe(),
				Time:   occ.Time,
				Action: sched.ActionName(),
				Tag:    sched.Tag(),
				IsPast: occ.Time.Before(now),
			})
			cursor = occ.Time
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Time.Equal(entries[j].Time) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Time.Before(entries[j].Time)
	})
	return entries
}

// FormatSchedule renders today's occurrences as a table.
func (s *Scheduler) FormatSchedule() string {
	day := s.now()
	entries := s.Day(day)

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Schedule for %s (%s)", day.In(s.tz).Format("2006-01-02"), s.tz))
	t.AppendHeader(table.Row{"", "ID", "WHEN", "TIME", "ACTION", "TAG"})
	for _, e := range entries {
		status := ""
		if e.IsPast {
			status = "✓"
		}
		tag := e.Tag
		if tag == "" {
			tag = "-"
		}
		t.AppendRow(table.Row{status, e.ID, e.When, e.Time.In(s.tz).Format("15:04:05"), e.Action, tag})
	}
	if len(entries) == 0 {
		t.AppendFooter(table.Row{"", "no occurrences today"})
	}
	return t.Render()
}

// IDs returns the registered schedule ids, sorted
func (s *Scheduler) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedIDsLocked()
}

// RunNow emits the schedule immediately without an idempotency key.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	sched, ok := s.schedules[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schedule %q not found", id)
	}

	s.bus.Publish(eventbus.NewEvent(eventbus.EventTypeSchedule, map[string]any{
		"schedule_id":   sched.ID(),
		"occurrence_id": "",
		"action_name":   sched.ActionName(),
		"action_args":   sched.ActionArgs(),
		"run_at":        s.now(),
		"source":        "manual",
	}))
	return nil
}

// Timezone returns the scheduler's timezone
func (s *Scheduler) Timezone() *time.Location {
	return s.tz
}

// Describe returns "id (when)" for every schedule, for logging
func (s *Scheduler) Describe() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parts := make([]string, 0, len(s.schedules))
	for _, id := range s.sortedIDsLocked() {
		parts = append(parts, fmt.Sprintf("%s (%s)", id, s.schedules[id].Describe()))
	}
	return strings.Join(parts, ", ")
}

func (s *Scheduler) sortedIDsLocked() []string {
	ids := make([]string, 0, len(s.schedules))
	for id := range s.schedules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
