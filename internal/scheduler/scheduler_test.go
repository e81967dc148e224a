package scheduler

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lifxd/internal/db"
	"github.com/dokzlo13/lifxd/internal/eventbus"
	"github.com/dokzlo13/lifxd/internal/geo"
	"github.com/dokzlo13/lifxd/internal/ledger"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "22:15", want: Clock{Hour: 22, Minute: 15}},
		{in: "7:05", want: Clock{Hour: 7, Minute: 5}},
		{in: " 06:30:45 ", want: Clock{Hour: 6, Minute: 30, Second: 45}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "123:00", wantErr: true},
		{in: "1:2:3:4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestClock_NextPrevAcrossMidnight(t *testing.T) {
	tz := time.FixedZone("UTC+2", 2*60*60)
	c := Clock{Hour: 22, Minute: 15}

	// 21:00 UTC is 23:00 local: today's 22:15 already passed
	now := time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 2, 22, 15, 0, 0, tz).Unix(), c.Next(now, tz).Unix())
	require.Equal(t, time.Date(2026, 3, 1, 22, 15, 0, 0, tz).Unix(), c.Prev(now, tz).Unix())

	// exactly on the occurrence: Next and Prev are strict
	at := time.Date(2026, 3, 1, 22, 15, 0, 0, tz)
	require.Equal(t, at.AddDate(0, 0, 1).Unix(), c.Next(at, tz).Unix())
	require.Equal(t, at.AddDate(0, 0, -1).Unix(), c.Prev(at, tz).Unix())
}

func TestPeriodicSchedule(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewPeriodicSchedule("poll", 30*time.Minute, "refresh_lights", nil, "", start)
	require.NoError(t, err)

	require.Equal(t, start, s.Next(start.Add(-time.Hour)).Time)
	require.Equal(t, start.Add(30*time.Minute), s.Next(start).Time)
	require.Equal(t, start.Add(90*time.Minute), s.Next(start.Add(61*time.Minute)).Time)

	require.Nil(t, s.Prev(start))
	require.Equal(t, start, s.Prev(start.Add(30*time.Minute)).Time)
	require.Equal(t, start.Add(30*time.Minute), s.Prev(start.Add(31*time.Minute)).Time)

	require.Equal(t, "poll/"+itoa(start.Add(30*time.Minute).Unix()), s.Next(start).ID)
	require.Equal(t, "every 30m0s", s.Describe())

	_, err = NewPeriodicSchedule("bad", 0, "toggle", nil, "", start)
	require.Error(t, err)
}

type harness struct {
	sched  *Scheduler
	ledger *ledger.Ledger
	events chan eventbus.Event
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "sched.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	bus := eventbus.NewWithConfig(1, 16)
	t.Cleanup(func() { bus.Close(context.Background()) })

	events := make(chan eventbus.Event, 16)
	bus.Subscribe(eventbus.EventTypeSchedule, func(e eventbus.Event) { events <- e })

	l := ledger.New(database.DB)
	s := New(bus, l, "UTC")
	if !now.IsZero() {
		s.now = func() time.Time { return now }
	}
	return &harness{sched: s, ledger: l, events: events}
}

func (h *harness) next(t *testing.T) eventbus.Event {
	t.Helper()
	select {
	case e := <-h.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no schedule event")
		return eventbus.Event{}
	}
}

func (h *harness) none(t *testing.T) {
	t.Helper()
	select {
	case e := <-h.events:
		t.Fatalf("unexpected schedule event %v", e.Data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRunBootRecovery_LatestPerTag(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, now)

	require.NoError(t, h.sched.Define("evening", "22:00", "set_state", map[string]any{"power": "on"}, "scene", MisfirePolicyRunLatest))
	require.NoError(t, h.sched.Define("night", "23:00", "set_state", map[string]any{"power": "off"}, "scene", MisfirePolicyRunLatest))

	h.sched.RunBootRecovery()

	e := h.next(t)
	require.Equal(t, "night", e.String("schedule_id"))
	require.Equal(t, "night/"+itoa(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC).Unix()), e.String("occurrence_id"))
	require.Equal(t, SourceBootRecovery, e.String("source"))
	h.none(t)
}

func TestRunBootRecovery_SkipsCompletedAndRecordsSkips(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, now)

	require.NoError(t, h.sched.Define("done", "07:00", "toggle", nil, "", MisfirePolicyRunLatest))
	require.NoError(t, h.sched.Define("morning", "06:30", "toggle", nil, "", MisfirePolicySkip))
	require.NoError(t, h.sched.DefinePeriodic("poll", time.Minute, "refresh_lights", nil, ""))

	// completion recorded at wall-clock time, which is after the fake prev
	require.NoError(t, h.ledger.AppendWithSource(ledger.EventActionCompleted, "done/x", "schedule", "done", nil))

	h.sched.RunBootRecovery()
	h.none(t)

	skipped, err := h.ledger.GetByType(ledger.EventActionSkipped, 10)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	require.Equal(t, "morning", skipped[0].DefID)
	require.Equal(t, "misfire", skipped[0].Payload["reason"])
}

func TestEmit_DedupesCompletedOccurrence(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	require.NoError(t, h.sched.Define("evening", "22:00", "toggle", nil, "", MisfirePolicySkip))

	h.sched.mu.RLock()
	sched := h.sched.schedules["evening"]
	h.sched.mu.RUnlock()
	occ := sched.Next(now)

	require.NoError(t, h.ledger.Append(ledger.EventActionCompleted, occ.ID, nil))
	h.sched.emit(sched, occ, SourceScheduler)
	h.none(t)
}

func TestRun_EmitsPeriodicOccurrences(t *testing.T) {
	h := newHarness(t, time.Time{})
	require.NoError(t, h.sched.DefinePeriodic("poll", 20*time.Millisecond, "refresh_lights", map[string]any{"selector": "all"}, ""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sched.Run(ctx) }()

	e := h.next(t)
	require.Equal(t, "refresh_lights", e.String("action_name"))
	require.Equal(t, map[string]any{"selector": "all"}, e.Data["action_args"])
	require.True(t, strings.HasPrefix(e.String("occurrence_id"), "poll/"))

	cancel()
	require.NoError(t, <-done)
}

func TestDay_ListsSortedOccurrences(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now)

	require.NoError(t, h.sched.Define("evening", "22:00", "toggle", nil, "scene", MisfirePolicySkip))
	require.NoError(t, h.sched.Define("morning", "07:00", "toggle", nil, "", MisfirePolicySkip))
	require.NoError(t, h.sched.DefinePeriodic("poll", 6*time.Hour, "refresh_lights", nil, ""))

	entries := h.sched.Day(now)
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	// poll starts at 18:00 (one interval after now)
	require.Equal(t, []string{"morning", "poll", "evening"}, ids)
	require.True(t, entries[0].IsPast)
	require.False(t, entries[2].IsPast)

	out := h.sched.FormatSchedule()
	require.Contains(t, out, "evening")
	require.Contains(t, out, "every 6h0m0s")
}

func TestUnregisterAndRunNow(t *testing.T) {
	h := newHarness(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, h.sched.Define("evening", "22:00", "toggle", nil, "", MisfirePolicySkip))
	require.Equal(t, []string{"evening"}, h.sched.IDs())

	require.NoError(t, h.sched.RunNow("evening"))
	e := h.next(t)
	require.Empty(t, e.String("occurrence_id"))
	require.Equal(t, "manual", e.String("source"))

	require.True(t, h.sched.Unregister("evening"))
	require.False(t, h.sched.Unregister("evening"))
	require.Error(t, h.sched.RunNow("evening"))
	require.Error(t, h.sched.Define("broken", "25:00", "toggle", nil, "", MisfirePolicySkip))
}

func TestParseMisfirePolicy(t *testing.T) {
	p, err := ParseMisfirePolicy("")
	require.NoError(t, err)
	require.Equal(t, MisfirePolicySkip, p)

	p, err = ParseMisfirePolicy("run_latest")
	require.NoError(t, err)
	require.Equal(t, MisfirePolicyRunLatest, p)

	_, err = ParseMisfirePolicy("always")
	require.Error(t, err)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestSunSchedule_OffsetFromEvent(t *testing.T) {
	calc, err := geo.NewCalculator(0, 0)
	require.NoError(t, err)

	s, err := NewSunSchedule("dim", geo.Sunset, -30*time.Minute, "set_state", nil, "", MisfirePolicySkip, calc, time.UTC)
	require.NoError(t, err)
	require.Equal(t, "sunset-30m0s", s.Describe())

	morning := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	sunset, _ := calc.Times(morning, time.UTC).Event(geo.Sunset)

	next := s.Next(morning)
	require.NotNil(t, next)
	require.Equal(t, sunset.Add(-30*time.Minute), next.Time)

	// strictly after: the following occurrence is tomorrow
	following := s.Next(next.Time)
	require.Equal(t, 2024, following.Time.Year())
	require.Equal(t, 21, following.Time.Day())

	prev := s.Prev(next.Time)
	require.Equal(t, 19, prev.Time.Day())
}

func TestDefineSun_NeedsLocation(t *testing.T) {
	h := newHarness(t, time.Time{})
	require.ErrorContains(t, h.sched.DefineSun("dim", geo.Sunset, 0, "toggle", nil, "", MisfirePolicySkip), "needs a location")

	calc, err := geo.NewCalculator(52.52, 13.40)
	require.NoError(t, err)
	h.sched.SetLocation(calc)

	require.ErrorContains(t, h.sched.DefineSun("dim", "moonrise", 0, "toggle", nil, "", MisfirePolicySkip), "unknown sun event")
	require.ErrorContains(t, h.sched.DefineSun("dim", geo.Dusk, 13*time.Hour, "toggle", nil, "", MisfirePolicySkip), "within 12h")
	require.NoError(t, h.sched.DefineSun("dim", geo.Dusk, time.Hour, "toggle", nil, "evening", MisfirePolicyRunLatest))
	require.Equal(t, "dim (dusk+1h0m0s)", h.sched.Describe())
}

func TestRunBootRecovery_SunSchedules(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, now)

	calc, err := geo.NewCalculator(0, 0)
	require.NoError(t, err)
	h.sched.SetLocation(calc)

	require.NoError(t, h.sched.DefineSun("dusk", geo.Sunset, 0, "toggle", nil, "", MisfirePolicyRunLatest))
	require.NoError(t, h.sched.DefineSun("dawn", geo.Sunrise, 0, "toggle", nil, "", MisfirePolicySkip))

	h.sched.RunBootRecovery()

	sunset, _ := calc.Times(now.AddDate(0, 0, -1), time.UTC).Event(geo.Sunset)
	e := h.next(t)
	require.Equal(t, "dusk", e.String("schedule_id"))
	require.Equal(t, "dusk/"+itoa(sunset.Unix()), e.String("occurrence_id"))
	require.Equal(t, SourceBootRecovery, e.String("source"))
	h.none(t)

	skipped, err := h.ledger.GetByType(ledger.EventActionSkipped, 10)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	require.Equal(t, "dawn", skipped[0].DefID)
}
