package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/eventbus"
	"github.com/dokzlo13/lifxd/internal/lifx"
)

// lowBudgetRatio is the share of the rate-limit budget below which every
// snapshot is logged as a warning
const lowBudgetRatio = 0.1

// Invoker runs an action with deduplication; LuaService satisfies it by
// running the invocation on the Lua worker.
type Invoker interface {
	InvokeThroughLua(ctx context.Context, actionName string, args map[string]any, idempotencyKey, source, defID string) error
}

// EventService handles event bus subscriptions and dispatches events to actions.
type EventService struct {
	invoker Invoker
	bus     *eventbus.Bus
}

// NewEventService creates a new EventService.
func NewEventService(invoker Invoker, bus *eventbus.Bus) *EventService {
	return &EventService{
		invoker: invoker,
		bus:     bus,
	}
}

// Start sets up all event handlers.
func (s *EventService) Start(ctx context.Context) {
	s.bus.Subscribe(eventbus.EventTypeWebhook, func(event eventbus.Event) {
		s.invoke(ctx, event, event.String("idempotency_key"), "")
	})

	s.bus.Subscribe(eventbus.EventTypeSchedule, func(event eventbus.Event) {
		s.invoke(ctx, event, event.String("occurrence_id"), event.String("schedule_id"))
	})

	s.bus.Subscribe(eventbus.EventTypeRateLimit, logRateLimit)
}

// invoke runs the action carried by a webhook or schedule event
func (s *EventService) invoke(ctx context.Context, event eventbus.Event, key, defID string) {
	name := event.String("action_name")
	args, _ := event.Data["action_args"].(map[string]any)
	source := event.String("source")

	start := time.Now()
	err := s.invoker.InvokeThroughLua(ctx, name, args, key, source, defID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error().
			Err(err).
			Str("action", name).
			Str("source", source).
			Str("key", key).
			Str("event_id", event.ID).
			Str("kind", string(lifx.KindOf(err))).
			Msg("Action failed")
		return
	}

	log.Debug().
		Str("action", name).
		Str("source", source).
		Str("event_id", event.ID).
		Dur("duration", time.Since(start)).
		Msg("Action handled")
}

func logRateLimit(event eventbus.Event) {
	limit, _ := event.Data["limit"].(int)
	remaining, _ := event.Data["remaining"].(int)
	reset, _ := event.Data["reset"].(int64)

	logEvent := log.Debug()
	if limit > 0 && float64(remaining) < float64(limit)*lowBudgetRatio {
		logEvent = log.Warn()
	}
	logEvent.
		Int("limit", limit).
		Int("remaining", remaining).
		Time("reset", time.Unix(reset, 0)).
		Msg("LIFX rate limit")
}
