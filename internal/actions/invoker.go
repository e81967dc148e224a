package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/lifxd/internal/ledger"
	"github.com/dokzlo13/lifxd/internal/lifx"
)

// ErrUnknownAction is returned when no action is registered under a name
var ErrUnknownAction = errors.New("action not found")

// Invoker executes actions with deduplication, local pacing and auditing
type Invoker struct {
	registry   *Registry
	ledger     *ledger.Ledger
	ctxFactory func(ctx context.Context) *Context
	limiter    *rate.Limiter
}

// InvokerOption configures an Invoker
type InvokerOption func(*Invoker)

// WithPacing spaces invocations to at most rps per second with the given burst.
// rps <= 0 disables pacing.
func WithPacing(rps float64, burst int) InvokerOption {
	return func(i *Invoker) {
		if rps <= 0 {
			i.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		i.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewInvoker creates a new action invoker
func NewInvoker(registry *Registry, l *ledger.Ledger, ctxFactory func(ctx context.Context) *Context, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		registry:   registry,
		ledger:     l,
		ctxFactory: ctxFactory,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke executes an action with the given idempotency key
// - For schedules: idempotencyKey = occurrence_id ("evening/1735372800")
// - For webhooks: idempotencyKey = Idempotency-Key header, if sent
// - For manual/programmatic calls: idempotencyKey = "" (no dedupe)
func (i *Invoker) Invoke(ctx context.Context, actionName string, args map[string]any, idempotencyKey string) error {
	return i.invoke(ctx, actionName, args, idempotencyKey, "", "")
}

// InvokeWithSource is like Invoke but includes source and def_id for ledger tracking
func (i *Invoker) InvokeWithSource(ctx context.Context, actionName string, args map[string]any, idempotencyKey, source, defID string) error {
	return i.invoke(ctx, actionName, args, idempotencyKey, source, defID)
}

// HasAction checks if an action is registered
func (i *Invoker) HasAction(actionName string) bool {
	_, exists := i.registry.Get(actionName)
	return exists
}

// Registry returns the action registry
func (i *Invoker) Registry() *Registry {
	return i.registry
}

func (i *Invoker) invoke(ctx context.Context, actionName string, args map[string]any, idempotencyKey, source, defID string) error {
	if idempotencyKey != "" && i.ledger.HasCompleted(idempotencyKey) {
		log.Debug().
			Str("action", actionName).
			Str("idempotency_key", idempotencyKey).
			Msg("Action already completed, skipping")
		return nil
	}

	action, exists := i.registry.Get(actionName)
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownAction, actionName)
	}

	if i.limiter != nil {
		if err := i.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("action %q not paced in time: %w", actionName, err)
		}
	}

	invocationID := uuid.NewString()
	actx := i.ctxFactory(ctx)
	actx.source = source
	actx.runAction = func(name string, nestedArgs map[string]any) error {
		return i.invoke(ctx, name, nestedArgs, "", source, "")
	}

	logEvent := log.Debug().
		Str("action", actionName).
		Str("invocation_id", invocationID).
		Interface("args", args)
	if source != "" {
		logEvent = logEvent.Str("source", source)
	}
	logEvent.Msg("Executing action")

	start := time.Now()
	err := action.Execute(actx, args)

	payload := map[string]any{
		"action":        actionName,
		"invocation_id": invocationID,
		"duration_ms":   time.Since(start).Milliseconds(),
	}
	if len(args) > 0 {
		payload["args"] = args
	}
	if actx.lights != nil {
		if rl := actx.lights.RateLimit(); rl != nil {
			payload["ratelimit"] = map[string]any{
				"limit":     rl.Limit,
				"remaining": rl.Remaining,
				"reset":     rl.Reset,
			}
		}
	}

	eventType := ledger.EventActionCompleted
	if err != nil {
		eventType = ledger.EventActionFailed
		payload["error"] = err.Error()
		payload["error_kind"] = string(lifx.KindOf(err))
	}

	if lerr := i.ledger.AppendWithSource(eventType, idempotencyKey, source, defID, payload); lerr != nil {
		log.Error().Err(lerr).Str("action", actionName).Msg("Failed to append to ledger")
	}

	if err != nil {
		log.Error().Err(err).
			Str("action", actionName).
			Str("invocation_id", invocationID).
			Str("error_kind", string(lifx.KindOf(err))).
			Msg("Action failed")
		return err
	}
	return nil
}
