package app

import (
	"context"

	"github.com/dokzlo13/lifxd/internal/actions"
	"github.com/dokzlo13/lifxd/internal/config"
	"github.com/dokzlo13/lifxd/internal/db"
	"github.com/dokzlo13/lifxd/internal/ledger"
	"github.com/dokzlo13/lifxd/internal/storage"
	"github.com/dokzlo13/lifxd/internal/webhook"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Cache  *storage.Cache
	KV     *storage.KV

	// Action system
	Registry *actions.Registry
	Invoker  *actions.Invoker

	// High-level services
	LIFX      *LIFXService
	Lua       *LuaService
	Scheduler *SchedulerService
	Events    *EventService
	Health    *HealthService
	Webhook   *WebhookService
}

// NewServices creates all services with proper dependency injection.
// configPath resolves a relative Lua script path.
func NewServices(cfg *config.Config, configPath string) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Ledger = ledger.New(database.DB)
	s.Cache = storage.NewCache(database.DB)
	s.KV = storage.NewKV(database.DB)

	s.LIFX = NewLIFXService(cfg, s.Cache)

	s.Registry = actions.NewRegistry()
	if err := actions.RegisterBuiltins(s.Registry); err != nil {
		s.Close()
		return nil, err
	}

	ctxFactory := func(ctx context.Context) *actions.Context {
		return actions.NewContext(ctx, s.LIFX.Client, s.Cache)
	}
	s.Invoker = actions.NewInvoker(s.Registry, s.Ledger, ctxFactory,
		actions.WithPacing(cfg.Actions.RateLimitRPS, cfg.Actions.Burst))

	s.Scheduler, err = NewSchedulerService(cfg, s.LIFX.Bus, s.Ledger, s.KV)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Lua = NewLuaService(cfg, configPath, s.Registry, s.Invoker, s.Scheduler.Scheduler, s.LIFX.Client, s.KV)
	s.Events = NewEventService(s.Lua, s.LIFX.Bus)
	s.Health = NewHealthService(cfg)

	deps := webhook.Deps{
		Bus:     s.LIFX.Bus,
		Actions: s.Invoker,
		Lights:  s.LIFX.Client,
		Cache:   s.Cache,
	}
	if s.Scheduler.IsEnabled() {
		deps.Schedules = s.Scheduler.Scheduler
	}
	s.Webhook = NewWebhookService(cfg, deps)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	if err := s.LIFX.Start(ctx); err != nil {
		return err
	}

	// Lua may define actions and schedules, so it loads before anything fires
	if err := s.Lua.LoadScript(); err != nil {
		return err
	}

	s.Events.Start(ctx)
	s.Lua.Start(ctx)
	s.Scheduler.Start(ctx)
	s.Health.Start(ctx)
	s.Webhook.Start(ctx)

	s.Health.SetReady(true)
	return nil
}

// ClearCache forgets every cached light and scene.
func (s *Services) ClearCache() error {
	return s.Cache.Clear("")
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources. The bus drains before the Lua worker stops
// so in-flight events still reach their actions.
func (s *Services) Close() {
	if s.Health != nil {
		s.Health.SetReady(false)
	}
	if s.LIFX != nil {
		s.LIFX.Close()
	}
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
