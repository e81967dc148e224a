package app

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/actions"
	"github.com/dokzlo13/lifxd/internal/config"
	luart "github.com/dokzlo13/lifxd/internal/lua"
	"github.com/dokzlo13/lifxd/internal/lua/modules"
	"github.com/dokzlo13/lifxd/internal/scheduler"
	"github.com/dokzlo13/lifxd/internal/storage"
)

// LuaService wraps the Lua runtime and provides thread-safe execution.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
	invoker *actions.Invoker
}

// NewLuaService creates a new LuaService. sched may be nil when the
// scheduler is disabled.
func NewLuaService(
	cfg *config.Config,
	configPath string,
	registry *actions.Registry,
	invoker *actions.Invoker,
	sched *scheduler.Scheduler,
	client modules.LIFX,
	kv *storage.KV,
) *LuaService {
	runtime := luart.NewRuntime(luart.RuntimeDeps{
		Registry:  registry,
		Invoker:   invoker,
		Scheduler: sched,
		LIFX:      client,
		KV:        kv,
		ScriptDir: filepath.Dir(configPath),
	})

	return &LuaService{
		cfg:     cfg,
		Runtime: runtime,
		invoker: invoker,
	}
}

// LoadScript loads and executes the configured Lua script, if any.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	if s.cfg.Script == "" {
		log.Info().Msg("No Lua script configured")
		return nil
	}
	return s.Runtime.LoadScript(s.cfg.Script)
}

// Start begins the Lua worker goroutine and runs startup actions.
func (s *LuaService) Start(ctx context.Context) {
	go s.Runtime.Run(ctx)
	go s.runStartupActions(ctx)
}

// runStartupActions fills the scene cache; lights are cached by LIFXService.Start.
func (s *LuaService) runStartupActions(ctx context.Context) {
	log.Info().Msg("Running startup actions")
	s.Runtime.Do(ctx, func(workCtx context.Context) {
		if err := s.invoker.InvokeWithSource(workCtx, actions.ActionRefreshScenes, nil, "", "startup", ""); err != nil {
			log.Error().Err(err).Msg("Failed to refresh scenes")
		}
	})
}

// InvokeThroughLua invokes an action on the Lua worker. Lua-defined actions
// must only run there.
func (s *LuaService) InvokeThroughLua(ctx context.Context, actionName string, args map[string]any, idempotencyKey, source, defID string) error {
	return s.Runtime.DoSyncWithResult(ctx, func(workCtx context.Context) error {
		return s.invoker.InvokeWithSource(workCtx, actionName, args, idempotencyKey, source, defID)
	})
}

// Close closes the Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
