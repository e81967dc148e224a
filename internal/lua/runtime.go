// Package lua hosts the scripting runtime. A single worker goroutine owns
// the Lua state; every other goroutine hands it work through a queue.
package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lifxd/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// LuaWork represents work to be executed on the Lua VM.
// All Lua execution MUST go through this to ensure thread safety.
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L    *lua.LState
	deps RuntimeDeps

	workQueue chan LuaWork

	// closing is closed to stop accepting work; stopped is closed when Run returns
	closing   chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
	stopped   chan struct{}
}

// NewRuntime creates a new Lua runtime with the log and action modules
// preloaded, plus sched, lifx and kv when their dependency is set
func NewRuntime(deps RuntimeDeps) *Runtime {
	r := &Runtime{
		L:         lua.NewState(),
		deps:      deps,
		workQueue: make(chan LuaWork, 100),
		closing:   make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	r.registerModules()
	return r
}

func (r *Runtime) registerModules() {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("action", modules.NewActionModule(r.deps.Registry, r.deps.Invoker).Loader)
	if r.deps.Scheduler != nil {
		r.L.PreloadModule("sched", modules.NewSchedModule(r.deps.Scheduler).Loader)
	}
	if r.deps.LIFX != nil {
		r.L.PreloadModule("lifx", modules.NewLIFXModule(r.deps.LIFX).Loader)
	}
	if r.deps.KV != nil {
		r.L.PreloadModule("kv", modules.NewKVModule(r.deps.KV).Loader)
	}
}

// Close stops accepting work, waits for a running worker to drain and
// closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
		if r.running.Load() {
			<-r.stopped
		}
		r.L.Close()
	})
}

// Do queues work without blocking. It returns false if the runtime is
// closing, the queue is full or ctx is cancelled.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	if r.isClosing() {
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	}
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work and blocks until there is space in the queue.
func (r *Runtime) DoSync(ctx context.Context, work LuaWork) error {
	if r.isClosing() {
		return ErrRuntimeClosed
	}
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- work:
		return nil
	}
}

// DoSyncWithResult queues work and waits for its result. Bus handlers use it
// to run actions on the Lua worker.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrapped := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	if r.isClosing() {
		return ErrRuntimeClosed
	}
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrapped:
	}

	select {
	case <-r.stopped:
		// the worker may have run the item while draining
		select {
		case err := <-done:
			return err
		default:
			return ErrRuntimeClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (r *Runtime) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Run starts the Lua worker. This is the ONLY goroutine that touches Lua
// after LoadScript. It exits when ctx is cancelled or the runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	r.running.Store(true)
	defer close(r.stopped)

	for {
		select {
		case <-ctx.Done():
			r.drainQueue(context.WithoutCancel(ctx))
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript loads and executes a Lua script. It must be called before Run.
func (r *Runtime) LoadScript(path string) error {
	if !filepath.IsAbs(path) && r.deps.ScriptDir != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = filepath.Join(r.deps.ScriptDir, path)
		}
	}

	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes Lua source. It must be called before Run.
func (r *Runtime) LoadString(source string) error {
	if err := r.L.DoString(source); err != nil {
		return fmt.Errorf("failed to execute Lua source: %w", err)
	}
	return nil
}
