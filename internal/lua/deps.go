package lua

import (
	"github.com/dokzlo13/lifxd/internal/actions"
	"github.com/dokzlo13/lifxd/internal/lua/modules"
	"github.com/dokzlo13/lifxd/internal/scheduler"
	"github.com/dokzlo13/lifxd/internal/storage"
)

// RuntimeDeps groups all dependencies needed by Lua runtime.
type RuntimeDeps struct {
	Registry  *actions.Registry
	Invoker   *actions.Invoker
	Scheduler *scheduler.Scheduler
	LIFX      modules.LIFX
	KV        *storage.KV

	// ScriptDir resolves relative script paths that do not exist in the
	// working directory, usually the directory of the config file.
	ScriptDir string
}
