package modules

import (
	"errors"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lifxd/internal/actions"
)

// SourceLua marks invocations started by action.run
const SourceLua = "lua"

// ActionModule provides action.define(), action.run() and action.list() to Lua.
//
// ERROR HANDLING CONVENTION:
//   - define(): L.RaiseError() for setup failures
//   - run(): returns (ok, err) so scripts can react to API failures
type ActionModule struct {
	registry *actions.Registry
	invoker  *actions.Invoker
}

// NewActionModule creates a new action module
func NewActionModule(registry *actions.Registry, invoker *actions.Invoker) *ActionModule {
	return &ActionModule{
		registry: registry,
		invoker:  invoker,
	}
}

// Loader is the module loader for Lua
func (m *ActionModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "define", L.NewFunction(m.define))
	L.SetField(mod, "run", L.NewFunction(m.run))
	L.SetField(mod, "list", L.NewFunction(m.list))

	L.Push(mod)
	return 1
}

// define(name, function(ctx, args)) - Define an action.
// The function fails the invocation by raising an error or by returning
// nil/false followed by a message.
func (m *ActionModule) define(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	if err := m.registry.Register(&luaAction{L: L, name: name, fn: fn}); err != nil {
		L.RaiseError("failed to register action: %s", err.Error())
		return 0
	}
	return 0
}

// run(name, args) -> (ok, err)
// Runs an action immediately without an idempotency key. This executes on
// the Lua worker, so it must not go through the work queue.
func (m *ActionModule) run(L *lua.LState) int {
	name := L.CheckString(1)
	args := LuaTableToMap(L.OptTable(2, L.NewTable()))

	log.Debug().Str("action", name).Msg("Running action from Lua")

	if err := m.invoker.InvokeWithSource(luaContext(L), name, args, "", SourceLua, ""); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}

	L.Push(lua.LTrue)
	L.Push(lua.LNil)
	return 2
}

// list() -> {names...}
func (m *ActionModule) list(L *lua.LState) int {
	L.Push(GoToLuaValue(L, m.registry.Names()))
	return 1
}

// luaAction wraps a Lua function as an action.
// The *lua.LState is captured at definition time; this holds because all Lua
// execution is single-threaded on the runtime worker and the state is never
// recreated.
type luaAction struct {
	L    *lua.LState
	name string
	fn   *lua.LFunction
}

func (a *luaAction) Name() string { return a.name }

func (a *luaAction) Execute(ctx *actions.Context, args map[string]any) error {
	prev := a.L.Context()
	a.L.SetContext(ctx.Ctx())
	defer func() {
		if prev != nil {
			a.L.SetContext(prev)
		} else {
			a.L.RemoveContext()
		}
	}()

	a.L.Push(a.fn)
	a.L.Push(a.contextTable(ctx))
	a.L.Push(MapToLuaTable(a.L, args))

	if err := a.L.PCall(2, 2, nil); err != nil {
		return err
	}

	ok, msg := a.L.Get(-2), a.L.Get(-1)
	a.L.Pop(2)

	if ok == lua.LFalse || (ok == lua.LNil && msg != lua.LNil) {
		if msg == lua.LNil {
			return errors.New("action returned false")
		}
		return errors.New(lua.LVAsString(msg))
	}
	return nil
}

// contextTable builds the ctx argument: ctx.source and ctx.run(name, args)
func (a *luaAction) contextTable(actx *actions.Context) *lua.LTable {
	L := a.L
	tbl := L.NewTable()
	L.SetField(tbl, "source", lua.LString(actx.Source()))
	L.SetField(tbl, "action", lua.LString(a.name))
	L.SetField(tbl, "run", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		args := LuaTableToMap(L.OptTable(2, L.NewTable()))
		if err := actx.RunAction(name, args); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
		L.Push(lua.LTrue)
		L.Push(lua.LNil)
		return 2
	}))
	return tbl
}
