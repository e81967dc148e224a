package modules

import (
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lifxd/internal/scheduler"
)

// SchedModule provides sched.define(), sched.sun() and sched.every() to Lua.
//
// ERROR HANDLING CONVENTION:
//   - define(), sun(), every(): L.RaiseError() for setup failures
//   - run_now(): returns (ok, err)
type SchedModule struct {
	scheduler *scheduler.Scheduler
}

// NewSchedModule creates a new sched module
func NewSchedModule(sched *scheduler.Scheduler) *SchedModule {
	return &SchedModule{
		scheduler: sched,
	}
}

// Loader is the module loader for Lua
func (m *SchedModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "define", L.NewFunction(m.define))
	L.SetField(mod, "sun", L.NewFunction(m.sun))
	L.SetField(mod, "every", L.NewFunction(m.every))
	L.SetField(mod, "disable", L.NewFunction(m.disable))
	L.SetField(mod, "run_now", L.NewFunction(m.runNow))
	L.SetField(mod, "list", L.NewFunction(m.list))
	L.SetField(mod, "print", L.NewFunction(m.print))

	L.Push(mod)
	return 1
}

// define(id, "HH:MM", action_name, args, {tag=, misfire="skip"|"run_latest"})
func (m *SchedModule) define(L *lua.LState) int {
	id := L.CheckString(1)
	at := L.CheckString(2)
	actionName := L.CheckString(3)
	args := LuaTableToMap(L.OptTable(4, L.NewTable()))
	opts := L.OptTable(5, L.NewTable())

	policy, err := scheduler.ParseMisfirePolicy(optString(opts, "misfire"))
	if err != nil {
		L.RaiseError("failed to define schedule: %s", err.Error())
		return 0
	}

	if err := m.scheduler.Define(id, at, actionName, args, optString(opts, "tag"), policy); err != nil {
		L.RaiseError("failed to define schedule: %s", err.Error())
	}
	return 0
}

// sun(id, "sunset", action_name, args, {offset="-30m", tag=, misfire=})
func (m *SchedModule) sun(L *lua.LState) int {
	id := L.CheckString(1)
	event := L.CheckString(2)
	actionName := L.CheckString(3)
	args := LuaTableToMap(L.OptTable(4, L.NewTable()))
	opts := L.OptTable(5, L.NewTable())

	var offset time.Duration
	if s := optString(opts, "offset"); s != "" {
		var err error
		if offset, err = time.ParseDuration(s); err != nil {
			L.RaiseError("failed to define schedule: %s", err.Error())
			return 0
		}
	}
	policy, err := scheduler.ParseMisfirePolicy(optString(opts, "misfire"))
	if err != nil {
		L.RaiseError("failed to define schedule: %s", err.Error())
		return 0
	}

	if err := m.scheduler.DefineSun(id, event, offset, actionName, args, optString(opts, "tag"), policy); err != nil {
		L.RaiseError("failed to define schedule: %s", err.Error())
	}
	return 0
}

// every(id, "30m", action_name, args, {tag=})
func (m *SchedModule) every(L *lua.LState) int {
	id := L.CheckString(1)
	interval, err := time.ParseDuration(L.CheckString(2))
	if err != nil {
		L.RaiseError("failed to define schedule: %s", err.Error())
		return 0
	}
	actionName := L.CheckString(3)
	args := LuaTableToMap(L.OptTable(4, L.NewTable()))
	opts := L.OptTable(5, L.NewTable())

	if err := m.scheduler.DefinePeriodic(id, interval, actionName, args, optString(opts, "tag")); err != nil {
		L.RaiseError("failed to define schedule: %s", err.Error())
	}
	return 0
}

// disable(id) -> existed
func (m *SchedModule) disable(L *lua.LState) int {
	L.Push(lua.LBool(m.scheduler.Unregister(L.CheckString(1))))
	return 1
}

// run_now(id) -> (ok, err)
func (m *SchedModule) runNow(L *lua.LState) int {
	if err := m.scheduler.RunNow(L.CheckString(1)); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	L.Push(lua.LNil)
	return 2
}

// list() -> {ids...}
func (m *SchedModule) list(L *lua.LState) int {
	L.Push(GoToLuaValue(L, m.scheduler.IDs()))
	return 1
}

// print() - Log today's schedule
func (m *SchedModule) print(L *lua.LState) int {
	log.Info().Msg("Current schedule:\n" + m.scheduler.FormatSchedule())
	return 0
}

func optString(tbl *lua.LTable, key string) string {
	if v := tbl.RawGetString(key); v != lua.LNil {
		return lua.LVAsString(v)
	}
	return ""
}
