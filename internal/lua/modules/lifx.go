package modules

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lifxd/internal/actions"
	"github.com/dokzlo13/lifxd/internal/lifx"
)

// LIFX is the client surface exposed to scripts
type LIFX interface {
	actions.Lights
	ValidateColor(ctx context.Context, color string) (*lifx.Color, error)
}

// LIFXModule exposes the LIFX API to Lua.
//
// Every call returns (value, err, kind). On failure value is nil, err is the
// message and kind is one of "rate_limited", "transport", "protocol", "api".
type LIFXModule struct {
	client LIFX
}

// NewLIFXModule creates a new lifx module
func NewLIFXModule(client LIFX) *LIFXModule {
	return &LIFXModule{client: client}
}

// Loader is the module loader for Lua
func (m *LIFXModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "lights", L.NewFunction(m.lights))
	L.SetField(mod, "scenes", L.NewFunction(m.scenes))
	L.SetField(mod, "color", L.NewFunction(m.color))
	L.SetField(mod, "set_state", L.NewFunction(m.setState))
	L.SetField(mod, "activate_scene", L.NewFunction(m.activateScene))
	L.SetField(mod, "toggle", L.NewFunction(m.toggle))
	L.SetField(mod, "breathe", L.NewFunction(m.breathe))
	L.SetField(mod, "pulse", L.NewFunction(m.pulse))
	L.SetField(mod, "cycle", L.NewFunction(m.cycle))
	L.SetField(mod, "ratelimit", L.NewFunction(m.rateLimit))

	L.Push(mod)
	return 1
}

// lights(selector?) -> (lights, err, kind)
func (m *LIFXModule) lights(L *lua.LState) int {
	lights, err := m.client.ListLights(luaContext(L), L.OptString(1, ""))
	return pushResult(L, lights, err)
}

// scenes() -> (scenes, err, kind)
func (m *LIFXModule) scenes(L *lua.LState) int {
	scenes, err := m.client.ListScenes(luaContext(L))
	return pushResult(L, scenes, err)
}

// color(string) -> (color, err, kind)
func (m *LIFXModule) color(L *lua.LState) int {
	color, err := m.client.ValidateColor(luaContext(L), L.CheckString(1))
	return pushResult(L, color, err)
}

// set_state(selector, {power=, color=, brightness=, duration=}) -> (true, err, kind)
func (m *LIFXModule) setState(L *lua.LState) int {
	selector := L.OptString(1, "")
	state := lifx.StateFromMap(LuaTableToMap(L.CheckTable(2)))
	return pushResult(L, true, m.client.SetState(luaContext(L), selector, state))
}

// activate_scene(scene_id, duration?) -> (true, err, kind)
func (m *LIFXModule) activateScene(L *lua.LState) int {
	sceneID := L.CheckString(1)
	return pushResult(L, true, m.client.ActivateScene(luaContext(L), sceneID, optFloat(L, 2)))
}

// toggle(selector?, duration?) -> (results, err, kind)
func (m *LIFXModule) toggle(L *lua.LState) int {
	res, err := m.client.Toggle(luaContext(L), L.OptString(1, ""), optFloat(L, 2))
	return pushResult(L, res, err)
}

// breathe(selector, {color=, from_color=, period=, cycles=, persist=, power_on=, peak=})
func (m *LIFXModule) breathe(L *lua.LState) int {
	params := lifx.EffectParamsFromMap(LuaTableToMap(L.OptTable(2, L.NewTable())))
	res, err := m.client.Breathe(luaContext(L), L.OptString(1, ""), params)
	return pushResult(L, res, err)
}

// pulse(selector, {...}) takes the same parameters as breathe
func (m *LIFXModule) pulse(L *lua.LState) int {
	params := lifx.EffectParamsFromMap(LuaTableToMap(L.OptTable(2, L.NewTable())))
	res, err := m.client.Pulse(luaContext(L), L.OptString(1, ""), params)
	return pushResult(L, res, err)
}

// cycle(selector, {states={...}, defaults={...}, direction="forward"|"backward"})
func (m *LIFXModule) cycle(L *lua.LState) int {
	params := lifx.CycleParamsFromMap(LuaTableToMap(L.CheckTable(2)))
	res, err := m.client.Cycle(luaContext(L), L.OptString(1, ""), params)
	return pushResult(L, res, err)
}

// ratelimit() -> {limit=, remaining=, reset=} or nil before the first response
func (m *LIFXModule) rateLimit(L *lua.LState) int {
	rl := m.client.RateLimit()
	if rl == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(MapToLuaTable(L, map[string]any{
		"limit":     rl.Limit,
		"remaining": rl.Remaining,
		"reset":     rl.Reset,
	}))
	return 1
}

func pushResult(L *lua.LState, v any, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		L.Push(lua.LString(lifx.KindOf(err)))
		return 3
	}

	value, convErr := modelToLua(L, v)
	if convErr != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(convErr.Error()))
		L.Push(lua.LString(lifx.KindOther))
		return 3
	}
	L.Push(value)
	L.Push(lua.LNil)
	L.Push(lua.LNil)
	return 3
}

func optFloat(L *lua.LState, n int) *float64 {
	if v, ok := L.Get(n).(lua.LNumber); ok {
		return lifx.Float(float64(v))
	}
	return nil
}
