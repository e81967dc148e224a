package modules

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/lifxd/internal/storage"
)

// KVModule gives scripts a persistent key-value store.
//
//	kv.set(bucket, key, value, {ttl = "10m"}) -> (ok, err)
//	kv.get(bucket, key [, default]) -> value
//	kv.delete(bucket, key) -> existed
//	kv.keys(bucket) -> {keys...}
type KVModule struct {
	store *storage.KV
}

// NewKVModule creates a new kv module
func NewKVModule(store *storage.KV) *KVModule {
	return &KVModule{store: store}
}

// Loader is the module loader for Lua
func (m *KVModule) Loader(L *lua.LState) int {
	mod := L.NewTable()
	L.SetField(mod, "set", L.NewFunction(m.set))
	L.SetField(mod, "get", L.NewFunction(m.get))
	L.SetField(mod, "delete", L.NewFunction(m.delete))
	L.SetField(mod, "keys", L.NewFunction(m.keys))
	L.Push(mod)
	return 1
}

func (m *KVModule) set(L *lua.LState) int {
	bucket := L.CheckString(1)
	key := L.CheckString(2)
	value := LuaToGo(L.CheckAny(3))
	opts := L.OptTable(4, L.NewTable())

	var ttl time.Duration
	if s := optString(opts, "ttl"); s != "" {
		var err error
		if ttl, err = time.ParseDuration(s); err != nil {
			L.Push(lua.LFalse)
			L.Push(lua.LString(err.Error()))
			return 2
		}
	}

	if err := m.store.Set(bucket, key, value, ttl); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	L.Push(lua.LNil)
	return 2
}

func (m *KVModule) get(L *lua.LState) int {
	bucket := L.CheckString(1)
	key := L.CheckString(2)
	def := L.Get(3)

	value, ok, err := m.store.Get(bucket, key)
	if err != nil {
		L.RaiseError("kv.get %s/%s: %s", bucket, key, err.Error())
		return 0
	}
	if !ok {
		L.Push(def)
		return 1
	}
	L.Push(GoToLuaValue(L, value))
	return 1
}

func (m *KVModule) delete(L *lua.LState) int {
	existed, err := m.store.Delete(L.CheckString(1), L.CheckString(2))
	if err != nil {
		L.RaiseError("kv.delete: %s", err.Error())
		return 0
	}
	L.Push(lua.LBool(existed))
	return 1
}

func (m *KVModule) keys(L *lua.LState) int {
	keys, err := m.store.Keys(L.CheckString(1))
	if err != nil {
		L.RaiseError("kv.keys: %s", err.Error())
		return 0
	}
	L.Push(GoToLuaValue(L, keys))
	return 1
}
