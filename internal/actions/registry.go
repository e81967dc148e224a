package actions

import (
	"fmt"
	"sort"
	"sync"
)

// Action is a named unit of work run by webhooks, schedules and scripts.
// Built-in actions wrap one LIFX command each; scripts add their own on top.
type Action interface {
	Name() string
	Execute(ctx *Context, args map[string]any) error
}

// SimpleAction is the standard action implementation
type SimpleAction struct {
	name string
	fn   func(ctx *Context, args map[string]any) error
}

func (a *SimpleAction) Name() string { return a.name }

func (a *SimpleAction) Execute(ctx *Context, args map[string]any) error {
	return a.fn(ctx, args)
}

// Registry maps action names to actions. It starts with the built-ins
// (set_state, activate_scene, toggle, breathe, pulse, cycle, refresh_lights
// and refresh_scenes) once RegisterBuiltins has run; Lua's action.define
// registers the rest.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates a new action registry
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

// Register adds an action to the registry
func (r *Registry) Register(action Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[action.Name()]; exists {
		if IsBuiltin(action.Name()) {
			return fmt.Errorf("action %q is a built-in LIFX command", action.Name())
		}
		return fmt.Errorf("action %q already registered", action.Name())
	}

	r.actions[action.Name()] = action
	return nil
}

// RegisterSimple adds a simple action (convenience method)
func (r *Registry) RegisterSimple(name string, fn func(ctx *Context, args map[string]any) error) error {
	return r.Register(&SimpleAction{name: name, fn: fn})
}

// Get retrieves an action by name
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, exists := r.actions[name]
	return action, exists
}

// Names returns all registered action names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBuiltin reports whether name belongs to a built-in LIFX action.
func IsBuiltin(name string) bool {
	switch name {
	case ActionSetState, ActionActivateScene, ActionToggle, ActionBreathe,
		ActionPulse, ActionCycle, ActionRefreshLights, ActionRefreshScenes:
		return true
	}
	return false
}
