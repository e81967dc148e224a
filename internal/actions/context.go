// Package actions provides the action registry and invocation system.
package actions

import (
	"context"

	"github.com/dokzlo13/lifxd/internal/lifx"
)

// Lights is the part of the LIFX client actions may use
type Lights interface {
	ListLights(ctx context.Context, selector string) ([]lifx.Light, error)
	ListScenes(ctx context.Context) ([]lifx.Scene, error)
	SetState(ctx context.Context, selector string, state lifx.State) error
	ActivateScene(ctx context.Context, sceneID string, duration *float64) error
	Toggle(ctx context.Context, selector string, duration *float64) (*lifx.Results, error)
	Breathe(ctx context.Context, selector string, params lifx.EffectParams) (*lifx.Results, error)
	Pulse(ctx context.Context, selector string, params lifx.EffectParams) (*lifx.Results, error)
	Cycle(ctx context.Context, selector string, params lifx.CycleParams) (*lifx.Results, error)
	RateLimit() *lifx.RateLimit
}

// Cache receives fresh API views from refresh actions
type Cache interface {
	StoreLights(lights []lifx.Light) error
	StoreScenes(scenes []lifx.Scene) error
}

// Context is the capability interface provided to actions
// It exposes stable methods, not raw pointers
type Context struct {
	ctx       context.Context // Go context for cancellation/timeout
	lights    Lights
	cache     Cache
	source    string
	runAction func(name string, args map[string]any) error
}

// NewContext creates a new action Context. cache may be nil.
func NewContext(ctx context.Context, lights Lights, cache Cache) *Context {
	return &Context{
		ctx:    ctx,
		lights: lights,
		cache:  cache,
	}
}

// Ctx returns the Go context for cancellation
func (c *Context) Ctx() context.Context {
	return c.ctx
}

// Lights returns the LIFX API
func (c *Context) Lights() Lights {
	return c.lights
}

// Cache returns the resource cache, or nil when none is configured
func (c *Context) Cache() Cache {
	return c.cache
}

// Source returns what triggered the invocation ("webhook", "schedule", ...)
func (c *Context) Source() string {
	return c.source
}

// RunAction runs another action by name (for composition)
func (c *Context) RunAction(name string, args map[string]any) error {
	if c.runAction != nil {
		return c.runAction(name, args)
	}
	return nil
}
