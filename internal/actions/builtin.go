package actions

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lifxd/internal/lifx"
)

// Built-in action names
const (
	ActionSetState      = "set_state"
	ActionActivateScene = "activate_scene"
	ActionToggle        = "toggle"
	ActionBreathe       = "breathe"
	ActionPulse         = "pulse"
	ActionCycle         = "cycle"
	ActionRefreshLights = "refresh_lights"
	ActionRefreshScenes = "refresh_scenes"
)

// targetArgs are the args shared by actions addressing a set of lights
type targetArgs struct {
	Selector string   `mapstructure:"selector"`
	Duration *float64 `mapstructure:"duration"`
}

type sceneArgs struct {
	SceneID  string   `mapstructure:"scene_id"`
	Duration *float64 `mapstructure:"duration"`
}

// RegisterBuiltins registers one action per LIFX command
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]func(*Context, map[string]any) error{
		ActionSetState:      setState,
		ActionActivateScene: activateScene,
		ActionToggle:        toggle,
		ActionBreathe:       effect(ActionBreathe),
		ActionPulse:         effect(ActionPulse),
		ActionCycle:         cycle,
		ActionRefreshLights: refreshLights,
		ActionRefreshScenes: refreshScenes,
	}

	var errs []error
	for name, fn := range builtins {
		if err := r.RegisterSimple(name, fn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func setState(ctx *Context, args map[string]any) error {
	var target targetArgs
	if err := decodeArgs(args, &target); err != nil {
		return err
	}

	state := lifx.StateFromMap(args).Sanitize()
	if state.IsEmpty() {
		return fmt.Errorf("%s: no valid state fields in %v", ActionSetState, args)
	}

	if err := ctx.Lights().SetState(ctx.Ctx(), target.Selector, state); err != nil {
		return fmt.Errorf("%s %s: %w", ActionSetState, selectorLabel(target.Selector), err)
	}
	return nil
}

func activateScene(ctx *Context, args map[string]any) error {
	var scene sceneArgs
	if err := decodeArgs(args, &scene); err != nil {
		return err
	}
	if scene.SceneID == "" {
		return fmt.Errorf("%s: scene_id is required", ActionActivateScene)
	}

	if err := ctx.Lights().ActivateScene(ctx.Ctx(), scene.SceneID, scene.Duration); err != nil {
		return fmt.Errorf("%s %s: %w", ActionActivateScene, scene.SceneID, err)
	}
	return nil
}

func toggle(ctx *Context, args map[string]any) error {
	var target targetArgs
	if err := decodeArgs(args, &target); err != nil {
		return err
	}

	res, err := ctx.Lights().Toggle(ctx.Ctx(), target.Selector, target.Duration)
	if err != nil {
		return fmt.Errorf("%s %s: %w", ActionToggle, selectorLabel(target.Selector), err)
	}
	logFailed(ActionToggle, res)
	return nil
}

func effect(name string) func(*Context, map[string]any) error {
	return func(ctx *Context, args map[string]any) error {
		var target targetArgs
		if err := decodeArgs(args, &target); err != nil {
			return err
		}

		params := lifx.EffectParamsFromMap(args)

		var (
			res *lifx.Results
			err error
		)
		if name == ActionPulse {
			res, err = ctx.Lights().Pulse(ctx.Ctx(), target.Selector, params)
		} else {
			res, err = ctx.Lights().Breathe(ctx.Ctx(), target.Selector, params)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", name, selectorLabel(target.Selector), err)
		}
		logFailed(name, res)
		return nil
	}
}

func cycle(ctx *Context, args map[string]any) error {
	var target targetArgs
	if err := decodeArgs(args, &target); err != nil {
		return err
	}

	params := lifx.CycleParamsFromMap(args)
	if len(params.Sanitize().States) == 0 {
		return fmt.Errorf("%s: at least one valid state is required", ActionCycle)
	}

	res, err := ctx.Lights().Cycle(ctx.Ctx(), target.Selector, params)
	if err != nil {
		return fmt.Errorf("%s %s: %w", ActionCycle, selectorLabel(target.Selector), err)
	}
	logFailed(ActionCycle, res)
	return nil
}

func refreshLights(ctx *Context, args map[string]any) error {
	var target targetArgs
	if err := decodeArgs(args, &target); err != nil {
		return err
	}

	lights, err := ctx.Lights().ListLights(ctx.Ctx(), target.Selector)
	if err != nil {
		return fmt.Errorf("%s: %w", ActionRefreshLights, err)
	}

	log.Info().Int("lights", len(lights)).Str("selector", selectorLabel(target.Selector)).Msg("Lights refreshed")

	if cache := ctx.Cache(); cache != nil {
		if err := cache.StoreLights(lights); err != nil {
			return fmt.Errorf("%s: failed to cache lights: %w", ActionRefreshLights, err)
		}
	}
	return nil
}

func refreshScenes(ctx *Context, _ map[string]any) error {
	scenes, err := ctx.Lights().ListScenes(ctx.Ctx())
	if err != nil {
		return fmt.Errorf("%s: %w", ActionRefreshScenes, err)
	}

	log.Info().Int("scenes", len(scenes)).Msg("Scenes refreshed")

	if cache := ctx.Cache(); cache != nil {
		if err := cache.StoreScenes(scenes); err != nil {
			return fmt.Errorf("%s: failed to cache scenes: %w", ActionRefreshScenes, err)
		}
	}
	return nil
}

// decodeArgs maps loose action args (Lua tables, webhook JSON, YAML) onto a struct
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid action args: %w", err)
	}
	return nil
}

func logFailed(action string, res *lifx.Results) {
	if res == nil {
		return
	}
	for _, r := range res.Failed() {
		log.Warn().
			Str("action", action).
			Str("light_id", r.ID).
			Str("label", r.Label).
			Str("status", r.Status).
			Msg("Light did not apply command")
	}
}

func selectorLabel(selector string) string {
	if selector == "" {
		return lifx.SelectorAll
	}
	return selector
}
