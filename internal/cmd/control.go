package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/lifxd/internal/lifx"
)

func newStateCmd(opts *rootOptions) *cobra.Command {
	var (
		power      string
		color      string
		brightness float64
		duration   float64
	)

	cmd := &cobra.Command{
		Use:   "state <selector>",
		Short: "Set power, color or brightness of lights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := lifx.State{Power: power, Color: color}
			if cmd.Flags().Changed("brightness") {
				state.Brightness = lifx.Float(brightness)
			}
			if cmd.Flags().Changed("duration") {
				state.Duration = lifx.Float(duration)
			}
			if state.IsEmpty() {
				return fmt.Errorf("nothing to set: pass --power, --color, --brightness or --duration")
			}

			return opts.withClient(cmd, func(c *lifx.Client) error {
				if err := c.SetState(cmd.Context(), args[0], state); err != nil {
					return err
				}
				renderResults(cmd.OutOrStdout(), nil)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&power, "power", "", "on or off")
	f.StringVar(&color, "color", "", "color string, e.g. \"kelvin:2700\" or \"red saturation:0.5\"")
	f.Float64Var(&brightness, "brightness", 0, "brightness from 0 to 1")
	f.Float64Var(&duration, "duration", 0, "transition time in seconds")
	return cmd
}

func newSceneCmd(opts *rootOptions) *cobra.Command {
	var duration float64

	cmd := &cobra.Command{
		Use:   "scene <scene-uuid>",
		Short: "Activate a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d *float64
			if cmd.Flags().Changed("duration") {
				d = lifx.Float(duration)
			}
			return opts.withClient(cmd, func(c *lifx.Client) error {
				if err := c.ActivateScene(cmd.Context(), args[0], d); err != nil {
					return err
				}
				renderResults(cmd.OutOrStdout(), nil)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&duration, "duration", 0, "transition time in seconds")
	return cmd
}

func newToggleCmd(opts *rootOptions) *cobra.Command {
	var duration float64

	cmd := &cobra.Command{
		Use:   "toggle [selector]",
		Short: "Toggle power of lights (default all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var d *float64
			if cmd.Flags().Changed("duration") {
				d = lifx.Float(duration)
			}
			return opts.withClient(cmd, func(c *lifx.Client) error {
				res, err := c.Toggle(cmd.Context(), selectorArg(args), d)
				if err != nil {
					return err
				}
				renderResults(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&duration, "duration", 0, "transition time in seconds")
	return cmd
}

// newEffectCmd builds the breathe and pulse commands, which share parameters.
func newEffectCmd(opts *rootOptions, effect string) *cobra.Command {
	var (
		p                    lifx.EffectParams
		period, cycles, peak float64
		persist, powerOn     bool
	)

	cmd := &cobra.Command{
		Use:   effect + " [selector]",
		Short: "Run the " + effect + " effect (default all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if f.Changed("period") {
				p.Period = lifx.Float(period)
			}
			if f.Changed("cycles") {
				p.Cycles = lifx.Float(cycles)
			}
			if f.Changed("peak") {
				p.Peak = lifx.Float(peak)
			}
			if f.Changed("persist") {
				p.Persist = lifx.Bool(persist)
			}
			if f.Changed("power-on") {
				p.PowerOn = lifx.Bool(powerOn)
			}

			return opts.withClient(cmd, func(c *lifx.Client) error {
				run := c.Breathe
				if effect == "pulse" {
					run = c.Pulse
				}
				res, err := run(cmd.Context(), selectorArg(args), p)
				if err != nil {
					return err
				}
				renderResults(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.Color, "color", "", "color to switch to")
	f.StringVar(&p.FromColor, "from-color", "", "color to start from (default current)")
	f.Float64Var(&period, "period", 0, "seconds per cycle")
	f.Float64Var(&cycles, "cycles", 0, "number of cycles")
	f.BoolVar(&persist, "persist", false, "keep the last effect color")
	f.BoolVar(&powerOn, "power-on", true, "turn lights on if they are off")
	if effect == "breathe" {
		f.Float64Var(&peak, "peak", 0, "position of the brightest point of a cycle, 0 to 1")
	}
	return cmd
}

func newCycleCmd(opts *rootOptions) *cobra.Command {
	var (
		states    []string
		defaults  string
		direction string
	)

	cmd := &cobra.Command{
		Use:   "cycle [selector]",
		Short: "Advance lights to the next of 2 to 5 states (default all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := lifx.CycleParams{Direction: direction}
			for _, spec := range states {
				s, err := parseState(spec)
				if err != nil {
					return err
				}
				params.States = append(params.States, s)
			}
			if defaults != "" {
				d, err := parseState(defaults)
				if err != nil {
					return err
				}
				params.Defaults = &d
			}

			return opts.withClient(cmd, func(c *lifx.Client) error {
				res, err := c.Cycle(cmd.Context(), selectorArg(args), params)
				if err != nil {
					return err
				}
				renderResults(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&states, "state", nil, "state as key=value pairs, e.g. \"power=on,brightness=0.5\" (repeatable)")
	f.StringVar(&defaults, "defaults", "", "values applied to every state, same format as --state")
	f.StringVar(&direction, "direction", lifx.DirectionForward, "forward or backward")
	return cmd
}

// parseState reads "power=on,color=blue,brightness=0.5,duration=2". A
// segment without '=' continues the previous value, so "color=rgb:255,0,0"
// keeps its commas.
func parseState(spec string) (lifx.State, error) {
	var pairs []string
	for _, seg := range strings.Split(spec, ",") {
		if !strings.Contains(seg, "=") && len(pairs) > 0 {
			pairs[len(pairs)-1] += "," + seg
			continue
		}
		pairs = append(pairs, seg)
	}

	m := make(map[string]any)
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return lifx.State{}, fmt.Errorf("state %q: expected key=value, got %q", spec, pair)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "power", "color":
			m[key] = value
		case "brightness", "duration":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return lifx.State{}, fmt.Errorf("state %q: %s: %w", spec, key, err)
			}
			m[key] = f
		default:
			return lifx.State{}, fmt.Errorf("state %q: unknown key %q", spec, key)
		}
	}
	return lifx.StateFromMap(m), nil
}
