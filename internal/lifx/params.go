package lifx

import (
	"net/url"
	"strconv"
)

// Bounds accepted by the API.
const (
	MaxDuration = 3155760000.0 // 100 years, in seconds

	PowerOn  = "on"
	PowerOff = "off"

	DirectionForward  = "forward"
	DirectionBackward = "backward"
)

// State is a set of light properties for set-state and cycle requests.
// Nil pointers and empty strings are omitted from the request.
type State struct {
	Power      string   `json:"power,omitempty"`
	Color      string   `json:"color,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Duration   *float64 `json:"duration,omitempty"`
}

// Sanitize returns a copy holding only the fields whose values the API accepts.
func (s State) Sanitize() State {
	var out State
	if s.Power == PowerOn || s.Power == PowerOff {
		out.Power = s.Power
	}
	if s.Color != "" {
		out.Color = s.Color
	}
	if inRange(s.Brightness, 0, 1) {
		out.Brightness = s.Brightness
	}
	if inRange(s.Duration, 0, MaxDuration) {
		out.Duration = s.Duration
	}
	return out
}

// IsEmpty reports whether no field is set.
func (s State) IsEmpty() bool {
	return s.Power == "" && s.Color == "" && s.Brightness == nil && s.Duration == nil
}

// Values encodes the state as form fields.
func (s State) Values() url.Values {
	v := url.Values{}
	setString(v, "power", s.Power)
	setString(v, "color", s.Color)
	setFloat(v, "brightness", s.Brightness)
	setFloat(v, "duration", s.Duration)
	return v
}

// StateFromMap copies the recognised keys of a loosely typed map (Lua tables,
// webhook JSON, YAML args) into a State. Unknown keys and values of the wrong
// type are dropped; ranges are not checked here, see Sanitize.
func StateFromMap(m map[string]any) State {
	var s State
	s.Power, _ = m["power"].(string)
	s.Color, _ = m["color"].(string)
	s.Brightness = floatField(m, "brightness")
	s.Duration = floatField(m, "duration")
	return s
}

// EffectParams configures the breathe and pulse effects.
type EffectParams struct {
	Color     string   `json:"color,omitempty"`
	FromColor string   `json:"from_color,omitempty"`
	Period    *float64 `json:"period,omitempty"`
	Cycles    *float64 `json:"cycles,omitempty"`
	Persist   *bool    `json:"persist,omitempty"`
	PowerOn   *bool    `json:"power_on,omitempty"`
	Peak      *float64 `json:"peak,omitempty"`
}

// Sanitize returns a copy holding only the fields whose values the API accepts.
func (p EffectParams) Sanitize() EffectParams {
	out := EffectParams{
		Color:     p.Color,
		FromColor: p.FromColor,
		Persist:   p.Persist,
		PowerOn:   p.PowerOn,
	}
	if p.Period != nil && *p.Period > 0 {
		out.Period = p.Period
	}
	if p.Cycles != nil && *p.Cycles > 0 {
		out.Cycles = p.Cycles
	}
	if inRange(p.Peak, 0, 1) {
		out.Peak = p.Peak
	}
	return out
}

// Values encodes the parameters as form fields.
func (p EffectParams) Values() url.Values {
	v := url.Values{}
	setString(v, "color", p.Color)
	setString(v, "from_color", p.FromColor)
	setFloat(v, "period", p.Period)
	setFloat(v, "cycles", p.Cycles)
	setBool(v, "persist", p.Persist)
	setBool(v, "power_on", p.PowerOn)
	setFloat(v, "peak", p.Peak)
	return v
}

// EffectParamsFromMap is the EffectParams counterpart of StateFromMap.
func EffectParamsFromMap(m map[string]any) EffectParams {
	var p EffectParams
	p.Color, _ = m["color"].(string)
	p.FromColor, _ = m["from_color"].(string)
	p.Period = floatField(m, "period")
	p.Cycles = floatField(m, "cycles")
	p.Persist = boolField(m, "persist")
	p.PowerOn = boolField(m, "power_on")
	p.Peak = floatField(m, "peak")
	return p
}

// CycleParams is the JSON body of a cycle request. The API expects 2 to 5 states.
type CycleParams struct {
	States    []State `json:"states"`
	Defaults  *State  `json:"defaults,omitempty"`
	Direction string  `json:"direction,omitempty"`
}

// Sanitize returns a copy with every state sanitized and an unknown direction dropped.
func (p CycleParams) Sanitize() CycleParams {
	out := CycleParams{States: make([]State, 0, len(p.States))}
	for _, s := range p.States {
		out.States = append(out.States, s.Sanitize())
	}
	if p.Defaults != nil {
		d := p.Defaults.Sanitize()
		if !d.IsEmpty() {
			out.Defaults = &d
		}
	}
	if p.Direction == DirectionForward || p.Direction == DirectionBackward {
		out.Direction = p.Direction
	}
	return out
}

// CycleParamsFromMap reads "states" (list of maps), "defaults" (map) and "direction".
func CycleParamsFromMap(m map[string]any) CycleParams {
	var p CycleParams
	if list, ok := m["states"].([]any); ok {
		for _, item := range list {
			if sm, ok := item.(map[string]any); ok {
				p.States = append(p.States, StateFromMap(sm))
			}
		}
	}
	if dm, ok := m["defaults"].(map[string]any); ok {
		d := StateFromMap(dm)
		p.Defaults = &d
	}
	p.Direction, _ = m["direction"].(string)
	return p
}

func inRange(v *float64, lo, hi float64) bool {
	return v != nil && *v >= lo && *v <= hi
}

func floatField(m map[string]any, key string) *float64 {
	var f float64
	switch n := m[key].(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return nil
	}
	return &f
}

func boolField(m map[string]any, key string) *bool {
	b, ok := m[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

func setString(v url.Values, key, s string) {
	if s != "" {
		v.Set(key, s)
	}
}

func setFloat(v url.Values, key string, f *float64) {
	if f != nil {
		v.Set(key, strconv.FormatFloat(*f, 'f', -1, 64))
	}
}

func setBool(v url.Values, key string, b *bool) {
	if b != nil {
		v.Set(key, strconv.FormatBool(*b))
	}
}

// Float returns a pointer to f, for optional fields.
func Float(f float64) *float64 { return &f }

// Bool returns a pointer to b, for optional fields.
func Bool(b bool) *bool { return &b }
