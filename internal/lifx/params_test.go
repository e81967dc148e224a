package lifx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestState_Sanitize(t *testing.T) {
	tests := []struct {
		name     string
		in       State
		expected State
	}{
		{
			name:     "all_valid",
			in:       State{Power: "on", Color: "blue", Brightness: Float(0.5), Duration: Float(2)},
			expected: State{Power: "on", Color: "blue", Brightness: Float(0.5), Duration: Float(2)},
		},
		{
			name:     "bad_power_dropped",
			in:       State{Power: "maybe", Color: "red"},
			expected: State{Color: "red"},
		},
		{
			name:     "brightness_out_of_range",
			in:       State{Brightness: Float(1.5)},
			expected: State{},
		},
		{
			name:     "brightness_bounds_inclusive",
			in:       State{Brightness: Float(1), Duration: Float(0)},
			expected: State{Brightness: Float(1), Duration: Float(0)},
		},
		{
			name:     "negative_duration",
			in:       State{Power: "off", Duration: Float(-1)},
			expected: State{Power: "off"},
		},
		{
			name:     "duration_over_hundred_years",
			in:       State{Duration: Float(MaxDuration + 1)},
			expected: State{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.in.Sanitize())
		})
	}
}

func TestStateFromMap_DropsUnknownAndMistyped(t *testing.T) {
	s := StateFromMap(map[string]any{
		"power":      "on",
		"color":      42, // wrong type
		"brightness": 0.3,
		"duration":   3, // ints are accepted
		"infrared":   0.5,
	})

	require.Equal(t, "on", s.Power)
	require.Empty(t, s.Color)
	require.Equal(t, 0.3, *s.Brightness)
	require.Equal(t, 3.0, *s.Duration)
}

func TestState_Values(t *testing.T) {
	v := State{Power: "on", Brightness: Float(0.25)}.Values()
	require.Equal(t, "brightness=0.25&power=on", v.Encode())

	require.Empty(t, State{}.Values().Encode())
}

func TestEffectParams_SanitizeAndValues(t *testing.T) {
	p := EffectParams{
		Color:   "red",
		Period:  Float(0),
		Cycles:  Float(3),
		Persist: Bool(false),
		Peak:    Float(2),
	}.Sanitize()

	require.Nil(t, p.Period)
	require.Nil(t, p.Peak)
	require.Equal(t, "color=red&cycles=3&persist=false", p.Values().Encode())
}

func TestEffectParamsFromMap(t *testing.T) {
	p := EffectParamsFromMap(map[string]any{
		"color":      "green",
		"from_color": "blue",
		"period":     1.5,
		"power_on":   true,
		"persist":    "yes", // wrong type
		"peak":       0.2,
	})

	require.Equal(t, "green", p.Color)
	require.Equal(t, "blue", p.FromColor)
	require.Equal(t, 1.5, *p.Period)
	require.True(t, *p.PowerOn)
	require.Nil(t, p.Persist)
	require.Equal(t, 0.2, *p.Peak)
}

func TestCycleParams_SanitizeAndJSON(t *testing.T) {
	p := CycleParamsFromMap(map[string]any{
		"states": []any{
			map[string]any{"power": "on", "brightness": 0.4},
			map[string]any{"power": "off", "brightness": 7.0},
			"not a state",
		},
		"defaults":  map[string]any{"duration": 1},
		"direction": "sideways",
	}).Sanitize()

	require.Len(t, p.States, 2)
	require.Empty(t, p.Direction)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.JSONEq(t, `{"states":[{"power":"on","brightness":0.4},{"power":"off"}],"defaults":{"duration":1}}`, string(data))
}

func TestCycleParams_EmptyDefaultsOmitted(t *testing.T) {
	p := CycleParams{
		States:    []State{{Power: "on"}, {Power: "off"}},
		Defaults:  &State{Power: "bogus"},
		Direction: DirectionBackward,
	}.Sanitize()

	require.Nil(t, p.Defaults)
	require.Equal(t, DirectionBackward, p.Direction)
}
