package lifx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// ListLights returns the lights matching selector ("all" when empty).
func (c *Client) ListLights(ctx context.Context, selector string) ([]Light, error) {
	payload, err := c.Get(ctx, lightsPath(selectorOrAll(selector)))
	if err != nil {
		return nil, err
	}
	var lights []Light
	if err := decodeInto(payload, &lights); err != nil {
		return nil, err
	}
	return lights, nil
}

// ListScenes returns the scenes stored on the account.
func (c *Client) ListScenes(ctx context.Context) ([]Scene, error) {
	payload, err := c.Get(ctx, scenesPath())
	if err != nil {
		return nil, err
	}
	var scenes []Scene
	if err := decodeInto(payload, &scenes); err != nil {
		return nil, err
	}
	return scenes, nil
}

// ValidateColor asks the API how it interprets a color string.
func (c *Client) ValidateColor(ctx context.Context, color string) (*Color, error) {
	payload, err := c.Get(ctx, colorPath(color))
	if err != nil {
		return nil, err
	}
	var out Color
	if err := decodeInto(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetState changes the state of the lights matching selector. Fields the API
// would reject are dropped before sending.
func (c *Client) SetState(ctx context.Context, selector string, state State) error {
	return c.Put(ctx, statePath(selectorOrAll(selector)), state.Sanitize().Values())
}

// ActivateScene applies a stored scene, transitioning over duration seconds.
// A nil duration leaves the transition to the API default.
func (c *Client) ActivateScene(ctx context.Context, sceneID string, duration *float64) error {
	return c.Put(ctx, activateScenePath(sceneID), State{Duration: duration}.Sanitize().Values())
}

// Toggle turns the matching lights off if they are on, or on if they are off.
func (c *Client) Toggle(ctx context.Context, selector string, duration *float64) (*Results, error) {
	form := State{Duration: duration}.Sanitize().Values()
	return c.postResults(ctx, togglePath(selectorOrAll(selector)), form)
}

// Breathe slowly fades the matching lights between two colors.
func (c *Client) Breathe(ctx context.Context, selector string, params EffectParams) (*Results, error) {
	return c.postResults(ctx, breathePath(selectorOrAll(selector)), params.Sanitize().Values())
}

// Pulse quickly flashes the matching lights between two colors.
func (c *Client) Pulse(ctx context.Context, selector string, params EffectParams) (*Results, error) {
	return c.postResults(ctx, pulsePath(selectorOrAll(selector)), params.Sanitize().Values())
}

// Cycle moves the matching lights to the next (or previous) state in a list.
// The body is JSON encoded since it carries a list of states.
func (c *Client) Cycle(ctx context.Context, selector string, params CycleParams) (*Results, error) {
	payload, err := c.PostJSON(ctx, cyclePath(selectorOrAll(selector)), params.Sanitize())
	if err != nil {
		return nil, err
	}
	return decodeResults(payload)
}

func (c *Client) postResults(ctx context.Context, path string, form url.Values) (*Results, error) {
	payload, err := c.Post(ctx, path, form)
	if err != nil {
		return nil, err
	}
	return decodeResults(payload)
}

func decodeResults(payload json.RawMessage) (*Results, error) {
	var res Results
	if err := decodeInto(payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// decodeInto maps a JSON payload onto a model. A payload of the wrong shape is
// a protocol violation.
func decodeInto(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return &ProtocolError{StatusCode: http.StatusOK, Body: excerpt(payload), Err: err}
	}
	return nil
}
