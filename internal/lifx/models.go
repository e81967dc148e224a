package lifx

// Color is a color as understood by the API.
type Color struct {
	Hue        *float64 `json:"hue"`
	Saturation *float64 `json:"saturation"`
	Brightness *float64 `json:"brightness,omitempty"`
	Kelvin     *int     `json:"kelvin"`
}

// Ref identifies a group or location a light belongs to.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Product describes the hardware of a light.
type Product struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Company    string `json:"company"`
}

// Light is an entry of the list-lights response.
type Light struct {
	ID               string   `json:"id"`
	UUID             string   `json:"uuid"`
	Label            string   `json:"label"`
	Connected        bool     `json:"connected"`
	Power            string   `json:"power"`
	Color            Color    `json:"color"`
	Brightness       float64  `json:"brightness"`
	Group            Ref      `json:"group"`
	Location         Ref      `json:"location"`
	Product          *Product `json:"product,omitempty"`
	LastSeen         string   `json:"last_seen"`
	SecondsSinceSeen float64  `json:"seconds_since_seen"`
}

// IsOn reports whether the light is powered.
func (l *Light) IsOn() bool {
	return l.Power == PowerOn
}

// SceneState is the stored state of one light within a scene.
type SceneState struct {
	Selector   string  `json:"selector"`
	Power      string  `json:"power,omitempty"`
	Brightness float64 `json:"brightness,omitempty"`
	Color      *Color  `json:"color,omitempty"`
}

// Scene is an entry of the list-scenes response.
type Scene struct {
	UUID      string       `json:"uuid"`
	Name      string       `json:"name"`
	Account   *Ref         `json:"account,omitempty"`
	States    []SceneState `json:"states"`
	CreatedAt int64        `json:"created_at"`
	UpdatedAt int64        `json:"updated_at"`
}

// Result is the per-light outcome of a command.
type Result struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"` // "ok", "timed_out" or "offline"
}

// Results is the response of toggle, effect and cycle commands.
type Results struct {
	Results []Result `json:"results"`
}

// Failed returns the results whose status is not "ok".
func (r *Results) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Status != "ok" {
			failed = append(failed, res)
		}
	}
	return failed
}
