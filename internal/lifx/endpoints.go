package lifx

import (
	"fmt"
	"net/url"
)

// SelectorAll targets every light on the account.
const SelectorAll = "all"

func selectorOrAll(selector string) string {
	if selector == "" {
		return SelectorAll
	}
	return selector
}

// Endpoint paths are relative to the client's base URL.

func lightsPath(selector string) string {
	return fmt.Sprintf("lights/%s", url.PathEscape(selector))
}

func scenesPath() string {
	return "scenes"
}

func colorPath(color string) string {
	return fmt.Sprintf("color?string=%s", url.QueryEscape(color))
}

func statePath(selector string) string {
	return lightsPath(selector) + "/state"
}

func activateScenePath(sceneID string) string {
	return fmt.Sprintf("scenes/scene_id:%s/activate", url.PathEscape(sceneID))
}

func togglePath(selector string) string {
	return lightsPath(selector) + "/toggle"
}

func breathePath(selector string) string {
	return lightsPath(selector) + "/effects/breathe"
}

func pulsePath(selector string) string {
	return lightsPath(selector) + "/effects/pulse"
}

func cyclePath(selector string) string {
	return lightsPath(selector) + "/cycle"
}
