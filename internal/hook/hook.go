// Package hook runs user executables in response to session events. Each hook
// lives in its own directory next to a hook.json manifest and receives the
// event as JSON on stdin.
package hook

import "slices"

// Manifest describes a hook and the events it subscribes to.
type Manifest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Events      []string `json:"events"`
}

// Response is the optional JSON a hook may print on stdout.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Wants reports whether the hook subscribes to eventType. A manifest without
// events subscribes to all of them.
func (h *Hook) Wants(eventType string) bool {
	if len(h.Manifest.Events) == 0 {
		return true
	}
	return slices.Contains(h.Manifest.Events, eventType) || slices.Contains(h.Manifest.Events, "*")
}
