package page

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

// Script injected into the chat page. It registers window.__promptpolish
// and pushes events through the BindingName binding; everything below
// builds expressions against that surface.
//
//go:embed agent.js
var AgentScript string

// AgentEvent is one event pushed from the page through the CDP binding.
type AgentEvent struct {
	Kind  string  `json:"kind"`
	Token string  `json:"token,omitempty"`
	Text  string  `json:"text,omitempty"`
	W     float64 `json:"w,omitempty"`
	H     float64 `json:"h,omitempty"`
}

// Event kinds the agent emits.
const (
	EventReady        = "ready"
	EventInput        = "input"
	EventSelection    = "selection"
	EventControlClick = "control_click"
	EventOptimizeNow  = "optimize_now"
	EventScroll       = "scroll"
	EventResize       = "resize"
	EventMutation     = "mutation"
)

// ParseAgentEvent decodes a binding payload.
func ParseAgentEvent(payload string) (AgentEvent, error) {
	var ev AgentEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return AgentEvent{}, fmt.Errorf("malformed agent event: %w", err)
	}
	return ev, nil
}

// ScanResult is what one scan evaluation returns: the viewport plus every
// candidate the strategies matched.
type ScanResult struct {
	Viewport   Viewport    `json:"viewport"`
	Candidates []Candidate `json:"candidates"`
}

// ScanExpr builds the scan call carrying the strategy list, so the Go side
// stays the single owner of strategy order.
func ScanExpr() string {
	strategies, _ := json.Marshal(Strategies)
	return fmt.Sprintf("window.__promptpolish.scan(%s)", strategies)
}

// ReadValueExpr reads the current text of the element holding token.
// Evaluates to the string, or null when the element is gone.
func ReadValueExpr(token string) string {
	return fmt.Sprintf("window.__promptpolish.readValue(%s)", jsString(token))
}

// WriteValueExpr replaces the element's text, firing the synthetic input
// and change events editors listen for. Evaluates to false when the
// element is gone.
func WriteValueExpr(token, text string) string {
	return fmt.Sprintf("window.__promptpolish.writeValue(%s, %s)", jsString(token), jsString(text))
}

// ReadSelectionExpr reads the page's current text selection.
func ReadSelectionExpr() string {
	return "window.__promptpolish.readSelection()"
}

// RenderControlExpr applies one computed control position.
func RenderControlExpr(up ControlUpdate) string {
	b, _ := json.Marshal(up)
	return fmt.Sprintf("window.__promptpolish.renderControl(%s)", b)
}

// SetBusyExpr toggles the control's in-flight look.
func SetBusyExpr(busy bool) string {
	return fmt.Sprintf("window.__promptpolish.setBusy(%t)", busy)
}

// RemoveControlExpr tears the control out of the page.
func RemoveControlExpr() string {
	return "window.__promptpolish.removeControl()"
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
