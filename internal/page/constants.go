package page

import "time"

// Identity the agent stamps on everything it injects so the locator can
// exclude our own UI from candidate scans.
const (
	ControlElementID = "promptpolish-control"
	OwnedAttr        = "data-promptpolish-owned"
	TokenAttr        = "data-promptpolish-token"
)

// BindingName is the CDP binding the agent calls to emit events back to the
// session. It survives navigations because the bootstrap script re-adds it
// on every new document.
const BindingName = "promptpolishEmit"

// Timing for locating and tracking the chat input.
const (
	// PollInterval is how often the session rescans between mutation
	// notifications. SPA re-renders that dodge the observer still get
	// picked up within one interval.
	PollInterval = 3 * time.Second

	// MinTrackedDim is the smallest width or height a candidate may have
	// and still count as a usable chat input. Collapsed or zero-size
	// elements are skipped.
	MinTrackedDim = 20.0
)

// MountBurstDelays are offsets from mount time for the burst of relocation
// attempts, then PollInterval takes over.
var MountBurstDelays = []time.Duration{0, 1 * time.Second, 2 * time.Second, 5 * time.Second}

// Control geometry defaults. The agent renders the control at this size and
// the machine keeps it this far from edges and anchors.
const (
	defaultControlW  = 34.0
	defaultControlH  = 34.0
	defaultEdgePad   = 8.0
	defaultAnchorGap = 10.0
)

// Strategies, in preference order. The locator always picks the earliest
// strategy that yields a usable candidate, so a late-appearing higher
// priority match displaces a lower one.
var Strategies = []Strategy{
	{Name: "prompt-textarea", Selector: "#prompt-textarea"},
	{Name: "prompt-editor", Selector: "div#prompt-textarea[contenteditable='true']"},
	{Name: "composer-editor", Selector: "div[contenteditable='true'][data-testid*='composer']"},
	{Name: "placeholder-textarea", Selector: "textarea[placeholder]"},
	{Name: "any-contenteditable", Selector: "div[contenteditable='true']"},
	{Name: "any-textarea", Selector: "textarea"},
}

// StrategyIndex maps a strategy name back to its preference rank. Unknown
// names rank last.
func StrategyIndex(name string) int {
	for i, s := range Strategies {
		if s.Name == name {
			return i
		}
	}
	return len(Strategies)
}
