package page

// ControlState names the floating control's lifecycle states.
type ControlState int

const (
	// ControlHidden means the control is not rendered at all.
	ControlHidden ControlState = iota
	// ControlAnchored means the control tracks a located input's rect.
	ControlAnchored
	// ControlFallback means no input is located and the control sits in a
	// fixed viewport corner.
	ControlFallback
)

func (s ControlState) String() string {
	switch s {
	case ControlAnchored:
		return "anchored"
	case ControlFallback:
		return "fallback"
	default:
		return "hidden"
	}
}

// Placement names which candidate position won.
type Placement string

const (
	PlaceRight  Placement = "right"
	PlaceLeft   Placement = "left"
	PlaceAbove  Placement = "above"
	PlaceBelow  Placement = "below"
	PlaceCorner Placement = "corner"
	PlaceFixed  Placement = "fixed"
)

// ControlConfig sizes the control and its spacing.
type ControlConfig struct {
	Size Size
	// Pad is the minimum distance kept between the control and every
	// viewport edge.
	Pad float64
	// Gap is the distance kept between the control and its anchor.
	Gap float64
}

func (c ControlConfig) withDefaults() ControlConfig {
	if c.Size.W <= 0 {
		c.Size.W = defaultControlW
	}
	if c.Size.H <= 0 {
		c.Size.H = defaultControlH
	}
	if c.Pad <= 0 {
		c.Pad = defaultEdgePad
	}
	if c.Gap <= 0 {
		c.Gap = defaultAnchorGap
	}
	return c
}

// ControlUpdate is one computed position the session forwards to the agent.
type ControlUpdate struct {
	Visible   bool      `json:"visible"`
	Rect      Rect      `json:"rect"`
	Placement Placement `json:"placement"`
	State     ControlState
}

// ControlMachine is the floating control's positioning state machine:
// Hidden, Anchored(input), or Fallback(corner), with either visible state
// re-entering itself on reposition triggers. It owns FloatingControlState
// exclusively; the locator and trigger only feed it.
type ControlMachine struct {
	cfg    ControlConfig
	vp     Viewport
	state  ControlState
	anchor *LocatedInput
	rect   Rect
	place  Placement
}

// NewControlMachine starts Hidden with the given geometry config.
func NewControlMachine(cfg ControlConfig) *ControlMachine {
	return &ControlMachine{cfg: cfg.withDefaults(), state: ControlHidden}
}

// State reports the current lifecycle state.
func (m *ControlMachine) State() ControlState { return m.state }

// Anchor reports the current anchor, nil in Fallback and Hidden.
func (m *ControlMachine) Anchor() *LocatedInput { return m.anchor }

// Rect reports the last computed control rect.
func (m *ControlMachine) Rect() Rect { return m.rect }

// SetViewport records new viewport bounds. The caller follows up with
// Reposition; resize is one of the reposition triggers.
func (m *ControlMachine) SetViewport(vp Viewport) {
	m.vp = vp
}

// Show moves Hidden to a visible state. No-op when already visible.
func (m *ControlMachine) Show() {
	if m.state == ControlHidden {
		m.state = ControlFallback
	}
}

// Hide tears the control down to Hidden and drops the anchor.
func (m *ControlMachine) Hide() {
	m.state = ControlHidden
	m.anchor = nil
}

// SetAnchor installs (or clears, with nil) the anchor and recomputes the
// position. Anchored re-enters itself on anchor identity changes; a vanished
// anchor falls back to the corner.
func (m *ControlMachine) SetAnchor(anchor *LocatedInput) ControlUpdate {
	m.anchor = anchor
	return m.Reposition()
}

// Reposition recomputes the control rect from the current anchor and
// viewport. Mount, mount-burst retries, scroll, and resize all land here.
func (m *ControlMachine) Reposition() ControlUpdate {
	if m.state == ControlHidden {
		return ControlUpdate{Visible: false, State: ControlHidden}
	}
	if m.vp.W <= 0 || m.vp.H <= 0 {
		// No measured viewport yet; stay put until the agent reports one.
		return ControlUpdate{Visible: false, State: m.state}
	}

	if m.anchor == nil || m.anchor.Rect.Empty() {
		m.state = ControlFallback
		m.rect = clamp(fixedCorner(m.cfg, m.vp), m.vp, m.cfg.Pad)
		m.place = PlaceFixed
	} else {
		m.state = ControlAnchored
		m.rect, m.place = placeByAnchor(m.anchor.Rect, m.cfg, m.vp)
	}

	return ControlUpdate{Visible: true, Rect: m.rect, Placement: m.place, State: m.state}
}

// Snapshot reports the current visibility, anchor, and placed rect.
func (m *ControlMachine) Snapshot() (visible bool, anchor *LocatedInput, rect Rect) {
	return m.state != ControlHidden, m.anchor, m.rect
}

// placeByAnchor tries right, left, above, below, then an overlap-adjusted
// corner of the anchor, accepting the first candidate that fits the padded
// viewport. Whatever wins is clamped so the control's full box stays inside
// the viewport minus Pad.
func placeByAnchor(anchor Rect, cfg ControlConfig, vp Viewport) (Rect, Placement) {
	size, pad, gap := cfg.Size, cfg.Pad, cfg.Gap

	midY := anchor.Y + anchor.H/2 - size.H/2
	midX := anchor.X + anchor.W/2 - size.W/2

	candidates := []struct {
		rect  Rect
		place Placement
	}{
		{Rect{X: anchor.Right() + gap, Y: midY, W: size.W, H: size.H}, PlaceRight},
		{Rect{X: anchor.X - gap - size.W, Y: midY, W: size.W, H: size.H}, PlaceLeft},
		{Rect{X: midX, Y: anchor.Y - gap - size.H, W: size.W, H: size.H}, PlaceAbove},
		{Rect{X: midX, Y: anchor.Bottom() + gap, W: size.W, H: size.H}, PlaceBelow},
	}
	for _, c := range candidates {
		if fits(c.rect, vp, pad) {
			return clamp(c.rect, vp, pad), c.place
		}
	}

	// Nothing fits beside the anchor: tuck into its top-right corner.
	corner := Rect{
		X: anchor.Right() - size.W - gap,
		Y: anchor.Y + gap,
		W: size.W,
		H: size.H,
	}
	return clamp(corner, vp, pad), PlaceCorner
}

// fixedCorner is the anchorless fallback position: bottom-right.
func fixedCorner(cfg ControlConfig, vp Viewport) Rect {
	return Rect{
		X: vp.W - cfg.Pad - cfg.Size.W,
		Y: vp.H - cfg.Pad - cfg.Size.H,
		W: cfg.Size.W,
		H: cfg.Size.H,
	}
}
