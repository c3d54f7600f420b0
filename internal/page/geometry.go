package page

// Rect is a screen-space rectangle in CSS pixels, origin top-left.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Right returns the rectangle's right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns the rectangle's bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Size is a width/height pair in CSS pixels.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Viewport is the visible page area in CSS pixels.
type Viewport struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// fits reports whether r lies fully inside the viewport minus pad on every
// edge.
func fits(r Rect, vp Viewport, pad float64) bool {
	return r.X >= pad &&
		r.Y >= pad &&
		r.Right() <= vp.W-pad &&
		r.Bottom() <= vp.H-pad
}

// clamp pushes r inside the viewport minus pad, preserving its size. A
// control larger than the padded viewport pins to the top-left padding.
func clamp(r Rect, vp Viewport, pad float64) Rect {
	if r.Right() > vp.W-pad {
		r.X = vp.W - pad - r.W
	}
	if r.X < pad {
		r.X = pad
	}
	if r.Bottom() > vp.H-pad {
		r.Y = vp.H - pad - r.H
	}
	if r.Y < pad {
		r.Y = pad
	}
	return r
}
