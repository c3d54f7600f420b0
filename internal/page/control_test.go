package page

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testControl() *ControlMachine {
	m := NewControlMachine(ControlConfig{Size: Size{W: 34, H: 34}, Pad: 8, Gap: 10})
	m.SetViewport(Viewport{W: 1280, H: 800})
	m.Show()
	return m
}

func anchored(r Rect) *LocatedInput {
	return &LocatedInput{Token: "tok", Strategy: "prompt-textarea", Rect: r, Generation: 1}
}

func inViewport(t *testing.T, r Rect, vp Viewport, pad float64) {
	t.Helper()
	assert.GreaterOrEqual(t, r.X, pad)
	assert.GreaterOrEqual(t, r.Y, pad)
	assert.LessOrEqual(t, r.Right(), vp.W-pad)
	assert.LessOrEqual(t, r.Bottom(), vp.H-pad)
}

func TestControlHiddenProducesNothing(t *testing.T) {
	m := NewControlMachine(ControlConfig{})
	m.SetViewport(Viewport{W: 1280, H: 800})

	up := m.Reposition()
	assert.False(t, up.Visible)
	assert.Equal(t, ControlHidden, up.State)
}

func TestControlFallbackBottomRight(t *testing.T) {
	m := testControl()

	up := m.SetAnchor(nil)
	require.True(t, up.Visible)
	assert.Equal(t, ControlFallback, m.State())
	assert.Equal(t, PlaceFixed, up.Placement)
	assert.Equal(t, 1280.0-8-34, up.Rect.X)
	assert.Equal(t, 800.0-8-34, up.Rect.Y)
}

func TestControlPrefersRightOfAnchor(t *testing.T) {
	m := testControl()

	up := m.SetAnchor(anchored(Rect{X: 300, Y: 600, W: 500, H: 80}))
	require.True(t, up.Visible)
	assert.Equal(t, ControlAnchored, m.State())
	assert.Equal(t, PlaceRight, up.Placement)
	assert.Equal(t, 810.0, up.Rect.X)
	assert.Equal(t, 623.0, up.Rect.Y, "vertically centered on the anchor")
}

func TestControlFallsThroughCandidates(t *testing.T) {
	vp := Viewport{W: 1280, H: 800}

	cases := []struct {
		name   string
		anchor Rect
		want   Placement
	}{
		{"right edge blocked picks left", Rect{X: 700, Y: 300, W: 560, H: 80}, PlaceLeft},
		{"both sides blocked picks above", Rect{X: 20, Y: 300, W: 1240, H: 80}, PlaceAbove},
		{"sides and top blocked picks below", Rect{X: 20, Y: 10, W: 1240, H: 80}, PlaceBelow},
		{"everything blocked tucks into corner", Rect{X: 0, Y: 0, W: 1280, H: 800}, PlaceCorner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := testControl()
			up := m.SetAnchor(anchored(tc.anchor))
			require.True(t, up.Visible)
			assert.Equal(t, tc.want, up.Placement)
			inViewport(t, up.Rect, vp, 8)
		})
	}
}

func TestControlClampsOnEveryEdge(t *testing.T) {
	vp := Viewport{W: 1280, H: 800}

	// Anchors hugging each edge and corner. Wherever the winning candidate
	// would poke out, the final rect still sits fully inside the padded
	// viewport.
	anchors := []Rect{
		{X: -50, Y: 300, W: 200, H: 60},       // off the left edge
		{X: 1200, Y: 300, W: 200, H: 60},      // off the right edge
		{X: 500, Y: -20, W: 200, H: 60},       // off the top
		{X: 500, Y: 780, W: 200, H: 60},       // off the bottom
		{X: -30, Y: -30, W: 120, H: 40},       // top-left corner
		{X: 1220, Y: 770, W: 120, H: 40},      // bottom-right corner
		{X: 640, Y: 795, W: 10, H: 10},        // tiny, nearly offscreen
	}
	for i, a := range anchors {
		t.Run(fmt.Sprintf("anchor_%d", i), func(t *testing.T) {
			m := testControl()
			up := m.SetAnchor(anchored(a))
			require.True(t, up.Visible)
			inViewport(t, up.Rect, vp, 8)
		})
	}
}

func TestControlRepositionOnResize(t *testing.T) {
	m := testControl()
	m.SetAnchor(nil)

	m.SetViewport(Viewport{W: 640, H: 480})
	up := m.Reposition()
	require.True(t, up.Visible)
	assert.Equal(t, 640.0-8-34, up.Rect.X)
	assert.Equal(t, 480.0-8-34, up.Rect.Y)
}

func TestControlScrolledAnchorStaysVisible(t *testing.T) {
	m := testControl()

	// Input scrolled mostly above the viewport: anchored placement still
	// yields a rect inside bounds.
	up := m.SetAnchor(anchored(Rect{X: 300, Y: -60, W: 500, H: 80}))
	require.True(t, up.Visible)
	inViewport(t, up.Rect, Viewport{W: 1280, H: 800}, 8)
}

func TestControlAnchorVanishesFallsBack(t *testing.T) {
	m := testControl()

	up := m.SetAnchor(anchored(Rect{X: 300, Y: 600, W: 500, H: 80}))
	require.Equal(t, ControlAnchored, up.State)

	up = m.SetAnchor(nil)
	assert.Equal(t, ControlFallback, up.State)
	assert.Equal(t, PlaceFixed, up.Placement)
}

func TestControlHideDropsAnchor(t *testing.T) {
	m := testControl()
	m.SetAnchor(anchored(Rect{X: 300, Y: 600, W: 500, H: 80}))

	m.Hide()
	visible, anchor, _ := m.Snapshot()
	assert.False(t, visible)
	assert.Nil(t, anchor)
}

func TestControlZeroViewportStaysInvisible(t *testing.T) {
	m := NewControlMachine(ControlConfig{})
	m.Show()

	up := m.Reposition()
	assert.False(t, up.Visible, "no placement before the first viewport report")
}

func TestClampPinsOversizedToTopLeft(t *testing.T) {
	vp := Viewport{W: 100, H: 100}
	r := clamp(Rect{X: 40, Y: 40, W: 300, H: 300}, vp, 8)
	assert.Equal(t, 8.0, r.X)
	assert.Equal(t, 8.0, r.Y)
}
