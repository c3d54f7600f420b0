package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(strategy, token string, r Rect) Candidate {
	return Candidate{Strategy: strategy, Token: token, Rect: r, Visible: true, Editable: true}
}

var bigRect = Rect{X: 100, Y: 600, W: 600, H: 80}

func TestLocatorPicksHighestPriorityStrategy(t *testing.T) {
	l := NewLocator()

	loc, changed := l.Evaluate([]Candidate{
		cand("any-textarea", "t-low", bigRect),
		cand("prompt-textarea", "t-high", bigRect),
		cand("any-contenteditable", "t-mid", bigRect),
	})
	require.NotNil(t, loc)
	assert.True(t, changed)
	assert.Equal(t, "t-high", loc.Token)
	assert.Equal(t, "prompt-textarea", loc.Strategy)
	assert.Equal(t, "#prompt-textarea", loc.Selector)
	assert.Equal(t, 1, loc.Generation)
}

func TestLocatorSkipsUnusableCandidates(t *testing.T) {
	l := NewLocator()

	cases := []struct {
		name string
		c    Candidate
	}{
		{"hidden", Candidate{Strategy: "any-textarea", Token: "t", Rect: bigRect, Editable: true}},
		{"readonly", Candidate{Strategy: "any-textarea", Token: "t", Rect: bigRect, Visible: true}},
		{"no token", Candidate{Strategy: "any-textarea", Rect: bigRect, Visible: true, Editable: true}},
		{"too narrow", cand("any-textarea", "t", Rect{X: 0, Y: 0, W: 12, H: 80})},
		{"too short", cand("any-textarea", "t", Rect{X: 0, Y: 0, W: 600, H: 12})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc, changed := l.Evaluate([]Candidate{tc.c})
			assert.Nil(t, loc)
			assert.False(t, changed)
		})
	}
}

func TestLocatorSameTokenUpdatesInPlace(t *testing.T) {
	l := NewLocator()

	first, changed := l.Evaluate([]Candidate{cand("prompt-textarea", "tok-1", bigRect)})
	require.NotNil(t, first)
	require.True(t, changed)
	require.Equal(t, 1, first.Generation)

	// Same element scrolled down 40px with new text.
	moved := bigRect
	moved.Y += 40
	c := cand("prompt-textarea", "tok-1", moved)
	c.Value = "hello there"

	second, changed := l.Evaluate([]Candidate{c})
	require.NotNil(t, second)
	assert.True(t, changed, "a moved rect still needs a reposition")
	assert.Equal(t, 1, second.Generation, "same element keeps its generation")
	assert.Equal(t, moved, second.Rect)
	assert.Equal(t, "hello there", second.Value)

	// Identical report is a no-op.
	third, changed := l.Evaluate([]Candidate{c})
	require.NotNil(t, third)
	assert.False(t, changed)
}

func TestLocatorIdentitySwapBumpsGenerationOnce(t *testing.T) {
	l := NewLocator()

	old, _ := l.Evaluate([]Candidate{cand("any-textarea", "tok-old", bigRect)})
	require.Equal(t, 1, old.Generation)

	// The page replaced its composer: a higher priority element appears at
	// the exact same rect. Identity must change exactly once.
	swap := []Candidate{cand("prompt-textarea", "tok-new", bigRect)}

	loc, changed := l.Evaluate(swap)
	require.NotNil(t, loc)
	assert.True(t, changed)
	assert.Equal(t, "tok-new", loc.Token)
	assert.Equal(t, 2, loc.Generation)

	// Re-reporting the same winner stays quiet.
	for i := 0; i < 3; i++ {
		loc, changed = l.Evaluate(swap)
		require.NotNil(t, loc)
		assert.False(t, changed, "report %d", i)
		assert.Equal(t, 2, loc.Generation)
	}
}

func TestLocatorHigherPriorityDisplacesLower(t *testing.T) {
	l := NewLocator()

	l.Evaluate([]Candidate{cand("any-contenteditable", "tok-fallback", bigRect)})

	// Late render of the real composer wins even though the old element is
	// still present.
	loc, changed := l.Evaluate([]Candidate{
		cand("any-contenteditable", "tok-fallback", bigRect),
		cand("prompt-textarea", "tok-real", Rect{X: 120, Y: 620, W: 560, H: 60}),
	})
	require.NotNil(t, loc)
	assert.True(t, changed)
	assert.Equal(t, "tok-real", loc.Token)
}

func TestLocatorVanishedElementReportsChangeOnce(t *testing.T) {
	l := NewLocator()

	l.Evaluate([]Candidate{cand("prompt-textarea", "tok-1", bigRect)})

	loc, changed := l.Evaluate(nil)
	assert.Nil(t, loc)
	assert.True(t, changed, "losing the element is a change")

	loc, changed = l.Evaluate(nil)
	assert.Nil(t, loc)
	assert.False(t, changed, "still gone is not news")
}

func TestLocatorResetDropsTracking(t *testing.T) {
	l := NewLocator()

	l.Evaluate([]Candidate{cand("prompt-textarea", "tok-1", bigRect)})
	l.Reset()
	assert.Nil(t, l.Current())

	// After navigation the same token may come back; it is a fresh find.
	loc, changed := l.Evaluate([]Candidate{cand("prompt-textarea", "tok-1", bigRect)})
	require.NotNil(t, loc)
	assert.True(t, changed)
	assert.Equal(t, 2, loc.Generation)
}
