package page

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptpolish/cli/internal/config"
	"github.com/promptpolish/cli/internal/handoff"
	"github.com/promptpolish/cli/internal/optimizer"
)

// fakePage stands in for the chromedp evaluator: it serves canned scan
// results and records every expression the session sends to the page.
type fakePage struct {
	scans   []ScanResult
	scanIdx int
	value   string
	exprs   []string
}

func (f *fakePage) eval(expr string, out any) error {
	f.exprs = append(f.exprs, expr)
	switch {
	case strings.HasPrefix(expr, "window.__promptpolish.scan("):
		if len(f.scans) == 0 {
			return nil
		}
		i := f.scanIdx
		if i >= len(f.scans) {
			i = len(f.scans) - 1
		}
		f.scanIdx++
		*out.(*ScanResult) = f.scans[i]
	case strings.HasPrefix(expr, "window.__promptpolish.readValue("):
		*out.(*string) = f.value
	case strings.HasPrefix(expr, "window.__promptpolish.writeValue("):
		if b, ok := out.(*bool); ok {
			*b = true
		}
	}
	return nil
}

func (f *fakePage) count(prefix string) int {
	n := 0
	for _, e := range f.exprs {
		if strings.HasPrefix(e, "window.__promptpolish."+prefix) {
			n++
		}
	}
	return n
}

type fakeOptimizer struct {
	calls atomic.Int64
	fn    func(req optimizer.OptimizationRequest) (*optimizer.OptimizationResult, error)
}

func (f *fakeOptimizer) Optimize(_ context.Context, req optimizer.OptimizationRequest) (*optimizer.OptimizationResult, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(req)
	}
	res := &optimizer.OptimizationResult{
		OriginalText:  req.Text,
		OptimizedText: "Polished: " + req.Text,
	}
	res.Scores.Original.Overall = 5
	res.Scores.Optimized.Overall = 8.5
	return res, nil
}

func scanWith(cands ...Candidate) ScanResult {
	return ScanResult{Viewport: Viewport{W: 1280, H: 800}, Candidates: cands}
}

func newTestSession(t *testing.T, fake *fakePage, opt Optimizer) *Session {
	t.Helper()
	cfg := &config.Config{
		ChatURL:       "https://chatgpt.com/",
		DebounceIdle:  2000,
		MinTriggerLen: 10,
	}
	s := NewSession(SessionOptions{
		Config:    cfg,
		Optimizer: opt,
		Handoff:   handoff.NewFileStore(t.TempDir()),
	})
	s.eval = fake.eval
	s.control.SetViewport(Viewport{W: 1280, H: 800})
	s.control.Show()
	return s
}

func TestSessionRendersOncePerIdentityChange(t *testing.T) {
	a := cand("any-textarea", "tok-a", bigRect)
	b := cand("prompt-textarea", "tok-b", bigRect)

	fake := &fakePage{scans: []ScanResult{
		scanWith(a),
		scanWith(a),
		scanWith(a, b),
		scanWith(a, b),
	}}
	s := newTestSession(t, fake, &fakeOptimizer{})

	s.rescan()
	assert.Equal(t, 1, fake.count("renderControl"), "first find renders once")

	s.rescan()
	assert.Equal(t, 1, fake.count("renderControl"), "unchanged scan renders nothing")

	s.rescan()
	assert.Equal(t, 2, fake.count("renderControl"), "identity change renders exactly once")
	require.NotNil(t, s.locator.Current())
	assert.Equal(t, "tok-b", s.locator.Current().Token)

	s.rescan()
	assert.Equal(t, 2, fake.count("renderControl"))
}

func TestSessionIdentityChangeDropsPendingTrigger(t *testing.T) {
	a := cand("prompt-textarea", "tok-a", bigRect)
	b := cand("prompt-textarea", "tok-b", bigRect)

	fake := &fakePage{scans: []ScanResult{scanWith(a), scanWith(b)}}
	s := newTestSession(t, fake, &fakeOptimizer{})

	s.rescan()
	s.handleAgentEvent(context.Background(), AgentEvent{
		Kind: EventInput, Token: "tok-a", Text: "a prompt worth optimizing",
	})
	require.Equal(t, TriggerArmed, s.trigger.State())
	require.False(t, s.wakeAt.IsZero())

	// The composer gets replaced: the pending debounce must not fire
	// against the new element.
	s.rescan()
	assert.Equal(t, TriggerIdle, s.trigger.State())
	assert.True(t, s.wakeAt.IsZero())
}

func TestSessionIgnoresInputFromUntrackedElement(t *testing.T) {
	fake := &fakePage{scans: []ScanResult{scanWith(cand("prompt-textarea", "tok-a", bigRect))}}
	s := newTestSession(t, fake, &fakeOptimizer{})
	s.rescan()

	s.handleAgentEvent(context.Background(), AgentEvent{
		Kind: EventInput, Token: "tok-other", Text: "typing somewhere else entirely",
	})
	assert.Equal(t, TriggerIdle, s.trigger.State())
	assert.True(t, s.wakeAt.IsZero())
}

func TestSessionAutoOptimizeWritesBackAndSuppressesEcho(t *testing.T) {
	fake := &fakePage{scans: []ScanResult{scanWith(cand("prompt-textarea", "tok-a", bigRect))}}
	opt := &fakeOptimizer{}
	s := newTestSession(t, fake, opt)
	s.rescan()

	at := time.Now()
	s.now = func() time.Time { return at }

	s.handleAgentEvent(context.Background(), AgentEvent{
		Kind: EventInput, Token: "tok-a", Text: "please make this prompt better",
	})
	require.Equal(t, TriggerArmed, s.trigger.State())

	// Idle window elapses.
	at = s.wakeAt
	s.onWake(context.Background())
	require.Equal(t, TriggerCalling, s.trigger.State())

	res := <-s.callDone
	require.NoError(t, res.err)
	s.finishCall(res)

	assert.Equal(t, int64(1), opt.calls.Load())
	assert.Equal(t, 1, fake.count("writeValue"))
	assert.Equal(t, TriggerIdle, s.trigger.State())
	assert.Equal(t, "Polished: please make this prompt better", s.locator.Current().Value)

	// The write-back echoes as an input event. It must not arm again.
	s.handleAgentEvent(context.Background(), AgentEvent{
		Kind: EventInput, Token: "tok-a", Text: "Polished: please make this prompt better",
	})
	assert.Equal(t, TriggerIdle, s.trigger.State())
	assert.True(t, s.wakeAt.IsZero())
}

func TestSessionDropsResultWhenInputChangedMidFlight(t *testing.T) {
	a := cand("prompt-textarea", "tok-a", bigRect)
	b := cand("prompt-textarea", "tok-b", bigRect)
	fake := &fakePage{scans: []ScanResult{scanWith(a), scanWith(b)}}
	opt := &fakeOptimizer{}
	s := newTestSession(t, fake, opt)
	s.rescan()

	at := time.Now()
	s.now = func() time.Time { return at }
	s.handleAgentEvent(context.Background(), AgentEvent{
		Kind: EventInput, Token: "tok-a", Text: "first element prompt text",
	})
	at = s.wakeAt
	s.onWake(context.Background())
	res := <-s.callDone

	// Element got replaced while the call was out.
	s.rescan()
	s.finishCall(res)

	assert.Equal(t, 0, fake.count("writeValue"), "stale result must not touch the new element")
}

func TestSessionManualOptimizeSkipsEmptyInput(t *testing.T) {
	fake := &fakePage{
		scans: []ScanResult{scanWith(cand("prompt-textarea", "tok-a", bigRect))},
		value: "   ",
	}
	opt := &fakeOptimizer{}
	s := newTestSession(t, fake, opt)
	s.rescan()

	s.manualOptimize(context.Background())
	assert.Equal(t, int64(0), opt.calls.Load())
	assert.Equal(t, TriggerIdle, s.trigger.State())
}

func TestSessionManualOptimizeRunsWithoutIdleWindow(t *testing.T) {
	fake := &fakePage{
		scans: []ScanResult{scanWith(cand("prompt-textarea", "tok-a", bigRect))},
		value: "optimize me right now",
	}
	opt := &fakeOptimizer{}
	s := newTestSession(t, fake, opt)
	s.rescan()

	s.manualOptimize(context.Background())
	require.Equal(t, TriggerCalling, s.trigger.State())

	res := <-s.callDone
	s.finishCall(res)
	assert.Equal(t, int64(1), opt.calls.Load())
	assert.Equal(t, 1, fake.count("writeValue"))
}

func TestSessionControlClickCapturesInputValue(t *testing.T) {
	fake := &fakePage{
		scans: []ScanResult{scanWith(cand("prompt-textarea", "tok-a", bigRect))},
		value: "typed into the composer",
	}
	opt := &fakeOptimizer{}
	s := newTestSession(t, fake, opt)
	s.rescan()

	s.handleAgentEvent(context.Background(), AgentEvent{
		Kind: EventControlClick, Text: "some stray selection",
	})

	got, err := s.hof.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "typed into the composer", got, "input value outranks the selection")
	assert.Equal(t, int64(0), opt.calls.Load(), "click hands off, it does not optimize in place")
}

func TestSessionControlClickFallsBackToSelection(t *testing.T) {
	fake := &fakePage{
		scans: []ScanResult{scanWith(cand("prompt-textarea", "tok-a", bigRect))},
		value: "   ",
	}
	s := newTestSession(t, fake, &fakeOptimizer{})
	s.rescan()

	s.handleAgentEvent(context.Background(), AgentEvent{
		Kind: EventControlClick, Text: "highlighted words",
	})

	got, err := s.hof.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "highlighted words", got)
}

func TestSessionControlClickWithNothingClearsHandoff(t *testing.T) {
	fake := &fakePage{}
	s := newTestSession(t, fake, &fakeOptimizer{})
	require.NoError(t, s.hof.Set(context.Background(), "stale handoff"))

	s.handleAgentEvent(context.Background(), AgentEvent{Kind: EventControlClick, Text: ""})

	got, err := s.hof.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got, "a click with nothing to capture must overwrite stale text")
}

func TestSessionOptimizeNowRunsManualPath(t *testing.T) {
	fake := &fakePage{
		scans: []ScanResult{scanWith(cand("prompt-textarea", "tok-a", bigRect))},
		value: "rewrite this immediately",
	}
	opt := &fakeOptimizer{}
	s := newTestSession(t, fake, opt)
	s.rescan()

	s.handleAgentEvent(context.Background(), AgentEvent{Kind: EventOptimizeNow})
	require.Equal(t, TriggerCalling, s.trigger.State())

	res := <-s.callDone
	s.finishCall(res)
	assert.Equal(t, int64(1), opt.calls.Load())
	assert.Equal(t, 1, fake.count("writeValue"))
}

func TestSessionReplaceWithoutLocatedInput(t *testing.T) {
	fake := &fakePage{}
	s := newTestSession(t, fake, &fakeOptimizer{})

	res := s.applyReplace("new text")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "chat input not found")
}

func TestSessionReplaceWritesAndSuppressesEcho(t *testing.T) {
	fake := &fakePage{scans: []ScanResult{scanWith(cand("prompt-textarea", "tok-a", bigRect))}}
	s := newTestSession(t, fake, &fakeOptimizer{})
	s.rescan()

	res := s.applyReplace("pushed from the popup, long enough to arm")
	require.True(t, res.Success)
	assert.Equal(t, 1, fake.count("writeValue"))

	s.handleAgentEvent(context.Background(), AgentEvent{
		Kind: EventInput, Token: "tok-a", Text: "pushed from the popup, long enough to arm",
	})
	assert.Equal(t, TriggerIdle, s.trigger.State(), "programmatic replace must not auto-trigger")
}

func TestSessionReadyResetsTracking(t *testing.T) {
	fake := &fakePage{scans: []ScanResult{scanWith(cand("prompt-textarea", "tok-a", bigRect))}}
	s := newTestSession(t, fake, &fakeOptimizer{})
	s.rescan()
	require.NotNil(t, s.locator.Current())

	s.handleAgentEvent(context.Background(), AgentEvent{Kind: EventReady, W: 1024, H: 768})

	assert.Nil(t, s.locator.Current())
	assert.Equal(t, TriggerIdle, s.trigger.State())
	assert.Equal(t, ControlFallback, s.control.State())
}
