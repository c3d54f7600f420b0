package page

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestTrigger() *Trigger {
	return NewTrigger(TriggerConfig{
		IdleWindow: 2 * time.Second,
		MinLen:     10,
		Limiter:    rate.NewLimiter(rate.Inf, 1),
	})
}

func TestTriggerBurstCollapsesToOneCall(t *testing.T) {
	tr := newTestTrigger()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Ten keystrokes 100ms apart. Each extends the window.
	var wake time.Time
	text := "please rewrite"
	for i := 0; i < 10; i++ {
		at := base.Add(time.Duration(i) * 100 * time.Millisecond)
		wake = tr.OnInput(text, at)
		require.False(t, wake.IsZero())
	}

	last := base.Add(900 * time.Millisecond)
	assert.Equal(t, last.Add(2*time.Second), wake, "window must restart from the last event")

	// A timer armed by an earlier keystroke firing early is a no-op.
	_, launch, rewake := tr.Fire(base.Add(2 * time.Second))
	assert.False(t, launch)
	assert.Equal(t, wake, rewake)
	assert.Equal(t, TriggerArmed, tr.State())

	// The real deadline fires exactly one call.
	got, launch, _ := tr.Fire(wake)
	require.True(t, launch)
	assert.Equal(t, text, got)
	assert.Equal(t, TriggerCalling, tr.State())

	// Quiet after that: nothing else fires.
	_, launch, _ = tr.Fire(wake.Add(time.Minute))
	assert.False(t, launch)
}

func TestTriggerShortTextNeverArms(t *testing.T) {
	tr := newTestTrigger()
	at := time.Now()

	assert.True(t, tr.OnInput("hi", at).IsZero())
	assert.True(t, tr.OnInput("   \n\t  ", at).IsZero())
	assert.True(t, tr.OnInput("", at).IsZero())
	assert.Equal(t, TriggerIdle, tr.State())
}

func TestTriggerDeleteBelowMinDisarms(t *testing.T) {
	tr := newTestTrigger()
	at := time.Now()

	wake := tr.OnInput("a long enough prompt", at)
	require.False(t, wake.IsZero())
	require.Equal(t, TriggerArmed, tr.State())

	assert.True(t, tr.OnInput("short", at.Add(time.Second)).IsZero())
	assert.Equal(t, TriggerIdle, tr.State())

	_, launch, _ := tr.Fire(wake)
	assert.False(t, launch)
}

func TestTriggerSelfWriteDoesNotRearm(t *testing.T) {
	tr := newTestTrigger()
	base := time.Now()
	calls := 0

	wake := tr.OnInput("make this prompt better", base)
	text, launch, _ := tr.Fire(wake)
	require.True(t, launch)
	calls++

	// Session writes back the optimized text and marks it.
	optimized := "Rewrite the following prompt with more specificity."
	tr.NotePendingOverwrite(optimized)
	tr.OnCallDone(true, wake.Add(time.Second))

	// The write-back echoes as an input event with exactly that text.
	echo := tr.OnInput(optimized, wake.Add(1100*time.Millisecond))
	assert.True(t, echo.IsZero(), "own write must not restart the window")
	assert.Equal(t, TriggerIdle, tr.State())

	_, launch, _ = tr.Fire(wake.Add(time.Hour))
	assert.False(t, launch)
	assert.Equal(t, 1, calls, "text=%q", text)

	// A later genuine edit, even if identical in length, arms again.
	w2 := tr.OnInput(optimized+" Thanks!", wake.Add(2*time.Second))
	assert.False(t, w2.IsZero())
}

func TestTriggerSuppressionIsConsumedByMismatch(t *testing.T) {
	tr := newTestTrigger()
	at := time.Now()

	tr.NotePendingOverwrite("the programmatic text")

	// User typed before our write landed: suppression must not eat a real
	// event, and must not linger either.
	w := tr.OnInput("something the user typed themselves", at)
	assert.False(t, w.IsZero())

	w2 := tr.OnInput("the programmatic text", at.Add(time.Second))
	assert.False(t, w2.IsZero(), "note was already spent")
}

func TestTriggerSingleFlightRearms(t *testing.T) {
	tr := newTestTrigger()
	base := time.Now()

	wake := tr.OnInput("first version of the prompt", base)
	_, launch, _ := tr.Fire(wake)
	require.True(t, launch)

	// More typing while the call is in flight: no second call, no timer.
	mid := tr.OnInput("second version of the prompt", wake.Add(500*time.Millisecond))
	assert.True(t, mid.IsZero())
	_, launch, _ = tr.Fire(wake.Add(10 * time.Second))
	assert.False(t, launch)

	// Call finishes: the mid-flight edit re-arms a fresh window.
	done := wake.Add(time.Second)
	rewake := tr.OnCallDone(true, done)
	require.False(t, rewake.IsZero())
	assert.Equal(t, done.Add(2*time.Second), rewake)

	text, launch, _ := tr.Fire(rewake)
	require.True(t, launch)
	assert.Equal(t, "second version of the prompt", text)
}

func TestTriggerFailureBackoffDoublesAndCaps(t *testing.T) {
	tr := NewTrigger(TriggerConfig{
		IdleWindow:  time.Second,
		MinLen:      5,
		BackoffBase: 30 * time.Second,
		BackoffCap:  10 * time.Minute,
		Limiter:     rate.NewLimiter(rate.Inf, 1),
	})
	at := time.Now()

	fail := func(n int) time.Duration {
		wake := tr.OnInput("prompt text here", at)
		_, launch, _ := tr.Fire(wake)
		require.True(t, launch, "launch %d", n)
		at = wake.Add(time.Second)
		tr.OnCallDone(false, at)

		// Arm again and observe how far out the retry gets pushed.
		wake = tr.OnInput("prompt text here", at)
		_, launch, retry := tr.Fire(wake)
		require.False(t, launch)
		require.False(t, retry.IsZero())
		d := retry.Sub(at)

		// Let the backoff fully elapse before the next round.
		at = retry.Add(time.Second)
		tr.Reset()
		return d
	}

	assert.Equal(t, 30*time.Second, fail(1))
	assert.Equal(t, 60*time.Second, fail(2))
	assert.Equal(t, 120*time.Second, fail(3))
	assert.Equal(t, 240*time.Second, fail(4))
	assert.Equal(t, 480*time.Second, fail(5))
	assert.Equal(t, 10*time.Minute, fail(6), "doubling stops at the cap")
	assert.Equal(t, 10*time.Minute, fail(7))
}

func TestTriggerSuccessResetsBackoff(t *testing.T) {
	tr := newTestTrigger()
	at := time.Now()

	wake := tr.OnInput("prompt that will fail", at)
	_, launch, _ := tr.Fire(wake)
	require.True(t, launch)
	tr.OnCallDone(false, wake)
	require.Equal(t, 1, tr.FailStreak())

	// Wait out the backoff, succeed, and the streak clears.
	at = wake.Add(time.Minute)
	wake = tr.OnInput("prompt that will pass", at)
	_, launch, _ = tr.Fire(wake)
	require.True(t, launch)
	tr.OnCallDone(true, wake)
	assert.Equal(t, 0, tr.FailStreak())

	// Immediately after success there is no residual delay.
	at = wake.Add(time.Second)
	wake = tr.OnInput("another prompt right away", at)
	_, launch, _ = tr.Fire(wake)
	assert.True(t, launch)
}

func TestTriggerRateLimiterDefersCalls(t *testing.T) {
	// One call per minute, no burst headroom beyond the first.
	tr := NewTrigger(TriggerConfig{
		IdleWindow: time.Second,
		MinLen:     5,
		Limiter:    rate.NewLimiter(rate.Every(time.Minute), 1),
	})
	at := time.Now()

	wake := tr.OnInput("first prompt", at)
	_, launch, _ := tr.Fire(wake)
	require.True(t, launch)
	tr.OnCallDone(true, wake)

	// Second call right away gets pushed out instead of launching.
	wake = tr.OnInput("second prompt", wake.Add(time.Second))
	_, launch, retry := tr.Fire(wake)
	assert.False(t, launch)
	require.False(t, retry.IsZero())
	assert.Greater(t, retry.Sub(wake), 30*time.Second)

	// At the deferred instant it goes through.
	_, launch, _ = tr.Fire(retry)
	assert.True(t, launch)
}

func TestTriggerResetKeepsBackoffHistory(t *testing.T) {
	tr := newTestTrigger()
	at := time.Now()

	wake := tr.OnInput("prompt that will fail", at)
	_, launch, _ := tr.Fire(wake)
	require.True(t, launch)
	tr.OnCallDone(false, wake)

	tr.Reset()
	assert.Equal(t, TriggerIdle, tr.State())
	assert.Equal(t, 1, tr.FailStreak(), "backend health is not element state")
}
