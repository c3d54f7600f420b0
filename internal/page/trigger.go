package page

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// TriggerState names the auto-optimize trigger's states.
type TriggerState int

const (
	// TriggerIdle means no call is pending or in flight.
	TriggerIdle TriggerState = iota
	// TriggerArmed means input was seen and the idle timer is running.
	TriggerArmed
	// TriggerCalling means an optimization call is in flight.
	TriggerCalling
)

func (s TriggerState) String() string {
	switch s {
	case TriggerArmed:
		return "armed"
	case TriggerCalling:
		return "calling"
	default:
		return "idle"
	}
}

// TriggerConfig tunes the debounce trigger. Zero values take defaults.
type TriggerConfig struct {
	// IdleWindow is how long input must be quiet before a call fires.
	IdleWindow time.Duration
	// MinLen is the minimum rune count (after trimming) worth optimizing.
	MinLen int
	// BackoffBase is the pause after the first consecutive failure. It
	// doubles per failure up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Limiter bounds the overall call rate regardless of typing pattern.
	Limiter *rate.Limiter
}

func (c TriggerConfig) withDefaults() TriggerConfig {
	if c.IdleWindow <= 0 {
		c.IdleWindow = 2 * time.Second
	}
	if c.MinLen <= 0 {
		c.MinLen = 10
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 10 * time.Minute
	}
	if c.Limiter == nil {
		c.Limiter = rate.NewLimiter(rate.Every(10*time.Second), 3)
	}
	return c
}

// Trigger is the debounced auto-optimize state machine. It owns no timers
// and never reads the clock: every method takes the current time and
// returns the next wake instant (zero when nothing is scheduled), so the
// session drives one real timer and tests drive a fake clock.
//
// One call in flight at most. Input during a call re-arms after the call
// finishes instead of stacking a second call.
type Trigger struct {
	cfg TriggerConfig

	state    TriggerState
	text     string
	deadline time.Time

	// rearm is set when input arrives mid-call.
	rearm bool

	// suppress swallows the one input event caused by our own write-back.
	suppress     bool
	suppressText string

	failStreak int
	notBefore  time.Time
}

// NewTrigger builds an idle trigger.
func NewTrigger(cfg TriggerConfig) *Trigger {
	return &Trigger{cfg: cfg.withDefaults()}
}

// State reports the current state.
func (t *Trigger) State() TriggerState { return t.state }

// FailStreak reports consecutive auto-call failures since the last success.
func (t *Trigger) FailStreak() int { return t.failStreak }

// NotePendingOverwrite records text the session is about to write into the
// input itself. The next input event carrying exactly that text is ignored
// instead of re-arming; any other next event clears the note.
func (t *Trigger) NotePendingOverwrite(text string) {
	t.suppress = true
	t.suppressText = text
}

// OnInput handles one input event with the element's full text. Each event
// restarts the idle window, so the wake it returns supersedes earlier ones.
func (t *Trigger) OnInput(text string, at time.Time) (wake time.Time) {
	if t.suppress {
		t.suppress = false
		if text == t.suppressText {
			// Our own write-back landing. Do not re-arm off it.
			if t.state == TriggerArmed {
				t.state = TriggerIdle
			}
			return time.Time{}
		}
	}

	if utf8.RuneCountInString(strings.TrimSpace(text)) < t.cfg.MinLen {
		if t.state == TriggerArmed {
			t.state = TriggerIdle
		}
		return time.Time{}
	}

	t.text = text
	t.deadline = at.Add(t.cfg.IdleWindow)

	if t.state == TriggerCalling {
		t.rearm = true
		return time.Time{}
	}

	t.state = TriggerArmed
	return t.deadline
}

// Fire handles the idle timer going off. When a call should launch it
// returns the text and launch=true and moves to Calling; otherwise launch
// is false and wake (when nonzero) is the rescheduled timer.
func (t *Trigger) Fire(at time.Time) (text string, launch bool, wake time.Time) {
	if t.state != TriggerArmed {
		return "", false, time.Time{}
	}
	if at.Before(t.deadline) {
		// Stale timer from an earlier, since-extended window.
		return "", false, t.deadline
	}
	if at.Before(t.notBefore) {
		// Still backing off after failures. Stay armed and retry then.
		return "", false, t.notBefore
	}
	if r := t.cfg.Limiter.ReserveN(at, 1); !r.OK() {
		t.state = TriggerIdle
		return "", false, time.Time{}
	} else if d := r.DelayFrom(at); d > 0 {
		r.CancelAt(at)
		return "", false, at.Add(d)
	}

	t.state = TriggerCalling
	return t.text, true, time.Time{}
}

// BeginManual starts a user-initiated call (control click, popup push).
// It skips the idle window, backoff, and rate limiter because the user
// asked explicitly, but still refuses to stack on an in-flight call.
func (t *Trigger) BeginManual() bool {
	if t.state == TriggerCalling {
		return false
	}
	t.state = TriggerCalling
	return true
}

// OnCallDone finishes the in-flight call. Failures extend the backoff
// streak; success clears it. Input that arrived mid-call re-arms a fresh
// idle window.
func (t *Trigger) OnCallDone(success bool, at time.Time) (wake time.Time) {
	if t.state != TriggerCalling {
		return time.Time{}
	}

	if success {
		t.failStreak = 0
		t.notBefore = time.Time{}
	} else {
		t.failStreak++
		t.notBefore = at.Add(t.backoff())
	}

	if t.rearm {
		t.rearm = false
		t.state = TriggerArmed
		t.deadline = at.Add(t.cfg.IdleWindow)
		return t.deadline
	}

	t.state = TriggerIdle
	return time.Time{}
}

// Reset drops all pending state, used when the tracked input changes
// identity or vanishes. Backoff history survives; it describes the backend,
// not the element.
func (t *Trigger) Reset() {
	t.state = TriggerIdle
	t.text = ""
	t.rearm = false
	t.suppress = false
	t.deadline = time.Time{}
}

func (t *Trigger) backoff() time.Duration {
	d := t.cfg.BackoffBase
	for i := 1; i < t.failStreak; i++ {
		d *= 2
		if d >= t.cfg.BackoffCap {
			return t.cfg.BackoffCap
		}
	}
	if d > t.cfg.BackoffCap {
		return t.cfg.BackoffCap
	}
	return d
}
