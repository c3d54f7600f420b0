package page

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/promptpolish/cli/internal/bridge"
	"github.com/promptpolish/cli/internal/config"
	"github.com/promptpolish/cli/internal/handoff"
	"github.com/promptpolish/cli/internal/optimizer"
	"github.com/promptpolish/cli/pkg/logx"
)

// Optimizer is the slice of the optimization client the session needs.
type Optimizer interface {
	Optimize(ctx context.Context, req optimizer.OptimizationRequest) (*optimizer.OptimizationResult, error)
}

// SessionOptions wires a Session to its collaborators. Bridge and Handoff
// are optional; without them selection capture degrades to a direct store
// write or a log line.
type SessionOptions struct {
	Config    *config.Config
	Optimizer Optimizer
	Bridge    *bridge.Client
	Handoff   handoff.Store

	// Headless hides the browser window. Attach sessions default to a
	// visible window because the user works in the page.
	Headless bool
	WindowW  int
	WindowH  int
}

// Session drives one chat tab: it injects the agent, tracks the input,
// positions the control, and runs the debounced optimize loop. All state
// machine mutation happens on a single goroutine; CDP events, timers, and
// call completions are funneled into it over channels.
type Session struct {
	cfg *config.Config
	opt Optimizer
	brg *bridge.Client
	hof handoff.Store
	log zerolog.Logger

	id       string
	headless bool
	winW     int
	winH     int

	locator *Locator
	control *ControlMachine
	trigger *Trigger

	events   chan AgentEvent
	scanC    chan struct{}
	callDone chan callResult

	// eval runs one JS expression in the attached tab. Assigned at Run
	// from the live chromedp context; tests substitute their own.
	eval func(expr string, out any) error

	now func() time.Time

	wakeAt    time.Time
	wakeTimer *time.Timer

	teardown sync.Once
}

type callResult struct {
	token  string
	manual bool
	result *optimizer.OptimizationResult
	err    error
}

// NewSession builds a session; Run attaches it.
func NewSession(opts SessionOptions) *Session {
	w, h := opts.WindowW, opts.WindowH
	if w <= 0 {
		w = 1440
	}
	if h <= 0 {
		h = 900
	}
	s := &Session{
		cfg:      opts.Config,
		opt:      opts.Optimizer,
		brg:      opts.Bridge,
		hof:      opts.Handoff,
		log:      logx.With("session"),
		id:       uuid.NewString(),
		headless: opts.Headless,
		winW:     w,
		winH:     h,
		locator:  NewLocator(),
		control:  NewControlMachine(ControlConfig{}),
		events:   make(chan AgentEvent, 64),
		scanC:    make(chan struct{}, 1),
		callDone: make(chan callResult, 1),
		now:      time.Now,
	}
	s.trigger = NewTrigger(TriggerConfig{
		IdleWindow: opts.Config.IdleWindow(),
		MinLen:     opts.Config.MinTriggerLen,
	})
	return s
}

// ID reports the session identifier used with the bridge.
func (s *Session) ID() string { return s.id }

// Run attaches to (or launches) a browser, opens the chat page, and blocks
// driving the event loop until ctx is canceled or the browser goes away.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	allocCtx, allocCancel, err := s.allocator(ctx)
	if err != nil {
		return err
	}
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	s.eval = func(expr string, out any) error {
		ectx, ecancel := context.WithTimeout(browserCtx, 10*time.Second)
		defer ecancel()
		return chromedp.Run(ectx, chromedp.Evaluate(expr, out))
	}

	chromedp.ListenTarget(browserCtx, func(ev any) {
		bc, ok := ev.(*runtime.EventBindingCalled)
		if !ok || bc.Name != BindingName {
			return
		}
		agentEv, err := ParseAgentEvent(bc.Payload)
		if err != nil {
			s.log.Debug().Err(err).Msg("dropping agent event")
			return
		}
		select {
		case s.events <- agentEv:
		default:
			s.log.Debug().Str("kind", agentEv.Kind).Msg("agent event queue full, dropping")
		}
	})

	chatURL := s.cfg.ChatURL
	if err := chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(cctx context.Context) error {
			if err := runtime.AddBinding(BindingName).Do(cctx); err != nil {
				return err
			}
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(AgentScript).Do(cctx)
			return err
		}),
		chromedp.Navigate(chatURL),
	); err != nil {
		return fmt.Errorf("open chat page %s: %w", chatURL, err)
	}
	s.log.Info().Str("url", chatURL).Str("session_id", s.id).Msg("attached to chat page")

	bridgeEvents := s.connectBridge(ctx, chatURL)
	defer s.shutdown()

	s.control.Show()
	s.wakeTimer = time.NewTimer(time.Hour)
	if !s.wakeTimer.Stop() {
		<-s.wakeTimer.C
	}
	defer s.wakeTimer.Stop()

	burst := make([]*time.Timer, 0, len(MountBurstDelays))
	for _, d := range MountBurstDelays {
		burst = append(burst, time.AfterFunc(d, s.requestScan))
	}
	defer func() {
		for _, t := range burst {
			t.Stop()
		}
	}()

	poll := time.NewTicker(PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-browserCtx.Done():
			return fmt.Errorf("browser closed: %w", browserCtx.Err())
		case ev := <-s.events:
			s.handleAgentEvent(ctx, ev)
		case <-s.scanC:
			s.rescan()
		case <-poll.C:
			s.rescan()
		case <-s.wakeTimer.C:
			s.onWake(ctx)
		case res := <-s.callDone:
			s.finishCall(res)
		case bev, ok := <-bridgeEvents:
			if !ok {
				bridgeEvents = nil
				s.log.Warn().Msg("bridge event stream closed")
				continue
			}
			s.handleBridgeEvent(bev)
		}
	}
}

// allocator picks between attaching to a running browser over CDP and
// launching a fresh one with a persistent profile under the state dir.
func (s *Session) allocator(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if s.cfg.CDPURL != "" {
		s.log.Info().Str("cdp_url", s.cfg.CDPURL).Msg("attaching to running browser")
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, s.cfg.CDPURL)
		return allocCtx, cancel, nil
	}

	stateDir, err := config.EnsureStateDir()
	if err != nil {
		return nil, nil, fmt.Errorf("prepare state dir: %w", err)
	}
	profileDir := filepath.Join(stateDir, "profile")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-session-crashed-bubble", true),
		chromedp.Flag("hide-crash-restore-bubble", true),
		chromedp.WindowSize(s.winW, s.winH),
	)
	if s.headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	s.log.Info().Str("profile", profileDir).Bool("headless", s.headless).Msg("launching browser")
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	return allocCtx, cancel, nil
}

// connectBridge registers this session with the serve daemon when one is
// reachable. Returns a nil channel (blocks forever in select) otherwise.
func (s *Session) connectBridge(ctx context.Context, url string) <-chan bridge.Event {
	if s.brg == nil {
		return nil
	}
	if !s.brg.Alive(ctx) {
		s.log.Warn().Msg("bridge daemon not reachable, popup handoff disabled (run: promptpolish serve)")
		s.brg = nil
		return nil
	}
	if err := s.brg.AttachPage(ctx, bridge.PageInfo{SessionID: s.id, URL: url}); err != nil {
		s.log.Warn().Err(err).Msg("bridge attach failed, popup handoff disabled")
		s.brg = nil
		return nil
	}
	ch, err := s.brg.Events(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("bridge event stream failed, popup handoff disabled")
		s.brg = nil
		return nil
	}
	s.log.Info().Str("addr", s.cfg.BridgeAddr).Msg("registered with bridge daemon")
	return ch
}

func (s *Session) requestScan() {
	select {
	case s.scanC <- struct{}{}:
	default:
	}
}

func (s *Session) handleAgentEvent(ctx context.Context, ev AgentEvent) {
	switch ev.Kind {
	case EventReady:
		// New document: all page-side state (tokens, control element) is
		// gone. Reset tracking; backoff history survives navigations.
		s.locator.Reset()
		s.trigger.Reset()
		s.scheduleWake(time.Time{})
		s.control.SetViewport(Viewport{W: ev.W, H: ev.H})
		s.render(s.control.SetAnchor(nil))
		s.requestScan()

	case EventInput:
		loc := s.locator.Current()
		if loc == nil || loc.Token != ev.Token {
			return
		}
		loc.Value = ev.Text
		s.scheduleWake(s.trigger.OnInput(ev.Text, s.now()))

	case EventSelection:
		s.forwardSelection(ev.Text)

	case EventControlClick:
		s.capturePromptForPopup(ev.Text)

	case EventOptimizeNow:
		s.manualOptimize(ctx)

	case EventScroll, EventResize:
		if ev.W > 0 && ev.H > 0 {
			s.control.SetViewport(Viewport{W: ev.W, H: ev.H})
		}
		s.requestScan()

	case EventMutation:
		s.requestScan()

	default:
		s.log.Debug().Str("kind", ev.Kind).Msg("unknown agent event")
	}
}

// rescan runs the locator pipeline once: scan the page, reconcile the
// tracked input, and reposition the control when anything changed.
func (s *Session) rescan() {
	var res ScanResult
	if err := s.eval(ScanExpr(), &res); err != nil {
		// Mid-navigation evaluations fail routinely. The next ready event
		// or poll tick retries.
		s.log.Debug().Err(err).Msg("scan failed")
		return
	}

	if res.Viewport.W > 0 && res.Viewport.H > 0 {
		s.control.SetViewport(res.Viewport)
	}

	prevToken := ""
	if cur := s.locator.Current(); cur != nil {
		prevToken = cur.Token
	}

	loc, changed := s.locator.Evaluate(res.Candidates)
	if !changed {
		return
	}

	newToken := ""
	if loc != nil {
		newToken = loc.Token
	}
	if newToken != prevToken {
		// Identity change: any pending debounce belonged to the old
		// element.
		s.trigger.Reset()
		s.scheduleWake(time.Time{})
		if loc != nil {
			s.log.Info().Str("strategy", loc.Strategy).Int("generation", loc.Generation).Msg("chat input located")
		} else {
			s.log.Info().Msg("chat input lost, control falls back to corner")
		}
	}

	s.render(s.control.SetAnchor(loc))
}

func (s *Session) render(up ControlUpdate) {
	if err := s.eval(RenderControlExpr(up), nil); err != nil {
		s.log.Debug().Err(err).Msg("render failed")
	}
}

// onWake fires the debounce timer into the trigger and launches the call
// when it says go.
func (s *Session) onWake(ctx context.Context) {
	text, launch, wake := s.trigger.Fire(s.now())
	if !launch {
		s.scheduleWake(wake)
		return
	}
	loc := s.locator.Current()
	if loc == nil {
		s.trigger.OnCallDone(false, s.now())
		return
	}
	s.launchCall(ctx, loc.Token, text, false)
}

// manualOptimize handles the optimize-now hotkey: rewrite whatever is in
// the input right now, skipping the idle window.
func (s *Session) manualOptimize(ctx context.Context) {
	loc := s.locator.Current()
	if loc == nil {
		s.log.Info().Msg("optimize requested but no chat input is located")
		return
	}

	var text string
	if err := s.eval(ReadValueExpr(loc.Token), &text); err != nil {
		s.log.Warn().Err(err).Msg("reading input failed")
		return
	}
	if strings.TrimSpace(text) == "" {
		s.log.Info().Msg("nothing to optimize")
		return
	}
	if !s.trigger.BeginManual() {
		s.log.Debug().Msg("optimization already in flight")
		return
	}
	s.launchCall(ctx, loc.Token, text, true)
}

// launchCall starts the HTTP call off-loop. Exactly one runs at a time;
// the trigger is already in Calling when this is reached.
func (s *Session) launchCall(ctx context.Context, token, text string, manual bool) {
	s.setBusy(true)
	go func() {
		result, err := s.opt.Optimize(ctx, optimizer.OptimizationRequest{Text: text})
		s.callDone <- callResult{token: token, manual: manual, result: result, err: err}
	}()
}

// finishCall applies one completed optimization: write the text back,
// suppress the echo, and let the trigger account for success or failure.
func (s *Session) finishCall(res callResult) {
	s.setBusy(false)
	ok := res.err == nil
	s.scheduleWake(s.trigger.OnCallDone(ok, s.now()))

	if !ok {
		s.log.Warn().Err(res.err).Int("fail_streak", s.trigger.FailStreak()).Msg("optimization failed")
		return
	}

	loc := s.locator.Current()
	if loc == nil || loc.Token != res.token {
		s.log.Warn().Msg("chat input changed while optimizing, dropping result")
		return
	}

	optimized := res.result.OptimizedText
	s.trigger.NotePendingOverwrite(optimized)
	if !s.writeValue(res.token, optimized) {
		s.log.Warn().Msg("writing optimized text failed")
		return
	}
	loc.Value = optimized
	s.log.Info().
		Float64("score_before", res.result.Scores.Original.Overall).
		Float64("score_after", res.result.Scores.Optimized.Overall).
		Bool("manual", res.manual).
		Msg("prompt optimized in place")
}

func (s *Session) writeValue(token, text string) bool {
	var ok bool
	if err := s.eval(WriteValueExpr(token, text), &ok); err != nil {
		s.log.Warn().Err(err).Msg("write evaluation failed")
		return false
	}
	return ok
}

func (s *Session) setBusy(busy bool) {
	if err := s.eval(SetBusyExpr(busy), nil); err != nil {
		s.log.Debug().Err(err).Msg("busy toggle failed")
	}
}

// capturePromptForPopup handles a control click. Capture order: the
// tracked input's live value when non-empty, else the selection shipped
// with the click, else the empty string. The result is always forwarded,
// empty included, so a stale handoff never outlives the click that should
// have replaced it.
func (s *Session) capturePromptForPopup(selection string) {
	text := ""
	if loc := s.locator.Current(); loc != nil {
		var v string
		if err := s.eval(ReadValueExpr(loc.Token), &v); err == nil && strings.TrimSpace(v) != "" {
			text = v
		}
	}
	if text == "" {
		text = selection
	}
	s.forwardToPopup(text)
}

// forwardSelection routes hotkey-captured selection text toward the popup.
// An empty selection is dropped here; clicks forward unconditionally.
func (s *Session) forwardSelection(text string) {
	if strings.TrimSpace(text) == "" {
		s.log.Debug().Msg("empty selection, ignoring")
		return
	}
	s.forwardToPopup(text)
}

// forwardToPopup hands text off: live over the bridge when the daemon
// runs, otherwise straight into the handoff store for the next popup to
// pick up.
func (s *Session) forwardToPopup(text string) {
	if s.brg != nil {
		brg := s.brg
		go func() {
			if err := brg.OpenPopupWithText(context.Background(), text); err != nil {
				s.log.Warn().Err(err).Msg("popup handoff to bridge failed")
			}
		}()
		return
	}
	if s.hof != nil {
		if err := s.hof.Set(context.Background(), text); err != nil {
			s.log.Warn().Err(err).Msg("handoff write failed")
			return
		}
		if text != "" {
			s.log.Info().Int("chars", len(text)).Msg("prompt captured, open it with: promptpolish popup")
		}
		return
	}
	s.log.Info().Msg("text captured but no handoff target is configured")
}

// handleBridgeEvent answers daemon commands addressed at page sessions.
func (s *Session) handleBridgeEvent(ev bridge.Event) {
	switch ev.Type {
	case bridge.EventTextRequest:
		var req bridge.TextRequestData
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return
		}
		text := s.collectText(req.Source)
		brg := s.brg
		go func() {
			if err := brg.ReplyText(context.Background(), req.ID, text); err != nil {
				s.log.Warn().Err(err).Msg("text reply failed")
			}
		}()

	case bridge.EventReplaceRequest:
		var req bridge.ReplaceRequestData
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			return
		}
		result := s.applyReplace(req.Text)
		brg := s.brg
		go func() {
			if err := brg.ReplyReplace(context.Background(), req.ID, result); err != nil {
				s.log.Warn().Err(err).Msg("replace reply failed")
			}
		}()
	}
}

func (s *Session) collectText(source bridge.TextSource) string {
	if source == bridge.SourceSelection {
		var text string
		if err := s.eval(ReadSelectionExpr(), &text); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}
	loc := s.locator.Current()
	if loc == nil {
		return ""
	}
	var text string
	if err := s.eval(ReadValueExpr(loc.Token), &text); err != nil {
		return loc.Value
	}
	return text
}

func (s *Session) applyReplace(text string) bridge.ReplaceResult {
	loc := s.locator.Current()
	if loc == nil {
		return bridge.ReplaceResult{Success: false, Error: "chat input not found"}
	}
	s.trigger.NotePendingOverwrite(text)
	if !s.writeValue(loc.Token, text) {
		return bridge.ReplaceResult{Success: false, Error: "chat input not found"}
	}
	loc.Value = text
	return bridge.ReplaceResult{Success: true}
}

// scheduleWake arms (or disarms, with the zero time) the single trigger
// timer. Later schedules supersede earlier ones.
func (s *Session) scheduleWake(at time.Time) {
	s.wakeAt = at
	if s.wakeTimer == nil {
		return
	}
	if at.IsZero() {
		s.wakeTimer.Stop()
		return
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	s.wakeTimer.Reset(d)
}

// shutdown is idempotent: removes the control from the page and detaches
// from the bridge. Best effort on both, the browser may already be gone.
func (s *Session) shutdown() {
	s.teardown.Do(func() {
		_ = s.eval(RemoveControlExpr(), nil)
		if s.brg != nil {
			dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer dcancel()
			if err := s.brg.DetachPage(dctx, bridge.PageInfo{SessionID: s.id}); err != nil {
				s.log.Debug().Err(err).Msg("bridge detach failed")
			}
		}
		s.log.Info().Str("session_id", s.id).Msg("session closed")
	})
}
