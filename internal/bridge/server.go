package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/promptpolish/cli/internal/handoff"
	"github.com/promptpolish/cli/pkg/logx"
)

const (
	textReplyTimeout    = 3 * time.Second
	replaceReplyTimeout = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
	eventBuffer         = 16
)

// DaemonOptions configures a bridge daemon.
type DaemonOptions struct {
	Addr    string
	Store   handoff.Store
	Version string
	// Token, when set, requires a matching bearer token on every request.
	Token string
	// ReplyTimeout bounds how long page commands wait for the session's
	// answer. Zero keeps the defaults.
	ReplyTimeout time.Duration
}

// Daemon is the background-worker stand-in: it owns the handoff store, keeps
// the registry of the (at most one) attached page session, answers the typed
// message contract, and fans events out to SSE subscribers.
type Daemon struct {
	addr    string
	token   string
	store   handoff.Store
	version string
	log     zerolog.Logger

	textTimeout    time.Duration
	replaceTimeout time.Duration

	mu      sync.Mutex
	subs    map[string]chan Event
	pending map[string]chan json.RawMessage
	page    *PageInfo
}

// NewDaemon builds a Daemon from opts.
func NewDaemon(opts DaemonOptions) *Daemon {
	d := &Daemon{
		addr:           opts.Addr,
		token:          opts.Token,
		store:          opts.Store,
		version:        opts.Version,
		log:            logx.With("bridge"),
		textTimeout:    textReplyTimeout,
		replaceTimeout: replaceReplyTimeout,
		subs:           make(map[string]chan Event),
		pending:        make(map[string]chan json.RawMessage),
	}
	if opts.ReplyTimeout > 0 {
		d.textTimeout = opts.ReplyTimeout
		d.replaceTimeout = opts.ReplyTimeout
	}
	return d
}

// Run serves until ctx is canceled, then drains with a bounded shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              d.addr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		d.log.Info().Str("addr", d.addr).Msg("bridge daemon listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("bridge daemon failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Handler exposes the daemon's routes, mainly so tests can drive it through
// httptest without binding a port.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", d.handleHealth)
	mux.HandleFunc("GET /v1/events", d.handleEvents)
	mux.HandleFunc("POST /v1/message", d.handleMessage)
	mux.HandleFunc("GET /v1/handoff", d.handleHandoffGet)
	mux.HandleFunc("POST /v1/handoff", d.handleHandoffSet)
	mux.HandleFunc("DELETE /v1/handoff", d.handleHandoffClear)
	mux.HandleFunc("POST /v1/popup/open", d.handlePopupOpen)
	mux.HandleFunc("GET /v1/page/text", d.handlePageText)
	mux.HandleFunc("POST /v1/page/replace", d.handlePageReplace)
	mux.HandleFunc("POST /v1/page/attach", d.handlePageAttach)
	mux.HandleFunc("POST /v1/page/detach", d.handlePageDetach)
	mux.HandleFunc("POST /v1/page/reply", d.handlePageReply)
	return d.authMiddleware(mux)
}

func (d *Daemon) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != d.token {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid bridge token"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	page := d.page
	d.mu.Unlock()
	writeJSON(w, http.StatusOK, Health{Status: "ok", Version: d.version, Page: page})
}

// handleMessage is the envelope entry point: one POST carrying {type,
// payload}, answered with the tag's response shape.
func (d *Daemon) handleMessage(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed envelope"})
		return
	}

	switch env.Type {
	case TagOpenPopup:
		d.openPopup(r.Context(), "")
		writeJSON(w, http.StatusOK, Ack{OK: true})
	case TagOpenPopupWithText:
		var p TextPayload
		_ = json.Unmarshal(env.Payload, &p)
		d.openPopup(r.Context(), p.Text)
		writeJSON(w, http.StatusOK, Ack{OK: true})
	case TagGetLastText:
		text, err := d.store.Get(r.Context())
		if err != nil {
			d.log.Warn().Err(err).Msg("handoff read failed")
			text = ""
		}
		writeJSON(w, http.StatusOK, TextPayload{Text: text})
	case TagGetSelectedText:
		writeJSON(w, http.StatusOK, TextPayload{Text: d.pageText(r.Context(), SourceSelection)})
	case TagGetChatText:
		writeJSON(w, http.StatusOK, TextPayload{Text: d.pageText(r.Context(), SourceInput)})
	case TagReplaceChatText:
		var p TextPayload
		_ = json.Unmarshal(env.Payload, &p)
		writeJSON(w, http.StatusOK, d.replaceText(r.Context(), p.Text))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown message type %q", env.Type)})
	}
}

func (d *Daemon) handleHandoffGet(w http.ResponseWriter, r *http.Request) {
	text, err := d.store.Get(r.Context())
	if err != nil {
		d.log.Warn().Err(err).Msg("handoff read failed")
		text = ""
	}
	writeJSON(w, http.StatusOK, TextPayload{Text: text})
}

func (d *Daemon) handleHandoffSet(w http.ResponseWriter, r *http.Request) {
	var p TextPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}
	if err := d.store.Set(r.Context(), p.Text); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	d.broadcast(EventHandoffUpdated, TextPayload{Text: p.Text})
	writeJSON(w, http.StatusOK, Ack{OK: true})
}

func (d *Daemon) handleHandoffClear(w http.ResponseWriter, r *http.Request) {
	if err := d.store.Clear(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, Ack{OK: true})
}

func (d *Daemon) handlePopupOpen(w http.ResponseWriter, r *http.Request) {
	var p TextPayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&p)
	}
	d.openPopup(r.Context(), p.Text)
	writeJSON(w, http.StatusOK, Ack{OK: true})
}

// openPopup persists non-empty text first so the popup finds it on open,
// then announces the open request.
func (d *Daemon) openPopup(ctx context.Context, text string) {
	if text != "" {
		if err := d.store.Set(ctx, text); err != nil {
			d.log.Warn().Err(err).Msg("handoff write failed")
		} else {
			d.broadcast(EventHandoffUpdated, TextPayload{Text: text})
		}
	}
	d.broadcast(EventPopupOpen, nil)
}

func (d *Daemon) handlePageText(w http.ResponseWriter, r *http.Request) {
	source := TextSource(r.URL.Query().Get("source"))
	if source != SourceSelection {
		source = SourceInput
	}
	writeJSON(w, http.StatusOK, TextPayload{Text: d.pageText(r.Context(), source)})
}

func (d *Daemon) handlePageReplace(w http.ResponseWriter, r *http.Request) {
	var p TextPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}
	writeJSON(w, http.StatusOK, d.replaceText(r.Context(), p.Text))
}

// pageText asks the attached page session for its current text. No session,
// no answer, or a late answer all read as empty text: absence is a normal
// steady state here, never an error.
func (d *Daemon) pageText(ctx context.Context, source TextSource) string {
	id, ch, ok := d.newPending()
	if !ok {
		return ""
	}
	defer d.dropPending(id)

	d.broadcast(EventTextRequest, TextRequestData{ID: id, Source: source})

	select {
	case raw := <-ch:
		var p TextPayload
		_ = json.Unmarshal(raw, &p)
		return p.Text
	case <-time.After(d.textTimeout):
		d.log.Debug().Err(&replyTimeoutError{id: id}).Msg("page text request timed out")
		return ""
	case <-ctx.Done():
		return ""
	}
}

// replaceText forwards a replace request to the page session. Every path
// produces an answered ReplaceResult; the no-session and timeout cases are
// the success=false shape, not transport errors.
func (d *Daemon) replaceText(ctx context.Context, text string) ReplaceResult {
	id, ch, ok := d.newPending()
	if !ok {
		return ReplaceResult{Success: false, Error: "chat input not found: no page session attached"}
	}
	defer d.dropPending(id)

	d.broadcast(EventReplaceRequest, ReplaceRequestData{ID: id, Text: text})

	select {
	case raw := <-ch:
		var res ReplaceResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return ReplaceResult{Success: false, Error: "malformed page reply"}
		}
		return res
	case <-time.After(d.replaceTimeout):
		d.log.Debug().Err(&replyTimeoutError{id: id}).Msg("page replace request timed out")
		return ReplaceResult{Success: false, Error: "page did not respond"}
	case <-ctx.Done():
		return ReplaceResult{Success: false, Error: "request canceled"}
	}
}

// newPending allocates a correlation ID when a page session is attached.
func (d *Daemon) newPending() (string, chan json.RawMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.page == nil {
		return "", nil, false
	}
	id := uuid.NewString()
	ch := make(chan json.RawMessage, 1)
	d.pending[id] = ch
	return id, ch, true
}

func (d *Daemon) dropPending(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

func (d *Daemon) handlePageAttach(w http.ResponseWriter, r *http.Request) {
	var info PageInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil || info.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId required"})
		return
	}
	d.mu.Lock()
	replaced := d.page != nil
	d.page = &info
	d.mu.Unlock()

	if replaced {
		d.log.Info().Str("session_id", info.SessionID).Msg("page session replaced")
	} else {
		d.log.Info().Str("session_id", info.SessionID).Str("url", info.URL).Msg("page session attached")
	}
	d.broadcast(EventPageAttached, info)
	writeJSON(w, http.StatusOK, Ack{OK: true})
}

func (d *Daemon) handlePageDetach(w http.ResponseWriter, r *http.Request) {
	var info PageInfo
	_ = json.NewDecoder(r.Body).Decode(&info)

	d.mu.Lock()
	// Detach is idempotent and ignores stale session IDs.
	if d.page != nil && (info.SessionID == "" || info.SessionID == d.page.SessionID) {
		d.page = nil
	}
	d.mu.Unlock()

	d.broadcast(EventPageDetached, info)
	writeJSON(w, http.StatusOK, Ack{OK: true})
}

// pageReplyPayload is what the page session posts back for a command event.
type pageReplyPayload struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

func (d *Daemon) handlePageReply(w http.ResponseWriter, r *http.Request) {
	var reply pageReplyPayload
	if err := json.NewDecoder(r.Body).Decode(&reply); err != nil || reply.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id required"})
		return
	}

	d.mu.Lock()
	ch, ok := d.pending[reply.ID]
	d.mu.Unlock()
	if ok {
		select {
		case ch <- reply.Body:
		default:
		}
	}
	// A reply nobody is waiting for means the waiter timed out; at-most-once
	// delivery makes that a silent non-event.
	writeJSON(w, http.StatusOK, Ack{OK: true})
}

func (d *Daemon) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	ch := make(chan Event, eventBuffer)
	d.mu.Lock()
	d.subs[id] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.subs, id)
		d.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// broadcast fans an event out to every subscriber. Slow subscribers drop
// events rather than blocking the daemon.
func (d *Daemon) broadcast(typ EventType, payload any) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			d.log.Warn().Err(err).Str("event", string(typ)).Msg("event payload encode failed")
			return
		}
		data = b
	}
	ev := Event{Type: typ, Data: data}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ch := range d.subs {
		select {
		case ch <- ev:
		default:
			d.log.Debug().Str("subscriber", id).Str("event", string(typ)).Msg("dropped event for slow subscriber")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
