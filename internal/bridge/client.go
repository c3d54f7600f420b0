package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/promptpolish/cli/pkg/logx"
)

const (
	aliveProbeTimeout = 1 * time.Second
	aliveCacheTTL     = 2 * time.Second
	defaultCallLimit  = 10 * time.Second
)

// ClientOptions configures a bridge client.
type ClientOptions struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the bridge daemon. All calls are best-effort with
// at-most-once semantics; callers are expected to consult Alive first and
// skip (not fail) when the daemon is gone.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	log     zerolog.Logger

	mu      sync.Mutex
	alive   bool
	aliveAt time.Time
}

// NewClient builds a client for the daemon at opts.BaseURL.
func NewClient(opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultCallLimit
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		httpc:   &http.Client{Timeout: timeout},
		log:     logx.With("bridge-client"),
	}
}

// Alive is the liveness predicate: a short-timeout health probe, cached
// briefly so per-event call sites stay cheap. It never returns an error.
func (c *Client) Alive(ctx context.Context) bool {
	c.mu.Lock()
	if time.Since(c.aliveAt) < aliveCacheTTL {
		alive := c.alive
		c.mu.Unlock()
		return alive
	}
	c.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, aliveProbeTimeout)
	defer cancel()
	_, err := c.Health(probeCtx)

	c.mu.Lock()
	c.alive = err == nil
	c.aliveAt = time.Now()
	alive := c.alive
	c.mu.Unlock()
	return alive
}

// Health fetches the daemon's health document.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Send posts one envelope and returns the raw response body.
func (c *Client) Send(ctx context.Context, env Envelope) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/v1/message", env, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenPopup dispatches OPEN_POPUP.
func (c *Client) OpenPopup(ctx context.Context) error {
	env, err := NewEnvelope(TagOpenPopup, nil)
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, env)
	return err
}

// OpenPopupWithText persists text into the handoff and dispatches the popup
// open in one exchange.
func (c *Client) OpenPopupWithText(ctx context.Context, text string) error {
	env, err := NewEnvelope(TagOpenPopupWithText, TextPayload{Text: text})
	if err != nil {
		return err
	}
	_, err = c.Send(ctx, env)
	return err
}

// LastText reads the current handoff value. Empty is a normal answer.
func (c *Client) LastText(ctx context.Context) (string, error) {
	return c.textExchange(ctx, TagGetLastText)
}

// SelectedText reads the page's current selection through the bridge.
func (c *Client) SelectedText(ctx context.Context) (string, error) {
	return c.textExchange(ctx, TagGetSelectedText)
}

// ChatText reads the located chat input's value through the bridge.
func (c *Client) ChatText(ctx context.Context) (string, error) {
	return c.textExchange(ctx, TagGetChatText)
}

func (c *Client) textExchange(ctx context.Context, tag Tag) (string, error) {
	env, err := NewEnvelope(tag, nil)
	if err != nil {
		return "", err
	}
	raw, err := c.Send(ctx, env)
	if err != nil {
		return "", err
	}
	var p TextPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("malformed %s response: %w", tag, err)
	}
	return p.Text, nil
}

// ReplaceChatText asks the page session to overwrite the located input.
// success=false with an explanation is a normal, answered outcome.
func (c *Client) ReplaceChatText(ctx context.Context, text string) (ReplaceResult, error) {
	env, err := NewEnvelope(TagReplaceChatText, TextPayload{Text: text})
	if err != nil {
		return ReplaceResult{}, err
	}
	raw, err := c.Send(ctx, env)
	if err != nil {
		return ReplaceResult{}, err
	}
	var res ReplaceResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ReplaceResult{}, fmt.Errorf("malformed replace response: %w", err)
	}
	return res, nil
}

// SetHandoff writes the handoff directly (the CLI-side write path).
func (c *Client) SetHandoff(ctx context.Context, text string) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/handoff", TextPayload{Text: text}, nil)
}

// ClearHandoff removes the handoff value.
func (c *Client) ClearHandoff(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/handoff", nil, nil)
}

// AttachPage registers the page session with the daemon.
func (c *Client) AttachPage(ctx context.Context, info PageInfo) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/page/attach", info, nil)
}

// DetachPage deregisters the page session. Safe to call when never attached.
func (c *Client) DetachPage(ctx context.Context, info PageInfo) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/page/detach", info, nil)
}

// ReplyText answers an EventTextRequest command.
func (c *Client) ReplyText(ctx context.Context, id, text string) error {
	return c.reply(ctx, id, TextPayload{Text: text})
}

// ReplyReplace answers an EventReplaceRequest command.
func (c *Client) ReplyReplace(ctx context.Context, id string, res ReplaceResult) error {
	return c.reply(ctx, id, res)
}

func (c *Client) reply(ctx context.Context, id string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, "/v1/page/reply", pageReplyPayload{ID: id, Body: data}, nil)
}

// Events subscribes to the daemon's event stream. The returned channel
// closes when ctx is canceled or the stream drops; resubscribing is the
// caller's business.
func (c *Client) Events(ctx context.Context) (<-chan Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, false)

	// The stream outlives any per-call timeout, so it gets its own client.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, errors.Join(ErrContextInvalidated, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream rejected with status %d", resp.StatusCode)
	}

	ch := make(chan Event, eventBuffer)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				c.log.Debug().Err(err).Msg("dropping malformed event")
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// doJSON performs one call. Transport failures surface joined with
// ErrContextInvalidated so call sites can treat "daemon vanished" uniformly.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req, body != nil)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Join(ErrContextInvalidated, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEventBody))
	if err != nil {
		return errors.Join(ErrContextInvalidated, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bridge call %s failed with status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("malformed bridge response: %w", err)
		}
	}
	return nil
}

const maxEventBody = 1 << 20
