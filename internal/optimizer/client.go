package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/promptpolish/cli/pkg/logx"
)

const (
	// DefaultBaseURL is the optimization service's default location.
	DefaultBaseURL = "http://localhost:8000/api/v1"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20
)

const (
	pathOptimize        = "/prompt-optimizer/optimize"
	pathSpecializations = "/prompt-optimizer/specializations"
	pathBatchOptimize   = "/prompt-optimizer/batch-optimize"
	pathScore           = "/prompt-scorer/score"
	pathDiscover        = "/prompt-optimizer/discover"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL string
	// APIKey, when non-empty, is sent as a bearer credential.
	APIKey  string
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the prompt optimization service. It performs no automatic
// retries; callers own any retry affordance.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     zerolog.Logger
}

// New builds a Client from opts.
func New(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: base,
		apiKey:  opts.APIKey,
		httpc:   httpc,
		log:     logx.With("optimizer"),
	}
}

// BaseURL reports the resolved service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Optimize submits a single prompt and returns the normalized result.
func (c *Client) Optimize(ctx context.Context, req OptimizationRequest) (*OptimizationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	wire, err := doJSON[optimizeResponseWire](ctx, c, http.MethodPost, pathOptimize, req)
	if err != nil {
		return nil, err
	}
	return normalizeResult(wire, req.Text), nil
}

// scoreRequestWire is the scorer endpoint's body.
type scoreRequestWire struct {
	Text string `json:"text"`
}

// scoreResponseWire accepts both a bare ScoreSet body and a wrapped one.
type scoreResponseWire struct {
	Scores *scoreSetWire `json:"scores"`
	scoreSetWire
}

// ScoreOnly scores a prompt without rewriting it.
func (c *Client) ScoreOnly(ctx context.Context, text string) (*ScoreSet, error) {
	if err := (OptimizationRequest{Text: text}).Validate(); err != nil {
		return nil, err
	}
	wire, err := doJSON[scoreResponseWire](ctx, c, http.MethodPost, pathScore, scoreRequestWire{Text: text})
	if err != nil {
		return nil, err
	}
	src := &wire.scoreSetWire
	if wire.Scores != nil {
		src = wire.Scores
	}
	set := normalizeScoreSet(src)
	return &set, nil
}

// BatchOptimize submits several prompts in one call. Per-item failures come
// back as entries with Err set; the call as a whole fails only on transport
// or whole-request errors.
func (c *Client) BatchOptimize(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	wire, err := doJSON[batchResponseWire](ctx, c, http.MethodPost, pathBatchOptimize, req)
	if err != nil {
		return nil, err
	}

	texts := make(map[string]string, len(req.Items))
	for _, it := range req.Items {
		texts[it.ID] = it.Text
	}
	out := &BatchResult{Entries: make([]BatchEntry, 0, len(wire.Results))}
	for _, e := range wire.Results {
		entry := BatchEntry{ID: e.ID, Err: e.Error}
		if e.Error == "" {
			w := e.optimizeResponseWire
			entry.Result = normalizeResult(&w, texts[e.ID])
		}
		out.Entries = append(out.Entries, entry)
	}
	return out, nil
}

// Discover asks the service to draft a prompt from a task description.
func (c *Client) Discover(ctx context.Context, req DiscoverRequest) (*DiscoverResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	wire, err := doJSON[discoverResponseWire](ctx, c, http.MethodPost, pathDiscover, req)
	if err != nil {
		return nil, err
	}
	return &DiscoverResult{Prompt: wire.Prompt, Rationale: wire.Rationale}, nil
}

// Specializations lists the optimizer specializations the service offers.
func (c *Client) Specializations(ctx context.Context) ([]Specialization, error) {
	body, err := c.doRaw(ctx, http.MethodGet, pathSpecializations, nil)
	if err != nil {
		return nil, err
	}
	return decodeSpecializations(body)
}

// TestConnection probes the service. It never fails loudly: any error on any
// layer (network, HTTP status, body decode) reads as "not connected".
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.Specializations(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("connectivity probe failed")
		return false
	}
	return true
}

// doRaw performs one request and returns the response body, classifying
// transport failures as UnreachableError and non-2xx as ServerRejectedError.
func (c *Client) doRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("request_id", requestID).Str("path", path).Msg("request failed")
		return nil, &UnreachableError{BaseURL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &UnreachableError{BaseURL: c.baseURL, Err: err}
	}
	c.log.Debug().
		Str("request_id", requestID).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("optimization service call")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ServerRejectedError{
			Status:  resp.StatusCode,
			Message: extractServerMessage(resp.StatusCode, data),
		}
	}
	return data, nil
}

// doJSON is doRaw plus a typed decode of the 2xx body.
func doJSON[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	data, err := c.doRaw(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
