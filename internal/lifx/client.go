// Package lifx is a client for the LIFX HTTP cloud API.
//
// The Client performs one authenticated HTTP exchange per call, classifies the
// outcome into a typed error, and keeps the most recent rate-limit snapshot
// reported by the API. Calls are gated on that snapshot: once the API reports
// no remaining budget, further calls fail with ErrRateLimited without touching
// the network until a new token is set.
package lifx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the LIFX HTTP API origin plus version prefix.
	DefaultBaseURL = "https://api.lifx.com/v1/"

	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent = "lifxd/0.1"

	// maxExcerpt caps the body excerpt kept on a ProtocolError.
	maxExcerpt = 256
)

// RateLimitHook is called with every new rate-limit snapshot.
type RateLimitHook func(RateLimit)

// Client is a LIFX HTTP API client.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	hook       RateLimitHook

	mu        sync.RWMutex
	token     string
	rateLimit *RateLimit
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. A trailing slash is added if missing.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL == "" {
			return
		}
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP exchange timeout.
// This option can be applied in any order relative to other options.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout <= 0 {
			return
		}
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRateLimitHook registers a callback invoked whenever the snapshot is replaced.
func WithRateLimitHook(hook RateLimitHook) Option {
	return func(c *Client) {
		c.hook = hook
	}
}

// NewClient creates a client authenticated with the given bearer token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: defaultUserAgent,
		token:     token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetToken replaces the bearer token and forgets the rate-limit snapshot,
// which belonged to the previous token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.rateLimit = nil
	c.mu.Unlock()
}

// RateLimit returns a copy of the last recorded rate-limit snapshot,
// or nil if no response carrying rate-limit headers has been received
// since the token was set.
func (c *Client) RateLimit() *RateLimit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rateLimit == nil {
		return nil
	}
	rl := *c.rateLimit
	return &rl
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close closes idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Get performs a GET request and returns the decoded JSON payload.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, request{method: http.MethodGet, path: path})
}

// Post performs a form-encoded POST request and returns the decoded JSON payload.
func (c *Client) Post(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	return c.do(ctx, formRequest(http.MethodPost, path, form))
}

// PostJSON performs a JSON-encoded POST request and returns the decoded JSON payload.
// It serves bodies with nested structures that form encoding cannot carry.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        path,
		body:        data,
		contentType: "application/json",
	})
}

// Put performs a form-encoded PUT request. The response payload is discarded
// on success; only the outcome classification reaches the caller.
func (c *Client) Put(ctx context.Context, path string, form url.Values) error {
	_, err := c.do(ctx, formRequest(http.MethodPut, path, form))
	return err
}

// request describes a single exchange. It is not retained after the call.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
}

func formRequest(method, path string, form url.Values) request {
	return request{
		method:      method,
		path:        path,
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}
}

// admit reports whether a request may be sent. The gate reflects the previous
// response's budget, not a live count.
func (c *Client) admit() (string, *RateLimit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.rateLimit != nil && c.rateLimit.Remaining <= 0 {
		rl := *c.rateLimit
		return "", &rl, false
	}
	return c.token, nil, true
}

// do performs one HTTP exchange and classifies the outcome.
func (c *Client) do(ctx context.Context, r request) (json.RawMessage, error) {
	token, rl, ok := c.admit()
	if !ok {
		log.Debug().
			Str("method", r.method).
			Str("path", r.path).
			Int64("reset", rl.Reset).
			Msg("LIFX request blocked by rate limit")
		return nil, &RateLimitError{RateLimit: *rl}
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: r.method, Path: r.path, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: r.method, Path: r.path, Err: err}
	}

	payload, ok := decodeBody(respBody)
	if !ok {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Body: excerpt(respBody)}
	}

	if snap, found := parseRateLimit(resp.Header); found {
		c.storeRateLimit(snap)
	}

	log.Debug().
		Str("method", r.method).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Msg("LIFX request completed")

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newAPIError(resp.StatusCode, payload)
	}

	return payload, nil
}

// decodeBody is the explicit decode step: it yields the body when it is a
// well-formed JSON document and reports false otherwise (for example when the
// API answers with an HTML error page).
func decodeBody(body []byte) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}

func (c *Client) storeRateLimit(rl RateLimit) {
	c.mu.Lock()
	c.rateLimit = &rl
	c.mu.Unlock()

	if c.hook != nil {
		c.hook(rl)
	}
}

func excerpt(body []byte) string {
	if len(body) > maxExcerpt {
		body = body[:maxExcerpt]
	}
	return string(body)
}
