package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoBackendToken means the caller's window has no backend bearer token
// bound; the user must authenticate first. It is returned before any
// network I/O is attempted.
var ErrNoBackendToken = errors.New("no backend token bound to window")

// TokenResolver looks up the backend bearer token for a window.
type TokenResolver func(windowID int64) (string, bool)

// Factory produces backend clients bound to a caller's window token. The
// base URL and HTTP transport are shared; only the bearer token differs
// per window.
type Factory struct {
	baseURL    string
	httpClient *http.Client
	resolve    TokenResolver
	logger     *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithHTTPClient replaces the default transport (60s timeout).
func WithHTTPClient(client *http.Client) FactoryOption {
	return func(f *Factory) { f.httpClient = client }
}

// NewFactory creates a client factory for the given backend base URL.
func NewFactory(baseURL string, resolve TokenResolver, logger *slog.Logger, opts ...FactoryOption) *Factory {
	f := &Factory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		resolve:    resolve,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForWindow returns a client authenticated with the window's backend
// token, or ErrNoBackendToken when the window has none bound.
func (f *Factory) ForWindow(windowID int64) (*Client, error) {
	token, ok := f.resolve(windowID)
	if !ok {
		return nil, fmt.Errorf("window %d: %w", windowID, ErrNoBackendToken)
	}
	return &Client{
		baseURL:    f.baseURL,
		token:      token,
		httpClient: f.httpClient,
		logger:     f.logger,
	}, nil
}

// Anonymous returns a client without a bearer token, used by the login
// route before any session exists.
func (f *Factory) Anonymous() *Client {
	return &Client{
		baseURL:    f.baseURL,
		httpClient: f.httpClient,
		logger:     f.logger,
	}
}

// BaseURL returns the configured backend base URL.
func (f *Factory) BaseURL() string {
	return f.baseURL
}

// Client issues JSON requests against the backend REST API. Methods return
// the raw transport response rather than erroring on non-2xx status;
// interpreting the {success} envelope is the caller's job, usually via
// ParseEnvelope.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Response is a completed backend HTTP exchange: status, raw body, and the
// response headers (the login flow reads cookies off them).
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	Cookies    []*http.Cookie
}

// OK reports whether the status code is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get issues a GET request to path with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post issues a POST request with a JSON-encoded body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Put issues a PUT request with a JSON-encoded body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

// Delete issues a DELETE request to path.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-Access-Token", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       raw,
		Header:     resp.Header,
		Cookies:    resp.Cookies(),
	}, nil
}
