package survey

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultRequestTimeout is the default HTTP request timeout for backend calls.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of attempts for idempotent requests.
	DefaultMaxRetries = 3

	// defaultBaseBackoff is the base delay for exponential backoff.
	defaultBaseBackoff = 500 * time.Millisecond

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 50 << 20
)

// Response is a fully read backend response
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Transport is the capability the session needs from the backend
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) (*Response, error)
	Post(ctx context.Context, path, contentType string, body io.Reader) (*Response, error)
	Put(ctx context.Context, path, contentType string, body io.Reader) (*Response, error)
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*transportConfig)

type transportConfig struct {
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
	client      *http.Client
}

func defaultTransportConfig() transportConfig {
	return transportConfig{
		timeout:     DefaultRequestTimeout,
		maxRetries:  DefaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) TransportOption {
	return func(c *transportConfig) {
		c.timeout = d
	}
}

// WithMaxRetries sets the maximum number of attempts for GET requests.
func WithMaxRetries(n int) TransportOption {
	return func(c *transportConfig) {
		c.maxRetries = n
	}
}

// WithBaseBackoff sets the base delay for exponential backoff between retries.
func WithBaseBackoff(d time.Duration) TransportOption {
	return func(c *transportConfig) {
		c.baseBackoff = d
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(c *transportConfig) {
		c.client = client
	}
}

// HTTPTransport talks to the survey backend under its /api prefix.
// GET requests are retried with exponential backoff; POST requests are not,
// since they create state on the backend.
type HTTPTransport struct {
	baseURL string
	cfg     transportConfig
	client  *http.Client
}

// NewHTTPTransport creates a transport rooted at baseURL, e.g. "http://localhost:5000/api"
func NewHTTPTransport(baseURL string, opts ...TransportOption) (*HTTPTransport, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend transport: base URL is empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("backend transport: %w", err)
	}

	cfg := defaultTransportConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxRetries < 1 {
		cfg.maxRetries = 1
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}

	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		cfg:     cfg,
		client:  client,
	}, nil
}

// BaseURL returns the backend root the transport was created with
func (t *HTTPTransport) BaseURL() string {
	return t.baseURL
}

// Get performs a GET with retries. Any response, including non-2xx, ends the
// retry loop; only network-level failures and 5xx statuses are retried.
func (t *HTTPTransport) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	target := t.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var lastErr error
	for attempt := range t.cfg.maxRetries {
		if attempt > 0 {
			backoff := t.cfg.baseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("HTTP GET %s: %w", path, ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err := t.do(ctx, http.MethodGet, target, "", nil)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode, Message: errorMessage(resp.Body)}
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("HTTP GET %s: all %d attempts failed: %w", path, t.cfg.maxRetries, lastErr)
}

// Post performs a single POST
func (t *HTTPTransport) Post(ctx context.Context, path, contentType string, body io.Reader) (*Response, error) {
	return t.do(ctx, http.MethodPost, t.baseURL+path, contentType, body)
}

// Put performs a single PUT
func (t *HTTPTransport) Put(ctx context.Context, path, contentType string, body io.Reader) (*Response, error) {
	return t.do(ctx, http.MethodPut, t.baseURL+path, contentType, body)
}

// do performs a single HTTP request and reads the response body.
func (t *HTTPTransport) do(ctx context.Context, method, target, contentType string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, image/*")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP %s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", target, err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
