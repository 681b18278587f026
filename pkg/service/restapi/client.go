package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tributary/pkg/utils/logging"
	"github.com/secmon-lab/tributary/pkg/utils/safe"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 200 * time.Millisecond
	DefaultRateLimit   = 10.0
	DefaultRateBurst   = 5

	maxBackoff = 30 * time.Second
)

var ErrInvalidConfig = goerr.New("invalid REST client config")

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	BaseURL    string
	Auth       Auth
	HTTPClient *http.Client

	// MaxRetries is the number of retries after the first attempt. Negative disables retry.
	MaxRetries  int
	BaseBackoff time.Duration
	// RateLimit is requests per second for this client instance
	RateLimit float64
	RateBurst int

	UserAgent string

	// ErrorMessage extracts a human readable message from an error response body
	ErrorMessage func(body []byte) string
}

// Option adjusts a Config. Platform clients accept options and forward them here.
type Option func(*Config)

// WithHTTPClient injects the transport, typically shared per process and replaced in tests
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *Config) {
		cfg.HTTPClient = c
	}
}

func WithRetry(maxRetries int, baseBackoff time.Duration) Option {
	return func(cfg *Config) {
		cfg.MaxRetries = maxRetries
		cfg.BaseBackoff = baseBackoff
	}
}

func WithRateLimit(limit float64, burst int) Option {
	return func(cfg *Config) {
		cfg.RateLimit = limit
		cfg.RateBurst = burst
	}
}

func WithUserAgent(ua string) Option {
	return func(cfg *Config) {
		cfg.UserAgent = ua
	}
}

// Apply returns a copy of cfg with opts applied
func (cfg Config) Apply(opts ...Option) Config {
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Client is a rate limited JSON REST client with retry on 429 and 5xx
type Client struct {
	baseURL      *url.URL
	auth         Auth
	httpClient   *http.Client
	limiter      *rate.Limiter
	maxRetries   int
	baseBackoff  time.Duration
	userAgent    string
	errorMessage func([]byte) string
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, goerr.Wrap(ErrInvalidConfig, "base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, goerr.Wrap(ErrInvalidConfig, "base URL is malformed", goerr.V("base_url", cfg.BaseURL))
	}
	if cfg.Auth == nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "auth is required")
	}

	c := &Client{
		baseURL:      base,
		auth:         cfg.Auth,
		httpClient:   cfg.HTTPClient,
		maxRetries:   cfg.MaxRetries,
		baseBackoff:  cfg.BaseBackoff,
		userAgent:    cfg.UserAgent,
		errorMessage: cfg.ErrorMessage,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	switch {
	case c.maxRetries == 0:
		c.maxRetries = DefaultMaxRetries
	case c.maxRetries < 0:
		c.maxRetries = 0
	}
	if c.baseBackoff <= 0 {
		c.baseBackoff = DefaultBaseBackoff
	}
	if c.userAgent == "" {
		c.userAgent = "tributary"
	}
	if c.errorMessage == nil {
		c.errorMessage = func(body []byte) string { return strings.TrimSpace(string(body)) }
	}

	limit, burst := cfg.RateLimit, cfg.RateBurst
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if burst <= 0 {
		burst = DefaultRateBurst
	}
	c.limiter = rate.NewLimiter(rate.Limit(limit), burst)

	return c, nil
}

// Request describes one call. Path is resolved against the base URL unless it is absolute.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is encoded as JSON when not nil
	Body any
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the response body into out
func (r *Response) JSON(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return goerr.Wrap(err, "failed to decode response body", goerr.V("body", truncate(string(r.Body), 256)))
	}
	return nil
}

// HTTPError is returned for any non-2xx response that is not retried away
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an HTTPError
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	var u *url.URL
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		parsed, err := url.Parse(path)
		if err != nil {
			return "", goerr.Wrap(err, "invalid request URL", goerr.V("url", path))
		}
		u = parsed
	} else {
		// path is already escaped by the caller
		p, rawQuery, _ := strings.Cut(path, "?")
		u = c.baseURL.JoinPath(p)
		u.RawQuery = rawQuery
	}

	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Do sends req, waiting on the rate limiter before every attempt
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode request body", goerr.V("path", req.Path))
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt, lastErr)
			logging.From(ctx).Debug("retrying request",
				"method", req.Method, "path", req.Path, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, goerr.Wrap(ctx.Err(), "request canceled while waiting to retry",
					goerr.V("method", req.Method), goerr.V("path", req.Path))
			case <-time.After(wait):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, goerr.Wrap(err, "rate limiter wait failed", goerr.V("path", req.Path))
		}

		resp, err := c.doOnce(ctx, req, target, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			if !httpErr.retryable() {
				return nil, goerr.Wrap(err, "request failed",
					goerr.V("method", req.Method), goerr.V("path", req.Path), goerr.V("status", httpErr.StatusCode))
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, goerr.Wrap(err, "request canceled", goerr.V("method", req.Method), goerr.V("path", req.Path))
		}
	}

	return nil, goerr.Wrap(lastErr, "max retries exceeded",
		goerr.V("method", req.Method), goerr.V("path", req.Path), goerr.V("status", StatusCode(lastErr)),
		goerr.V("attempts", c.maxRetries+1))
}

type retryAfterError struct {
	*HTTPError
	after time.Duration
}

func (e *retryAfterError) Unwrap() error {
	return e.HTTPError
}

func (c *Client) backoff(attempt int, lastErr error) time.Duration {
	var ra *retryAfterError
	if errors.As(lastErr, &ra) && ra.after > 0 {
		return min(ra.after, maxBackoff)
	}
	return min(c.baseBackoff<<(attempt-1), maxBackoff)
}

func (c *Client) doOnce(ctx context.Context, req Request, target string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("url", target))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	c.auth.Apply(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, goerr.Wrap(err, "HTTP request failed", goerr.V("method", req.Method), goerr.V("path", req.Path))
	}
	defer safe.Close(ctx, resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response body", goerr.V("path", req.Path))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: c.errorMessage(respBody)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return nil, &retryAfterError{HTTPError: httpErr, after: time.Duration(secs) * time.Second}
		}
		return nil, httpErr
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// GetJSON issues a GET and decodes the body into out
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) (*Response, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := resp.JSON(out); err != nil {
			return nil, goerr.Wrap(err, "unexpected response", goerr.V("path", path))
		}
	}
	return resp, nil
}

// PostJSON issues a POST with a JSON body and decodes the response into out
func (c *Client) PostJSON(ctx context.Context, path string, query url.Values, body, out any) (*Response, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodPost, Path: path, Query: query, Body: body})
	if err != nil {
		return nil, err
	}
	if out != nil {
		if err := resp.JSON(out); err != nil {
			return nil, goerr.Wrap(err, "unexpected response", goerr.V("path", path))
		}
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
