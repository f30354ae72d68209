package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"

	"crypto-llm-trader/internal/logger"
)

// Client is a JSON-over-HTTP client shared by the outbound fetchers.
// It owns the base URL, default headers, and retry policy so callers
// only describe the call.
type Client struct {
	hc      *http.Client
	baseURL string
	headers map[string]string
	retry   RetryPolicy
	verbose bool
}

// RetryPolicy bounds retries on transient failures. Attempts counts
// the first try; Attempts <= 1 means no retry.
type RetryPolicy struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

// Option configures the client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

func WithRetry(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogging enables request/response debug logging.
func WithLogging(on bool) Option {
	return func(c *Client) { c.verbose = on }
}

func New(opts ...Option) *Client {
	c := &Client{
		hc:      &http.Client{Timeout: 30 * time.Second},
		headers: make(map[string]string),
		retry:   RetryPolicy{Attempts: 1},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Header is a per-call header, layered over the client defaults.
type Header struct {
	Key   string
	Value string
}

// StatusError is returned for non-2xx responses so callers can
// distinguish HTTP-level failures from transport errors.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// Get fetches path and returns the raw response body.
func (c *Client) Get(ctx context.Context, path string, hdrs ...Header) ([]byte, error) {
	return c.doWithRetry(ctx, http.MethodGet, path, nil, hdrs)
}

// GetJSON fetches path and unmarshals the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any, hdrs ...Header) error {
	body, err := c.Get(ctx, path, hdrs...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PostJSON sends body as JSON to path and unmarshals the response into
// out. A nil out discards the response.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any, hdrs ...Header) error {
	respBody, err := c.doWithRetry(ctx, http.MethodPost, path, body, hdrs)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, body any, hdrs []Header) ([]byte, error) {
	attempts := c.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := &backoff.Backoff{
		Min:    c.retry.MinWait,
		Max:    c.retry.MaxWait,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		respBody, err := c.do(ctx, method, path, body, hdrs)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		// 4xx responses will not improve on retry.
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			return nil, err
		}
		if attempt == attempts {
			break
		}
		if c.verbose {
			logger.Warn(ctx, "Request failed, retrying", "method", method, "path", path, "attempt", attempt, "error", err)
		}
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, path string, body any, hdrs []Header) ([]byte, error) {
	url := c.baseURL + path

	var rd io.Reader
	if body != nil {
		enc, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rd = bytes.NewReader(enc)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for _, h := range hdrs {
		req.Header.Set(h.Key, h.Value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if c.verbose {
		logger.Debug(ctx, "HTTP request",
			"method", method,
			"url", url,
			"status", resp.StatusCode,
			"duration", time.Since(start),
			"bodySize", len(respBody),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
