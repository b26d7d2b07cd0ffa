// Package httpretry implements the HTTP Retry Engine shared by every
// provider adapter: a client with classified errors,
// exponential backoff, and Retry-After honouring.
package httpretry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Policy configures retry timing. A zero Policy falls back to
// DefaultPolicy.
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultPolicy returns the standard retry policy: three retries,
// 1s initial delay doubling to a 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Options bundles a request's retry policy and total timeout.
type Options struct {
	Policy    Policy
	TimeoutMS int
}

// DefaultPostOptions returns options with the 120s POST timeout.
func DefaultPostOptions() Options {
	return Options{Policy: DefaultPolicy(), TimeoutMS: 120_000}
}

// DefaultGetOptions returns options with the 30s GET timeout.
func DefaultGetOptions() Options {
	return Options{Policy: DefaultPolicy(), TimeoutMS: 30_000}
}

// Response is a successful HTTP response already drained into memory.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// HTTPError is what the retry engine returns once retries are
// exhausted or the failure was not retryable. Provider adapters push
// Classification (or StatusCode) through their own narrower
// mapping to reach a final orcherr.Code.
type HTTPError struct {
	Classification Classification
	StatusCode     int // 0 for transport-level failures
	Retryable      bool
	Cause          error
}

func (e *HTTPError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("http %s: status %d", e.Classification, e.StatusCode)
	}
	return fmt.Sprintf("http %s: %v", e.Classification, e.Cause)
}

func (e *HTTPError) Unwrap() error { return e.Cause }

// Client is the shared retrying HTTP client used by all provider
// adapters. It is safe for concurrent use.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Client. httpClient may be nil, in which case a plain
// http.Client with no timeout of its own is used (the per-call
// Options.TimeoutMS governs the deadline instead).
func New(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: httpClient, logger: logger}
}

// WithRateLimit caps outbound request rate; a fan-out over many
// providers can otherwise burst-hit a single endpoint when several
// calls share one backend host.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// Post sends a JSON POST request, retrying per opts.Policy.
func (c *Client) Post(ctx context.Context, url string, jsonBody any, headers map[string]string, opts Options) (*Response, *HTTPError) {
	var body []byte
	if jsonBody != nil {
		b, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, &HTTPError{Classification: BadRequest, Cause: err}
		}
		body = b
	}
	return c.do(ctx, http.MethodPost, url, body, headers, opts)
}

// Get sends a GET request, retrying per opts.Policy.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string, opts Options) (*Response, *HTTPError) {
	return c.do(ctx, http.MethodGet, url, nil, headers, opts)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string, opts Options) (*Response, *HTTPError) {
	policy := opts.Policy
	if policy.MaxRetries == 0 && policy.InitialDelay == 0 {
		policy = DefaultPolicy()
	}
	timeout := time.Duration(opts.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr *HTTPError
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.delayFor(lastErr, attempt, policy)
			c.logger.Debug("retrying HTTP request",
				zap.String("url", url), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, &HTTPError{Classification: NetworkErrorStatus, Cause: ctx.Err(), Retryable: false}
			case <-time.After(delay):
			}
		}

		resp, classified := c.attempt(ctx, method, url, body, headers)
		if classified == nil {
			return resp, nil
		}
		lastErr = classified

		if !classified.Retryable {
			return nil, classified
		}
		if attempt >= policy.MaxRetries {
			break
		}
	}

	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, *HTTPError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &HTTPError{Classification: NetworkErrorStatus, Cause: err}
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &HTTPError{Classification: BadRequest, Cause: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &HTTPError{Classification: NetworkErrorStatus, Cause: err, Retryable: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &HTTPError{Classification: NetworkErrorStatus, Cause: err, Retryable: true}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
	}

	return nil, &HTTPError{
		Classification: ClassifyStatus(resp.StatusCode),
		StatusCode:     resp.StatusCode,
		Retryable:      statusRetryable(resp.StatusCode),
		Cause:          &statusError{status: resp.StatusCode, body: data, header: resp.Header},
	}
}

// statusError carries the raw response so delayFor can read
// Retry-After and adapters can read the response body for an error
// message, without re-parsing HTTPError.
type statusError struct {
	status int
	body   []byte
	header http.Header
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d", e.status)
}

// Body returns the raw response body of a failed HTTP call, if any.
func Body(err *HTTPError) []byte {
	if se, ok := err.Cause.(*statusError); ok {
		return se.body
	}
	return nil
}

func statusRetryable(status int) bool {
	switch {
	case status == 429:
		return true
	case status >= 500 && status <= 599:
		return true
	default:
		return false
	}
}

// delayFor computes the wait before the given attempt, honouring a
// Retry-After header on 429 responses.
func (c *Client) delayFor(lastErr *HTTPError, attempt int, policy Policy) time.Duration {
	if lastErr != nil {
		if se, ok := lastErr.Cause.(*statusError); ok && se.status == 429 {
			if ra := se.header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					return time.Duration(secs) * time.Second
				}
			}
		}
	}
	delay := float64(policy.InitialDelay) * math.Pow(policy.BackoffFactor, float64(attempt-1))
	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	return time.Duration(delay)
}
