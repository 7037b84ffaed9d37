// Package fantasy is an HTTP client for the Yahoo Fantasy Sports API with
// automatic token handling, retry with backoff, rate limiting, and error
// classification.
package fantasy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL        = "https://fantasysports.yahooapis.com/fantasy/v2"
	DefaultUserAgent      = "yfa/0.1"
	DefaultRequestTimeout = 2 * time.Minute
	DefaultAttemptTimeout = 20 * time.Second

	// maxErrorMessage caps how much of an error body ends up in APIError.
	maxErrorMessage = 512
)

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer;
// auth.Manager is the production implementation.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate reports that the API rejected accessToken with 401.
	Invalidate(accessToken string)
}

// Options configures a Client. Zero fields take the package defaults.
type Options struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client

	Retry     RetryPolicy
	RateLimit RateLimit

	// RequestTimeout bounds a whole Request call including retries and
	// rate-limit waits. AttemptTimeout bounds one HTTP round trip.
	RequestTimeout time.Duration
	AttemptTimeout time.Duration

	// OnAttempt, if set, receives a record of every attempt. It is called
	// synchronously on the requesting goroutine.
	OnAttempt func(Attempt)
}

// Outcome says what the client did after an attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetry     Outcome = "retry"
	OutcomeReauth    Outcome = "reauth"
	OutcomeFailed    Outcome = "failed"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeCanceled  Outcome = "canceled"
)

// Attempt describes one try of a request. Backoff is the un-jittered bound
// and Delay the wait actually chosen before the next attempt; both are zero
// when no retry follows.
type Attempt struct {
	Method     string
	Path       string
	Number     int
	StatusCode int
	Err        error
	Backoff    time.Duration
	Delay      time.Duration
	Final      bool
	Outcome    Outcome
}

// Response is a successful API response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Client issues requests against the Fantasy Sports API. One Client is
// shared by every goroutine in the process: the rate-limit gate is common
// to all callers, backoff sleeps are per call.
type Client struct {
	baseURL        string
	userAgent      string
	httpClient     *http.Client
	tokens         TokenSource
	logger         *slog.Logger
	retry          RetryPolicy
	gate           *gate
	requestTimeout time.Duration
	attemptTimeout time.Duration
	onAttempt      func(Attempt)

	// sleepFunc waits between retries. Tests override it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
	randFloat func() float64
	now       func() time.Time
}

// NewClient creates a Fantasy Sports API client.
func NewClient(opts Options, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy
	}

	rl := opts.RateLimit
	if rl == (RateLimit{}) {
		rl = DefaultRateLimit
	}

	requestTimeout := opts.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = DefaultRequestTimeout
	}

	attemptTimeout := opts.AttemptTimeout
	if attemptTimeout == 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	return &Client{
		baseURL:        baseURL,
		userAgent:      userAgent,
		httpClient:     httpClient,
		tokens:         tokens,
		logger:         logger,
		retry:          retry.normalized(),
		gate:           newGate(rl),
		requestTimeout: requestTimeout,
		attemptTimeout: attemptTimeout,
		onAttempt:      opts.OnAttempt,
		sleepFunc:      timeSleep,
		randFloat:      rand.Float64, //nolint:gosec // jitter does not need crypto rand
		now:            time.Now,
	}
}

// Request performs method on path (relative to the base URL) and returns the
// response once a 2xx arrives. format=json is always added to params.
// Failures are *APIError except for cancellation and request timeout, which
// wrap the context error.
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body []byte) (*Response, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)

		defer cancel()
	}

	reqURL := c.buildURL(path, params)
	if _, err := http.NewRequest(method, reqURL, http.NoBody); err != nil {
		return nil, fmt.Errorf("fantasy: building request: %w", err)
	}

	reauthed := false

	for n := 1; ; n++ {
		a := Attempt{Method: method, Path: path, Number: n}

		if err := c.gate.Wait(ctx); err != nil {
			return nil, c.canceled(a, err)
		}

		tok, err := c.tokens.Token(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.canceled(a, ctx.Err())
			}

			a.Err, a.Final, a.Outcome = err, true, OutcomeFailed
			c.observe(a)

			return nil, &APIError{Attempts: n, Kind: ErrUnauthenticated, Err: err}
		}

		resp, err := c.doOnce(ctx, method, reqURL, tok, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.canceled(a, ctx.Err())
			}

			a.Err = err

			if n >= c.retry.MaxAttempts {
				a.Final, a.Outcome = true, OutcomeExhausted
				c.observe(a)

				return nil, &APIError{Attempts: n, Kind: ErrRetriesExhausted, Err: err}
			}

			if err := c.waitBeforeRetry(ctx, &a, nil); err != nil {
				return nil, c.canceled(a, err)
			}

			continue
		}

		a.StatusCode = resp.StatusCode

		switch {
		case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
			a.Final, a.Outcome = true, OutcomeSuccess
			c.observe(a)

			return &Response{
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       resp.Body,
				Attempts:   n,
			}, nil

		case resp.StatusCode == http.StatusUnauthorized && !reauthed:
			// The token may have been revoked early: refresh once, retry at once.
			reauthed = true
			c.tokens.Invalidate(tok)

			a.Outcome = OutcomeReauth
			c.observe(a)

			continue

		case isRetryable(resp.StatusCode) && n < c.retry.MaxAttempts:
			if err := c.waitBeforeRetry(ctx, &a, resp.Header); err != nil {
				return nil, c.canceled(a, err)
			}

			continue
		}

		// Out of attempts, but the server's hint still binds other callers.
		if isThrottle(resp.StatusCode) {
			if ra := retryAfter(resp.Header, c.now()); ra > 0 {
				c.gate.Pause(ra)
			}
		}

		kind := classifyStatus(resp.StatusCode)

		a.Final, a.Outcome = true, OutcomeFailed
		if kind == ErrRetriesExhausted {
			a.Outcome = OutcomeExhausted
		}

		c.observe(a)

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Attempts:   n,
			Message:    errorMessage(resp.Body),
			Kind:       kind,
		}
	}
}

// Get is Request with GET and no body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, params, nil)
}

// GetJSON performs a GET and decodes the response body into v.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, v any) error {
	resp, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("fantasy: decoding %s response: %w", path, err)
	}

	return nil
}

// PausedUntil reports when the current Retry-After pause ends, or the zero
// time if requests are not paused.
func (c *Client) PausedUntil() time.Time {
	return c.gate.PausedUntil()
}

// waitBeforeRetry picks the delay before attempt a.Number+1, records it on a,
// and waits. Throttling responses (429, 999) pause the shared gate instead
// of sleeping here, so every caller backs off together and this caller
// waits in the gate at the top of its next attempt.
func (c *Client) waitBeforeRetry(ctx context.Context, a *Attempt, header http.Header) error {
	a.Backoff = c.retry.backoff(a.Number + 1)
	a.Delay = c.retry.jitter(a.Backoff, c.randFloat())
	a.Outcome = OutcomeRetry

	if isThrottle(a.StatusCode) {
		if ra := retryAfter(header, c.now()); ra > a.Delay {
			a.Delay = ra
		}

		c.gate.Pause(a.Delay)
		c.observe(*a)

		return nil
	}

	c.observe(*a)

	return c.sleepFunc(ctx, a.Delay)
}

func (c *Client) canceled(a Attempt, err error) error {
	a.Err, a.Final, a.Outcome = err, true, OutcomeCanceled
	c.observe(a)

	return fmt.Errorf("fantasy: %s %s: giving up after %d attempts: %w", a.Method, a.Path, a.Number, err)
}

// observe logs an attempt and hands it to the OnAttempt hook.
func (c *Client) observe(a Attempt) {
	attrs := []any{
		slog.String("method", a.Method),
		slog.String("path", a.Path),
		slog.Int("attempt", a.Number),
	}

	if a.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status", a.StatusCode))
	}

	if a.Err != nil {
		attrs = append(attrs, slog.String("error", a.Err.Error()))
	}

	switch a.Outcome {
	case OutcomeSuccess:
		c.logger.Debug("request succeeded", attrs...)
	case OutcomeRetry:
		attrs = append(attrs, slog.Duration("backoff", a.Backoff), slog.Duration("delay", a.Delay))
		c.logger.Warn("retrying request", attrs...)
	case OutcomeReauth:
		c.logger.Info("access token rejected, retrying with a refreshed token", attrs...)
	case OutcomeCanceled:
		c.logger.Debug("request canceled", attrs...)
	default:
		if a.Number > 1 {
			c.logger.Error("request failed after retries", attrs...)
		} else {
			c.logger.Debug("request failed", attrs...)
		}
	}

	if c.onAttempt != nil {
		c.onAttempt(a)
	}
}

// rawResponse is one HTTP exchange with the body already read.
type rawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, reqURL, tok string, body []byte) (*rawResponse, error) {
	if c.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.attemptTimeout)

		defer cancel()
	}

	var rdr io.Reader = http.NoBody
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, rdr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return &rawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) buildURL(path string, params url.Values) string {
	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}

	// Without format=json Yahoo answers in XML.
	q.Set("format", "json")

	return c.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + q.Encode()
}

// errorMessage extracts Yahoo's error description, falling back to the
// (truncated) raw body.
func errorMessage(body []byte) string {
	var doc struct {
		Error struct {
			Description string `json:"description"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &doc); err == nil && doc.Error.Description != "" {
		return doc.Error.Description
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage] + "..."
	}

	return msg
}
