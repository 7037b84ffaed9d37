package fantasy

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy bounds the retry loop in Client.Request. It is copied into the
// Client at construction and never changes afterwards.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultRetryPolicy: five attempts, 0.5s doubling to an 8s cap, ±25% jitter.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    5,
	BaseDelay:      500 * time.Millisecond,
	MaxDelay:       8 * time.Second,
	JitterFraction: 0.25,
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}

	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}

	p.JitterFraction = math.Min(math.Max(p.JitterFraction, 0), 1)

	return p
}

// backoff returns the un-jittered delay before attempt n (n >= 2):
// min(MaxDelay, BaseDelay * 2^(n-2)).
func (p RetryPolicy) backoff(n int) time.Duration {
	if n < 2 {
		return 0
	}

	d := float64(p.BaseDelay) * math.Pow(2, float64(n-2))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	return time.Duration(d)
}

// jitter spreads d uniformly within ±JitterFraction. r is in [0, 1).
func (p RetryPolicy) jitter(d time.Duration, r float64) time.Duration {
	spread := float64(d) * p.JitterFraction * (r*2 - 1)

	return time.Duration(float64(d) + spread)
}

// retryAfter parses a Retry-After header given as delta-seconds or an
// HTTP-date. Returns 0 when absent, malformed, or already past.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(v); err == nil {
		if seconds <= 0 {
			return 0
		}

		return time.Duration(seconds) * time.Second
	}

	at, err := http.ParseTime(v)
	if err != nil {
		return 0
	}

	if d := at.Sub(now); d > 0 {
		return d
	}

	return 0
}
