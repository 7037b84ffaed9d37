package fantasy

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit configures the token bucket shared by every caller of a Client.
// The zero value selects DefaultRateLimit; a negative RequestsPerSecond
// disables limiting (Retry-After pauses still apply).
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimit keeps well under Yahoo's undocumented per-app quota.
var DefaultRateLimit = RateLimit{RequestsPerSecond: 2, Burst: 5}

// gate is the shared permit source: a token bucket plus a pause instant set
// from 429 Retry-After hints. Both are mutated under mu; sleeping happens
// outside it.
type gate struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	pausedUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func newGate(rl RateLimit) *gate {
	limit := rate.Inf
	burst := rl.Burst

	if rl.RequestsPerSecond > 0 {
		limit = rate.Limit(rl.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	return &gate{
		limiter: rate.NewLimiter(limit, burst),
		now:     time.Now,
		sleep:   timeSleep,
	}
}

// Wait blocks until a permit is available, the gate is not paused, or ctx
// is done. The permit is returned to the bucket if ctx ends first.
func (g *gate) Wait(ctx context.Context) error {
	var reserved *rate.Reservation

	for {
		g.mu.Lock()
		now := g.now()

		if pause := g.pausedUntil.Sub(now); pause > 0 {
			g.mu.Unlock()

			if err := g.sleep(ctx, pause); err != nil {
				if reserved != nil {
					reserved.Cancel()
				}

				return err
			}

			continue
		}

		if reserved != nil {
			g.mu.Unlock()
			return nil
		}

		reserved = g.limiter.ReserveN(now, 1)
		g.mu.Unlock()

		if !reserved.OK() {
			return errors.New("fantasy: rate limit permits unavailable")
		}

		delay := reserved.DelayFrom(now)
		if delay <= 0 {
			return nil
		}

		if err := g.sleep(ctx, delay); err != nil {
			reserved.Cancel()
			return err
		}
		// Loop once more: a 429 may have paused the gate while we slept.
	}
}

// Pause drains the bucket and defers every permit until d has elapsed.
// Overlapping pauses keep the later deadline.
func (g *gate) Pause(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if until := now.Add(d); until.After(g.pausedUntil) {
		g.pausedUntil = until
	}

	if g.limiter.Limit() == rate.Inf {
		return
	}

	if tokens := int(g.limiter.TokensAt(now)); tokens > 0 {
		g.limiter.AllowN(now, tokens)
	}
}

// PausedUntil returns the instant the current pause ends, or the zero time.
func (g *gate) PausedUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.now().Before(g.pausedUntil) {
		return g.pausedUntil
	}

	return time.Time{}
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
