package fantasy

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(rl RateLimit) (*gate, *fakeClock) {
	g := newGate(rl)
	clock := newFakeClock()
	g.now = clock.Now
	g.sleep = clock.GateSleep

	return g, clock
}

func TestGate_BurstThenRefill(t *testing.T) {
	g, clock := newTestGate(RateLimit{RequestsPerSecond: 2, Burst: 3})

	for range 3 {
		require.NoError(t, g.Wait(context.Background()))
	}

	assert.Empty(t, clock.GateSleeps(), "burst is served without waiting")

	require.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, clock.GateSleeps())
}

func TestGate_PauseDelaysWait(t *testing.T) {
	g, clock := newTestGate(RateLimit{RequestsPerSecond: -1})

	g.Pause(3 * time.Second)
	assert.Equal(t, clock.Now().Add(3*time.Second), g.PausedUntil())

	require.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, []time.Duration{3 * time.Second}, clock.GateSleeps())
	assert.True(t, g.PausedUntil().IsZero())
}

func TestGate_PauseDrainsBucket(t *testing.T) {
	g, clock := newTestGate(RateLimit{RequestsPerSecond: 1, Burst: 5})

	g.Pause(0)
	assert.Less(t, g.limiter.TokensAt(clock.Now()), 1.0)

	// The next permit has to be earned by refill.
	require.NoError(t, g.Wait(context.Background()))
	assert.Equal(t, []time.Duration{time.Second}, clock.GateSleeps())
}

func TestGate_OverlappingPausesKeepLater(t *testing.T) {
	g, clock := newTestGate(RateLimit{})

	g.Pause(10 * time.Second)
	g.Pause(2 * time.Second)

	assert.Equal(t, clock.Now().Add(10*time.Second), g.PausedUntil())
}

func TestGate_WaitCanceled(t *testing.T) {
	g, _ := newTestGate(RateLimit{RequestsPerSecond: -1})
	g.Pause(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, g.Wait(ctx), context.Canceled)
}

func TestGate_Unlimited(t *testing.T) {
	g, clock := newTestGate(RateLimit{RequestsPerSecond: -1})

	for range 100 {
		require.NoError(t, g.Wait(context.Background()))
	}

	assert.Empty(t, clock.GateSleeps())
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy

	assert.Equal(t, time.Duration(0), p.backoff(1))
	assert.Equal(t, 500*time.Millisecond, p.backoff(2))
	assert.Equal(t, time.Second, p.backoff(3))
	assert.Equal(t, 2*time.Second, p.backoff(4))
	assert.Equal(t, 4*time.Second, p.backoff(5))
	assert.Equal(t, 8*time.Second, p.backoff(6))
	assert.Equal(t, 8*time.Second, p.backoff(20), "capped at MaxDelay")
}

func TestRetryPolicy_Jitter(t *testing.T) {
	p := DefaultRetryPolicy
	d := 4 * time.Second

	assert.Equal(t, 3*time.Second, p.jitter(d, 0))
	assert.Equal(t, d, p.jitter(d, 0.5))

	for _, r := range []float64{0, 0.1, 0.5, 0.9, 0.999} {
		j := p.jitter(d, r)
		assert.GreaterOrEqual(t, j, 3*time.Second)
		assert.LessOrEqual(t, j, 5*time.Second)
	}

	noJitter := RetryPolicy{JitterFraction: 0}
	assert.Equal(t, d, noJitter.jitter(d, 0.9))
}

func TestRetryPolicy_Normalized(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 0, BaseDelay: 0, MaxDelay: 0, JitterFraction: 3}.normalized()

	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, DefaultRetryPolicy.BaseDelay, p.BaseDelay)
	assert.Equal(t, p.BaseDelay, p.MaxDelay)
	assert.InDelta(t, 1.0, p.JitterFraction, 1e-9)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 9, 6, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "30", 30 * time.Second},
		{"padded", " 2 ", 2 * time.Second},
		{"zero", "0", 0},
		{"negative", "-5", 0},
		{"date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}

			assert.Equal(t, tt.want, retryAfter(h, now))
		})
	}
}
