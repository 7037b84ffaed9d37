// Package metrics exports Prometheus collectors for API attempts, token
// exchanges, and draft watch runs, and an optional /metrics listener.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fantasyctl/yfa/internal/fantasy"
	"github.com/fantasyctl/yfa/internal/poll"
)

const namespace = "yfa"

// Collector holds the process's metrics. Methods are safe for concurrent use.
type Collector struct {
	reg prometheus.Registerer

	attempts   *prometheus.CounterVec
	retryDelay prometheus.Histogram
	tickErrors *prometheus.CounterVec
	delivered  prometheus.Counter
	ticks      prometheus.Counter
	runs       *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		reg: reg,
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_attempts_total",
				Help:      "Fantasy API attempts by method, HTTP status (0 for transport errors), and outcome.",
			},
			[]string{"method", "code", "outcome"},
		),
		retryDelay: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_retry_delay_seconds",
				Help:      "Wait chosen before retrying a Fantasy API attempt.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
			},
		),
		tickErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_tick_errors_total",
				Help:      "Failed poll ticks by error kind.",
			},
			[]string{"kind"},
		),
		delivered: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_items_delivered_total",
				Help:      "Items delivered to poll callbacks.",
			},
		),
		ticks: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_ticks_total",
				Help:      "Poll ticks completed by finished runs.",
			},
		),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_runs_total",
				Help:      "Finished poll runs by stop reason.",
			},
			[]string{"reason"},
		),
	}
}

// ObserveAttempt records one transport attempt. It matches
// fantasy.Options.OnAttempt.
func (c *Collector) ObserveAttempt(a fantasy.Attempt) {
	c.attempts.WithLabelValues(a.Method, strconv.Itoa(a.StatusCode), string(a.Outcome)).Inc()

	if a.Outcome == fantasy.OutcomeRetry {
		c.retryDelay.Observe(a.Delay.Seconds())
	}
}

// ObserveTickError records a failed poll tick. It matches poll.Config.OnError.
func (c *Collector) ObserveTickError(err error) {
	c.tickErrors.WithLabelValues(errorKind(err)).Inc()
}

// ObserveDelivered records one item handed to a poll callback.
func (c *Collector) ObserveDelivered() {
	c.delivered.Inc()
}

// ObserveRun records a finished poll run.
func (c *Collector) ObserveRun(res poll.Result) {
	c.runs.WithLabelValues(res.Reason.String()).Inc()
	c.ticks.Add(float64(res.Ticks))
}

// TrackTokenExchanges exports the value of exchanges, typically
// auth.Manager.Exchanges, as a counter. Call it at most once per Collector.
func (c *Collector) TrackTokenExchanges(exchanges func() int64) prometheus.CounterFunc {
	return promauto.With(c.reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_token_exchanges_total",
			Help:      "Calls made to the OAuth2 token endpoint.",
		},
		func() float64 { return float64(exchanges()) },
	)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, fantasy.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, fantasy.ErrRetriesExhausted):
		return "retries_exhausted"
	case errors.Is(err, fantasy.ErrNotFound):
		return "not_found"
	case errors.Is(err, fantasy.ErrForbidden):
		return "forbidden"
	case errors.Is(err, fantasy.ErrBadRequest), errors.Is(err, fantasy.ErrOther4xx):
		return "client_error"
	default:
		return "other"
	}
}
