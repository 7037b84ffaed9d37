// Package poll watches a changing collection: on a fixed cadence it fetches
// the current items, diffs them against the identifiers already delivered,
// and hands each new item to a callback exactly once.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFetchFailed marks a tick whose fetch failed. Matched by TickError.
	ErrFetchFailed = errors.New("poll: fetch failed")

	// ErrUpstreamWedged ends a run after FailureThreshold consecutive
	// failed ticks.
	ErrUpstreamWedged = errors.New("poll: upstream wedged")

	// errMaxDuration is the cancellation cause when MaxDuration elapses.
	errMaxDuration = errors.New("poll: max duration reached")
)

// TickError reports one failed fetch. The run continues.
type TickError struct {
	Tick int
	Err  error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("poll: tick %d: fetch failed: %v", e.Tick, e.Err)
}

func (e *TickError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

// StopReason says why a run ended.
type StopReason int

// Stop reasons.
const (
	StopCancelled StopReason = iota
	StopCondition
	StopDeadline
	StopMaxTicks
	StopFailed
)

func (r StopReason) String() string {
	switch r {
	case StopCancelled:
		return "cancelled"
	case StopCondition:
		return "condition"
	case StopDeadline:
		return "deadline"
	case StopMaxTicks:
		return "max_ticks"
	case StopFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config describes one watch. Fetch, ID, OnNew and Interval are required.
type Config[T any] struct {
	// Fetch returns the current collection in upstream order. It receives
	// the run's context and should return promptly once it is done.
	Fetch func(ctx context.Context) ([]T, error)

	// ID returns an item's stable identifier.
	ID func(T) string

	// OnNew is called synchronously, in fetch order, once per new item.
	// It must not call Run.Cancel.
	OnNew func(T)

	// Interval is the wait between the end of one tick and the start of
	// the next.
	Interval time.Duration

	// MaxInterval, if greater than Interval, lets consecutive failed ticks
	// double the wait up to this cap. A successful tick resets it.
	MaxInterval time.Duration

	// StopWhen ends the run when it reports true for a fetched collection.
	// It is evaluated after that tick's deliveries.
	StopWhen func([]T) bool

	// Pending marks items that exist but are not yet final (an open draft
	// slot). They are neither delivered nor recorded.
	Pending func(T) bool

	// Seed lists identifiers that count as already delivered.
	Seed []string

	MaxDuration time.Duration
	MaxTicks    int

	// FailureThreshold ends the run with ErrUpstreamWedged after this many
	// consecutive failed ticks. Zero never gives up.
	FailureThreshold int

	// OnError receives every *TickError, synchronously on the run's
	// goroutine. It must not call Run.Cancel.
	OnError func(error)

	Logger *slog.Logger

	// sleep waits between ticks. Tests override it.
	sleep func(ctx context.Context, d time.Duration) error
}

// Result summarizes a finished run.
type Result struct {
	Reason    StopReason
	Ticks     int
	Delivered int
	Failures  int
}

// Stats is a point-in-time snapshot of a run's counters.
type Stats struct {
	Ticks       int64
	Delivered   int64
	Failures    int64
	LastSuccess time.Time
}

// Run is the handle of a running watch.
type Run struct {
	id     string
	cancel context.CancelCauseFunc
	done   chan struct{}

	// deliverMu is held for a whole batch of OnNew calls. Cancel takes it
	// to wait out an in-progress batch, so once Cancel returns no callback
	// can start.
	deliverMu sync.Mutex
	stopped   bool

	ticks           atomic.Int64
	delivered       atomic.Int64
	failures        atomic.Int64
	lastSuccessNano atomic.Int64

	result Result
	err    error
}

// Start validates cfg and begins polling in a new goroutine. The first tick
// runs immediately.
func Start[T any](ctx context.Context, cfg Config[T]) (*Run, error) {
	if cfg.Fetch == nil || cfg.ID == nil || cfg.OnNew == nil {
		return nil, errors.New("poll: Fetch, ID and OnNew are required")
	}

	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poll: interval must be positive, got %s", cfg.Interval)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.sleep == nil {
		cfg.sleep = timeSleep
	}

	runCtx, cancel := context.WithCancelCause(ctx)

	if cfg.MaxDuration > 0 {
		var stopTimer context.CancelFunc
		runCtx, stopTimer = context.WithTimeoutCause(runCtx, cfg.MaxDuration, errMaxDuration)

		parentCancel := cancel
		cancel = func(cause error) {
			parentCancel(cause)
			stopTimer()
		}
	}

	r := &Run{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	w := &watcher[T]{
		cfg:    cfg,
		run:    r,
		seen:   NewSnapshot(cfg.Seed...),
		logger: cfg.Logger.With(slog.String("run_id", r.id)),
	}

	go w.loop(runCtx)

	return r, nil
}

// ID returns the run's unique identifier, as it appears in logs.
func (r *Run) ID() string {
	return r.id
}

// Cancel stops the run. After Cancel returns no callback is invoked. It is
// safe to call more than once and after the run has ended.
func (r *Run) Cancel() {
	r.cancel(context.Canceled)

	r.deliverMu.Lock()
	r.stopped = true
	r.deliverMu.Unlock()
}

// Done is closed when the run has ended.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run ends. The error is non-nil only for StopFailed.
func (r *Run) Wait() (Result, error) {
	<-r.done

	return r.result, r.err
}

// Stats returns the run's counters so far.
func (r *Run) Stats() Stats {
	var last time.Time
	if nano := r.lastSuccessNano.Load(); nano != 0 {
		last = time.Unix(0, nano)
	}

	return Stats{
		Ticks:       r.ticks.Load(),
		Delivered:   r.delivered.Load(),
		Failures:    r.failures.Load(),
		LastSuccess: last,
	}
}

// watcher is the state owned by a run's goroutine.
type watcher[T any] struct {
	cfg    Config[T]
	run    *Run
	seen   *Snapshot
	logger *slog.Logger
}

func (w *watcher[T]) loop(ctx context.Context) {
	r := w.run
	defer r.cancel(context.Canceled)
	defer close(r.done)

	w.logger.Info("poll: run started",
		slog.Duration("interval", w.cfg.Interval),
		slog.Int("seeded", w.seen.Len()),
	)

	consecutive := 0
	wait := w.cfg.Interval

	for tick := 1; ; tick++ {
		if ctx.Err() != nil {
			w.finish(stopReason(ctx), nil)
			return
		}

		items, err := w.cfg.Fetch(ctx)
		r.ticks.Add(1)

		if err != nil {
			if ctx.Err() != nil {
				w.finish(stopReason(ctx), nil)
				return
			}

			consecutive++
			r.failures.Add(1)

			tickErr := &TickError{Tick: tick, Err: err}
			w.logger.Warn("poll: fetch failed",
				slog.Int("tick", tick),
				slog.Int("consecutive_failures", consecutive),
				slog.String("error", err.Error()),
			)

			if !w.report(ctx, tickErr) {
				w.finish(stopReason(ctx), nil)
				return
			}

			if w.cfg.FailureThreshold > 0 && consecutive >= w.cfg.FailureThreshold {
				w.finish(StopFailed, fmt.Errorf("%w after %d consecutive failed ticks: %w",
					ErrUpstreamWedged, consecutive, tickErr))

				return
			}

			wait = w.nextWait(wait)
		} else {
			consecutive = 0
			wait = w.cfg.Interval
			r.lastSuccessNano.Store(time.Now().UnixNano())

			n, ok := w.deliver(ctx, items)
			if !ok {
				w.finish(stopReason(ctx), nil)
				return
			}

			w.logger.Debug("poll: tick complete",
				slog.Int("tick", tick),
				slog.Int("fetched", len(items)),
				slog.Int("new", n),
			)

			if w.cfg.StopWhen != nil && w.cfg.StopWhen(items) {
				w.finish(StopCondition, nil)
				return
			}
		}

		if w.cfg.MaxTicks > 0 && tick >= w.cfg.MaxTicks {
			w.finish(StopMaxTicks, nil)
			return
		}

		if err := w.cfg.sleep(ctx, wait); err != nil {
			w.finish(stopReason(ctx), nil)
			return
		}
	}
}

// deliver hands unseen, non-pending items to OnNew in order. It returns
// false without delivering if the run was cancelled, through Cancel or
// through ctx.
func (w *watcher[T]) deliver(ctx context.Context, items []T) (int, bool) {
	r := w.run

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	if r.stopped || ctx.Err() != nil {
		return 0, false
	}

	n := 0

	for _, item := range items {
		if w.cfg.Pending != nil && w.cfg.Pending(item) {
			continue
		}

		if !w.seen.Add(w.cfg.ID(item)) {
			continue
		}

		w.cfg.OnNew(item)
		r.delivered.Add(1)
		n++
	}

	return n, true
}

// report passes a tick error to OnError under the same cancellation
// guarantee as deliver.
func (w *watcher[T]) report(ctx context.Context, err error) bool {
	r := w.run

	r.deliverMu.Lock()
	defer r.deliverMu.Unlock()

	if r.stopped || ctx.Err() != nil {
		return false
	}

	if w.cfg.OnError != nil {
		w.cfg.OnError(err)
	}

	return true
}

func (w *watcher[T]) nextWait(current time.Duration) time.Duration {
	if w.cfg.MaxInterval <= w.cfg.Interval {
		return w.cfg.Interval
	}

	return min(current*2, w.cfg.MaxInterval)
}

func (w *watcher[T]) finish(reason StopReason, err error) {
	r := w.run

	r.deliverMu.Lock()
	r.stopped = true
	r.deliverMu.Unlock()

	r.result = Result{
		Reason:    reason,
		Ticks:     int(r.ticks.Load()),
		Delivered: int(r.delivered.Load()),
		Failures:  int(r.failures.Load()),
	}
	r.err = err

	attrs := []any{
		slog.String("reason", reason.String()),
		slog.Int("ticks", r.result.Ticks),
		slog.Int("delivered", r.result.Delivered),
		slog.Int("failures", r.result.Failures),
	}

	if err != nil {
		w.logger.Error("poll: run failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}

	w.logger.Info("poll: run finished", attrs...)
}

func stopReason(ctx context.Context) StopReason {
	if errors.Is(context.Cause(ctx), errMaxDuration) {
		return StopDeadline
	}

	return StopCancelled
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
