package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return mux
}

// Serve listens on addr and serves /metrics until ctx is canceled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen on %s: %w", addr, err)
	}

	return serveListener(ctx, ln, g, logger)
}

func serveListener(ctx context.Context, ln net.Listener, g prometheus.Gatherer, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           Handler(g),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)

	go func() {
		errc <- srv.Serve(ln)
	}()

	logger.Info("metrics: listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return fmt.Errorf("metrics: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics: shutdown: %w", err)
	}

	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve: %w", err)
	}

	return nil
}
