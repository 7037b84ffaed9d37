package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. The first signal lets a draft watch or a
// pending auth callback stop cleanly; the second exits with exitFailure.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		awaitShutdown(parent, ctx, cancel, sigCh, logger, os.Exit)
	}()

	return ctx
}

// awaitShutdown cancels on the first signal and calls exit on the second.
// It returns once ctx ends before a first signal, or parent ends before a
// second.
func awaitShutdown(
	parent, ctx context.Context, cancel context.CancelFunc,
	sigCh <-chan os.Signal, logger *slog.Logger, exit func(code int),
) {
	select {
	case sig := <-sigCh:
		logger.Info("received signal, stopping", slog.String("signal", sig.String()))
		cancel()
	case <-ctx.Done():
		return
	}

	select {
	case sig := <-sigCh:
		logger.Warn("received second signal, forcing exit", slog.String("signal", sig.String()))
		exit(exitFailure)
	case <-parent.Done():
		return
	}
}
