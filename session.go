package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fantasyctl/yfa/internal/auth"
	"github.com/fantasyctl/yfa/internal/config"
	"github.com/fantasyctl/yfa/internal/fantasy"
	"github.com/fantasyctl/yfa/internal/metrics"
	"github.com/fantasyctl/yfa/internal/tokenfile"
)

var errNoClientCredentials = errors.New(
	"client_id and client_secret are not configured (set YAHOO_CLIENT_ID and YAHOO_CLIENT_SECRET or add them to the config file)")

// Session bundles the process-wide collaborators a command needs: one token
// manager, one API client sharing it, and the metrics they feed.
type Session struct {
	Tokens  *auth.Manager
	Client  *fantasy.Client
	Metrics *metrics.Collector

	registry *prometheus.Registry
	cfg      *config.Resolved
	logger   *slog.Logger
}

// NewSession wires the token manager and API client from the resolved
// config.
func NewSession(cfg *config.Resolved, logger *slog.Logger) (*Session, error) {
	if !cfg.HasClientCredentials() {
		return nil, errNoClientCredentials
	}

	tokens := newTokenManager(cfg, logger)

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)
	collector.TrackTokenExchanges(tokens.Exchanges)

	client := fantasy.NewClient(fantasy.Options{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Retry: fantasy.RetryPolicy{
			MaxAttempts:    cfg.MaxAttempts,
			BaseDelay:      cfg.BaseDelay,
			MaxDelay:       cfg.MaxDelay,
			JitterFraction: cfg.JitterFraction,
		},
		RateLimit:      rateLimit(cfg),
		RequestTimeout: cfg.RequestTimeout,
		AttemptTimeout: cfg.AttemptTimeout,
		OnAttempt:      collector.ObserveAttempt,
	}, tokens, logger)

	return &Session{
		Tokens:   tokens,
		Client:   client,
		Metrics:  collector,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// newTokenManager builds the token manager over the configured credential
// file. Logout needs no client credentials, so this does not check them.
func newTokenManager(cfg *config.Resolved, logger *slog.Logger) *auth.Manager {
	return auth.NewManager(auth.Config{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		RedirectURL:   cfg.RedirectURI,
		Scope:         cfg.Scope,
		RefreshMargin: cfg.RefreshMargin,
	}, tokenfile.NewStore(cfg.TokenPath), logger)
}

// rateLimit maps the config's "0 disables limiting" onto the client's
// negative-rate convention.
func rateLimit(cfg *config.Resolved) fantasy.RateLimit {
	if cfg.RequestsPerSecond == 0 {
		return fantasy.RateLimit{RequestsPerSecond: -1}
	}

	return fantasy.RateLimit{RequestsPerSecond: cfg.RequestsPerSecond, Burst: cfg.Burst}
}

// ServeMetrics starts the /metrics listener when metrics_addr is set. It
// stops when ctx is canceled; failures are logged.
func (s *Session) ServeMetrics(ctx context.Context) {
	if s.cfg.MetricsAddr == "" {
		return
	}

	go func() {
		if err := metrics.Serve(ctx, s.cfg.MetricsAddr, s.registry, s.logger); err != nil {
			s.logger.Error("metrics listener stopped", slog.String("error", err.Error()))
		}
	}()
}

// openBrowser launches the platform URL opener.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}

	go func() { _ = cmd.Wait() }()

	return nil
}
