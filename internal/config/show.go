package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration to w as annotated TOML.
// The client secret is never printed.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	ew.printf("# OAuth\n")
	ew.printf("client_id      = %q\n", r.ClientID)
	ew.printf("client_secret  = %q\n", secretState(r.ClientSecret))
	ew.printf("redirect_uri   = %q\n", r.RedirectURI)
	ew.printf("scope          = %q\n", r.Scope)
	ew.printf("token_path     = %q\n", r.TokenPath)
	ew.printf("refresh_margin = %q\n\n", r.RefreshMargin)

	ew.printf("# API client\n")
	ew.printf("base_url            = %q\n", r.BaseURL)
	ew.printf("user_agent          = %q\n", r.UserAgent)
	ew.printf("max_attempts        = %d\n", r.MaxAttempts)
	ew.printf("base_delay          = %q\n", r.BaseDelay)
	ew.printf("max_delay           = %q\n", r.MaxDelay)
	ew.printf("jitter_fraction     = %g\n", r.JitterFraction)
	ew.printf("requests_per_second = %g\n", r.RequestsPerSecond)
	ew.printf("burst               = %d\n", r.Burst)
	ew.printf("request_timeout     = %q\n", r.RequestTimeout)
	ew.printf("attempt_timeout     = %q\n\n", r.AttemptTimeout)

	ew.printf("# Polling\n")
	ew.printf("poll_interval     = %q\n", r.PollInterval)
	ew.printf("max_poll_interval = %q\n", r.MaxPollInterval)
	ew.printf("failure_threshold = %d\n\n", r.FailureThreshold)

	ew.printf("# Logging\n")
	ew.printf("log_level  = %q\n", r.LogLevel)
	ew.printf("log_format = %q\n", r.LogFormat)

	if r.MetricsAddr != "" {
		ew.printf("\nmetrics_addr = %q\n", r.MetricsAddr)
	}

	return ew.err
}

func secretState(s string) string {
	if s == "" {
		return "(not set)"
	}

	return "(set)"
}

// errWriter captures the first write error; later writes are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
