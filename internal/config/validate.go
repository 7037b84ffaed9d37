package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"time"
)

// Validation range constants.
const (
	minMaxAttempts    = 1
	maxMaxAttempts    = 20
	minBurst          = 1
	minPollInterval   = time.Second
	minAttemptTimeout = time.Second
	maxJitterFraction = 1.0
	oobRedirect       = "oob"
	schemeHTTP        = "http"
	schemeHTTPS       = "https"
)

// Log formats accepted by log_format.
const (
	LogFormatAuto = "auto"
	LogFormatText = "text"
	LogFormatJSON = "json"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	LogFormatAuto: true,
	LogFormatText: true,
	LogFormatJSON: true,
}

// Validate checks all configuration values and returns every error found.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateOAuth(&cfg.OAuthConfig)...)
	errs = append(errs, validateAPI(&cfg.APIConfig)...)
	errs = append(errs, validatePoll(&cfg.PollConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateMetricsAddr(cfg.MetricsAddr)...)

	return errors.Join(errs...)
}

// ValidateResolved checks the final values after environment and CLI
// overrides have been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if r.TokenPath == "" {
		errs = append(errs, errors.New("token_path: could not determine a default, set it explicitly"))
	} else if !filepath.IsAbs(r.TokenPath) {
		errs = append(errs, fmt.Errorf("token_path: must be absolute after expansion, got %q", r.TokenPath))
	}

	errs = append(errs, validateRedirect(r.RedirectURI)...)

	if !validLogLevels[r.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", r.LogLevel))
	}

	errs = append(errs, validateMetricsAddr(r.MetricsAddr)...)

	return errors.Join(errs...)
}

func validateOAuth(o *OAuthConfig) []error {
	var errs []error

	errs = append(errs, validateRedirect(o.RedirectURI)...)

	if o.Scope == "" {
		errs = append(errs, errors.New("scope: must not be empty"))
	}

	errs = append(errs, validateDuration("refresh_margin", o.RefreshMargin, 0)...)

	return errs
}

func validateRedirect(uri string) []error {
	if uri == oobRedirect {
		return nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return []error{fmt.Errorf("redirect_uri: %w", err)}
	}

	if (u.Scheme != schemeHTTP && u.Scheme != schemeHTTPS) || u.Host == "" {
		return []error{fmt.Errorf("redirect_uri: must be %q or an absolute http(s) URL, got %q", oobRedirect, uri)}
	}

	return nil
}

func validateAPI(a *APIConfig) []error {
	var errs []error

	if u, err := url.Parse(a.BaseURL); err != nil || (u.Scheme != schemeHTTP && u.Scheme != schemeHTTPS) || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url: must be an absolute http(s) URL, got %q", a.BaseURL))
	}

	if a.UserAgent == "" {
		errs = append(errs, errors.New("user_agent: must not be empty"))
	}

	if a.MaxAttempts < minMaxAttempts || a.MaxAttempts > maxMaxAttempts {
		errs = append(errs, fmt.Errorf("max_attempts: must be between %d and %d, got %d",
			minMaxAttempts, maxMaxAttempts, a.MaxAttempts))
	}

	errs = append(errs, validateDuration("base_delay", a.BaseDelay, time.Millisecond)...)
	errs = append(errs, validateDuration("max_delay", a.MaxDelay, time.Millisecond)...)

	if base, err := time.ParseDuration(a.BaseDelay); err == nil {
		if maxDelay, err := time.ParseDuration(a.MaxDelay); err == nil && maxDelay < base {
			errs = append(errs, fmt.Errorf("max_delay: must be at least base_delay (%s), got %s", a.BaseDelay, a.MaxDelay))
		}
	}

	if a.JitterFraction < 0 || a.JitterFraction > maxJitterFraction {
		errs = append(errs, fmt.Errorf("jitter_fraction: must be between 0 and 1, got %g", a.JitterFraction))
	}

	if a.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second: must be >= 0 (0 disables limiting), got %g", a.RequestsPerSecond))
	}

	if a.Burst < minBurst {
		errs = append(errs, fmt.Errorf("burst: must be >= %d, got %d", minBurst, a.Burst))
	}

	errs = append(errs, validateDuration("request_timeout", a.RequestTimeout, minAttemptTimeout)...)
	errs = append(errs, validateDuration("attempt_timeout", a.AttemptTimeout, minAttemptTimeout)...)

	return errs
}

func validatePoll(p *PollConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("poll_interval", p.PollInterval, minPollInterval)...)
	errs = append(errs, validateDuration("max_poll_interval", p.MaxPollInterval, minPollInterval)...)

	if p.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("failure_threshold: must be >= 0 (0 never gives up), got %d", p.FailureThreshold))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateMetricsAddr(addr string) []error {
	if addr == "" {
		return nil
	}

	if _, _, err := net.SplitHostPort(addr); err != nil {
		return []error{fmt.Errorf("metrics_addr: %w", err)}
	}

	return nil
}

// validateDuration checks that s parses and is at least minimum.
func validateDuration(key, s string, minimum time.Duration) []error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", key, s, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", key, minimum, s)}
	}

	return nil
}
