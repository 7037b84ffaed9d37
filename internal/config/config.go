// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for yfa. Values resolve through four
// layers: defaults, config file, environment (including a .env file), and
// CLI flags.
package config

import "time"

// Config is the parsed config file. All keys are flat top-level keys; the
// embedded structs only group them.
type Config struct {
	OAuthConfig
	APIConfig
	PollConfig
	LoggingConfig
	MetricsConfig
}

// OAuthConfig holds the Yahoo application credentials and token storage.
type OAuthConfig struct {
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	RedirectURI   string `toml:"redirect_uri"`
	Scope         string `toml:"scope"`
	TokenPath     string `toml:"token_path"`
	RefreshMargin string `toml:"refresh_margin"`
}

// APIConfig controls the Fantasy API client: endpoint, retry policy, and
// rate limit.
type APIConfig struct {
	BaseURL           string  `toml:"base_url"`
	UserAgent         string  `toml:"user_agent"`
	MaxAttempts       int     `toml:"max_attempts"`
	BaseDelay         string  `toml:"base_delay"`
	MaxDelay          string  `toml:"max_delay"`
	JitterFraction    float64 `toml:"jitter_fraction"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	RequestTimeout    string  `toml:"request_timeout"`
	AttemptTimeout    string  `toml:"attempt_timeout"`
}

// PollConfig holds watch defaults for draft-picks --watch.
type PollConfig struct {
	PollInterval     string `toml:"poll_interval"`
	MaxPollInterval  string `toml:"max_poll_interval"`
	FailureThreshold int    `toml:"failure_threshold"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// MetricsConfig controls the optional Prometheus listener. An empty address
// disables it.
type MetricsConfig struct {
	MetricsAddr string `toml:"metrics_addr"`
}

// Resolved is the final configuration after every override layer, with
// durations parsed and paths expanded.
type Resolved struct {
	ConfigPath string `json:"config_path"`

	ClientID      string        `json:"client_id"`
	ClientSecret  string        `json:"-"`
	RedirectURI   string        `json:"redirect_uri"`
	Scope         string        `json:"scope"`
	TokenPath     string        `json:"token_path"`
	RefreshMargin time.Duration `json:"refresh_margin"`

	BaseURL           string        `json:"base_url"`
	UserAgent         string        `json:"user_agent"`
	MaxAttempts       int           `json:"max_attempts"`
	BaseDelay         time.Duration `json:"base_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	JitterFraction    float64       `json:"jitter_fraction"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	Burst             int           `json:"burst"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	AttemptTimeout    time.Duration `json:"attempt_timeout"`

	PollInterval     time.Duration `json:"poll_interval"`
	MaxPollInterval  time.Duration `json:"max_poll_interval"`
	FailureThreshold int           `json:"failure_threshold"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	MetricsAddr string `json:"metrics_addr,omitempty"`
}

// HasClientCredentials reports whether both the client ID and secret are set.
func (r *Resolved) HasClientCredentials() bool {
	return r.ClientID != "" && r.ClientSecret != ""
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from an explicit zero value.
type CLIOverrides struct {
	ConfigPath  string  // --config flag (empty = use default)
	TokenPath   *string // --token-path flag
	LogLevel    *string // --verbose / --debug / --quiet
	MetricsAddr *string // --metrics-addr flag
}
