package config

// Default values for configuration options. Several mirror the fantasy and
// auth package defaults so "config show" prints concrete values.
const (
	defaultRedirectURI       = "oob"
	defaultScope             = "fspt-r"
	defaultRefreshMargin     = "60s"
	defaultBaseURL           = "https://fantasysports.yahooapis.com/fantasy/v2"
	defaultUserAgent         = "yfa/0.1"
	defaultMaxAttempts       = 5
	defaultBaseDelay         = "500ms"
	defaultMaxDelay          = "8s"
	defaultJitterFraction    = 0.25
	defaultRequestsPerSecond = 2
	defaultBurst             = 5
	defaultRequestTimeout    = "2m"
	defaultAttemptTimeout    = "20s"
	defaultPollInterval      = "10s"
	defaultMaxPollInterval   = "2m"
	defaultFailureThreshold  = 0
	defaultLogLevel          = "warn"
	defaultLogFormat         = "auto"
)

// DefaultConfig returns a Config populated with all default values. TOML is
// decoded on top of it, so unset keys keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		OAuthConfig: OAuthConfig{
			RedirectURI:   defaultRedirectURI,
			Scope:         defaultScope,
			RefreshMargin: defaultRefreshMargin,
		},
		APIConfig: APIConfig{
			BaseURL:           defaultBaseURL,
			UserAgent:         defaultUserAgent,
			MaxAttempts:       defaultMaxAttempts,
			BaseDelay:         defaultBaseDelay,
			MaxDelay:          defaultMaxDelay,
			JitterFraction:    defaultJitterFraction,
			RequestsPerSecond: defaultRequestsPerSecond,
			Burst:             defaultBurst,
			RequestTimeout:    defaultRequestTimeout,
			AttemptTimeout:    defaultAttemptTimeout,
		},
		PollConfig: PollConfig{
			PollInterval:     defaultPollInterval,
			MaxPollInterval:  defaultMaxPollInterval,
			FailureThreshold: defaultFailureThreshold,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
