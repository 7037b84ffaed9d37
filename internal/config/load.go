package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are errors with "did you mean?" hints.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults, config file, environment, CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	env.apply(cfg)

	r, err := resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	r.ConfigPath = cfgPath

	if cli.TokenPath != nil {
		r.TokenPath = expandTilde(*cli.TokenPath)
	}

	if cli.LogLevel != nil {
		r.LogLevel = *cli.LogLevel
	}

	if cli.MetricsAddr != nil {
		r.MetricsAddr = *cli.MetricsAddr
	}

	if err := ValidateResolved(r); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return r, nil
}

// resolve converts a validated Config into typed values.
func resolve(cfg *Config) (*Resolved, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		tokenPath = DefaultTokenPath()
	}

	return &Resolved{
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		RedirectURI:   cfg.RedirectURI,
		Scope:         cfg.Scope,
		TokenPath:     expandTilde(tokenPath),
		RefreshMargin: durationOf(cfg.RefreshMargin),

		BaseURL:           cfg.BaseURL,
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         durationOf(cfg.BaseDelay),
		MaxDelay:          durationOf(cfg.MaxDelay),
		JitterFraction:    cfg.JitterFraction,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		RequestTimeout:    durationOf(cfg.RequestTimeout),
		AttemptTimeout:    durationOf(cfg.AttemptTimeout),

		PollInterval:     durationOf(cfg.PollInterval),
		MaxPollInterval:  durationOf(cfg.MaxPollInterval),
		FailureThreshold: cfg.FailureThreshold,

		LogLevel:  cfg.LogLevel,
		LogFormat: cfg.LogFormat,

		MetricsAddr: cfg.MetricsAddr,
	}, nil
}

// durationOf parses a duration that Validate has already accepted.
func durationOf(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
