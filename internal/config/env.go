package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig       = "YFA_CONFIG"
	EnvClientID     = "YAHOO_CLIENT_ID"
	EnvClientSecret = "YAHOO_CLIENT_SECRET"
	EnvRedirectURI  = "YAHOO_REDIRECT_URI"
	EnvScope        = "YAHOO_SCOPE"
	EnvTokenPath    = "YAHOO_TOKEN_PATH"
	EnvUserAgent    = "YAHOO_USER_AGENT"
)

// DotEnvFile is the file LoadDotEnv reads by default, relative to the
// working directory.
const DotEnvFile = ".env"

// EnvOverrides holds values read from environment variables. Empty means
// unset.
type EnvOverrides struct {
	ConfigPath   string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scope        string
	TokenPath    string
	UserAgent    string
}

// LoadDotEnv copies variables from a dotenv file into the process
// environment. Variables already set win. A missing file is not an error.
func LoadDotEnv(path string, logger *slog.Logger) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("loading %s: %w", path, err)
	}

	logger.Debug("loaded dotenv file", slog.String("path", path))

	return nil
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Values are never logged.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	o := EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		RedirectURI:  os.Getenv(EnvRedirectURI),
		Scope:        os.Getenv(EnvScope),
		TokenPath:    os.Getenv(EnvTokenPath),
		UserAgent:    os.Getenv(EnvUserAgent),
	}

	for name, v := range map[string]string{
		EnvConfig:       o.ConfigPath,
		EnvClientID:     o.ClientID,
		EnvClientSecret: o.ClientSecret,
		EnvRedirectURI:  o.RedirectURI,
		EnvScope:        o.Scope,
		EnvTokenPath:    o.TokenPath,
		EnvUserAgent:    o.UserAgent,
	} {
		if v != "" {
			logger.Debug("environment override set", slog.String("var", name))
		}
	}

	return o
}

// apply copies the non-empty overrides onto cfg.
func (o EnvOverrides) apply(cfg *Config) {
	setIf(&cfg.ClientID, o.ClientID)
	setIf(&cfg.ClientSecret, o.ClientSecret)
	setIf(&cfg.RedirectURI, o.RedirectURI)
	setIf(&cfg.Scope, o.Scope)
	setIf(&cfg.TokenPath, o.TokenPath)
	setIf(&cfg.UserAgent, o.UserAgent)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
