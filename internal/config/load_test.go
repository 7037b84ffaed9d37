package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
client_id = "dj0yJmk9abc"
client_secret = "s3cret"
redirect_uri = "http://localhost:8765/callback"
scope = "fspt-r"
token_path = "/var/lib/yfa/tokens.json"
refresh_margin = "2m"

base_url = "https://example.test/fantasy/v2"
user_agent = "league-bot/1.0"
max_attempts = 3
base_delay = "250ms"
max_delay = "4s"
jitter_fraction = 0.1
requests_per_second = 1.5
burst = 2
request_timeout = "1m"
attempt_timeout = "10s"

poll_interval = "10s"
max_poll_interval = "2m"
failure_threshold = 20

log_level = "debug"
log_format = "json"
metrics_addr = "127.0.0.1:9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dj0yJmk9abc", cfg.ClientID)
	assert.Equal(t, "http://localhost:8765/callback", cfg.RedirectURI)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.InDelta(t, 1.5, cfg.RequestsPerSecond, 0)
	assert.Equal(t, "10s", cfg.PollInterval)
	assert.Equal(t, 20, cfg.FailureThreshold)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, `client_id = "abc"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.ClientID)
	assert.Equal(t, defaultScope, cfg.Scope)
	assert.Equal(t, defaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, defaultBaseDelay, cfg.BaseDelay)
	assert.Equal(t, defaultRedirectURI, cfg.RedirectURI)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, `client_id = `)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
max_attempts = 0
base_delay = "soon"
log_level = "verbose"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
	assert.Contains(t, err.Error(), "base_delay")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Defaults(t *testing.T) {
	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")})
	require.NoError(t, err)

	assert.Equal(t, defaultRedirectURI, r.RedirectURI)
	assert.Equal(t, time.Minute, r.RefreshMargin)
	assert.Equal(t, 500*time.Millisecond, r.BaseDelay)
	assert.Equal(t, 8*time.Second, r.MaxDelay)
	assert.Equal(t, 2*time.Minute, r.RequestTimeout)
	assert.Equal(t, 10*time.Second, r.PollInterval)
	assert.True(t, filepath.IsAbs(r.TokenPath))
	assert.True(t, strings.HasSuffix(r.TokenPath, tokenFileName))
	assert.False(t, r.HasClientCredentials())
}

func TestResolve_OverrideOrder(t *testing.T) {
	path := writeTestConfig(t, `
client_id = "from-file"
client_secret = "file-secret"
user_agent = "file-agent"
token_path = "/file/tokens.json"
log_level = "info"
`)

	env := EnvOverrides{
		ClientID:  "from-env",
		TokenPath: "/env/tokens.json",
	}

	tokenPath := "/cli/tokens.json"
	level := "debug"

	r, err := Resolve(env, CLIOverrides{ConfigPath: path, TokenPath: &tokenPath, LogLevel: &level})
	require.NoError(t, err)

	assert.Equal(t, path, r.ConfigPath)
	assert.Equal(t, "from-env", r.ClientID, "env beats file")
	assert.Equal(t, "file-secret", r.ClientSecret)
	assert.Equal(t, "file-agent", r.UserAgent)
	assert.Equal(t, "/cli/tokens.json", r.TokenPath, "CLI beats env")
	assert.Equal(t, "debug", r.LogLevel)
	assert.True(t, r.HasClientCredentials())
}

func TestResolve_EnvConfigPath(t *testing.T) {
	path := writeTestConfig(t, `scope = "fspt-w"`)

	r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "fspt-w", r.Scope)
}

func TestResolve_TildeTokenPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	r, err := Resolve(EnvOverrides{TokenPath: "~/.yfa/tokens.json"},
		CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".yfa", "tokens.json"), r.TokenPath)
}

func TestResolve_InvalidEnvRedirect(t *testing.T) {
	_, err := Resolve(EnvOverrides{RedirectURI: "localhost:8765"},
		CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect_uri")
}

func TestResolve_RelativeTokenPath(t *testing.T) {
	rel := "tokens.json"

	_, err := Resolve(EnvOverrides{}, CLIOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
		TokenPath:  &rel,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_path")
}
