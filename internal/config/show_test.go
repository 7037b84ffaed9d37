package config

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	addr := "127.0.0.1:9100"

	r, err := Resolve(EnvOverrides{ClientID: "abc", ClientSecret: "do-not-print"},
		CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "none.toml"), MetricsAddr: &addr})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(r, &buf))

	out := buf.String()
	assert.Contains(t, out, `client_id      = "abc"`)
	assert.Contains(t, out, `client_secret  = "(set)"`)
	assert.NotContains(t, out, "do-not-print")
	assert.Contains(t, out, `max_attempts        = 5`)
	assert.Contains(t, out, `base_delay          = "500ms"`)
	assert.Contains(t, out, `poll_interval     = "10s"`)
	assert.Contains(t, out, `metrics_addr = "127.0.0.1:9100"`)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(&Resolved{}, failingWriter{})
	assert.EqualError(t, err, "disk full")
}
