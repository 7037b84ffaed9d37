//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var binaryPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "yfa-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "yfa")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = findModuleRoot()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// findModuleRoot walks up from the current dir to find go.mod.
func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// e2e/ is one level below the module root.
			return ".."
		}

		dir = parent
	}
}

// testEnv is an isolated CLI home: a config pointing at a stub API and an
// optional saved token.
type testEnv struct {
	dir       string
	cfgPath   string
	tokenPath string
}

func newTestEnv(t *testing.T, apiURL string, withToken bool) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		dir:       dir,
		cfgPath:   filepath.Join(dir, "config.toml"),
		tokenPath: filepath.Join(dir, "tokens.json"),
	}

	cfg := fmt.Sprintf("base_url = %q\nmax_attempts = 2\nbase_delay = \"10ms\"\nmax_delay = \"20ms\"\n", apiURL)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte(cfg), 0o600))

	if withToken {
		token := map[string]any{
			"access_token":  "e2e-access",
			"refresh_token": "e2e-refresh",
			"expires_at":    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		}

		data, err := json.Marshal(token)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(env.tokenPath, data, 0o600))
	}

	return env
}

// run executes the CLI and returns stdout, stderr and the exit code.
func (e *testEnv) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()

	fullArgs := append([]string{"--config", e.cfgPath, "--token-path", e.tokenPath}, args...)
	cmd := exec.Command(binaryPath, fullArgs...)
	cmd.Dir = e.dir
	cmd.Env = append(os.Environ(),
		"YAHOO_CLIENT_ID=e2e-client",
		"YAHOO_CLIENT_SECRET=e2e-secret",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode()
	}

	require.NoError(t, err)

	return stdout.String(), stderr.String(), 0
}

const teamsBody = `{"fantasy_content":{"league":[{"league_key":"449.l.1234","name":"E2E League"},
{"teams":{"0":{"team":[[{"team_key":"449.l.1234.t.1"},{"name":"Alpha"}]]},
"1":{"team":[[{"team_key":"449.l.1234.t.2"},{"name":"Bravo"}]]},"count":2}}]}}`

func draftBody(made int) string {
	results := make([]string, 0, 3)

	for i := 1; i <= 3; i++ {
		player := ""
		if i <= made {
			player = fmt.Sprintf(`,"player_key":"449.p.%d"`, i)
		}

		results = append(results, fmt.Sprintf(`"%d":{"draft_result":{"pick":%d,"round":1,"team_key":"449.l.1234.t.%d"%s}}`,
			i-1, i, (i-1)%2+1, player))
	}

	return fmt.Sprintf(`{"fantasy_content":{"league":[{"league_key":"449.l.1234"},{"draft_results":{%s,"count":3}}]}}`,
		strings.Join(results, ","))
}

func playersBody(r *http.Request) string {
	_, list, _ := strings.Cut(r.URL.Path, "player_keys=")

	var members []string
	for i, k := range strings.Split(list, ",") {
		members = append(members, fmt.Sprintf(
			`"%d":{"player":[[{"player_key":%q},{"name":{"full":"Player %s"}},{"display_position":"WR"}]]}`,
			i, k, strings.TrimPrefix(k, "449.p.")))
	}

	return fmt.Sprintf(`{"fantasy_content":{"players":{%s,"count":%d}}}`, strings.Join(members, ","), len(members))
}

// stubAPI serves a three-slot draft. made reports how many slots are
// filled for each draftresults request.
func stubAPI(t *testing.T, made func() int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer e2e-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case r.URL.Path == "/users;use_login=1":
			_, _ = w.Write([]byte(`{"fantasy_content":{"users":{"0":{"user":[{"guid":"E2EGUID"}]},"count":1}}}`))
		case strings.HasSuffix(r.URL.Path, "/draftresults"):
			_, _ = w.Write([]byte(draftBody(made())))
		case strings.HasSuffix(r.URL.Path, "/teams"):
			_, _ = w.Write([]byte(teamsBody))
		case strings.HasPrefix(r.URL.Path, "/players;player_keys="):
			_, _ = w.Write([]byte(playersBody(r)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestE2E_Verify(t *testing.T) {
	srv := stubAPI(t, func() int { return 0 })
	env := newTestEnv(t, srv.URL, true)

	stdout, _, code := env.run(t, "--json", "verify")
	require.Equal(t, 0, code)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, true, out["authenticated"])
	assert.Equal(t, "E2EGUID", out["guid"])
}

func TestE2E_VerifyWithoutToken(t *testing.T) {
	srv := stubAPI(t, func() int { return 0 })
	env := newTestEnv(t, srv.URL, false)

	_, _, code := env.run(t, "verify")
	assert.Equal(t, 2, code)
}

func TestE2E_DraftPicksJSON(t *testing.T) {
	srv := stubAPI(t, func() int { return 2 })
	env := newTestEnv(t, srv.URL, true)

	stdout, stderr, code := env.run(t, "--json", "draft-picks", "--league", "449.l.1234")
	require.Equal(t, 0, code, stderr)

	var picks []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &picks))
	require.Len(t, picks, 3)

	player, ok := picks[0]["player"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Player 1", player["name"])
	assert.Equal(t, "Alpha", picks[0]["team_name"])
	assert.NotContains(t, picks[2], "player")
}

func TestE2E_DraftPicksTable(t *testing.T) {
	srv := stubAPI(t, func() int { return 2 })
	env := newTestEnv(t, srv.URL, true)

	stdout, stderr, code := env.run(t, "draft-picks", "--league", "1234", "--year", "2024")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "Draft Picks (3 total)")
	assert.Contains(t, stdout, "Player 2")
	assert.Contains(t, stdout, "Bravo")
	assert.Contains(t, stdout, "[Waiting for pick]")
}

func TestE2E_DraftPicksWatchUntilComplete(t *testing.T) {
	var calls atomic.Int32

	srv := stubAPI(t, func() int {
		return min(int(calls.Add(1)), 3)
	})
	env := newTestEnv(t, srv.URL, true)

	stdout, stderr, code := env.run(t, "draft-picks", "--league", "449.l.1234", "--watch", "--interval", "20ms")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "Current picks (1/3 made):")
	assert.Contains(t, stdout, "NEW: Round 1, Pick 2: Player 2 (WR) -> Bravo")
	assert.Contains(t, stdout, "NEW: Round 1, Pick 3: Player 3 (WR) -> Alpha")
	assert.Contains(t, stdout, "Draft complete! All 3 picks have been made.")
}

func TestE2E_Logout(t *testing.T) {
	srv := stubAPI(t, func() int { return 0 })
	env := newTestEnv(t, srv.URL, true)

	_, _, code := env.run(t, "logout")
	require.Equal(t, 0, code)

	_, err := os.Stat(env.tokenPath)
	assert.True(t, os.IsNotExist(err))

	_, _, code = env.run(t, "logout")
	assert.Equal(t, 0, code, "logout without a token is not an error")
}
