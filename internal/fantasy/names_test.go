package fantasy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leagueTeamsJSON = `{
	"fantasy_content": {
		"league": [
			{"league_key": "449.l.1234", "name": "Test League"},
			{"teams": {
				"0": {"team": [[{"team_key": "449.l.1234.t.1"}, {"team_id": "1"}, {"name": "Gridiron Gurus"}, []]]},
				"1": {"team": [[{"team_key": "449.l.1234.t.2"}, {"team_id": 2}, {"name": "Blitz Brigade"}]]},
				"count": 2
			}}
		]
	}
}`

func playersJSON(keys ...string) string {
	var members []string
	for i, k := range keys {
		members = append(members, fmt.Sprintf(
			`"%d": {"player": [[{"player_key": %q}, {"name": {"full": "Player %s", "first": "Player"}}, `+
				`{"editorial_team_abbr": "KC"}, {"display_position": "QB"}]]}`, i, k, k))
	}

	return fmt.Sprintf(`{"fantasy_content": {"players": {%s, "count": %d}}}`, strings.Join(members, ","), len(keys))
}

func TestParseLeagueTeams(t *testing.T) {
	league, err := ParseLeagueTeams([]byte(leagueTeamsJSON))
	require.NoError(t, err)

	assert.Equal(t, "449.l.1234", league.Key)
	assert.Equal(t, "Test League", league.Name)
	assert.Equal(t, map[string]string{
		"449.l.1234.t.1": "Gridiron Gurus",
		"449.l.1234.t.2": "Blitz Brigade",
	}, league.Teams)
}

func TestParseLeagueTeams_NoLeague(t *testing.T) {
	_, err := ParseLeagueTeams([]byte(`{"fantasy_content":{}}`))
	assert.ErrorIs(t, err, errNoLeague)
}

func TestClient_LeagueTeams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/league/449.l.1234/teams", r.URL.Path)
		_, _ = w.Write([]byte(leagueTeamsJSON))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL, nil, Options{})

	league, err := c.LeagueTeams(context.Background(), "449.l.1234")
	require.NoError(t, err)
	assert.Len(t, league.Teams, 2)
}

func TestParsePlayers(t *testing.T) {
	players, err := ParsePlayers([]byte(playersJSON("449.p.1", "449.p.2")))
	require.NoError(t, err)
	require.Len(t, players, 2)

	assert.Equal(t, Player{Key: "449.p.1", Name: "Player 449.p.1", Position: "QB", Team: "KC"}, players[0])
	assert.Equal(t, "Player 449.p.1 (QB, KC)", players[0].String())
}

func TestPlayer_String(t *testing.T) {
	assert.Equal(t, "449.p.7", Player{Key: "449.p.7"}.String())
	assert.Equal(t, "Sam (WR)", Player{Name: "Sam", Position: "WR"}.String())
}

func TestClient_PlayerNamesBatches(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		const prefix = "/players;player_keys="
		assert.True(t, strings.HasPrefix(r.URL.Path, prefix))

		keys := strings.Split(strings.TrimPrefix(r.URL.Path, prefix), ",")
		assert.LessOrEqual(t, len(keys), playerBatchSize)

		_, _ = w.Write([]byte(playersJSON(keys...)))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL, nil, Options{})

	keys := make([]string, 0, 31)
	for i := range 30 {
		keys = append(keys, fmt.Sprintf("449.p.%d", i))
	}

	keys = append(keys, "449.p.0", "")

	players, err := c.PlayerNames(context.Background(), keys)
	require.NoError(t, err)

	assert.Len(t, players, 30)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "Player 449.p.29", players["449.p.29"].Name)
}

func TestClient_PlayerNamesEmpty(t *testing.T) {
	c, _, _ := newTestClient(t, "http://127.0.0.1:1", nil, Options{})

	players, err := c.PlayerNames(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, players)
}
