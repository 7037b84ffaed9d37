package fantasy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// playerBatchSize is how many player keys go into one players;player_keys=
// request.
const playerBatchSize = 25

var errNoLeague = errors.New("response has no league resource")

// League is the display metadata of a league and its teams.
type League struct {
	Key  string
	Name string
	// Teams maps team key to team name.
	Teams map[string]string
}

// Player is the display metadata of a player.
type Player struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
	Team     string `json:"team,omitempty"`
}

// String renders the player as "Name (POS, TEAM)", omitting missing parts.
func (p Player) String() string {
	name := p.Name
	if name == "" {
		name = p.Key
	}

	var extra []string
	if p.Position != "" {
		extra = append(extra, p.Position)
	}

	if p.Team != "" {
		extra = append(extra, p.Team)
	}

	if len(extra) == 0 {
		return name
	}

	return name + " (" + strings.Join(extra, ", ") + ")"
}

// LeagueTeams fetches league/{key}/teams.
func (c *Client) LeagueTeams(ctx context.Context, leagueKey string) (*League, error) {
	resp, err := c.Get(ctx, "league/"+leagueKey+"/teams", nil)
	if err != nil {
		return nil, err
	}

	league, err := ParseLeagueTeams(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fantasy: teams for %s: %w", leagueKey, err)
	}

	return league, nil
}

// ParseLeagueTeams decodes fantasy_content.league: element 0 holds the
// league fields and the teams sub-resource is a numbered collection of
// {"team": [[fields...], ...]} members.
func ParseLeagueTeams(body []byte) (*League, error) {
	parts, err := leagueParts(body)
	if err != nil {
		return nil, err
	}

	fields, err := resourceFields(parts[0])
	if err != nil {
		return nil, err
	}

	league := &League{
		Key:   stringField(fields, "league_key"),
		Name:  stringField(fields, "name"),
		Teams: map[string]string{},
	}

	members, err := collection(subresource(parts, "teams"))
	if err != nil {
		return nil, fmt.Errorf("teams: %w", err)
	}

	for _, m := range members {
		fields, err := memberFields(m, "team")
		if err != nil {
			return nil, err
		}

		if key := stringField(fields, "team_key"); key != "" {
			league.Teams[key] = stringField(fields, "name")
		}
	}

	return league, nil
}

// PlayerNames looks up display metadata for keys, batching requests.
// Duplicate and empty keys are ignored.
func (c *Client) PlayerNames(ctx context.Context, keys []string) (map[string]Player, error) {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))

	for _, k := range keys {
		if k != "" && !seen[k] {
			seen[k] = true
			unique = append(unique, k)
		}
	}

	players := make(map[string]Player, len(unique))

	for start := 0; start < len(unique); start += playerBatchSize {
		batch := unique[start:min(start+playerBatchSize, len(unique))]

		resp, err := c.Get(ctx, "players;player_keys="+strings.Join(batch, ","), nil)
		if err != nil {
			return nil, err
		}

		found, err := ParsePlayers(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("fantasy: players: %w", err)
		}

		for _, p := range found {
			players[p.Key] = p
		}
	}

	return players, nil
}

// ParsePlayers decodes fantasy_content.players, a numbered collection of
// {"player": [[fields...]]} members.
func ParsePlayers(body []byte) ([]Player, error) {
	var doc struct {
		FantasyContent struct {
			Players json.RawMessage `json:"players"`
		} `json:"fantasy_content"`
	}

	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	members, err := collection(doc.FantasyContent.Players)
	if err != nil {
		return nil, fmt.Errorf("players: %w", err)
	}

	players := make([]Player, 0, len(members))

	for _, m := range members {
		fields, err := memberFields(m, "player")
		if err != nil {
			return nil, err
		}

		var name struct {
			Full string `json:"full"`
		}

		if raw, ok := fields["name"]; ok {
			_ = json.Unmarshal(raw, &name)
		}

		players = append(players, Player{
			Key:      stringField(fields, "player_key"),
			Name:     name.Full,
			Position: stringField(fields, "display_position"),
			Team:     stringField(fields, "editorial_team_abbr"),
		})
	}

	return players, nil
}

// leagueParts returns the resource parts of fantasy_content.league.
func leagueParts(body []byte) ([]json.RawMessage, error) {
	var doc struct {
		FantasyContent struct {
			League json.RawMessage `json:"league"`
		} `json:"fantasy_content"`
	}

	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(doc.FantasyContent.League) == 0 {
		return nil, errNoLeague
	}

	parts, err := resourceParts(doc.FantasyContent.League)
	if err != nil {
		return nil, err
	}

	if len(parts) == 0 {
		return nil, errNoLeague
	}

	return parts, nil
}

// memberFields decodes {"<name>": [fields, ...]} and returns the fields.
func memberFields(member json.RawMessage, name string) (map[string]json.RawMessage, error) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(member, &wrapper); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}

	raw, ok := wrapper[name]
	if !ok {
		return map[string]json.RawMessage{}, nil
	}

	parts, err := resourceParts(raw)
	if err != nil {
		return nil, err
	}

	if len(parts) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	return resourceFields(parts[0])
}

// stringField returns fields[key] as a string, or "" when absent or not a
// scalar.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}

	var s flexString
	if err := s.UnmarshalJSON(raw); err != nil {
		return ""
	}

	return string(s)
}
