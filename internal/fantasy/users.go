package fantasy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// nflGameKeys maps NFL seasons to Yahoo game keys. Yahoo issues a new game
// key each season; league keys are "<game key>.l.<league id>".
var nflGameKeys = map[int]string{
	2025: "461",
	2024: "449",
	2023: "423",
	2022: "414",
	2021: "406",
	2020: "399",
	2019: "390",
	2018: "380",
}

// CurrentGameCode selects the current season's NFL game.
const CurrentGameCode = "nfl"

// GameKeyForSeason returns the NFL game key for year. Unknown seasons fall
// back to the current-season game code with ok = false.
func GameKeyForSeason(year int) (key string, ok bool) {
	if k, found := nflGameKeys[year]; found {
		return k, true
	}

	return CurrentGameCode, false
}

// SeasonForGameKey reverses GameKeyForSeason. ok is false for unknown keys.
func SeasonForGameKey(gameKey string) (year int, ok bool) {
	for y, k := range nflGameKeys {
		if k == gameKey {
			return y, true
		}
	}

	return 0, false
}

var errNoUser = errors.New("response has no logged-in user")

// CurrentUserGUID returns the GUID of the user owning the access token.
// It doubles as the cheapest authenticated round trip.
func (c *Client) CurrentUserGUID(ctx context.Context) (string, error) {
	resp, err := c.Get(ctx, "users;use_login=1", nil)
	if err != nil {
		return "", err
	}

	parts, err := loggedInUser(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fantasy: current user: %w", err)
	}

	fields, err := resourceFields(parts[0])
	if err != nil {
		return "", fmt.Errorf("fantasy: current user: %w", err)
	}

	var guid flexString
	if raw, ok := fields["guid"]; ok {
		if err := json.Unmarshal(raw, &guid); err != nil {
			return "", fmt.Errorf("fantasy: current user guid: %w", err)
		}
	}

	if guid == "" {
		return "", fmt.Errorf("fantasy: current user: %w", errNoUser)
	}

	return string(guid), nil
}

// UserLeagueKeys lists the keys of the logged-in user's leagues in gameKey
// (a game key such as "449" or a game code such as "nfl").
func (c *Client) UserLeagueKeys(ctx context.Context, gameKey string) ([]string, error) {
	resp, err := c.Get(ctx, "users;use_login=1/games;game_keys="+gameKey+"/leagues", nil)
	if err != nil {
		return nil, err
	}

	keys, err := ParseUserLeagueKeys(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fantasy: leagues for game %s: %w", gameKey, err)
	}

	return keys, nil
}

// ParseUserLeagueKeys decodes users;use_login=1/games/leagues:
// users[0].user[1].games[*].game[1].leagues[*].league[0].league_key.
func ParseUserLeagueKeys(body []byte) ([]string, error) {
	userParts, err := loggedInUser(body)
	if err != nil {
		if errors.Is(err, errNoUser) {
			return nil, nil
		}

		return nil, err
	}

	games, err := collection(subresource(userParts, "games"))
	if err != nil {
		return nil, fmt.Errorf("games: %w", err)
	}

	var keys []string

	for _, g := range games {
		var game struct {
			Game json.RawMessage `json:"game"`
		}

		if err := json.Unmarshal(g, &game); err != nil || len(game.Game) == 0 {
			continue
		}

		gameParts, err := resourceParts(game.Game)
		if err != nil {
			return nil, err
		}

		leagues, err := collection(subresource(gameParts, "leagues"))
		if err != nil {
			return nil, fmt.Errorf("leagues: %w", err)
		}

		for _, l := range leagues {
			key, err := leagueKey(l)
			if err != nil {
				return nil, err
			}

			if key != "" {
				keys = append(keys, key)
			}
		}
	}

	return keys, nil
}

func leagueKey(member json.RawMessage) (string, error) {
	var league struct {
		League json.RawMessage `json:"league"`
	}

	if err := json.Unmarshal(member, &league); err != nil {
		return "", fmt.Errorf("decoding league: %w", err)
	}

	if len(league.League) == 0 {
		return "", nil
	}

	parts, err := resourceParts(league.League)
	if err != nil || len(parts) == 0 {
		return "", err
	}

	fields, err := resourceFields(parts[0])
	if err != nil {
		return "", err
	}

	var key flexString
	if raw, ok := fields["league_key"]; ok {
		if err := json.Unmarshal(raw, &key); err != nil {
			return "", fmt.Errorf("decoding league_key: %w", err)
		}
	}

	return string(key), nil
}

// loggedInUser returns the resource parts of users[0].user.
func loggedInUser(body []byte) ([]json.RawMessage, error) {
	var doc struct {
		FantasyContent struct {
			Users json.RawMessage `json:"users"`
		} `json:"fantasy_content"`
	}

	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	users, err := collection(doc.FantasyContent.Users)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}

	if len(users) == 0 {
		return nil, errNoUser
	}

	var user struct {
		User json.RawMessage `json:"user"`
	}

	if err := json.Unmarshal(users[0], &user); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}

	if len(user.User) == 0 {
		return nil, errNoUser
	}

	parts, err := resourceParts(user.User)
	if err != nil {
		return nil, err
	}

	if len(parts) == 0 {
		return nil, errNoUser
	}

	return parts, nil
}
