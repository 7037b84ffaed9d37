package fantasy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// DraftPick is one slot of a league draft. Slots exist before they are
// made; PlayerKey stays empty until a player is picked.
type DraftPick struct {
	Pick      int    `json:"pick"`
	Round     int    `json:"round"`
	TeamKey   string `json:"team_key"`
	PlayerKey string `json:"player_key,omitempty"`
	// Cost is set in auction drafts only.
	Cost *int `json:"cost,omitempty"`
}

// ID identifies the pick within its draft.
func (p DraftPick) ID() string {
	return strconv.Itoa(p.Pick)
}

// Made reports whether a player has been picked in this slot.
func (p DraftPick) Made() bool {
	return p.PlayerKey != ""
}

// DraftComplete reports whether every slot of a non-empty draft is made.
func DraftComplete(picks []DraftPick) bool {
	if len(picks) == 0 {
		return false
	}

	for _, p := range picks {
		if !p.Made() {
			return false
		}
	}

	return true
}

// CountMade returns the number of made picks.
func CountMade(picks []DraftPick) int {
	n := 0

	for _, p := range picks {
		if p.Made() {
			n++
		}
	}

	return n
}

// DraftResultsForWeek fetches the draft board of leagueKey, sorted by pick
// number. A non-empty week is passed through to the API as an opaque selector.
func (c *Client) DraftResultsForWeek(ctx context.Context, leagueKey, week string) ([]DraftPick, error) {
	var params url.Values
	if week != "" {
		params = url.Values{"week": {week}}
	}

	return c.draftResults(ctx, leagueKey, params)
}

func (c *Client) draftResults(ctx context.Context, leagueKey string, params url.Values) ([]DraftPick, error) {
	resp, err := c.Get(ctx, "league/"+leagueKey+"/draftresults", params)
	if err != nil {
		return nil, err
	}

	picks, err := ParseDraftResults(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fantasy: draft results for %s: %w", leagueKey, err)
	}

	return picks, nil
}

type draftResultJSON struct {
	Pick      flexInt    `json:"pick"`
	Round     flexInt    `json:"round"`
	TeamKey   flexString `json:"team_key"`
	PlayerKey flexString `json:"player_key"`
	Cost      *flexInt   `json:"cost"`
}

// ParseDraftResults decodes a league/{key}/draftresults document:
// fantasy_content.league[1].draft_results is a numbered collection of
// {"draft_result": {...}} members.
func ParseDraftResults(body []byte) ([]DraftPick, error) {
	parts, err := leagueParts(body)
	if err != nil {
		return nil, err
	}

	members, err := collection(subresource(parts, "draft_results"))
	if err != nil {
		return nil, fmt.Errorf("draft_results: %w", err)
	}

	picks := make([]DraftPick, 0, len(members))

	for _, m := range members {
		var wrapper struct {
			DraftResult *draftResultJSON `json:"draft_result"`
		}

		if err := json.Unmarshal(m, &wrapper); err != nil {
			return nil, fmt.Errorf("decoding draft_result: %w", err)
		}

		if wrapper.DraftResult == nil {
			continue
		}

		r := wrapper.DraftResult
		pick := DraftPick{
			Pick:      int(r.Pick),
			Round:     int(r.Round),
			TeamKey:   string(r.TeamKey),
			PlayerKey: string(r.PlayerKey),
		}

		if r.Cost != nil {
			cost := int(*r.Cost)
			pick.Cost = &cost
		}

		picks = append(picks, pick)
	}

	sort.SliceStable(picks, func(i, j int) bool { return picks[i].Pick < picks[j].Pick })

	return picks, nil
}
