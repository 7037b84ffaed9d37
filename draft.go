package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fantasyctl/yfa/internal/fantasy"
	"github.com/fantasyctl/yfa/internal/poll"
)

const waitingForPick = "[Waiting for pick]"

// draftAPI is the slice of the fantasy client the draft-picks command uses.
type draftAPI interface {
	DraftResultsForWeek(ctx context.Context, leagueKey, week string) ([]fantasy.DraftPick, error)
	LeagueTeams(ctx context.Context, leagueKey string) (*fantasy.League, error)
	PlayerNames(ctx context.Context, keys []string) (map[string]fantasy.Player, error)
	UserLeagueKeys(ctx context.Context, gameKey string) ([]string, error)
	PausedUntil() time.Time
}

type draftFlags struct {
	league   string
	watch    bool
	interval time.Duration
	timeout  time.Duration
	year     int
	week     string
	keys     bool
	recent   int
}

func newDraftPicksCmd() *cobra.Command {
	var flags draftFlags

	cmd := &cobra.Command{
		Use:   "draft-picks",
		Short: "Show draft picks for a league",
		Long: "Prints the draft board of a league. With --watch the board is polled and each " +
			"new pick is printed as it is made, until the draft completes or Ctrl+C.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDraftPicks(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.league, "league", "l", "", "league key (449.l.12345) or bare league id")
	f.BoolVar(&flags.watch, "watch", false, "poll for new picks until the draft completes")
	f.DurationVar(&flags.interval, "interval", 0, "polling interval in watch mode (default from poll_interval)")
	f.DurationVar(&flags.timeout, "timeout", 0, "stop watching after this long (0 = no limit)")
	f.IntVar(&flags.year, "year", currentSeason(time.Now()), "NFL season used to resolve bare league ids")
	f.StringVar(&flags.week, "week", "", "week selector passed through to the API")
	f.BoolVar(&flags.keys, "keys", false, "show raw player and team keys instead of names")
	f.IntVar(&flags.recent, "recent", 0, "show only the last N picks")

	return cmd
}

func runDraftPicks(cmd *cobra.Command, flags draftFlags) error {
	cc := mustCLIContext(cmd.Context())

	if flags.recent < 0 {
		return fmt.Errorf("--recent must not be negative, got %d", flags.recent)
	}

	if flags.interval < 0 || flags.timeout < 0 {
		return errors.New("--interval and --timeout must not be negative")
	}

	s, err := NewSession(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	leagueKey, err := resolveLeagueKey(ctx, s.Client, cc.Logger, flags.league, flags.year, cmd.Flags().Changed("year"))
	if err != nil {
		return err
	}

	b := newDraftBoard(s.Client, leagueKey, flags.week, !flags.keys, cc.Logger)

	if !flags.watch {
		picks, err := b.fetch(ctx)
		if err != nil {
			return fmt.Errorf("fetching draft picks: %w", err)
		}

		if cc.Flags.JSON {
			return printJSON(cc.Out, recentPicks(picks, flags.recent))
		}

		printDraftTable(cc.Out, picks, flags.recent, flags.keys)

		return nil
	}

	interval := flags.interval
	if interval == 0 {
		interval = cc.Cfg.PollInterval
	}

	s.ServeMetrics(ctx)

	return watchDraft(ctx, cc, s, b, watchOptions{
		interval:    interval,
		maxInterval: cc.Cfg.MaxPollInterval,
		timeout:     flags.timeout,
		threshold:   cc.Cfg.FailureThreshold,
	})
}

// currentSeason returns the NFL season in progress at now. Seasons start in
// August, so earlier months belong to the previous year's season.
func currentSeason(now time.Time) int {
	if now.Month() < time.August {
		return now.Year() - 1
	}

	return now.Year()
}

// resolveLeagueKey turns the --league value into a full league key. A bare
// id is prefixed with the season's game key. With no league, the user's
// leagues for the season are listed and a single one is picked.
func resolveLeagueKey(
	ctx context.Context, api draftAPI, logger *slog.Logger, league string, year int, yearSet bool,
) (string, error) {
	gameKey, known := fantasy.GameKeyForSeason(year)
	if yearSet && !known {
		return "", fmt.Errorf("no NFL game key known for the %d season", year)
	}

	if league != "" {
		if _, err := strconv.Atoi(league); err == nil {
			return gameKey + ".l." + league, nil
		}

		prefix, _, ok := strings.Cut(league, ".l.")
		if !ok {
			return "", fmt.Errorf("invalid league %q: want a league key like 449.l.12345 or a numeric id", league)
		}

		if !yearSet || prefix == gameKey {
			return league, nil
		}

		// An explicit --year naming another season than the key wins.
		attrs := []any{slog.String("league", league), slog.Int("year", year)}
		if season, ok := fantasy.SeasonForGameKey(prefix); ok {
			attrs = append(attrs, slog.Int("league_season", season))
		}

		logger.Warn("league key is from another season, discovering leagues for --year", attrs...)
	}

	keys, err := api.UserLeagueKeys(ctx, gameKey)
	if err != nil {
		return "", fmt.Errorf("listing leagues for %d: %w", year, err)
	}

	switch len(keys) {
	case 0:
		return "", fmt.Errorf("no leagues found for the %d season; pass --league", year)
	case 1:
		return keys[0], nil
	default:
		return "", fmt.Errorf("found %d leagues for the %d season, choose one with --league: %s",
			len(keys), year, strings.Join(keys, ", "))
	}
}

// boardPick is a draft pick with its display names resolved.
type boardPick struct {
	fantasy.DraftPick
	Player   *fantasy.Player `json:"player,omitempty"`
	TeamName string          `json:"team_name,omitempty"`
}

// PlayerLabel returns the player's display name or raw key.
func (p boardPick) PlayerLabel() string {
	switch {
	case !p.Made():
		return waitingForPick
	case p.Player != nil:
		return p.Player.String()
	default:
		return p.PlayerKey
	}
}

// TeamLabel returns the fantasy team's name or raw key.
func (p boardPick) TeamLabel() string {
	if p.TeamName != "" {
		return p.TeamName
	}

	return p.TeamKey
}

// draftBoard fetches a league's draft board and resolves names. Team names
// are fetched once; player names are cached across fetches. It is used by
// one goroutine at a time.
type draftBoard struct {
	api       draftAPI
	leagueKey string
	week      string
	names     bool
	logger    *slog.Logger

	leagueName  string
	teams       map[string]string
	teamsLoaded bool
	players     map[string]fantasy.Player
}

func newDraftBoard(api draftAPI, leagueKey, week string, names bool, logger *slog.Logger) *draftBoard {
	return &draftBoard{
		api:       api,
		leagueKey: leagueKey,
		week:      week,
		names:     names,
		logger:    logger,
		players:   make(map[string]fantasy.Player),
	}
}

// title is the league's name once known, else its key.
func (b *draftBoard) title() string {
	if b.leagueName != "" {
		return b.leagueName
	}

	return b.leagueKey
}

// fetch returns the current board. Name lookups that fail are logged and
// the affected picks keep their raw keys.
func (b *draftBoard) fetch(ctx context.Context) ([]boardPick, error) {
	picks, err := b.api.DraftResultsForWeek(ctx, b.leagueKey, b.week)
	if err != nil {
		return nil, err
	}

	if b.names {
		b.loadTeams(ctx)
		b.loadPlayers(ctx, picks)
	}

	out := make([]boardPick, len(picks))
	for i, p := range picks {
		out[i] = boardPick{DraftPick: p, TeamName: b.teams[p.TeamKey]}

		if player, ok := b.players[p.PlayerKey]; ok && p.Made() {
			out[i].Player = &player
		}
	}

	return out, nil
}

func (b *draftBoard) loadTeams(ctx context.Context) {
	if b.teamsLoaded {
		return
	}

	league, err := b.api.LeagueTeams(ctx, b.leagueKey)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("team name lookup failed, showing team keys",
				slog.String("league", b.leagueKey), slog.String("error", err.Error()))
		}

		return
	}

	b.leagueName = league.Name
	b.teams = league.Teams
	b.teamsLoaded = true
}

func (b *draftBoard) loadPlayers(ctx context.Context, picks []fantasy.DraftPick) {
	var missing []string

	for _, p := range picks {
		if !p.Made() {
			continue
		}

		if _, ok := b.players[p.PlayerKey]; !ok {
			missing = append(missing, p.PlayerKey)
		}
	}

	if len(missing) == 0 {
		return
	}

	found, err := b.api.PlayerNames(ctx, missing)
	if err != nil {
		if ctx.Err() == nil {
			b.logger.Warn("player name lookup failed, showing player keys",
				slog.Int("players", len(missing)), slog.String("error", err.Error()))
		}

		return
	}

	for k, p := range found {
		b.players[k] = p
	}
}

// recentPicks returns the last n made picks, or all picks when n is zero.
func recentPicks(picks []boardPick, n int) []boardPick {
	if n <= 0 {
		return picks
	}

	var made []boardPick

	for _, p := range picks {
		if p.Made() {
			made = append(made, p)
		}
	}

	if len(made) > n {
		made = made[len(made)-n:]
	}

	return made
}

func printDraftTable(w io.Writer, picks []boardPick, recent int, keys bool) {
	if len(picks) == 0 {
		fmt.Fprintln(w, "No draft picks found.")
		return
	}

	shown := recentPicks(picks, recent)

	title := fmt.Sprintf("Draft Picks (%d total)", len(picks))
	if recent > 0 {
		title = fmt.Sprintf("Recent Draft Picks (last %d of %d)", len(shown), len(picks))
	}

	var t table.Writer
	if keys {
		t = newTable(w, title, table.Row{"Pick", "Round", "Player Key", "Fantasy Team", "Cost"})
	} else {
		t = newTable(w, title, table.Row{"Pick", "Round", "Player", "Pos", "NFL Team", "Fantasy Team", "Cost"})
	}

	for _, p := range shown {
		cost := "-"
		if p.Cost != nil {
			cost = strconv.Itoa(*p.Cost)
		}

		if keys {
			player := p.PlayerKey
			if !p.Made() {
				player = waitingForPick
			}

			t.AppendRow(table.Row{p.Pick, p.Round, player, p.TeamLabel(), cost})

			continue
		}

		name, pos, team := waitingForPick, "", ""

		switch {
		case p.Player != nil:
			name, pos, team = p.Player.Name, p.Player.Position, p.Player.Team
		case p.Made():
			name = p.PlayerKey
		}

		t.AppendRow(table.Row{p.Pick, p.Round, truncate(name, 20), pos, team, truncate(p.TeamLabel(), 15), cost})
	}

	t.Render()
}

type watchOptions struct {
	interval    time.Duration
	maxInterval time.Duration
	timeout     time.Duration
	threshold   int
}

// pickLine renders one pick as "Round R, Pick P: player -> team".
func pickLine(p boardPick) string {
	return fmt.Sprintf("Round %d, Pick %d: %s -> %s", p.Round, p.Pick, p.PlayerLabel(), p.TeamLabel())
}

// watchDraft prints the current board, then polls it and prints each new
// pick until the draft completes, the timeout passes or ctx is canceled.
func watchDraft(ctx context.Context, cc *CLIContext, s *Session, b *draftBoard, opts watchOptions) error {
	initial, err := b.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching draft picks: %w", err)
	}

	fmt.Fprintf(cc.Out, "Watching draft picks for %s (polling every %s)...\n", b.title(), opts.interval)
	cc.Statusf("Press Ctrl+C to stop watching\n")

	if len(initial) == 0 {
		fmt.Fprintln(cc.Out, "No draft picks found yet.")
	} else {
		fmt.Fprintf(cc.Out, "\nCurrent picks (%d/%d made):\n", countMade(initial), len(initial))

		for _, p := range initial {
			fmt.Fprintf(cc.Out, "  %s\n", pickLine(p))
		}

		fmt.Fprintln(cc.Out)
	}

	if isComplete(initial) {
		fmt.Fprintf(cc.Out, "Draft complete! All %d picks have been made.\n", len(initial))
		return nil
	}

	var seed []string

	for _, p := range initial {
		if p.Made() {
			seed = append(seed, p.ID())
		}
	}

	var lastTotal int

	newPick := color.New(color.FgGreen, color.Bold)

	run, err := poll.Start(ctx, poll.Config[boardPick]{
		Fetch: func(ctx context.Context) ([]boardPick, error) {
			picks, err := b.fetch(ctx)
			if err == nil {
				lastTotal = len(picks)
				cc.Logger.Debug("draft board checked",
					slog.Int("made", countMade(picks)), slog.Int("total", len(picks)))
			}

			return picks, err
		},
		ID:      func(p boardPick) string { return p.ID() },
		Pending: func(p boardPick) bool { return !p.Made() },
		OnNew: func(p boardPick) {
			fmt.Fprintf(cc.Out, "[%s] %s %s\n", time.Now().Format(time.TimeOnly), newPick.Sprint("NEW:"), pickLine(p))
			s.Metrics.ObserveDelivered()
		},
		OnError: func(err error) {
			s.Metrics.ObserveTickError(err)

			now := time.Now()
			cc.Statusf("[%s] Error checking draft picks: %v\n", now.Format(time.TimeOnly), err)

			if until := b.api.PausedUntil(); until.After(now) {
				cc.Statusf("[%s] Rate limited by Yahoo, requests paused until %s\n",
					now.Format(time.TimeOnly), until.Format(time.TimeOnly))
			}
		},
		StopWhen:         isComplete,
		Seed:             seed,
		Interval:         opts.interval,
		MaxInterval:      opts.maxInterval,
		MaxDuration:      opts.timeout,
		FailureThreshold: opts.threshold,
		Logger:           cc.Logger,
	})
	if err != nil {
		return err
	}

	res, err := run.Wait()
	s.Metrics.ObserveRun(res)

	switch res.Reason {
	case poll.StopCondition:
		fmt.Fprintf(cc.Out, "\nDraft complete! All %d picks have been made.\n", lastTotal)
	case poll.StopDeadline:
		fmt.Fprintf(cc.Out, "\nWatch timeout reached after %s.\n", opts.timeout)
	case poll.StopFailed:
		return fmt.Errorf("watching draft picks: %w", err)
	default:
		fmt.Fprintln(cc.Out, "\nDraft watching stopped.")
	}

	cc.Statusf("%d new picks seen over %d checks\n", res.Delivered, res.Ticks)

	return nil
}

func countMade(picks []boardPick) int {
	return fantasy.CountMade(draftPicks(picks))
}

func isComplete(picks []boardPick) bool {
	return fantasy.DraftComplete(draftPicks(picks))
}

func draftPicks(picks []boardPick) []fantasy.DraftPick {
	out := make([]fantasy.DraftPick, len(picks))
	for i, p := range picks {
		out[i] = p.DraftPick
	}

	return out
}
