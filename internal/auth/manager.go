// Package auth owns the OAuth2 lifecycle for the Yahoo Fantasy Sports API:
// authorization-code exchange, persistence, and transparent refresh.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/fantasyctl/yfa/internal/tokenfile"
)

// Yahoo OAuth2 endpoints.
const (
	DefaultAuthURL  = "https://api.login.yahoo.com/oauth2/request_auth"
	DefaultTokenURL = "https://api.login.yahoo.com/oauth2/get_token"
)

const (
	// DefaultRefreshMargin is how close to expiry a token may get before
	// Token() refreshes it instead of handing it out.
	DefaultRefreshMargin = 60 * time.Second

	// expirySkew is subtracted from the server-reported lifetime to cover
	// the time between issuance and our receipt of the response.
	expirySkew = 10 * time.Second

	// defaultTokenTTL applies when the server omits expires_in. Yahoo
	// access tokens live for one hour.
	defaultTokenTTL = time.Hour

	// exchangeTimeout bounds one token endpoint round trip. Refreshes are
	// detached from the first caller's context so they use this instead.
	exchangeTimeout = 20 * time.Second

	refreshKey = "refresh"
)

// Operation names used in Error.Op.
const (
	opAuthorize = "auth: authorize"
	opRefresh   = "auth: refresh"
	opToken     = "auth: token"
	opLogout    = "auth: logout"
)

// State is the position of a Manager in the OAuth2 lifecycle.
type State int

// Manager states.
const (
	StateUnauthenticated State = iota
	StateAuthorizing
	StateValid
	StateRefreshing
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizing:
		return "authorizing"
	case StateValid:
		return "valid"
	case StateRefreshing:
		return "refreshing"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// CredentialStore is durable storage for one set of credentials.
// tokenfile.Store is the production implementation.
type CredentialStore interface {
	Load() (*tokenfile.Credentials, error)
	Save(creds *tokenfile.Credentials) error
	Clear() error
}

// Config describes the OAuth2 client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string

	// AuthURL and TokenURL default to the Yahoo endpoints.
	AuthURL  string
	TokenURL string

	// RefreshMargin defaults to DefaultRefreshMargin.
	RefreshMargin time.Duration

	// HTTPClient is used for token endpoint calls. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Manager hands out valid access tokens, refreshing them as they approach
// expiry. One Manager is shared by every goroutine in the process. The
// mutex guards in-memory state and also serialises writes to the local
// credential store, so the file never lags behind memory. Token endpoint
// calls happen outside it and are collapsed by singleflight so at most one
// refresh is in flight.
type Manager struct {
	oauth      *oauth2.Config
	scope      string
	margin     time.Duration
	httpClient *http.Client
	store      CredentialStore
	logger     *slog.Logger

	// now is the clock. Tests override it to move through expiry.
	now func() time.Time

	mu     sync.Mutex
	state  State
	creds  *tokenfile.Credentials
	loaded bool

	group     singleflight.Group
	exchanges atomic.Int64
}

// NewManager creates a Manager backed by store. Credentials are loaded
// lazily on first use.
func NewManager(cfg Config, store CredentialStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	margin := cfg.RefreshMargin
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}

	return &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
				// Yahoo requires client credentials as HTTP Basic auth.
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		scope:      cfg.Scope,
		margin:     margin,
		httpClient: cfg.HTTPClient,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// AuthCodeURL returns the consent page URL for the given anti-CSRF state.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state)
}

// RedirectURL returns the registered redirect URI.
func (m *Manager) RedirectURL() string {
	return m.oauth.RedirectURL
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		m.logger.Warn("auth: loading stored credentials", slog.String("error", err.Error()))
	}

	return m.state
}

// Credentials returns a copy of the current credentials, if any.
func (m *Manager) Credentials() (tokenfile.Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil || m.creds == nil {
		return tokenfile.Credentials{}, false
	}

	return *m.creds, true
}

// Exchanges returns how many token endpoint calls this Manager has made.
func (m *Manager) Exchanges() int64 {
	return m.exchanges.Load()
}

// Authorize exchanges a one-time authorization code for credentials and
// persists them. Codes are single-use, so a failed exchange is not retried.
func (m *Manager) Authorize(ctx context.Context, code string) (*tokenfile.Credentials, error) {
	if code == "" {
		return nil, newError(opAuthorize, ErrInvalidGrant, nil)
	}

	m.mu.Lock()
	prior := m.state
	m.state = StateAuthorizing
	m.mu.Unlock()

	m.logger.Info("auth: exchanging authorization code")

	m.exchanges.Add(1)

	tok, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		kind := classifyExchangeError(err)

		m.mu.Lock()
		m.state = prior
		m.mu.Unlock()

		m.logger.Warn("auth: authorization code exchange failed",
			slog.String("kind", kind.Error()),
			slog.String("error", err.Error()),
		)

		return nil, newError(opAuthorize, kind, err)
	}

	creds := m.credentialsFromToken(tok, "")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds = creds
	m.state = StateValid
	m.loaded = true
	m.persistLocked()

	m.logger.Info("auth: authorized", slog.Time("expires_at", creds.ExpiresAt))

	out := *creds

	return &out, nil
}

// Token returns a valid access token. A token that is valid and outside
// the refresh margin is returned with no I/O. Otherwise, if a refresh token
// is available, the token is refreshed first; concurrent callers share one
// refresh. Without credentials it fails with ErrNotAuthenticated.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()

	if err := m.loadLocked(); err != nil {
		m.mu.Unlock()
		return "", newError(opToken, ErrNotAuthenticated, err)
	}

	if m.state == StateValid && m.freshLocked() {
		tok := m.creds.AccessToken
		m.mu.Unlock()

		return tok, nil
	}

	if m.creds == nil || m.creds.RefreshToken == "" {
		m.mu.Unlock()
		return "", newError(opToken, ErrNotAuthenticated, nil)
	}

	m.mu.Unlock()

	creds, err := m.refresh(ctx, false)
	if err != nil {
		return "", err
	}

	return creds.AccessToken, nil
}

// Refresh performs a refresh-token exchange even if the current token is
// still valid. On rejection the stored credentials are cleared and the
// Manager returns to StateUnauthenticated; on transient failure the prior
// state is restored so a later call can retry.
func (m *Manager) Refresh(ctx context.Context) (*tokenfile.Credentials, error) {
	return m.refresh(ctx, true)
}

// Invalidate marks accessToken as unusable, typically after the API
// answered 401. Stale tokens (already replaced by a refresh) are ignored.
func (m *Manager) Invalidate(accessToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds == nil || m.creds.AccessToken != accessToken || m.state != StateValid {
		return
	}

	m.state = StateInvalid
	m.logger.Info("auth: access token rejected by API, will refresh")
}

// Logout clears credentials from memory and from the store.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds = nil
	m.state = StateUnauthenticated
	m.loaded = true

	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("%s: %w", opLogout, err)
	}

	m.logger.Info("auth: logged out")

	return nil
}

func (m *Manager) refresh(ctx context.Context, force bool) (*tokenfile.Credentials, error) {
	// The exchange outlives any single caller: one caller giving up must
	// not fail the refresh for everyone else waiting on it.
	detached := context.WithoutCancel(ctx)

	ch := m.group.DoChan(refreshKey, func() (any, error) {
		return m.doRefresh(detached, force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		creds, _ := res.Val.(*tokenfile.Credentials)
		out := *creds

		return &out, nil
	case <-ctx.Done():
		return nil, newError(opRefresh, ErrNetworkFailure, ctx.Err())
	}
}

func (m *Manager) doRefresh(ctx context.Context, force bool) (*tokenfile.Credentials, error) {
	m.mu.Lock()

	if err := m.loadLocked(); err != nil {
		m.mu.Unlock()
		return nil, newError(opRefresh, ErrNotAuthenticated, err)
	}

	// Another caller may have refreshed between our check and this flight.
	if !force && m.state == StateValid && m.freshLocked() {
		creds := *m.creds
		m.mu.Unlock()

		return &creds, nil
	}

	if m.creds == nil || m.creds.RefreshToken == "" {
		m.mu.Unlock()
		return nil, newError(opRefresh, ErrNotAuthenticated, nil)
	}

	prior := m.state
	refreshToken := m.creds.RefreshToken
	m.state = StateRefreshing
	m.mu.Unlock()

	m.logger.Info("auth: refreshing access token", slog.String("prior_state", prior.String()))

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	m.exchanges.Add(1)

	src := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, m.refreshFailed(prior, err)
	}

	creds := m.credentialsFromToken(tok, refreshToken)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds = creds
	m.state = StateValid
	m.persistLocked()

	m.logger.Info("auth: access token refreshed", slog.Time("expires_at", creds.ExpiresAt))

	out := *creds

	return &out, nil
}

func (m *Manager) refreshFailed(prior State, err error) error {
	kind := classifyExchangeError(err)

	m.mu.Lock()
	defer m.mu.Unlock()

	if kind == ErrInvalidGrant {
		m.creds = nil
		m.state = StateUnauthenticated

		if clearErr := m.store.Clear(); clearErr != nil {
			m.logger.Warn("auth: clearing rejected credentials",
				slog.String("error", clearErr.Error()),
			)
		}

		m.logger.Warn("auth: refresh token rejected, credentials cleared",
			slog.String("error", err.Error()),
		)

		return newError(opRefresh, ErrInvalidGrant, err)
	}

	m.state = prior

	m.logger.Warn("auth: refresh failed, will retry on next use",
		slog.String("state", prior.String()),
		slog.String("error", err.Error()),
	)

	return newError(opRefresh, ErrNetworkFailure, err)
}

// loadLocked reads the store once. Callers hold m.mu.
func (m *Manager) loadLocked() error {
	if m.loaded {
		return nil
	}

	creds, err := m.store.Load()
	if err != nil {
		return err
	}

	m.loaded = true
	m.creds = creds

	switch {
	case creds == nil:
		m.state = StateUnauthenticated
	case creds.AccessToken != "" && m.now().Before(creds.ExpiresAt):
		m.state = StateValid
	default:
		m.state = StateInvalid
	}

	m.logger.Debug("auth: loaded stored credentials", slog.String("state", m.state.String()))

	return nil
}

// freshLocked reports whether the access token is outside the refresh margin.
func (m *Manager) freshLocked() bool {
	return m.creds != nil && m.now().Add(m.margin).Before(m.creds.ExpiresAt)
}

// persistLocked writes the current credentials. A failed write leaves a
// usable token in memory, so it is logged rather than returned.
func (m *Manager) persistLocked() {
	if err := m.store.Save(m.creds); err != nil {
		m.logger.Warn("auth: failed to persist credentials", slog.String("error", err.Error()))
	}
}

func (m *Manager) credentialsFromToken(tok *oauth2.Token, priorRefresh string) *tokenfile.Credentials {
	issued := m.now()

	ttl := defaultTokenTTL
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry)
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = priorRefresh
	}

	scope := m.scope
	if s, ok := tok.Extra("scope").(string); ok && s != "" {
		scope = s
	}

	return &tokenfile.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    issued.Add(ttl - expirySkew),
		Scope:        scope,
	}
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}
