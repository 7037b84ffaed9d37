package auth

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fantasyctl/yfa/internal/tokenfile"
)

// OOBRedirect is the out-of-band redirect URI: Yahoo shows the code on
// its own page and the user pastes it back.
const OOBRedirect = "oob"

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// loginTimeout matches how long a user has to finish consent in the browser.
const loginTimeout = 5 * time.Minute

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// Prompt is where the interactive login talks to the user.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

// Login runs the interactive authorization flow and exchanges the
// resulting code. openURL launches a browser; if it fails the URL is
// printed instead.
func (m *Manager) Login(ctx context.Context, openURL func(string) error, prompt Prompt) (*tokenfile.Credentials, error) {
	code, err := m.AcquireCode(ctx, openURL, prompt)
	if err != nil {
		return nil, err
	}

	return m.Authorize(ctx, code)
}

// AcquireCode obtains an authorization code from the user. For the oob
// redirect the code is read from prompt.In; for an http://localhost
// redirect a loopback server receives the browser callback.
func (m *Manager) AcquireCode(ctx context.Context, openURL func(string) error, prompt Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("auth: generating state token: %w", err)
	}

	redirect := m.RedirectURL()
	if redirect == OOBRedirect {
		launchBrowser(m.AuthCodeURL(state), openURL, prompt.Out, m.logger)

		return readCode(ctx, prompt)
	}

	u, err := url.Parse(redirect)
	if err != nil {
		return "", fmt.Errorf("auth: parsing redirect URI %q: %w", redirect, err)
	}

	if u.Scheme != "http" || !isLoopback(u.Hostname()) {
		return "", fmt.Errorf("auth: redirect URI %q cannot be served locally (use %q or http://localhost:<port>)",
			redirect, OOBRedirect)
	}

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	registerCallbackHandler(mux, callbackPath(u), state, resultCh)

	srv, err := startCallbackServer(ctx, u.Host, mux, resultCh, m.logger)
	if err != nil {
		return "", err
	}

	defer shutdownCallbackServer(srv, m.logger)

	launchBrowser(m.AuthCodeURL(state), openURL, prompt.Out, m.logger)

	return waitForCallback(ctx, resultCh)
}

func callbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}

	return u.Path
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}

// readCode reads one line from the prompt, honouring ctx cancellation.
func readCode(ctx context.Context, prompt Prompt) (string, error) {
	if prompt.In == nil {
		return "", errors.New("auth: no input available to read the authorization code")
	}

	if prompt.Out != nil {
		fmt.Fprint(prompt.Out, "Enter the code shown by Yahoo: ")
	}

	lineCh := make(chan callbackResult, 1)

	go func() {
		line, err := bufio.NewReader(prompt.In).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			lineCh <- callbackResult{err: fmt.Errorf("auth: reading authorization code: %w", err)}
			return
		}

		lineCh <- callbackResult{code: strings.TrimSpace(line)}
	}()

	select {
	case res := <-lineCh:
		if res.err != nil {
			return "", res.err
		}

		if res.code == "" {
			return "", newError(opAuthorize, ErrInvalidGrant, errors.New("empty authorization code"))
		}

		return res.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("auth: login canceled: %w", ctx.Err())
	}
}

// startCallbackServer binds addr and serves mux in the background.
func startCallbackServer(
	ctx context.Context,
	addr string,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("auth: binding callback listener %s: %w", addr, err)
	}

	logger.Info("auth: callback server listening", slog.String("addr", listener.Addr().String()))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("auth: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, nil
}

func registerCallbackHandler(mux *http.ServeMux, path, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	send := func(res callbackResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		send(callbackResult{err: errors.New("auth: OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		send(callbackResult{err: newError(opAuthorize, ErrInvalidGrant,
			fmt.Errorf("%s: %s", errParam, q.Get("error_description")))})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		send(callbackResult{err: errors.New("auth: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authorization complete</h1>"+
		"<p>You can close this tab and return to the terminal.</p></body></html>")
	send(callbackResult{code: code})
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("auth: callback server shutdown error", slog.String("error", err.Error()))
	}
}

// launchBrowser attempts to open the auth URL, falling back to printing it.
func launchBrowser(authURL string, openURL func(string) error, out io.Writer, logger *slog.Logger) {
	if openURL != nil {
		openErr := openURL(authURL)
		if openErr == nil {
			logger.Info("auth: opened browser for authorization")
			return
		}

		logger.Warn("auth: failed to open browser, printing URL", slog.String("error", openErr.Error()))
	}

	if out != nil {
		fmt.Fprintf(out, "Open this URL in your browser:\n%s\n", authURL)
	}
}

func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("auth: login canceled: %w", ctx.Err())
	}
}

// generateState produces a random hex string for the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
