package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fantasyctl/yfa/internal/auth"
	"github.com/fantasyctl/yfa/internal/fantasy"
)

func newAuthCmd() *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Yahoo and save the token locally",
		Long: "Opens the Yahoo consent page and stores the resulting credentials. With the " +
			"\"oob\" redirect URI the authorization code is pasted back into the terminal; " +
			"with an http://localhost redirect URI a local callback server receives it.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd, noBrowser)
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the consent URL instead of opening a browser")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token",
		RunE:  runLogout,
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify authentication and API access",
		RunE:  runVerify,
	}
}

func runAuth(cmd *cobra.Command, noBrowser bool) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	s, err := NewSession(cc.Cfg, logger)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)

	opener := openBrowser
	if noBrowser {
		opener = nil
	}

	cc.Statusf("Starting Yahoo Fantasy Sports authentication...\n")
	logger.Info("auth started", slog.String("redirect_uri", cc.Cfg.RedirectURI))

	// The prompt must stay visible under --quiet.
	creds, err := s.Tokens.Login(ctx, opener, auth.Prompt{In: cc.In, Out: cc.Err})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	logger.Info("auth successful", slog.Time("expires_at", creds.ExpiresAt))

	cc.Statusf("%s Authentication successful!\n", greenCheck)
	cc.Statusf("Token saved to: %s\n", cc.Cfg.TokenPath)
	cc.Statusf("Token expires: %s\n", formatExpiry(creds.ExpiresAt, time.Now()))

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := newTokenManager(cc.Cfg, cc.Logger).Logout(); err != nil {
		return err
	}

	cc.Logger.Info("logout successful", slog.String("token_path", cc.Cfg.TokenPath))
	cc.Statusf("Logged out.\n")

	return nil
}

// verifyOutput is the JSON schema for `verify --json`.
type verifyOutput struct {
	Authenticated bool       `json:"authenticated"`
	GUID          string     `json:"guid,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	TokenPath     string     `json:"token_path"`
	Error         string     `json:"error,omitempty"`
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	s, err := NewSession(cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	cc.Statusf("Verifying authentication...\n")

	guid, apiErr := s.Client.CurrentUserGUID(ctx)

	out := verifyOutput{Authenticated: apiErr == nil, GUID: guid, TokenPath: cc.Cfg.TokenPath}
	if creds, ok := s.Tokens.Credentials(); ok {
		expires := creds.ExpiresAt
		out.ExpiresAt = &expires
	}

	if apiErr != nil {
		out.Error = apiErr.Error()
	}

	if cc.Flags.JSON {
		if err := printJSON(cc.Out, out); err != nil {
			return err
		}
	} else {
		printVerifyText(cc, out, apiErr)
	}

	if apiErr != nil {
		return fmt.Errorf("%w: %w", errVerifyFailed, apiErr)
	}

	return nil
}

func printVerifyText(cc *CLIContext, out verifyOutput, apiErr error) {
	if apiErr == nil {
		fmt.Fprintf(cc.Out, "%s Authenticated as %s\n", greenCheck, color.New(color.Bold).Sprint(out.GUID))

		if out.ExpiresAt != nil {
			fmt.Fprintf(cc.Out, "  Token expires: %s\n", formatExpiry(*out.ExpiresAt, time.Now()))
		}

		return
	}

	switch {
	case errors.Is(apiErr, auth.ErrNotAuthenticated):
		fmt.Fprintf(cc.Out, "%s No authentication token found\n", redCross)
		fmt.Fprintf(cc.Out, "Run 'yfa auth' to authenticate\n")
	case errors.Is(apiErr, auth.ErrInvalidGrant), errors.Is(apiErr, fantasy.ErrUnauthenticated):
		fmt.Fprintf(cc.Out, "%s Yahoo rejected the saved token\n", redCross)
		fmt.Fprintf(cc.Out, "Run 'yfa auth' to re-authenticate\n")
	default:
		fmt.Fprintf(cc.Out, "%s API call failed\n", redCross)
	}
}
