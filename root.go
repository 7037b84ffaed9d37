package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fantasyctl/yfa/internal/auth"
	"github.com/fantasyctl/yfa/internal/config"
	"github.com/fantasyctl/yfa/internal/fantasy"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes.
const (
	exitFailure = 1
	// exitAuth tells scripts that the user must run "yfa auth".
	exitAuth = 2
)

// CLIFlags holds the persistent flags shared by every command.
type CLIFlags struct {
	ConfigPath  string
	TokenPath   string
	MetricsAddr string
	JSON        bool
	Verbose     bool
	Debug       bool
	Quiet       bool
}

// CLIContext is the per-invocation state built by the root pre-run and
// handed to subcommands through the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
	In     io.Reader
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. A
// missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("yfa: command run without CLIContext")
	}

	return cc
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:           "yfa",
		Short:         "Yahoo Fantasy Sports API client",
		Long:          "Authenticate with Yahoo Fantasy Sports and follow league drafts from the terminal.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := loadCLIContext(cmd, *flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.TokenPath, "token-path", "", "credential file path")
	pf.StringVar(&flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable info logging")
	pf.BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newDraftPicksCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves configuration (dotenv, environment, file, flags)
// and builds the logger.
func loadCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	if err := config.LoadDotEnv(config.DotEnvFile, bootstrapLogger(flags)); err != nil {
		return nil, err
	}

	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("token-path") {
		cli.TokenPath = &flags.TokenPath
	}

	if cmd.Flags().Changed("metrics-addr") {
		cli.MetricsAddr = &flags.MetricsAddr
	}

	if level := flagLogLevel(flags); level != "" {
		cli.LogLevel = &level
	}

	cfg, err := config.Resolve(config.ReadEnvOverrides(bootstrapLogger(flags)), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &CLIContext{
		Flags:  flags,
		Cfg:    cfg,
		Logger: buildLogger(cfg, os.Stderr),
		Out:    cmd.OutOrStdout(),
		Err:    cmd.ErrOrStderr(),
		In:     cmd.InOrStdin(),
	}, nil
}

// flagLogLevel maps --debug, --verbose and --quiet to a level name. The
// most verbose flag wins; "" means no flag was given.
func flagLogLevel(flags CLIFlags) string {
	switch {
	case flags.Debug:
		return "debug"
	case flags.Verbose:
		return "info"
	case flags.Quiet:
		return "error"
	default:
		return ""
	}
}

// bootstrapLogger is used before configuration is loaded. It honours the
// CLI flags only.
func bootstrapLogger(flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn
	if name := flagLogLevel(flags); name != "" {
		level = parseLevel(name)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildLogger creates the command logger from the resolved config. Colored
// tint output is used for "auto" when w is a terminal.
func buildLogger(cfg *config.Resolved, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.LogLevel)

	switch cfg.LogFormat {
	case config.LogFormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	case config.LogFormatText:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}

	if isTerminal(w) {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}))
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// errVerifyFailed marks a verify run whose API call did not succeed.
var errVerifyFailed = errors.New("verification failed")

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, auth.ErrNotAuthenticated) || errors.Is(err, auth.ErrInvalidGrant) ||
		errors.Is(err, fantasy.ErrUnauthenticated) {
		return exitAuth
	}

	return exitFailure
}
