package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsync/internal/app"
	"github.com/ArionMiles/spendsync/internal/buildinfo"
	"github.com/ArionMiles/spendsync/pkg/config"
	"github.com/ArionMiles/spendsync/pkg/logging"
)

// cli is the state shared by every command.
type cli struct {
	in  io.Reader
	out io.Writer

	configPath string
	apiURL     string
	stateFile  string
	wait       bool

	cfg    config.Config
	logger *slog.Logger
	// newApp is swapped in tests.
	newApp func(cfg config.Config, logger *slog.Logger) (*app.App, error)
}

func newRootCommand(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{
		in:  in,
		out: out,
		newApp: func(cfg config.Config, logger *slog.Logger) (*app.App, error) {
			return app.New(cfg, logger)
		},
	}

	rootCmd := &cobra.Command{
		Use:     "spendsync",
		Short:   "Track expenses against the expense tracker API",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return c.setup() },
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to a JSON config file (default data/config.json if present)")
	flags.StringVar(&c.apiURL, "api-url", "", "API root, overrides SPENDSYNC_API_URL")
	flags.StringVar(&c.stateFile, "state-file", "", "session file, overrides SPENDSYNC_STATE_FILE")
	flags.BoolVar(&c.wait, "wait", false, "wait for the backend health check before running")

	rootCmd.AddCommand(
		newLoginCommand(c),
		newRegisterCommand(c),
		newLogoutCommand(c),
		newStatusCommand(c),
		newListCommand(c),
		newAddCommand(c),
		newEditCommand(c),
		newDeleteCommand(c),
		newSummaryCommand(c),
		newExportCommand(c),
		newWritersCommand(c),
	)

	return rootCmd
}

func (c *cli) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.apiURL != "" {
		cfg.APIURL = c.apiURL
	}
	if c.stateFile != "" {
		cfg.StateFile = c.stateFile
	}

	lc := cfg.Logging()
	c.cfg = cfg
	c.logger = logging.Setup(lc)
	return nil
}

// errStoreFailure is wrapped around the message a store recorded.
var errStoreFailure = errors.New("request failed")

// run executes fn inside the app lifecycle: optional health wait, startup
// auth check (which loads expenses for a live session), fn, then Close.
// When requireAuth is set, fn only runs for an authenticated session.
func (c *cli) run(ctx context.Context, requireAuth bool, fn func(ctx context.Context, a *app.App) error) error {
	a, err := c.newApp(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if c.wait {
		if err := a.Client.WaitHealthy(ctx, c.cfg.HealthAttempts, c.cfg.HealthDelay); err != nil {
			return err
		}
	}

	a.Start(ctx)
	if requireAuth {
		if err := a.RequireAuth(); err != nil {
			return err
		}
	}

	return fn(ctx, a)
}

// storeError turns a store's recorded error into a command error.
func storeError(msg string) error {
	if msg == "" {
		return nil
	}
	return fmt.Errorf("%w: %s", errStoreFailure, msg)
}
