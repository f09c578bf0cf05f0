package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsync/internal/app"
	"github.com/ArionMiles/spendsync/pkg/client"
	"github.com/ArionMiles/spendsync/pkg/config"
	"github.com/ArionMiles/spendsync/pkg/logging"
	"github.com/ArionMiles/spendsync/pkg/storage"
)

func newStatusCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration, session and backend connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStatus(cmd.Context())
		},
	}
}

// runStatus prints one line per check. It never fails on a bad check,
// only on setup errors.
func (c *cli) runStatus(ctx context.Context) error {
	fmt.Fprintln(c.out, "=== Spendsync Status ===")
	fmt.Fprintln(c.out)

	allGood := true

	c.checkConfigFile(&allGood)
	fmt.Fprintf(c.out, "API URL: %s\n", c.cfg.APIURL)

	a, err := c.newApp(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	hasToken := c.checkSession(a, &allGood)

	fmt.Fprint(c.out, "Backend health: ")
	healthy := true
	check := a.Client.Health
	if c.wait {
		check = func(ctx context.Context) error {
			return a.Client.WaitHealthy(ctx, c.cfg.HealthAttempts, c.cfg.HealthDelay)
		}
	}
	if err := check(ctx); err != nil {
		fmt.Fprintf(c.out, "✗ %v\n", err)
		healthy = false
		allGood = false
	} else {
		fmt.Fprintln(c.out, "✓ OK")
	}

	if hasToken && healthy {
		c.checkAuth(ctx, a, &allGood)
	}

	fmt.Fprintln(c.out)
	if allGood {
		fmt.Fprintln(c.out, "All checks passed.")
	} else {
		fmt.Fprintln(c.out, "Some checks failed. Run 'spendsync login' if the session is missing or expired.")
	}
	return nil
}

func (c *cli) checkConfigFile(allGood *bool) {
	path := c.configPath
	if path == "" {
		path = config.DefaultFile
	}
	fmt.Fprintf(c.out, "Config file (%s): ", path)
	if _, err := os.Stat(path); err != nil {
		if c.configPath == "" {
			fmt.Fprintln(c.out, "- Not found (using defaults and environment)")
			return
		}
		fmt.Fprintf(c.out, "✗ %v\n", err)
		*allGood = false
		return
	}
	fmt.Fprintln(c.out, "✓ Found")
}

// checkSession reports the persisted tokens without contacting the backend.
func (c *cli) checkSession(a *app.App, allGood *bool) bool {
	if f, ok := a.Tokens.(*storage.File); ok {
		fmt.Fprintf(c.out, "Session file: %s\n", f.Path())
	}

	fmt.Fprint(c.out, "Access token: ")
	access, ok := a.Tokens.Get(storage.AccessTokenKey)
	if !ok || access == "" {
		fmt.Fprintln(c.out, "✗ Not signed in")
		*allGood = false
		return false
	}

	exp, err := client.TokenExpiry(access)
	switch {
	case err != nil:
		fmt.Fprintf(c.out, "✓ %s (expiry unknown)\n", logging.MaskToken(access))
	case exp.Before(time.Now()):
		fmt.Fprintf(c.out, "⚠ %s expired %s (will refresh on next request)\n", logging.MaskToken(access), humanize.Time(exp))
	default:
		fmt.Fprintf(c.out, "✓ %s expires %s\n", logging.MaskToken(access), humanize.Time(exp))
	}

	fmt.Fprint(c.out, "Refresh token: ")
	if refresh, ok := a.Tokens.Get(storage.RefreshTokenKey); ok && refresh != "" {
		fmt.Fprintln(c.out, "✓ Present")
	} else {
		fmt.Fprintln(c.out, "✗ Missing")
		*allGood = false
	}
	return true
}

// checkAuth runs the startup session check and reports the result.
func (c *cli) checkAuth(ctx context.Context, a *app.App, allGood *bool) {
	fmt.Fprint(c.out, "Session: ")
	a.Start(ctx)

	st := a.Auth.State()
	if !st.IsAuthenticated {
		fmt.Fprintln(c.out, "✗ Rejected by backend (signed out)")
		*allGood = false
		return
	}

	name := "unknown user"
	if st.User != nil && st.User.Username != "" {
		name = st.User.Username
	}
	es := a.Expenses.State()
	if es.Error != "" {
		fmt.Fprintf(c.out, "⚠ Signed in as %s, %s\n", name, es.Error)
		*allGood = false
		return
	}
	fmt.Fprintf(c.out, "✓ Signed in as %s (%d expenses)\n", name, len(es.Expenses))
}
