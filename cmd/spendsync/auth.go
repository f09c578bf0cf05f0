package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ArionMiles/spendsync/internal/app"
)

func newLoginCommand(c *cli) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and remember the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			return c.run(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				pw, err := c.password(password)
				if err != nil {
					return err
				}
				if err := a.Auth.Login(ctx, username, pw); err != nil {
					return fmt.Errorf("%s: %w", a.Auth.State().Error, err)
				}
				fmt.Fprintf(c.out, "✓ Signed in as %s\n", a.Auth.State().User.Username)
				if err := storeError(a.Expenses.State().Error); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "  %d expense(s) loaded\n", len(a.Expenses.State().Expenses))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted for when omitted)")
	return cmd
}

func newRegisterCommand(c *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account and sign in as it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			if email == "" {
				return errors.New("--email is required")
			}
			return c.run(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				pw, err := c.password(password)
				if err != nil {
					return err
				}
				if err := a.Auth.Register(ctx, username, email, pw); err != nil {
					return fmt.Errorf("%s: %w", a.Auth.State().Error, err)
				}
				fmt.Fprintf(c.out, "✓ Registered and signed in as %s\n", a.Auth.State().User.Username)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address for the new account")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted for when omitted)")
	return cmd
}

func newLogoutCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				if err := a.Auth.Logout(); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "✓ Signed out")
				return nil
			})
		},
	}
}

// password returns flagValue or prompts for one on the command input.
func (c *cli) password(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(c.out, "Password: ")
	pw, err := readPassword(c.in)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if pw == "" {
		return "", errors.New("password cannot be empty")
	}
	return pw, nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return strings.TrimRight(scanner.Text(), "\r"), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
