package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/raysh454/iro/internal/app"
)

func newLoginCommand(rt *runtime) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordFrom(cmd, password)
			if err != nil {
				return err
			}
			if err := rt.app.Auth.Login(cmd.Context(), email, pw); err != nil {
				return err
			}
			u := rt.app.Auth.CurrentUser.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", u.Name, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCommand(rt *runtime) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordFrom(cmd, password)
			if err != nil {
				return err
			}
			if err := rt.app.Auth.Register(cmd.Context(), name, email, pw); err != nil {
				return err
			}
			u := rt.app.Auth.CurrentUser.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s <%s>\n", u.Name, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.app.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			claims, err := rt.app.Auth.SessionClaims(cmd.Context())
			switch {
			case errors.Is(err, app.ErrNotLoggedIn):
				return err
			case err != nil:
				fmt.Fprintln(out, "Logged in (opaque session token)")
				return nil
			}

			who := claims.Email
			if claims.Name != "" {
				who = fmt.Sprintf("%s <%s>", claims.Name, claims.Email)
			}
			if who == "" {
				who = claims.Subject
			}
			fmt.Fprintf(out, "Logged in as %s\n", who)
			if claims.ExpiresAt != nil {
				exp := claims.ExpiresAt.Time
				if exp.Before(time.Now()) {
					fmt.Fprintf(out, "Session expired %s\n", humanize.Time(exp))
				} else {
					fmt.Fprintf(out, "Session expires %s\n", humanize.Time(exp))
				}
			}
			return nil
		},
	}
}

// passwordFrom returns flag when set and otherwise the first line of stdin.
func passwordFrom(cmd *cobra.Command, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", usagef("a password is required")
	}
	return line, nil
}
