package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/domain/session"
)

var (
	loginUsername      string
	loginPassword      string
	loginPasswordStdin bool
	loginToken         string

	signupEmail         string
	signupPassword      string
	signupPasswordStdin bool
	signupFullName      string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the session",
	Long: `Sign in with an email and password, or adopt an existing bearer token.

The credential is saved to the configured session store and reused by later
commands until it expires or the backend rejects it.

Examples:
  storefront login -u customer@example.com -p customer-password
  echo "$PASSWORD" | storefront login -u customer@example.com --password-stdin
  storefront login --token "$TOKEN"`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long: `Create an account on the backend. Signing up does not sign you in;
run "storefront login" afterwards.`,
	Args: cobra.NoArgs,
	RunE: runSignup,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "account password")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from stdin")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "adopt an existing bearer token instead of a password login")
	loginCmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
	loginCmd.MarkFlagsMutuallyExclusive("token", "username")

	signupCmd.Flags().StringVar(&signupEmail, "email", "", "account email")
	signupCmd.Flags().StringVar(&signupPassword, "password", "", "account password (at least 8 characters)")
	signupCmd.Flags().BoolVar(&signupPasswordStdin, "password-stdin", false, "read the password from stdin")
	signupCmd.Flags().StringVar(&signupFullName, "full-name", "", "display name")
	signupCmd.MarkFlagsMutuallyExclusive("password", "password-stdin")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, signupCmd)
}

// readSecret returns the first line of r without the line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	password := loginPassword
	if loginPasswordStdin {
		p, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		password = p
	}
	if loginToken == "" && (loginUsername == "" || password == "") {
		return errors.New("--username and a password are required (or use --token)")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		var (
			snap session.Session
			err  error
		)
		if loginToken != "" {
			snap, err = a.auth.LoginWithCredential(ctx, loginToken, nil)
		} else {
			snap, err = a.auth.Login(ctx, loginUsername, password)
		}
		if err != nil {
			return err
		}
		return printIdentity(cmd, snap.Identity, "Logged in as")
	})
}

func runLogout(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.auth.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	})
}

func runWhoami(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.requireLogin(); err != nil {
			return err
		}
		return printIdentity(cmd, a.auth.Snapshot().Identity, "Logged in as")
	})
}

func runSignup(cmd *cobra.Command, args []string) error {
	password := signupPassword
	if signupPasswordStdin {
		p, err := readSecret(cmd.InOrStdin())
		if err != nil {
			return err
		}
		password = p
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		identity, err := a.auth.Signup(ctx, session.SignupRequest{
			Email:    signupEmail,
			Password: password,
			FullName: signupFullName,
		})
		if err != nil {
			return err
		}
		return printIdentity(cmd, identity, "Account created for")
	})
}

func printIdentity(cmd *cobra.Command, id *session.Identity, prefix string) error {
	if id == nil {
		return errors.New("no identity returned")
	}
	return render(cmd, id, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s (%s)\n", prefix, id.Email, id.Role)
		if id.DisplayName != "" {
			fmt.Fprintf(w, "Name:\t%s\n", id.DisplayName)
		}
	})
}
