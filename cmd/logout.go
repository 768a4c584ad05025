package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samsaffron/term-agent/internal/signal"
)

var logoutAll bool

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear stored credentials",
	Long: `Deactivate this device's login on the backend and clear the local
credential store. Local credentials are cleared even when the server is
unreachable.

Examples:
  term-agent logout
  term-agent logout --all    # revoke every device login for the account`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func init() {
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "Revoke all device logins, not just this one")
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	if !client.Tokens().Authenticated() {
		fmt.Println("Not signed in.")
		return nil
	}

	if logoutAll {
		if err := client.RevokeAllAuthSessions(ctx); err != nil {
			return fmt.Errorf("revoke all logins: %w", err)
		}
		fmt.Println("Signed out everywhere.")
		return nil
	}

	if err := client.Logout(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: server logout failed: %v\n", err)
	}
	fmt.Println("Signed out.")
	return nil
}
