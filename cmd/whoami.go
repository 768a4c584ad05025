package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samsaffron/term-agent/internal/auth"
	"github.com/samsaffron/term-agent/internal/signal"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
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

	user, err := client.Me(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			return fmt.Errorf("not signed in (run 'term-agent login')")
		}
		return err
	}

	fmt.Printf("Email:  %s\n", user.Email)
	if user.Name != "" {
		fmt.Printf("Name:   %s\n", user.Name)
	}
	fmt.Printf("Server: %s\n", client.BaseURL())
	return nil
}
