package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/samsaffron/term-agent/internal/signal"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage device logins",
	Long: `List and revoke the account's device logins.

Examples:
  term-agent devices                 # list active logins
  term-agent devices revoke <id>     # sign out one device
  term-agent devices revoke --all    # sign out everywhere`,
	RunE: runDevicesList,
}

var devicesRevokeCmd = &cobra.Command{
	Use:   "revoke [id]",
	Short: "Revoke a device login",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDevicesRevoke,
}

var devicesRevokeAll bool

func init() {
	devicesRevokeCmd.Flags().BoolVar(&devicesRevokeAll, "all", false, "Revoke every device login, including this one")
	devicesCmd.AddCommand(devicesRevokeCmd)
	rootCmd.AddCommand(devicesCmd)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
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

	sessions, err := client.AuthSessions(ctx)
	if err != nil {
		return fmt.Errorf("list device logins: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No active device logins.")
		return nil
	}

	fmt.Printf("%-36s %-20s %-16s %s\n", "ID", "DEVICE", "IP", "LAST ACTIVITY")
	fmt.Println(strings.Repeat("-", 90))
	for _, s := range sessions {
		device := s.DeviceInfo
		if device == "" {
			device = "-"
		}
		ip := s.IPAddress
		if ip == "" {
			ip = "-"
		}
		fmt.Printf("%-36s %s %-16s %s\n", s.ID, truncateCell(device, 20), ip,
			formatRelativeTime(parseServerTime(s.LastActivity)))
	}
	return nil
}

func runDevicesRevoke(cmd *cobra.Command, args []string) error {
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

	if devicesRevokeAll {
		confirmed := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Revoke every device login? You will be signed out here too.").
				Affirmative("Yes").
				Negative("No").
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
		if err := client.RevokeAllAuthSessions(ctx); err != nil {
			return fmt.Errorf("revoke all logins: %w", err)
		}
		fmt.Println("All device logins revoked.")
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("device login id required (or --all)")
	}
	if err := client.RevokeAuthSession(ctx, args[0]); err != nil {
		return fmt.Errorf("revoke login: %w", err)
	}
	fmt.Printf("Revoked device login %s\n", args[0])
	return nil
}
