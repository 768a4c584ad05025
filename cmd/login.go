package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/signal"
)

var loginGoogle bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the backend",
	Long: `Sign in with email and password and store the token pair locally.

Credentials are prompted interactively. Without a terminal, email and
password are read as two lines from stdin so scripted logins work.

Examples:
  term-agent login
  term-agent login --google
  printf 'me@example.com\nhunter2\n' | term-agent login`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&loginGoogle, "google", false, "Sign in with a Google account profile")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext()
	defer cancel()

	cfg, err := loadConfigWithSetup()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	var tr *agent.TokenResponse
	if loginGoogle {
		tr, err = googleLogin(ctx, client)
	} else {
		tr, err = passwordLogin(ctx, client)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Signed in as %s (%s)\n", tr.User.Name, tr.User.Email)
	return nil
}

func passwordLogin(ctx context.Context, client *agent.Client) (*agent.TokenResponse, error) {
	email, password, err := promptCredentials()
	if err != nil {
		return nil, err
	}

	tr, err := client.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return tr, nil
}

func googleLogin(ctx context.Context, client *agent.Client) (*agent.TokenResponse, error) {
	profile := agent.GoogleProfile{}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Google account id").
				Description("The account's stable id (the token's sub claim)").
				Value(&profile.GoogleID).
				Validate(requireValue("account id")),
			huh.NewInput().
				Title("Email").
				Value(&profile.Email).
				Validate(requireValue("email")),
			huh.NewInput().
				Title("Name").
				Value(&profile.Name),
		),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}

	tr, err := client.GoogleLogin(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("google login failed: %w", err)
	}
	return tr, nil
}

// promptCredentials collects email and password. With a terminal it runs a
// form; otherwise it reads two lines from stdin.
func promptCredentials() (email, password string, err error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return readCredentialLines(os.Stdin)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Value(&email).
				Validate(requireValue("email")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(requireValue("password")),
		),
	)
	if err := form.Run(); err != nil {
		return "", "", err
	}
	return email, password, nil
}

func readCredentialLines(r io.Reader) (email, password string, err error) {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		email = strings.TrimSpace(scanner.Text())
	}
	if scanner.Scan() {
		password = scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("read credentials: %w", err)
	}
	if email == "" || password == "" {
		return "", "", fmt.Errorf("expected email and password as two lines on stdin")
	}
	return email, password, nil
}

func requireValue(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}
