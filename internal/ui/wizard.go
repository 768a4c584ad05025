package ui

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/samsaffron/term-agent/internal/config"
)

// RunSetupWizard runs the first-time setup wizard and returns the config
func RunSetupWizard() (*config.Config, error) {
	// Use /dev/tty for output to bypass redirections
	tty, ttyErr := getTTY()
	if ttyErr == nil {
		defer tty.Close()
		fmt.Fprintln(tty, "Welcome to term-agent! Let's connect you to a server.")
		fmt.Fprintln(tty)
	} else {
		fmt.Fprintln(os.Stderr, "Welcome to term-agent! Let's connect you to a server.")
		fmt.Fprintln(os.Stderr)
	}

	serverURL := "http://localhost:8000/api/v1"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server URL").
				Description("Base URL of the agent API, including the API prefix").
				Placeholder("http://localhost:8000/api/v1").
				Value(&serverURL).
				Validate(validateServerURL),
		),
	)

	if ttyErr == nil {
		tty2, _ := getTTY() // need a fresh handle, the form may close the one it uses
		defer tty2.Close()
		form = form.WithInput(tty2).WithOutput(tty2)
	}

	if err := form.Run(); err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			URL:     strings.TrimRight(strings.TrimSpace(serverURL), "/"),
			Timeout: 30,
		},
		Chat: config.ChatConfig{
			Markdown: true,
			Theme:    "auto",
		},
		Files: config.FilesConfig{
			MaxSizeKB: 10240,
		},
		History: config.HistoryConfig{
			Enabled: true,
		},
	}

	if err := config.Save(cfg); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	path, _ := config.GetConfigPath()
	if tty, err := getTTY(); err == nil {
		fmt.Fprintf(tty, "Config saved to %s\n\n", path)
		tty.Close()
	} else {
		fmt.Fprintf(os.Stderr, "Config saved to %s\n\n", path)
	}

	// Reload so viper defaults fill anything the wizard left out
	return config.Load()
}

func validateServerURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("server URL is required")
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("enter a full http(s) URL")
	}
	return nil
}
