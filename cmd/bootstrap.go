package cmd

import (
	"fmt"
	"io"
	"net/url"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/auth"
	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/debuglog"
	"github.com/samsaffron/term-agent/internal/history"
	"github.com/samsaffron/term-agent/internal/ui"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyOverrides(serverURL)
	return cfg, nil
}

func loadConfigWithSetup() (*config.Config, error) {
	if config.NeedsSetup() {
		cfg, err := ui.RunSetupWizard()
		if err != nil {
			return nil, fmt.Errorf("setup cancelled: %w", err)
		}
		cfg.ApplyOverrides(serverURL)
		return cfg, nil
	}

	return loadConfig()
}

func initThemeFromConfig(cfg *config.Config) {
	ui.InitTheme(ui.ThemeConfig{
		Primary:   cfg.Theme.Primary,
		Secondary: cfg.Theme.Secondary,
		Success:   cfg.Theme.Success,
		Error:     cfg.Theme.Error,
		Warning:   cfg.Theme.Warning,
		Muted:     cfg.Theme.Muted,
		Text:      cfg.Theme.Text,
		Spinner:   cfg.Theme.Spinner,
	})
}

// newClient builds the backend client: credential store in the config dir,
// token manager pointed at the configured server, shared cookie jar.
func newClient(cfg *config.Config) (*agent.Client, error) {
	server, err := url.Parse(cfg.Server.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", cfg.Server.URL, err)
	}

	dir, err := auth.DefaultDir()
	if err != nil {
		return nil, fmt.Errorf("resolve credential dir: %w", err)
	}
	store, err := auth.NewStore(dir, server)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	tokens := auth.NewManager(cfg.Server.URL, store, nil)
	return agent.New(cfg.Server.URL, tokens, agent.WithDebugRaw(debugRaw)), nil
}

// openHistory opens the local conversation mirror. A broken mirror must
// never block chatting: open errors degrade to a warning and a nil store,
// and later persistence errors are logged once through the wrapper.
// The returned cleanup is always safe to call.
func openHistory(cfg *config.Config, errWriter io.Writer) (history.Store, func()) {
	if !cfg.History.Enabled {
		return nil, func() {}
	}

	store, err := history.NewStore(history.Config{
		Enabled:    cfg.History.Enabled,
		Path:       cfg.History.Path,
		MaxAgeDays: cfg.History.MaxAgeDays,
		MaxCount:   cfg.History.MaxCount,
	})
	if err != nil {
		fmt.Fprintf(errWriter, "warning: history unavailable: %v\n", err)
		return nil, func() {}
	}

	logged := history.NewLoggingStore(store, func(format string, args ...any) {
		fmt.Fprintf(errWriter, "warning: "+format+"\n", args...)
	})

	return logged, func() { store.Close() }
}

// newDebugLogger creates the JSONL wire log when --debug-raw or diagnostics
// are on. Returns nil otherwise; all Logger methods accept a nil receiver.
func newDebugLogger(cfg *config.Config, sessionID string, errWriter io.Writer) *debuglog.Logger {
	if !debugRaw && !cfg.Diagnostics.Enabled {
		return nil
	}
	logger, err := debuglog.New(cfg.GetDiagnosticsDir(), sessionID)
	if err != nil {
		fmt.Fprintf(errWriter, "warning: debug log unavailable: %v\n", err)
		return nil
	}
	return logger
}
