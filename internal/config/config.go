package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Chat        ChatConfig        `mapstructure:"chat" yaml:"chat"`
	Files       FilesConfig       `mapstructure:"files" yaml:"files"`
	History     HistoryConfig     `mapstructure:"history" yaml:"history"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics" yaml:"diagnostics"`
	Theme       ThemeConfig       `mapstructure:"theme" yaml:"theme"`
}

// ServerConfig points the client at one agent backend.
type ServerConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`         // Base URL including the API prefix
	Timeout int    `mapstructure:"timeout" yaml:"timeout"` // Request timeout in seconds
}

type ChatConfig struct {
	Markdown bool   `mapstructure:"markdown" yaml:"markdown"` // Render replies as markdown
	Theme    string `mapstructure:"theme" yaml:"theme"`       // Markdown style: auto, dark, light, notty
	Stats    bool   `mapstructure:"stats" yaml:"stats"`       // Print token usage after each reply
}

type FilesConfig struct {
	Exclude   []string `mapstructure:"exclude" yaml:"exclude"`         // Glob patterns excluded from attachments
	MaxSizeKB int      `mapstructure:"max_size_kb" yaml:"max_size_kb"` // Per-file attachment cap
}

type HistoryConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`           // Keep a local chat history mirror
	Path       string `mapstructure:"path" yaml:"path,omitempty"`       // Database path override
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"` // Auto-delete after N days (0=never)
	MaxCount   int    `mapstructure:"max_count" yaml:"max_count"`       // Keep at most N conversations (0=unlimited)
}

// DiagnosticsConfig configures diagnostic data collection
type DiagnosticsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`   // Enable diagnostic data collection
	Dir     string `mapstructure:"dir" yaml:"dir,omitempty"` // Override default directory
}

// ThemeConfig allows customization of UI colors
// Colors can be ANSI color numbers (0-255) or hex codes (#RRGGBB)
type ThemeConfig struct {
	Primary   string `mapstructure:"primary" yaml:"primary,omitempty"`     // main accent (commands, highlights)
	Secondary string `mapstructure:"secondary" yaml:"secondary,omitempty"` // secondary accent (headers, borders)
	Success   string `mapstructure:"success" yaml:"success,omitempty"`     // success states
	Error     string `mapstructure:"error" yaml:"error,omitempty"`         // error states
	Warning   string `mapstructure:"warning" yaml:"warning,omitempty"`     // warnings
	Muted     string `mapstructure:"muted" yaml:"muted,omitempty"`         // dimmed text
	Text      string `mapstructure:"text" yaml:"text,omitempty"`           // primary text
	Spinner   string `mapstructure:"spinner" yaml:"spinner,omitempty"`     // loading spinner
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	// Set defaults
	viper.SetDefault("server.url", "http://localhost:8000/api/v1")
	viper.SetDefault("server.timeout", 30)
	viper.SetDefault("chat.markdown", true)
	viper.SetDefault("chat.theme", "auto")
	viper.SetDefault("chat.stats", false)
	viper.SetDefault("files.max_size_kb", 10240)
	viper.SetDefault("history.enabled", true)
	viper.SetDefault("diagnostics.enabled", false)

	// Read config file (optional - won't error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.URL = strings.TrimRight(expandEnv(cfg.Server.URL), "/")
	cfg.History.Path = expandEnv(cfg.History.Path)
	cfg.Diagnostics.Dir = expandEnv(cfg.Diagnostics.Dir)

	return &cfg, nil
}

// ApplyOverrides applies command-line overrides to the config.
func (c *Config) ApplyOverrides(serverURL string) {
	if serverURL != "" {
		c.Server.URL = strings.TrimRight(serverURL, "/")
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigDir returns the XDG config directory for term-agent.
// Uses $XDG_CONFIG_HOME if set, otherwise ~/.config
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "term-agent"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "term-agent"), nil
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDataDir returns the XDG data directory for term-agent.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func GetDataDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "term-agent"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", "term-agent"), nil
}

// GetDiagnosticsDir returns the directory for diagnostic logs, honoring
// the config override.
func (c *Config) GetDiagnosticsDir() string {
	if c.Diagnostics.Dir != "" {
		return c.Diagnostics.Dir
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return filepath.Join(".", "term-agent-diagnostics") // fallback
	}
	return filepath.Join(dataDir, "diagnostics")
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// NeedsSetup returns true if config file doesn't exist
func NeedsSetup() bool {
	return !Exists()
}

// Save writes the config to disk
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`server:
  # Base URL of the agent backend, including the API prefix
  url: %s
  # Request timeout in seconds for non-streaming calls
  timeout: %d

chat:
  # Render replies as markdown in the terminal
  markdown: %t
  # Markdown style: auto, dark, light, or notty
  theme: %s
  # Print token usage after each reply
  stats: %t

files:
  # Per-file attachment cap in KB
  max_size_kb: %d
  # Glob patterns excluded from directory attachments
  # exclude:
  #   - "**/.git/**"
  #   - "**/node_modules/**"

history:
  # Mirror conversations into a local sqlite database for offline search
  enabled: %t
  # path: override the default database location
  # max_age_days: auto-delete conversations older than N days (0 = never)
  # max_count: keep at most N conversations (0 = unlimited)

diagnostics:
  enabled: %t
  # dir: override the default diagnostics directory

# theme:
#   primary: "#00ADD8"     # main accent
#   secondary: "#5DC9E2"   # headers, borders
#   success: "10"          # ANSI green
#   error: "9"             # ANSI red
`, cfg.Server.URL, cfg.Server.Timeout, cfg.Chat.Markdown, cfg.Chat.Theme, cfg.Chat.Stats,
		cfg.Files.MaxSizeKB, cfg.History.Enabled, cfg.Diagnostics.Enabled)

	return os.WriteFile(path, []byte(content), 0600)
}
