package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/term-agent/internal/update"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	serverURL string
	debugRaw  bool
	showStats bool
)

var rootCmd = &cobra.Command{
	Use:   "term-agent",
	Short: "Terminal client for the AI Agent backend",
	Long: `term-agent is a terminal client for an AI Agent backend: streaming
chat with tool progress, session management, and file uploads.

Examples:
  term-agent login                          # Sign in to the backend
  term-agent chat "explain this error"      # One-shot streaming question
  cat trace.log | term-agent chat           # Pipe stdin as context
  term-agent chat                           # Interactive conversation
  term-agent sessions                       # List conversations
  term-agent files upload "src/**/*.go"     # Upload attachments`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	update.SetupUpdateChecks(rootCmd, Version)

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debugRaw, "debug-raw", false, "Dump raw wire traffic and keep a JSONL session log")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "Show timing and token usage after each reply")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
