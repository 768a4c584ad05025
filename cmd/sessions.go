package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/history"
	"github.com/samsaffron/term-agent/internal/render"
	"github.com/samsaffron/term-agent/internal/signal"
	"github.com/samsaffron/term-agent/internal/ui"
)

var (
	sessionsArchived bool
	sessionsLimit    int
	sessionsOffset   int
	sessionsJSON     bool
	sessionsForce    bool
	sessionsRestore  bool
	sessionsFormat   string
	sessionsOutput   string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversations",
	Long: `List, inspect and organize your conversations on the server.

Running 'sessions' with no subcommand lists them.`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsRenameCmd = &cobra.Command{
	Use:     "rename <id> <title>",
	Short:   "Set a conversation's title",
	Example: `  term-agent sessions rename 4f2a... "Auth refactor"`,
	Args:    cobra.ExactArgs(2),
	RunE:    runSessionsRename,
}

var sessionsArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a conversation (--restore brings it back)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsArchive,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search conversation titles and message history",
	Long: `Search your conversations. Titles are matched fuzzily against the
server's list; message bodies are searched in the local history mirror,
so remote-only messages from other machines are not covered.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSessionsSearch,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation to a file",
	Long: `Export a conversation transcript. Formats: markdown (default), html,
json, yaml. Use --output - to write to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsExport,
}

func init() {
	sessionsCmd.PersistentFlags().IntVar(&sessionsLimit, "limit", 20, "Maximum number of conversations")
	sessionsCmd.PersistentFlags().IntVar(&sessionsOffset, "offset", 0, "Skip this many conversations")
	sessionsListCmd.Flags().BoolVar(&sessionsArchived, "archived", false, "Include archived conversations")
	sessionsShowCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsArchiveCmd.Flags().BoolVar(&sessionsRestore, "restore", false, "Restore instead of archive")
	sessionsDeleteCmd.Flags().BoolVarP(&sessionsForce, "force", "f", false, "Skip the confirmation prompt")
	sessionsExportCmd.Flags().StringVar(&sessionsFormat, "format", "markdown", "Export format: markdown, html, json, yaml")
	sessionsExportCmd.Flags().StringVarP(&sessionsOutput, "output", "o", "", "Output path ('-' for stdout)")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsRenameCmd,
		sessionsArchiveCmd, sessionsDeleteCmd, sessionsSearchCmd, sessionsExportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	sessions, err := client.ListSessions(ctx, agent.ListSessionsOptions{
		Archived: sessionsArchived,
		Limit:    sessionsLimit,
		Offset:   sessionsOffset,
	})
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	// The mirror supplies usage columns and the current-conversation
	// marker; a missing or disabled mirror just leaves them blank.
	usage := map[string]history.SessionSummary{}
	currentID := ""
	store, closeStore := openHistory(cfg, cmd.ErrOrStderr())
	defer closeStore()
	if store != nil {
		summaries, err := store.List(ctx, history.ListOptions{
			Server:   client.BaseURL(),
			Archived: true,
			Limit:    sessionsLimit + sessionsOffset,
		})
		if err == nil {
			for _, s := range summaries {
				usage[s.ID] = s
			}
		}
		if cur, err := store.GetCurrent(ctx); err == nil && cur != nil {
			currentID = cur.ID
		}
	}

	fmt.Printf("  %-36s %-28s %5s %8s %-11s %s\n", "ID", "TITLE", "MSGS", "TOKENS", "STATUS", "LAST")
	fmt.Println(strings.Repeat("-", 104))

	for _, s := range sessions {
		marker := " "
		if s.ID == currentID {
			marker = "*"
		}
		msgs, tokens, status := "-", "-", "-"
		if sum, ok := usage[s.ID]; ok {
			msgs = fmt.Sprintf("%d", sum.MessageCount)
			tokens = formatTokenCount(sum.TotalTokens)
			if sum.Status != "" {
				status = string(sum.Status)
			}
		}
		title := s.Title
		if s.IsArchived {
			title = "[archived] " + title
		}
		fmt.Printf("%s %-36s %s %5s %8s %-11s %s\n",
			marker, s.ID, truncateCell(title, 28), msgs, tokens, status,
			formatRelativeTime(parseServerTime(s.LastMessageAt)))
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	sess, err := client.GetSession(ctx, args[0])
	if err != nil {
		return fmt.Errorf("conversation %s: %w", args[0], err)
	}
	messages, err := client.SessionMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	if sessionsJSON {
		doc := struct {
			Session  *agent.ChatSession  `json:"session"`
			Messages []agent.ChatMessage `json:"messages"`
		}{sess, messages}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}

	styles := ui.DefaultStyles()
	markdown := cfg.Chat.Markdown && term.IsTerminal(int(os.Stdout.Fd()))
	width := ui.TerminalWidth(os.Stdout)

	fmt.Println(styles.Title.Render(sess.Title))
	meta := fmt.Sprintf("%s | created %s | last message %s", sess.ID,
		formatRelativeTime(parseServerTime(sess.CreatedAt)),
		formatRelativeTime(parseServerTime(sess.LastMessageAt)))
	if sess.IsArchived {
		meta += " | archived"
	}
	fmt.Println(styles.Muted.Render(meta))
	fmt.Println()

	for _, m := range messages {
		fmt.Println(styles.Bold.Render(render.RoleLabel(m.Role)))
		body := strings.TrimRight(m.Content, "\n")
		if markdown && m.Role == "assistant" {
			body = ui.RenderMarkdown(body, width)
		}
		fmt.Println(body)
		fmt.Println()
	}
	return nil
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	sess, err := client.RenameSession(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("rename failed: %w", err)
	}

	store, closeStore := openHistory(cfg, cmd.ErrOrStderr())
	defer closeStore()
	if store != nil {
		if row, err := store.Get(ctx, sess.ID); err == nil && row != nil {
			row.Title = sess.Title
			row.Summary = history.TruncateSummary(sess.Title)
			store.Update(ctx, row)
		}
	}

	fmt.Println(ui.DefaultStyles().FormatResult(true, fmt.Sprintf("Renamed to %q", sess.Title)))
	return nil
}

func runSessionsArchive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	sess, err := client.ArchiveSession(ctx, args[0], !sessionsRestore)
	if err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}

	store, closeStore := openHistory(cfg, cmd.ErrOrStderr())
	defer closeStore()
	if store != nil {
		if row, err := store.Get(ctx, sess.ID); err == nil && row != nil {
			row.Archived = sess.IsArchived
			store.Update(ctx, row)
		}
	}

	msg := "Archived " + sess.ID
	if sessionsRestore {
		msg = "Restored " + sess.ID
	}
	fmt.Println(ui.DefaultStyles().FormatResult(true, msg))
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	sess, err := client.GetSession(ctx, args[0])
	if err != nil {
		return fmt.Errorf("conversation %s: %w", args[0], err)
	}

	if !sessionsForce {
		confirmed := false
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q and all its messages?", sess.Title)).
				Description("This cannot be undone.").
				Value(&confirmed),
		))
		if err := form.Run(); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := client.DeleteSession(ctx, sess.ID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	store, closeStore := openHistory(cfg, cmd.ErrOrStderr())
	defer closeStore()
	if store != nil {
		store.Delete(ctx, sess.ID)
		if cur, err := store.GetCurrent(ctx); err == nil && cur != nil && cur.ID == sess.ID {
			store.ClearCurrent(ctx)
		}
	}

	fmt.Println(ui.DefaultStyles().FormatResult(true, "Deleted "+sess.ID))
	return nil
}

// sessionSource adapts the server's list to fuzzy.Source.
type sessionSource []agent.ChatSession

func (s sessionSource) String(i int) string { return s[i].Title }
func (s sessionSource) Len() int            { return len(s) }

func runSessionsSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	query := strings.Join(args, " ")
	styles := ui.DefaultStyles()
	found := 0

	sessions, err := client.ListSessions(ctx, agent.ListSessionsOptions{Archived: true, Limit: 200})
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: could not search titles: %v\n", err)
	} else if matches := fuzzy.FindFrom(query, sessionSource(sessions)); len(matches) > 0 {
		fmt.Println(styles.Subtitle.Render("Conversations"))
		for i, m := range matches {
			if i >= sessionsLimit {
				break
			}
			s := sessions[m.Index]
			fmt.Printf("  %s  %s %s\n", s.ID, truncateCell(s.Title, 40),
				styles.Muted.Render(formatRelativeTime(parseServerTime(s.LastMessageAt))))
			found++
		}
		fmt.Println()
	}

	store, closeStore := openHistory(cfg, cmd.ErrOrStderr())
	defer closeStore()
	if store != nil {
		results, err := store.Search(ctx, query, sessionsLimit)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: message search failed: %v\n", err)
		} else if len(results) > 0 {
			fmt.Println(styles.Subtitle.Render("Messages"))
			for _, r := range results {
				title := r.SessionTitle
				if title == "" {
					title = r.SessionID
				}
				fmt.Printf("  %s %s\n", styles.Bold.Render(truncateCell(title, 40)),
					styles.Muted.Render(formatRelativeTime(r.CreatedAt)))
				fmt.Printf("    %s\n", truncateCell(r.Snippet, 96))
				found++
			}
		}
	}

	if found == 0 {
		fmt.Printf("No results found for %q\n", query)
	}
	return nil
}

// exportDoc is the json/yaml export shape. Field names are stable across
// both encodings so exported files round-trip between them.
type exportDoc struct {
	Session  exportSession   `json:"session" yaml:"session"`
	Messages []exportMessage `json:"messages" yaml:"messages"`
}

type exportSession struct {
	ID            string `json:"id" yaml:"id"`
	Title         string `json:"title" yaml:"title"`
	CreatedAt     string `json:"created_at" yaml:"created_at"`
	LastMessageAt string `json:"last_message_at" yaml:"last_message_at"`
	Archived      bool   `json:"archived" yaml:"archived"`
}

type exportMessage struct {
	Role      string `json:"role" yaml:"role"`
	Content   string `json:"content" yaml:"content"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	sess, err := client.GetSession(ctx, args[0])
	if err != nil {
		return fmt.Errorf("conversation %s: %w", args[0], err)
	}
	messages, err := client.SessionMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	data, ext, err := encodeExport(sessionsFormat, sess, messages)
	if err != nil {
		return err
	}

	outputPath := sessionsOutput
	if outputPath == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("session-%s.%s", shortID(sess.ID), ext)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	fmt.Printf("Exported %d messages to %s\n", len(messages), outputPath)
	return nil
}

// encodeExport renders the transcript in the requested format and
// returns the bytes plus a file extension for default naming.
func encodeExport(format string, sess *agent.ChatSession, messages []agent.ChatMessage) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "markdown", "md":
		return render.SessionMarkdown(sess.Title, exportRenderMessages(messages)), "md", nil
	case "html":
		return render.SessionHTML(sess.Title, exportRenderMessages(messages)), "html", nil
	case "json":
		data, err := json.MarshalIndent(buildExportDoc(sess, messages), "", "  ")
		if err != nil {
			return nil, "", err
		}
		return append(data, '\n'), "json", nil
	case "yaml", "yml":
		data, err := yaml.Marshal(buildExportDoc(sess, messages))
		if err != nil {
			return nil, "", err
		}
		return data, "yaml", nil
	default:
		return nil, "", fmt.Errorf("unknown format %q: want markdown, html, json or yaml", format)
	}
}

func buildExportDoc(sess *agent.ChatSession, messages []agent.ChatMessage) exportDoc {
	doc := exportDoc{
		Session: exportSession{
			ID:            sess.ID,
			Title:         sess.Title,
			CreatedAt:     sess.CreatedAt,
			LastMessageAt: sess.LastMessageAt,
			Archived:      sess.IsArchived,
		},
	}
	for _, m := range messages {
		doc.Messages = append(doc.Messages, exportMessage{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return doc
}

func exportRenderMessages(messages []agent.ChatMessage) []render.Message {
	out := make([]render.Message, len(messages))
	for i, m := range messages {
		out[i] = render.Message{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
	}
	return out
}

// shortID returns the first uuid segment, enough to tell ids apart in
// filenames and casual output.
func shortID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateCell fits a value into a fixed-width table cell, measuring
// display width so wide runes stay aligned.
func truncateCell(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return runewidth.FillRight(runewidth.Truncate(s, width, "..."), width)
}

// formatTokenCount formats a count in compact form (e.g. 850, 4.5k, 1.2M).
func formatTokenCount(n int) string {
	if n <= 0 {
		return "-"
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		val := float64(n) / 1000
		if val == float64(int(val)) {
			return fmt.Sprintf("%dk", int(val))
		}
		return fmt.Sprintf("%.1fk", val)
	}
	val := float64(n) / 1000000
	if val == float64(int(val)) {
		return fmt.Sprintf("%dM", int(val))
	}
	return fmt.Sprintf("%.1fM", val)
}

// parseServerTime parses the API's timestamp strings. The backend emits
// naive ISO timestamps without a zone, so those layouts are tried too.
func parseServerTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	dur := time.Since(t)
	switch {
	case dur < time.Minute:
		return "just now"
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	case dur < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
