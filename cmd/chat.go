package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/clipboard"
	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/debuglog"
	"github.com/samsaffron/term-agent/internal/history"
	"github.com/samsaffron/term-agent/internal/input"
	"github.com/samsaffron/term-agent/internal/signal"
	"github.com/samsaffron/term-agent/internal/ui"
	"github.com/samsaffron/term-agent/internal/ui/streaming"
)

var (
	chatSessionID string
	chatNew       bool
	chatFiles     []string
	chatPlain     bool
	chatCopy      bool
	chatNoMirror  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Chat with the agent",
	Long: `Send a prompt and stream the reply, or start an interactive
conversation when no prompt is given.

By default a reply continues the current conversation; --new starts a
fresh one and --session targets a specific one. File attachments accept
globs, line ranges (file.go:10-40), and the literal name "clipboard".

Examples:
  term-agent chat "why does this test flake?"
  term-agent chat "review this" -f "internal/**/*.go"
  cat error.log | term-agent chat "what went wrong?"
  term-agent chat --new "unrelated question"
  term-agent chat --plain "emit raw markdown" > notes.md
  term-agent chat                                   # interactive`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Continue a specific conversation by id")
	chatCmd.Flags().BoolVar(&chatNew, "new", false, "Start a new conversation instead of resuming")
	chatCmd.Flags().StringArrayVarP(&chatFiles, "attach", "f", nil, "Attach files (globs, line ranges, 'clipboard')")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Print the reply without markdown rendering")
	chatCmd.Flags().BoolVar(&chatCopy, "copy", false, "Copy the reply to the clipboard")
	chatCmd.Flags().BoolVar(&chatNoMirror, "no-history", false, "Skip the local history mirror for this run")
	rootCmd.AddCommand(chatCmd)
}

// chatState carries what a streamed turn needs: the client, the local
// mirror, the wire log, and the output configuration.
type chatState struct {
	cfg       *config.Config
	client    *agent.Client
	store     history.Store
	logger    *debuglog.Logger
	stats     *ui.SessionStats
	styles    *ui.Styles
	markdown  bool
	width     int
	sessionID string
	errOut    io.Writer
	lastReply string
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigWithSetup()
	if err != nil {
		return err
	}
	initThemeFromConfig(cfg)

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	attached, err := input.ReadFiles(chatFiles, input.Options{
		Exclude:   cfg.Files.Exclude,
		MaxSizeKB: cfg.Files.MaxSizeKB,
	})
	if err != nil {
		return err
	}

	stdinText := ""
	if input.HasStdin() {
		stdinText, err = input.ReadStdin()
		if err != nil {
			return err
		}
	}

	if chatNoMirror {
		cfg.History.Enabled = false
	}
	store, closeStore := openHistory(cfg, cmd.ErrOrStderr())
	defer closeStore()

	st := &chatState{
		cfg:      cfg,
		client:   client,
		store:    store,
		stats:    ui.NewSessionStats(),
		styles:   ui.DefaultStyles(),
		markdown: cfg.Chat.Markdown && !chatPlain && term.IsTerminal(int(os.Stdout.Fd())),
		width:    ui.TerminalWidth(os.Stdout),
		errOut:   cmd.ErrOrStderr(),
	}

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && stdinText == "" && len(attached) == 0 {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("nothing to send: pass a prompt, attach files, or pipe stdin")
		}
		return runChatREPL(st)
	}

	ctx, cancel := signal.NotifyContext()
	defer cancel()

	prompt := buildPrompt(question, stdinText, attached)
	title := question
	if title == "" {
		title = prompt
	}
	if err := st.resolveSession(ctx, title); err != nil {
		return err
	}

	st.logger = newDebugLogger(cfg, st.sessionID, st.errOut)
	defer st.logger.Close()
	cwd, _ := os.Getwd()
	st.logger.LogSessionStart("chat", args, cwd)

	st.mirrorUserMessage(ctx, prompt)

	tr, streamErr := st.streamTurn(ctx, prompt)

	if chatCopy && streamErr == nil && tr != nil && tr.Reply() != "" {
		if err := clipboard.CopyText(tr.Reply()); err != nil {
			fmt.Fprintf(st.errOut, "warning: copy failed: %v\n", err)
		}
	}

	if showStats || cfg.Chat.Stats {
		st.stats.Finalize()
		fmt.Fprintln(st.errOut, st.styles.Muted.Render(st.stats.Render()))
	}

	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			st.finishTurn(history.StatusInterrupted, tr)
			fmt.Fprintln(st.errOut, "\nInterrupted.")
			return nil
		}
		st.finishTurn(history.StatusError, tr)
		return fmt.Errorf("streaming failed: %w", streamErr)
	}

	st.finishTurn(history.StatusComplete, tr)
	return nil
}

// resolveSession decides which server conversation this run talks to:
// an explicit --session id, the mirror's current conversation (same
// server only), or a newly created one. A backend without sessions
// degrades to sessionless chat with a warning.
func (st *chatState) resolveSession(ctx context.Context, title string) error {
	if chatSessionID != "" {
		sess, err := st.client.GetSession(ctx, chatSessionID)
		if err != nil {
			return fmt.Errorf("session %s: %w", chatSessionID, err)
		}
		st.sessionID = sess.ID
		st.mirrorSession(ctx, sess.Title)
		return nil
	}

	if !chatNew && st.store != nil {
		cur, err := st.store.GetCurrent(ctx)
		if err == nil && cur != nil && cur.Server == st.client.BaseURL() {
			st.sessionID = cur.ID
			return nil
		}
	}

	sess, err := st.client.CreateSession(ctx, history.TruncateSummary(title))
	if err != nil {
		fmt.Fprintf(st.errOut, "warning: could not create a conversation, continuing without one: %v\n", err)
		st.sessionID = ""
		return nil
	}
	st.sessionID = sess.ID
	st.mirrorSession(ctx, sess.Title)
	return nil
}

// mirrorSession makes sure the mirror has a row for the conversation.
func (st *chatState) mirrorSession(ctx context.Context, title string) {
	if st.store == nil || st.sessionID == "" {
		return
	}
	if existing, err := st.store.Get(ctx, st.sessionID); err == nil && existing != nil {
		return
	}
	now := time.Now()
	st.store.Create(ctx, &history.Session{
		ID:        st.sessionID,
		Title:     title,
		Summary:   history.TruncateSummary(title),
		Server:    st.client.BaseURL(),
		Status:    history.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (st *chatState) mirrorUserMessage(ctx context.Context, prompt string) {
	if st.store == nil || st.sessionID == "" {
		return
	}
	st.store.AddMessage(ctx, st.sessionID, history.NewMessage(st.sessionID, history.RoleUser, prompt))
	st.store.IncrementUserTurns(ctx, st.sessionID)
}

// finishTurn records the reply and final status in the mirror. It uses a
// background context: the turn's context is already cancelled on the
// interrupted path and the record must still land.
func (st *chatState) finishTurn(status history.SessionStatus, tr *agent.Transcript) {
	if st.store == nil || st.sessionID == "" {
		return
	}
	ctx := context.Background()
	if tr != nil && (tr.Reply() != "" || len(tr.Tools()) > 0) {
		st.store.AddMessage(ctx, st.sessionID, history.NewReplyMessage(st.sessionID, tr))
		st.store.UpdateUsage(ctx, st.sessionID, 1, len(tr.Tools()), tr.TotalTokens())
	}
	st.store.UpdateStatus(ctx, st.sessionID, status)
	st.store.SetCurrent(ctx, st.sessionID)
}

// journalStream copies every received event into the JSONL wire log.
type journalStream struct {
	inner  agent.Stream
	logger *debuglog.Logger
}

func (s journalStream) Recv() (agent.Event, error) {
	ev, err := s.inner.Recv()
	if err == nil {
		s.logger.LogEvent(ev)
	}
	return ev, err
}

func (s journalStream) Close() error { return s.inner.Close() }

// replayStream hands back an event consumed while the spinner was up,
// then delegates to the live stream.
type replayStream struct {
	first *agent.Event
	inner agent.Stream
}

func (s *replayStream) Recv() (agent.Event, error) {
	if s.first != nil {
		ev := *s.first
		s.first = nil
		return ev, nil
	}
	return s.inner.Recv()
}

func (s *replayStream) Close() error { return s.inner.Close() }

// streamTurn sends one prompt and renders the streamed reply. The reply
// goes to stdout (markdown-rendered unless plain); tool progress lines
// go to stderr so piped output stays clean.
func (st *chatState) streamTurn(ctx context.Context, prompt string) (*agent.Transcript, error) {
	st.logger.LogRequest(http.MethodPost, "/chat/stream", map[string]string{
		"session_id": st.sessionID,
		"input":      prompt,
	})

	start := time.Now()
	raw, err := st.client.StreamChat(ctx, st.sessionID, prompt)
	if err != nil {
		return nil, err
	}
	stream := agent.WrapDebugStream(debugRaw, journalStream{inner: raw, logger: st.logger})

	// Spinner until the first event. Esc cancels by closing the stream,
	// which unblocks Recv with context.Canceled.
	var (
		first    agent.Event
		firstErr error
	)
	spinErr := ui.RunWithSpinner(ctx, "Thinking", func(inner context.Context) error {
		stop := context.AfterFunc(inner, func() { stream.Close() })
		defer stop()
		first, firstErr = stream.Recv()
		return nil
	})
	if spinErr != nil {
		stream.Close()
		return agent.NewTranscript(), spinErr
	}
	if firstErr != nil {
		stream.Close()
		if firstErr == io.EOF {
			// Stream closed before any event: an empty but clean reply.
			return agent.NewTranscript(), nil
		}
		return agent.NewTranscript(), firstErr
	}

	out := io.Writer(os.Stdout)
	var renderer *streaming.Renderer
	if st.markdown {
		renderer, err = streaming.NewRenderer(os.Stdout, ui.GlamourOptions(st.cfg.Chat.Theme, st.width)...)
		if err != nil {
			fmt.Fprintf(st.errOut, "warning: markdown rendering unavailable: %v\n", err)
			renderer = nil
		} else {
			out = renderer
		}
	}

	tools := &toolPrinter{out: st.errOut, styles: st.styles, width: st.width}

	tr, err := agent.Collect(&replayStream{first: &first, inner: stream}, agent.StreamHandlers{
		OnContent: func(delta string) {
			io.WriteString(out, delta)
		},
		OnTool: func(ev agent.Event, inv agent.ToolInvocation) {
			switch ev.Type {
			case agent.EventToolStart:
				st.stats.ToolStart()
			case agent.EventToolResult:
				st.stats.ToolEnd()
			}
			tools.handle(ev, inv)
		},
	})

	if renderer != nil {
		if ferr := renderer.Flush(); ferr != nil {
			fmt.Fprintf(st.errOut, "warning: render flush failed: %v\n", ferr)
		}
		fmt.Println()
	} else if tr.Reply() != "" && !strings.HasSuffix(tr.Reply(), "\n") {
		fmt.Println()
	}

	st.stats.AddUsage(tr.TotalTokens())
	st.lastReply = tr.Reply()
	st.logger.LogResult(len(tr.Reply()), len(tr.Tools()), time.Since(start), err)
	return tr, err
}

// toolPrinter renders tool progress: one running line when the call is
// announced, one completion line when its result lands.
type toolPrinter struct {
	out    io.Writer
	styles *ui.Styles
	width  int
}

func (p *toolPrinter) handle(ev agent.Event, inv agent.ToolInvocation) {
	switch ev.Type {
	case agent.EventToolCall:
		line := p.styles.Highlighted.Render("⚙ "+inv.Tool) + " " + ui.HighlightJSON(compactJSON(inv.Input))
		fmt.Fprintln(p.out, ui.TruncateANSI(line, p.width))
	case agent.EventToolResult:
		name := inv.Tool
		if name == "" {
			name = "tool"
		}
		summary := p.styles.Muted.Render(resultSummary(inv.Result))
		fmt.Fprintln(p.out, ui.TruncateANSI(p.styles.FormatResult(true, name+" "+summary), p.width))
	}
}

func compactJSON(input map[string]interface{}) string {
	if len(input) == 0 {
		return ""
	}
	data, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	return string(data)
}

// resultSummary reduces a tool result to a short single-line preview.
func resultSummary(result string) string {
	result = strings.TrimSpace(result)
	if result == "" {
		return ""
	}
	if idx := strings.IndexByte(result, '\n'); idx >= 0 {
		lines := strings.Count(result, "\n") + 1
		return fmt.Sprintf("→ %s (%d lines)", result[:idx], lines)
	}
	return "→ " + result
}

// buildPrompt composes the outgoing message: attachments and piped stdin
// first, then the question.
func buildPrompt(question, stdin string, files []input.FileContent) string {
	material := input.FormatFilesXML(files, stdin)
	switch {
	case material == "":
		return question
	case question == "":
		return material
	default:
		return material + "\n\n" + question
	}
}

// replCommands are the interactive slash commands, used for dispatch and
// for fuzzy did-you-mean suggestions.
var replCommands = []string{"help", "new", "sessions", "switch", "attach", "copy", "stats", "quit"}

// runChatREPL runs the interactive loop. Ctrl+C interrupts the current
// reply only; at the prompt, Ctrl+D or /quit leaves.
func runChatREPL(st *chatState) error {
	fmt.Printf("%s %s\n", st.styles.Title.Render("term-agent"),
		st.styles.Muted.Render("connected to "+st.client.BaseURL()+" (/help for commands)"))

	st.logger = newDebugLogger(st.cfg, "", st.errOut)
	defer st.logger.Close()
	cwd, _ := os.Getwd()
	st.logger.LogSessionStart("chat", nil, cwd)

	var pendingAttach []string
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print(st.styles.Command.Render("❯ "))
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit := st.replCommand(line, &pendingAttach)
			if quit {
				return nil
			}
			continue
		}

		prompt := line
		if len(pendingAttach) > 0 {
			files, err := input.ReadFiles(pendingAttach, input.Options{
				Exclude:   st.cfg.Files.Exclude,
				MaxSizeKB: st.cfg.Files.MaxSizeKB,
			})
			if err != nil {
				fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ "+err.Error()))
				continue
			}
			prompt = buildPrompt(line, "", files)
			pendingAttach = nil
		}

		turnCtx, cancel := signal.NotifyContext()
		if st.sessionID == "" {
			if err := st.resolveSession(turnCtx, line); err != nil {
				cancel()
				fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ "+err.Error()))
				continue
			}
		}
		st.mirrorUserMessage(turnCtx, prompt)

		tr, streamErr := st.streamTurn(turnCtx, prompt)
		cancel()
		st.stats.AddTurn()

		switch {
		case streamErr == nil:
			st.finishTurn(history.StatusComplete, tr)
		case errors.Is(streamErr, context.Canceled):
			st.finishTurn(history.StatusInterrupted, tr)
			fmt.Fprintln(st.errOut, st.styles.Muted.Render("interrupted"))
		default:
			st.finishTurn(history.StatusError, tr)
			fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ ")+
				strings.TrimSpace(ui.WrapIndent(streamErr.Error(), st.width-2, "  ")))
		}

		if showStats || st.cfg.Chat.Stats {
			st.stats.Finalize()
			fmt.Fprintln(st.errOut, st.styles.Muted.Render(st.stats.Render()))
		}
	}
}

// replCommand dispatches one slash command. Returns true to quit.
func (st *chatState) replCommand(line string, pendingAttach *[]string) bool {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return false
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "quit", "exit":
		return true

	case "help":
		fmt.Println(`Commands:
  /new            start a fresh conversation
  /sessions       list recent conversations
  /switch <id>    continue a conversation by id
  /attach <spec>  attach files to the next message
  /copy           copy the last reply to the clipboard
  /stats          show usage for this run
  /quit           leave`)

	case "new":
		st.sessionID = ""
		chatNew = true
		fmt.Println(st.styles.Muted.Render("next message starts a new conversation"))

	case "sessions":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sessions, err := st.client.ListSessions(ctx, agent.ListSessionsOptions{Limit: 10})
		cancel()
		if err != nil {
			fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ "+err.Error()))
			return false
		}
		for _, s := range sessions {
			marker := "  "
			if s.ID == st.sessionID {
				marker = st.styles.Highlighted.Render("* ")
			}
			fmt.Printf("%s%s  %s\n", marker, s.ID, s.Title)
		}

	case "switch":
		if len(args) != 1 {
			fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ usage: /switch <id>"))
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sess, err := st.client.GetSession(ctx, args[0])
		cancel()
		if err != nil {
			fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ "+err.Error()))
			return false
		}
		st.sessionID = sess.ID
		st.mirrorSession(context.Background(), sess.Title)
		fmt.Println(st.styles.Muted.Render("switched to " + sess.ID))

	case "attach":
		if len(args) == 0 {
			fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ usage: /attach <file spec>"))
			return false
		}
		*pendingAttach = append(*pendingAttach, args...)
		fmt.Println(st.styles.Muted.Render(fmt.Sprintf("%d attachment(s) queued", len(*pendingAttach))))

	case "copy":
		if st.lastReply == "" {
			fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ nothing to copy yet"))
			return false
		}
		if err := clipboard.CopyText(st.lastReply); err != nil {
			fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ copy failed: "+err.Error()))
			return false
		}
		fmt.Println(st.styles.Muted.Render("reply copied"))

	case "stats":
		st.stats.Finalize()
		fmt.Println(st.styles.Muted.Render(st.stats.Render()))

	default:
		msg := "unknown command /" + name
		if suggestion := suggestCommand(name); suggestion != "" {
			msg += " (did you mean /" + suggestion + "?)"
		}
		fmt.Fprintln(st.errOut, st.styles.Error.Render("✗ "+msg))
	}
	return false
}

// suggestCommand fuzzy-matches a mistyped slash command against the
// known ones. Empty when nothing is close.
func suggestCommand(name string) string {
	matches := fuzzy.Find(name, replCommands)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}
