// Package debuglog writes raw wire traffic to JSONL session files for
// debugging. Each CLI invocation gets its own file under the diagnostics
// directory; old files are cleaned up on open.
package debuglog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samsaffron/term-agent/internal/agent"
)

// Logger appends JSON lines describing requests, stream events and final
// results. A nil *Logger is valid and drops everything, so call sites do
// not need to guard on the debug flag.
type Logger struct {
	path      string
	sessionID string

	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	closeOnce sync.Once
	closed    bool
}

// logEntry is the common structure for all log lines
type logEntry struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"` // session_start, request, event, result
}

type sessionStartEntry struct {
	logEntry
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd"`
}

type requestEntry struct {
	logEntry
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   any    `json:"body,omitempty"`
}

type eventEntry struct {
	logEntry
	EventType string `json:"event_type"`
	Data      any    `json:"data,omitempty"`
}

type resultEntry struct {
	logEntry
	ReplyLen   int    `json:"reply_len"`
	ToolCalls  int    `json:"tool_calls"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

const retention = 7 * 24 * time.Hour

// New opens a session log under baseDir. An empty sessionID gets a fresh
// UUID. Files older than the retention window are removed first.
func New(baseDir, sessionID string) (*Logger, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}

	_ = CleanupOldLogs(baseDir, retention)

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	path := filepath.Join(baseDir, sessionID+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	return &Logger{
		path:      path,
		sessionID: sessionID,
		file:      file,
		writer:    bufio.NewWriter(file),
	}, nil
}

// Path returns the log file location, empty for a nil logger.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// LogSessionStart records the CLI invocation that opened this log.
func (l *Logger) LogSessionStart(command string, args []string, cwd string) {
	if l == nil {
		return
	}

	l.writeEntry(sessionStartEntry{
		logEntry: l.entry("session_start"),
		Command:  command,
		Args:     args,
		Cwd:      cwd,
	})
	l.Flush()
}

// LogRequest records an outbound API call. Requests are infrequent, so
// each one is flushed immediately.
func (l *Logger) LogRequest(method, path string, body any) {
	if l == nil {
		return
	}

	l.writeEntry(requestEntry{
		logEntry: l.entry("request"),
		Method:   method,
		Path:     path,
		Body:     body,
	})
	l.Flush()
}

// LogEvent records one decoded stream event. Content fragments are
// frequent, so the buffer is only flushed on terminal events.
func (l *Logger) LogEvent(event agent.Event) {
	if l == nil {
		return
	}

	entry := eventEntry{
		logEntry:  l.entry("event"),
		EventType: string(event.Type),
	}

	switch event.Type {
	case agent.EventContent:
		data := map[string]any{"text": event.Content}
		if event.Token > 0 {
			data["token"] = event.Token
		}
		entry.Data = data
	case agent.EventToolStart:
		if event.Message != "" {
			entry.Data = map[string]string{"message": event.Message}
		}
	case agent.EventToolThinking:
		if event.ToolName != "" {
			entry.Data = map[string]string{"tool_name": event.ToolName}
		}
	case agent.EventToolCall:
		entry.Data = map[string]any{
			"tool":  event.Tool,
			"input": event.Input,
		}
	case agent.EventToolResult:
		entry.Data = map[string]string{"result": truncateForLog(event.Result)}
	case agent.EventDone:
		entry.Data = map[string]int{"total_tokens": event.TotalTokens}
	case agent.EventError:
		entry.Data = map[string]string{"error": event.Error}
	}

	l.writeEntry(entry)

	if event.Type == agent.EventDone || event.Type == agent.EventError {
		l.Flush()
	}
}

// LogResult records the outcome of one reply exchange.
func (l *Logger) LogResult(replyLen, toolCalls int, elapsed time.Duration, err error) {
	if l == nil {
		return
	}

	entry := resultEntry{
		logEntry:   l.entry("result"),
		ReplyLen:   replyLen,
		ToolCalls:  toolCalls,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	l.writeEntry(entry)
	l.Flush()
}

// Close flushes and closes the log file. Idempotent.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	var closeErr error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.file == nil {
			return
		}
		if err := l.writer.Flush(); err != nil {
			closeErr = err
		}
		if err := l.file.Close(); err != nil && closeErr == nil {
			closeErr = err
		}
		l.closed = true
	})
	return closeErr
}

// Flush flushes the buffered writer to disk.
func (l *Logger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.writer == nil {
		return
	}
	l.writer.Flush()
}

func (l *Logger) entry(entryType string) logEntry {
	return logEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: l.sessionID,
		Type:      entryType,
	}
}

// writeEntry writes a single entry as one JSON line. The caller decides
// when to flush.
func (l *Logger) writeEntry(entry any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.writer.Write(data)
	l.writer.WriteString("\n")
}

func truncateForLog(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[:max] + "...[truncated]"
}

// CleanupOldLogs removes JSONL files older than maxAge from baseDir.
func CleanupOldLogs(baseDir string, maxAge time.Duration) error {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(baseDir, entry.Name()))
		}
	}

	return nil
}
