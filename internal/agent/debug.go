package agent

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DebugRawSection prints a timestamped debug section to stderr.
func DebugRawSection(enabled bool, label, body string) {
	if !enabled {
		return
	}

	ts := time.Now().Format(time.RFC3339Nano)
	fmt.Fprintf(os.Stderr, "\n[%s] %s\n", ts, label)
	if body != "" {
		fmt.Fprintln(os.Stderr, body)
	}
	fmt.Fprintf(os.Stderr, "[%s] END %s\n", ts, label)
	fmt.Fprintln(os.Stderr)
}

// DebugRawEvent prints each stream event with a timestamp.
func DebugRawEvent(enabled bool, event Event) {
	if !enabled {
		return
	}

	switch event.Type {
	case EventContent:
		body := event.Content
		if event.Token > 0 {
			body = fmt.Sprintf("token: %d\ntext:\n%s", event.Token, event.Content)
		}
		DebugRawSection(enabled, "Event Content", body)
	case EventToolStart:
		DebugRawSection(enabled, "Event Tool Start", event.Message)
	case EventToolThinking:
		DebugRawSection(enabled, "Event Tool Thinking", event.ToolName)
	case EventToolCall:
		input := formatJSONValue(event.Input)
		body := fmt.Sprintf("tool: %s\ninput:\n%s", event.Tool, input)
		DebugRawSection(enabled, "Event Tool Call", body)
	case EventToolResult:
		result := event.Result
		if result == "" {
			result = "(empty)"
		}
		DebugRawSection(enabled, "Event Tool Result", result)
	case EventDone:
		DebugRawSection(enabled, "Event Done", fmt.Sprintf("total_tokens: %d", event.TotalTokens))
	case EventError:
		DebugRawSection(enabled, "Event Error", event.Error)
	default:
		DebugRawSection(enabled, "Event", fmt.Sprintf("type: %s", event.Type))
	}
}

type debugStream struct {
	inner   Stream
	enabled bool
}

// WrapDebugStream logs every received event when enabled.
func WrapDebugStream(enabled bool, inner Stream) Stream {
	if !enabled {
		return inner
	}
	return &debugStream{inner: inner, enabled: enabled}
}

func (s *debugStream) Recv() (Event, error) {
	event, err := s.inner.Recv()
	if err != nil && err != io.EOF {
		DebugRawSection(s.enabled, "Stream Recv Error", err.Error())
	}
	if err == nil {
		DebugRawEvent(s.enabled, event)
	}
	return event, err
}

func (s *debugStream) Close() error {
	return s.inner.Close()
}

func debugRequest(req *http.Request) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", req.Method, req.URL.String())
	for _, name := range []string{"Content-Type", "Accept", "Cache-Control"} {
		if v := req.Header.Get(name); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", name, v)
		}
	}
	if auth := req.Header.Get("Authorization"); auth != "" {
		fmt.Fprintf(&b, "Authorization: Bearer %s\n", shortDebugHash(auth))
	}
	if req.GetBody != nil {
		if rc, err := req.GetBody(); err == nil {
			data, _ := io.ReadAll(rc)
			rc.Close()
			if len(data) > 0 {
				b.WriteString("body:\n")
				b.WriteString(formatJSON(data))
			}
		}
	}
	DebugRawSection(true, "Request", strings.TrimRight(b.String(), "\n"))
}

func debugResponse(resp *http.Response, body []byte) {
	var b strings.Builder
	fmt.Fprintf(&b, "status: %s\n", resp.Status)
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		fmt.Fprintf(&b, "Content-Type: %s\n", ct)
	}
	if len(body) > 0 {
		b.WriteString("body:\n")
		b.WriteString(formatJSON(body))
	}
	DebugRawSection(true, "Response", strings.TrimRight(b.String(), "\n"))
}

// shortDebugHash identifies a secret in debug output without revealing it.
func shortDebugHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	hexHash := hex.EncodeToString(sum[:])
	if len(hexHash) <= 16 {
		return hexHash
	}
	return hexHash[:16]
}

func formatJSON(raw []byte) string {
	if len(raw) == 0 {
		return "(empty)"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

func formatJSONValue(value map[string]interface{}) string {
	if len(value) == 0 {
		return "(empty)"
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "(invalid)"
	}
	return string(data)
}
