package agent

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ToolStatus is the lifecycle state of one tool invocation.
type ToolStatus string

const (
	ToolPending  ToolStatus = "pending"  // announced, name not yet known
	ToolRunning  ToolStatus = "running"  // name and input known, executing
	ToolComplete ToolStatus = "complete" // finished with a result
	ToolError    ToolStatus = "error"    // aborted by an error
)

// ToolInvocation is one tool call reconstructed from the stream.
type ToolInvocation struct {
	ID     int                    `json:"id"`
	Tool   string                 `json:"tool,omitempty"`
	Input  map[string]interface{} `json:"input,omitempty"`
	Result string                 `json:"result,omitempty"`
	Status ToolStatus             `json:"status"`
	Err    string                 `json:"error,omitempty"`
}

func (t *ToolInvocation) finished() bool {
	return t.Status == ToolComplete || t.Status == ToolError
}

// Transcript folds stream events into the accumulated reply text and the
// ordered tool invocation timeline. The backend reports tool progress
// strictly sequentially, so refining events always target the most recent
// unfinished record; there is no id to look records up by. Apply keeps that
// invariant explicit: if a refining event arrives with no open record it
// starts a new one rather than mutating a finished record.
type Transcript struct {
	reply       strings.Builder
	tools       []ToolInvocation
	totalTokens int
	done        bool
}

// NewTranscript returns an empty transcript for one stream.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Reply returns the assistant text accumulated so far.
func (t *Transcript) Reply() string { return t.reply.String() }

// Tools returns a copy of the tool invocation timeline.
func (t *Transcript) Tools() []ToolInvocation {
	out := make([]ToolInvocation, len(t.tools))
	copy(out, t.tools)
	return out
}

// TotalTokens reports the token count from the done event, 0 before it.
func (t *Transcript) TotalTokens() int { return t.totalTokens }

// Done reports whether the terminal done event has been applied.
func (t *Transcript) Done() bool { return t.done }

// Apply folds one event into the transcript. For tool events it returns a
// copy of the affected record and true.
func (t *Transcript) Apply(ev Event) (ToolInvocation, bool) {
	switch ev.Type {
	case EventContent:
		t.reply.WriteString(ev.Content)

	case EventToolStart:
		t.tools = append(t.tools, ToolInvocation{
			ID:     len(t.tools) + 1,
			Status: ToolPending,
		})
		return t.tools[len(t.tools)-1], true

	case EventToolThinking:
		inv := t.lastOpen()
		if inv == nil {
			inv = t.open()
		}
		if ev.ToolName != "" {
			inv.Tool = ev.ToolName
		}
		return *inv, true

	case EventToolCall:
		inv := t.lastOpen()
		if inv == nil {
			inv = t.open()
		}
		inv.Tool = ev.Tool
		inv.Input = ev.Input
		inv.Status = ToolRunning
		return *inv, true

	case EventToolResult:
		inv := t.lastOpen()
		if inv == nil {
			inv = t.open()
		}
		inv.Result = ev.Result
		inv.Status = ToolComplete
		return *inv, true

	case EventDone:
		t.done = true
		t.totalTokens = ev.TotalTokens

	case EventError:
		t.Fail(ev.Error)
	}
	return ToolInvocation{}, false
}

// Fail marks the most recent unfinished tool invocation as errored. Called
// when the stream dies while a tool is still open.
func (t *Transcript) Fail(msg string) {
	if inv := t.lastOpen(); inv != nil {
		inv.Status = ToolError
		inv.Err = msg
	}
}

// lastOpen returns the most recently appended unfinished record, or nil.
// Only the last record can ever be open: the sequential protocol finishes
// each invocation before announcing the next.
func (t *Transcript) lastOpen() *ToolInvocation {
	if len(t.tools) == 0 {
		return nil
	}
	last := &t.tools[len(t.tools)-1]
	if last.finished() {
		return nil
	}
	return last
}

// open appends a fresh pending record. Guard path for refining events that
// arrive without a tool_start; a finished record is never reopened.
func (t *Transcript) open() *ToolInvocation {
	t.tools = append(t.tools, ToolInvocation{
		ID:     len(t.tools) + 1,
		Status: ToolPending,
	})
	return &t.tools[len(t.tools)-1]
}

// StreamHandlers are the caller's callbacks for one streamed reply. Any nil
// handler is skipped. OnContent receives only the new fragment; OnTool
// receives the raw event plus the record it refined; OnDone receives the
// full accumulated reply exactly once; OnError receives the terminal error.
// After cancellation no handler is invoked at all.
type StreamHandlers struct {
	OnContent func(delta string)
	OnTool    func(ev Event, inv ToolInvocation)
	OnDone    func(reply string)
	OnError   func(err error)
}

// Collect drains the stream, folding events into a Transcript and driving
// the handlers. It closes the stream before returning. The returned error
// is nil on normal completion, context.Canceled after cancellation, and the
// stream's terminal error otherwise (also delivered to OnError).
func Collect(s Stream, h StreamHandlers) (*Transcript, error) {
	defer s.Close()

	t := NewTranscript()
	for {
		ev, err := s.Recv()
		if err == io.EOF {
			// Clean close without a done event still completes the reply.
			if h.OnDone != nil {
				h.OnDone(t.Reply())
			}
			return t, nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return t, err
			}
			t.Fail(err.Error())
			if h.OnError != nil {
				h.OnError(err)
			}
			return t, err
		}

		switch ev.Type {
		case EventContent:
			t.Apply(ev)
			if h.OnContent != nil {
				h.OnContent(ev.Content)
			}
		case EventToolStart, EventToolThinking, EventToolCall, EventToolResult:
			inv, _ := t.Apply(ev)
			if h.OnTool != nil {
				h.OnTool(ev, inv)
			}
		case EventDone:
			t.Apply(ev)
			if h.OnDone != nil {
				h.OnDone(t.Reply())
			}
			return t, nil
		default:
			// Unknown event kinds are skipped so new server features do
			// not break older clients.
		}
	}
}
