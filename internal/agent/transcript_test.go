package agent

import (
	"context"
	"errors"
	"io"
	"testing"
)

// scriptedStream replays a fixed event sequence, then a terminal error
// (nil means clean EOF).
type scriptedStream struct {
	events []Event
	err    error
	pos    int
	closed bool
}

func (s *scriptedStream) Recv() (Event, error) {
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.err != nil {
		return Event{}, s.err
	}
	return Event{}, io.EOF
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

func TestTranscriptToolLifecycle(t *testing.T) {
	tr := NewTranscript()

	inv, touched := tr.Apply(Event{Type: EventToolStart, Message: "Using tools..."})
	if !touched {
		t.Fatal("tool_start should touch a record")
	}
	if inv.Status != ToolPending || inv.ID != 1 {
		t.Fatalf("expected pending record 1, got %+v", inv)
	}

	inv, _ = tr.Apply(Event{Type: EventToolThinking, ToolName: "web_search"})
	if inv.Tool != "web_search" || inv.Status != ToolPending {
		t.Fatalf("expected named pending record, got %+v", inv)
	}

	inv, _ = tr.Apply(Event{Type: EventToolCall, Tool: "web_search", Input: map[string]interface{}{"query": "weather"}})
	if inv.Status != ToolRunning {
		t.Fatalf("expected running record, got %+v", inv)
	}
	if inv.Input["query"] != "weather" {
		t.Errorf("expected input to be recorded, got %+v", inv.Input)
	}

	inv, _ = tr.Apply(Event{Type: EventToolResult, Result: "sunny"})
	if inv.Status != ToolComplete || inv.Result != "sunny" {
		t.Fatalf("expected completed record, got %+v", inv)
	}

	tools := tr.Tools()
	if len(tools) != 1 {
		t.Fatalf("one tool cycle must produce exactly one record, got %d", len(tools))
	}
	if tools[0].Status != ToolComplete {
		t.Errorf("expected the single record to be complete, got %s", tools[0].Status)
	}
}

func TestTranscriptSequentialToolCycles(t *testing.T) {
	tr := NewTranscript()
	for i := 0; i < 3; i++ {
		tr.Apply(Event{Type: EventToolStart})
		tr.Apply(Event{Type: EventToolCall, Tool: "calc"})
		tr.Apply(Event{Type: EventToolResult, Result: "done"})
	}

	tools := tr.Tools()
	if len(tools) != 3 {
		t.Fatalf("expected 3 records, got %d", len(tools))
	}
	for i, inv := range tools {
		if inv.ID != i+1 {
			t.Errorf("record %d has id %d", i, inv.ID)
		}
		if inv.Status != ToolComplete {
			t.Errorf("record %d not complete: %s", i, inv.Status)
		}
	}
}

func TestTranscriptRefinementNeverReopensFinishedRecord(t *testing.T) {
	tr := NewTranscript()
	tr.Apply(Event{Type: EventToolStart})
	tr.Apply(Event{Type: EventToolCall, Tool: "calc", Input: map[string]interface{}{"expr": "1+1"}})
	tr.Apply(Event{Type: EventToolResult, Result: "2"})

	// A stray refinement after completion must start a fresh record.
	inv, touched := tr.Apply(Event{Type: EventToolResult, Result: "stray"})
	if !touched {
		t.Fatal("stray refinement should still touch a record")
	}
	if inv.ID != 2 {
		t.Fatalf("expected a fresh record, got id %d", inv.ID)
	}

	tools := tr.Tools()
	if len(tools) != 2 {
		t.Fatalf("expected 2 records, got %d", len(tools))
	}
	if tools[0].Result != "2" || tools[0].Status != ToolComplete {
		t.Errorf("finished record was mutated: %+v", tools[0])
	}
	if tools[1].Result != "stray" {
		t.Errorf("expected stray result on the new record, got %+v", tools[1])
	}
}

func TestTranscriptInterleavedContentAndTools(t *testing.T) {
	tr := NewTranscript()
	tr.Apply(Event{Type: EventContent, Content: "Let me check. "})
	tr.Apply(Event{Type: EventToolStart})
	tr.Apply(Event{Type: EventToolCall, Tool: "web_search", Input: map[string]interface{}{"query": "weather"}})
	tr.Apply(Event{Type: EventToolResult, Result: "sunny"})
	tr.Apply(Event{Type: EventContent, Content: "It's sunny."})
	tr.Apply(Event{Type: EventDone, TotalTokens: 12})

	if got := tr.Reply(); got != "Let me check. It's sunny." {
		t.Errorf("unexpected reply %q", got)
	}
	if !tr.Done() {
		t.Error("expected transcript to be done")
	}
	if tr.TotalTokens() != 12 {
		t.Errorf("expected 12 tokens, got %d", tr.TotalTokens())
	}
	if tools := tr.Tools(); len(tools) != 1 || tools[0].Status != ToolComplete {
		t.Errorf("unexpected tool records: %+v", tools)
	}
}

func TestTranscriptFailMarksOpenRecordOnly(t *testing.T) {
	tr := NewTranscript()
	tr.Apply(Event{Type: EventToolStart})
	tr.Apply(Event{Type: EventToolCall, Tool: "calc"})
	tr.Apply(Event{Type: EventToolResult, Result: "2"})
	tr.Apply(Event{Type: EventToolStart})
	tr.Apply(Event{Type: EventToolCall, Tool: "web_search"})

	tr.Fail("connection lost")

	tools := tr.Tools()
	if tools[0].Status != ToolComplete {
		t.Errorf("finished record was failed: %+v", tools[0])
	}
	if tools[1].Status != ToolError || tools[1].Err != "connection lost" {
		t.Errorf("open record was not failed: %+v", tools[1])
	}

	// With nothing open, Fail is a no-op.
	tr.Fail("again")
	if got := tr.Tools()[1].Err; got != "connection lost" {
		t.Errorf("second Fail overwrote the record: %q", got)
	}
}

func TestCollectDrivesCallbacks(t *testing.T) {
	s := &scriptedStream{events: []Event{
		{Type: EventContent, Content: "Hel"},
		{Type: EventContent, Content: "lo"},
		{Type: EventToolStart},
		{Type: EventToolCall, Tool: "calc", Input: map[string]interface{}{"expr": "1+1"}},
		{Type: EventToolResult, Result: "2"},
		{Type: EventDone, TotalTokens: 5},
	}}

	var deltas []string
	var toolEvents []EventType
	var doneReply string
	doneCalls := 0

	tr, err := Collect(s, StreamHandlers{
		OnContent: func(delta string) { deltas = append(deltas, delta) },
		OnTool:    func(ev Event, inv ToolInvocation) { toolEvents = append(toolEvents, ev.Type) },
		OnDone:    func(reply string) { doneReply = reply; doneCalls++ },
		OnError:   func(err error) { t.Errorf("unexpected error callback: %v", err) },
	})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Errorf("unexpected content deltas %v", deltas)
	}
	if len(toolEvents) != 3 {
		t.Errorf("expected 3 tool callbacks, got %v", toolEvents)
	}
	if doneCalls != 1 || doneReply != "Hello" {
		t.Errorf("expected one completion with full reply, got %d %q", doneCalls, doneReply)
	}
	if tr.Reply() != "Hello" {
		t.Errorf("unexpected transcript reply %q", tr.Reply())
	}
	if !s.closed {
		t.Error("Collect must close the stream")
	}
}

func TestCollectErrorInvokesOnErrorOnly(t *testing.T) {
	s := &scriptedStream{
		events: []Event{
			{Type: EventContent, Content: "partial"},
			{Type: EventToolStart},
			{Type: EventToolCall, Tool: "calc"},
		},
		err: &ServerError{Message: "model crashed"},
	}

	errCalls := 0
	tr, err := Collect(s, StreamHandlers{
		OnDone:  func(string) { t.Error("completion callback after an error") },
		OnError: func(err error) { errCalls++ },
	})

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if errCalls != 1 {
		t.Errorf("expected exactly one error callback, got %d", errCalls)
	}
	if tools := tr.Tools(); len(tools) != 1 || tools[0].Status != ToolError {
		t.Errorf("open tool record should be failed, got %+v", tools)
	}
}

func TestCollectCancelledInvokesNothing(t *testing.T) {
	s := &scriptedStream{
		events: []Event{{Type: EventContent, Content: "one"}},
		err:    context.Canceled,
	}

	var contentCalls, doneCalls, errCalls int
	_, err := Collect(s, StreamHandlers{
		OnContent: func(string) { contentCalls++ },
		OnDone:    func(string) { doneCalls++ },
		OnError:   func(error) { errCalls++ },
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Events received before the cancel still flow; the cancellation
	// itself produces neither a completion nor an error callback.
	if contentCalls != 1 {
		t.Errorf("expected 1 content callback before cancel, got %d", contentCalls)
	}
	if doneCalls != 0 || errCalls != 0 {
		t.Errorf("cancellation invoked terminal callbacks: done=%d err=%d", doneCalls, errCalls)
	}
}

func TestCollectEOFWithoutDoneCompletes(t *testing.T) {
	s := &scriptedStream{events: []Event{{Type: EventContent, Content: "partial"}}}

	var doneReply string
	doneCalls := 0
	tr, err := Collect(s, StreamHandlers{
		OnDone:  func(reply string) { doneReply = reply; doneCalls++ },
		OnError: func(err error) { t.Errorf("unexpected error callback: %v", err) },
	})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if doneCalls != 1 || doneReply != "partial" {
		t.Errorf("expected completion with partial reply, got %d %q", doneCalls, doneReply)
	}
	if tr.Done() {
		t.Error("transcript should not report a done event it never saw")
	}
}

func TestCollectSkipsUnknownEvents(t *testing.T) {
	s := &scriptedStream{events: []Event{
		{Type: EventType("heartbeat")},
		{Type: EventContent, Content: "hi"},
		{Type: EventDone},
	}}

	tr, err := Collect(s, StreamHandlers{})
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if tr.Reply() != "hi" {
		t.Errorf("unknown event corrupted the reply: %q", tr.Reply())
	}
}
