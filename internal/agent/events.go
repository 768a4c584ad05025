package agent

import (
	"context"
	"io"
)

// EventType describes the streamed reply events sent by the backend.
type EventType string

const (
	EventContent      EventType = "content"       // a fragment of assistant text
	EventToolStart    EventType = "tool_start"    // the agent began a tool phase
	EventToolThinking EventType = "tool_thinking" // the agent picked a tool
	EventToolCall     EventType = "tool_call"     // tool name and input are known
	EventToolResult   EventType = "tool_result"   // the tool finished
	EventDone         EventType = "done"          // terminal: reply complete
	EventError        EventType = "error"         // terminal: server-side failure
)

// Event is one decoded frame from the chat stream. Which fields are set
// depends on Type; unused fields stay zero.
type Event struct {
	Type        EventType              `json:"type"`
	Content     string                 `json:"content,omitempty"`
	Token       int                    `json:"token,omitempty"`
	Message     string                 `json:"message,omitempty"`
	ToolName    string                 `json:"tool_name,omitempty"`
	Tool        string                 `json:"tool,omitempty"`
	Input       map[string]interface{} `json:"input,omitempty"`
	Result      string                 `json:"result,omitempty"`
	TotalTokens int                    `json:"total_tokens,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Stream delivers decoded reply events in server order. Recv blocks until
// the next event and returns io.EOF once the stream has ended cleanly.
// A Stream is read by a single consumer; Close aborts an in-progress stream
// and releases the underlying connection.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// eventStream adapts a producer function to the Stream interface. The
// producer runs in its own goroutine and pushes events into a channel;
// its return value becomes the stream's terminal error (nil means io.EOF).
// Once the stream is cancelled, Recv reports the cancellation instead of
// any event still sitting in the buffer.
type eventStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	result chan error
	err    error
	done   bool
}

func newEventStream(ctx context.Context, run func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 32),
		result: make(chan error, 1),
	}
	go func() {
		err := run(ctx, s.events)
		if err == nil && ctx.Err() != nil {
			// The producer may drain cleanly when the connection is torn
			// down under it; cancellation still wins.
			err = ctx.Err()
		}
		s.result <- err
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	if s.done {
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return Event{}, s.terminate(err)
	}
	ev, ok := <-s.events
	if !ok {
		return Event{}, s.terminate(<-s.result)
	}
	// An event that was buffered when cancellation hit is dropped, not
	// delivered: after cancel the caller sees nothing but the cancellation.
	if err := s.ctx.Err(); err != nil {
		return Event{}, s.terminate(err)
	}
	return ev, nil
}

// terminate latches the stream's terminal state. A nil error means the
// stream ended cleanly and every later Recv returns io.EOF.
func (s *eventStream) terminate(err error) error {
	s.done = true
	s.err = err
	if err != nil {
		return err
	}
	return io.EOF
}

func (s *eventStream) Close() error {
	s.cancel()
	return nil
}

// sendEvent delivers ev unless the stream has been cancelled. Producers
// must use this for every send so Close can always unblock them.
func sendEvent(ctx context.Context, events chan<- Event, ev Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
