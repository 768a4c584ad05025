package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/samsaffron/term-agent/internal/auth"
)

// maxEventBytes caps a single stream line. Tool results can be large but a
// line beyond this is a runaway.
const maxEventBytes = 10 * 1024 * 1024

// StreamChat opens a streaming reply for input. sessionID may be empty for
// a sessionless exchange. The credential is fetched before the request goes
// out; with no usable credential this fails immediately and no stream is
// opened. Cancel the context to abort the stream.
func (c *Client) StreamChat(ctx context.Context, sessionID, input string) (Stream, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		err := c.runStream(ctx, sessionID, input, token, events)

		// A 401 on open means the token died between the expiry check and
		// the server; refresh once and retry once. Mid-stream this cannot
		// happen, so no events have been delivered yet.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			fresh, rerr := c.tokens.Refresh(ctx)
			if rerr != nil {
				return rerr
			}
			err = c.runStream(ctx, sessionID, input, fresh, events)
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
				return fmt.Errorf("%w: server rejected refreshed token", auth.ErrUnauthenticated)
			}
		}
		return err
	}), nil
}

type chatRequest struct {
	Input string `json:"input"`
}

// runStream performs one streaming request and decodes frames until a
// terminal event, connection close, or cancellation.
func (c *Client) runStream(ctx context.Context, sessionID, input, token string, events chan<- Event) error {
	payload, err := json.Marshal(chatRequest{Input: input})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	endpoint := c.baseURL + "/chat/stream"
	if sessionID != "" {
		endpoint += "?session_id=" + url.QueryEscape(sessionID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+token)

	if c.debugRaw {
		debugRequest(req)
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return newAPIError(resp.StatusCode, body)
	}

	// The scanner owns the carry-over buffer: reads may split lines (and
	// JSON objects) at arbitrary byte boundaries, but the loop below only
	// ever sees complete lines. A JSON failure past this point is a real
	// protocol error, never a torn chunk.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		if c.debugRaw && line != "" {
			DebugRawSection(true, "Stream Line", line)
		}
		ev, ok, err := parseEventLine(line)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch ev.Type {
		case EventError:
			// Terminal: surface the server's message as the stream error
			// rather than an event, so it cannot be mistaken for content.
			return &ServerError{Message: ev.Error}
		case EventDone:
			if err := sendEvent(ctx, events, ev); err != nil {
				return err
			}
			return nil
		default:
			if err := sendEvent(ctx, events, ev); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	// Connection closed without a done event: a legal quiet ending.
	return nil
}

// parseEventLine classifies one complete stream line. Blank lines separate
// frames and comment lines (": connected" keep-alives) carry no payload;
// both report ok=false. Data lines must hold one JSON event object.
func parseEventLine(line string) (Event, bool, error) {
	if line == "" || strings.HasPrefix(line, ":") {
		return Event{}, false, nil
	}
	if !strings.HasPrefix(line, "data:") {
		// Other SSE fields (event:, id:, retry:) are not part of this
		// backend's contract; skip rather than fail so additions stay
		// backward compatible.
		return Event{}, false, nil
	}

	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" {
		return Event{}, false, nil
	}

	var ev Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return Event{}, false, &ProtocolError{Line: line, Err: err}
	}
	if ev.Type == "" {
		return Event{}, false, &ProtocolError{Line: line, Err: errors.New("event missing type")}
	}
	return ev, true, nil
}
