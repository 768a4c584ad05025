package agent

import (
	"encoding/json"
	"fmt"
)

// APIError is a non-2xx response from the backend, or a 2xx response whose
// envelope reports success=false.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// newAPIError extracts a human-readable message from an error body. The
// backend uses {"detail": ...} for HTTP errors and {"message": ...} inside
// its response envelope.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Detail != "":
			msg = payload.Detail
		case payload.Message != "":
			msg = payload.Message
		case payload.Error != "":
			msg = payload.Error
		}
	}
	if msg == "" && len(body) > 0 {
		msg = truncate(string(body), 200)
	}
	return &APIError{StatusCode: status, Message: msg}
}

// ProtocolError is a stream frame that could not be decoded. The line
// framing guarantees the frame was complete, so this is a real wire
// problem, not a chunking artifact; it aborts the current stream only.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("malformed stream event: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ServerError is an error event the backend emitted inside a stream. It
// carries the server-supplied message and terminates the stream.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "server reported an error"
	}
	return e.Message
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
