package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ChatSession is one persisted conversation.
type ChatSession struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Title         string `json:"title,omitempty"`
	LastMessageAt string `json:"last_message_at,omitempty"`
	IsArchived    bool   `json:"is_archived"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// ChatMessage is one stored message inside a session.
type ChatMessage struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	CreatedAt string                 `json:"created_at"`
}

// ChatResponse is the non-streaming chat reply.
type ChatResponse struct {
	Output   string                 `json:"output"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ListSessionsOptions page through the session list.
type ListSessionsOptions struct {
	Archived bool
	Limit    int
	Offset   int
}

type sessionCreate struct {
	Title string `json:"title,omitempty"`
}

type sessionUpdate struct {
	Title      string `json:"title,omitempty"`
	IsArchived *bool  `json:"is_archived,omitempty"`
}

// CreateSession starts a new conversation, optionally titled.
func (c *Client) CreateSession(ctx context.Context, title string) (*ChatSession, error) {
	var out ChatSession
	if err := c.doData(ctx, http.MethodPost, "/chat/sessions", sessionCreate{Title: title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns the caller's sessions, newest activity first.
func (c *Client) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]ChatSession, error) {
	q := url.Values{}
	if opts.Archived {
		q.Set("archived", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}
	path := "/chat/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []ChatSession
	if err := c.doData(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSession fetches one session by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*ChatSession, error) {
	var out ChatSession
	if err := c.doData(ctx, http.MethodGet, "/chat/sessions/"+url.PathEscape(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameSession sets a session's title.
func (c *Client) RenameSession(ctx context.Context, sessionID, title string) (*ChatSession, error) {
	var out ChatSession
	err := c.doData(ctx, http.MethodPatch, "/chat/sessions/"+url.PathEscape(sessionID), sessionUpdate{Title: title}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ArchiveSession toggles a session's archived flag.
func (c *Client) ArchiveSession(ctx context.Context, sessionID string, archived bool) (*ChatSession, error) {
	var out ChatSession
	err := c.doData(ctx, http.MethodPatch, "/chat/sessions/"+url.PathEscape(sessionID), sessionUpdate{IsArchived: &archived}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSession removes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doData(ctx, http.MethodDelete, "/chat/sessions/"+url.PathEscape(sessionID), nil, nil)
}

// SessionMessages returns stored messages for a session in chronological
// order.
func (c *Client) SessionMessages(ctx context.Context, sessionID string, limit, offset int) ([]ChatMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", offset))
	}
	path := "/chat/sessions/" + url.PathEscape(sessionID) + "/messages"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []ChatMessage
	if err := c.doData(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Chat sends one message without streaming and waits for the full reply.
func (c *Client) Chat(ctx context.Context, input string) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", chatRequest{Input: input}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
