package history

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samsaffron/term-agent/internal/agent"
)

// SessionStatus represents the current state of a mirrored conversation.
type SessionStatus string

const (
	StatusActive      SessionStatus = "active"      // Conversation is open/current (may or may not be streaming)
	StatusComplete    SessionStatus = "complete"    // Last reply finished normally
	StatusError       SessionStatus = "error"       // Last reply ended with an error
	StatusInterrupted SessionStatus = "interrupted" // Last reply was cancelled by user
)

// Message roles, matching the role strings the server uses.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Session is the local mirror of a server-side conversation. The ID is the
// server's session id so a mirrored row can always be matched back to the
// conversation it came from.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"` // First user message or auto-generated
	Server    string    `json:"server"`            // Base URL of the server that owns the conversation
	Account   string    `json:"account,omitempty"` // Email of the signed-in user at capture time
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Archived  bool      `json:"archived,omitempty"`

	// Conversation metrics
	UserTurns      int           `json:"user_turns,omitempty"`      // Number of user messages
	AssistantTurns int           `json:"assistant_turns,omitempty"` // Number of streamed replies
	ToolCalls      int           `json:"tool_calls,omitempty"`      // Total tool invocations
	TotalTokens    int           `json:"total_tokens,omitempty"`    // Sum of per-reply token counts
	Status         SessionStatus `json:"status,omitempty"`
}

// Message represents one message in a mirrored conversation.
// The Tools field stores the reply's tool invocation timeline as JSON so a
// conversation can be redisplayed exactly as it streamed.
type Message struct {
	ID          int64                  `json:"id"`
	SessionID   string                 `json:"session_id"`
	Role        string                 `json:"role"`
	Content     string                 `json:"content"`
	Tools       []agent.ToolInvocation `json:"tools,omitempty"`
	TotalTokens int                    `json:"total_tokens,omitempty"`
	DurationMs  int64                  `json:"duration_ms,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	Sequence    int                    `json:"sequence"`
}

// SessionSummary is a lightweight view of a conversation for listing.
type SessionSummary struct {
	ID             string        `json:"id"`
	Title          string        `json:"title,omitempty"`
	Summary        string        `json:"summary,omitempty"`
	Server         string        `json:"server"`
	Account        string        `json:"account,omitempty"`
	MessageCount   int           `json:"message_count"`
	UserTurns      int           `json:"user_turns,omitempty"`
	AssistantTurns int           `json:"assistant_turns,omitempty"`
	ToolCalls      int           `json:"tool_calls,omitempty"`
	TotalTokens    int           `json:"total_tokens,omitempty"`
	Status         SessionStatus `json:"status,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ListOptions configures conversation listing.
type ListOptions struct {
	Server   string        // Filter by server base URL
	Account  string        // Filter by account email
	Status   SessionStatus // Filter by status
	Limit    int           // Max results (0 = use default)
	Offset   int           // Pagination offset
	Archived bool          // Include archived conversations
}

// SearchResult represents a full-text search match.
type SearchResult struct {
	SessionID    string    `json:"session_id"`
	MessageID    int64     `json:"message_id"`
	SessionTitle string    `json:"session_title"`
	Summary      string    `json:"summary"`
	Snippet      string    `json:"snippet"` // Matched text snippet
	Server       string    `json:"server"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewMessage creates a message with an unallocated sequence number.
// AddMessage assigns the next sequence in the conversation when Sequence < 0.
func NewMessage(sessionID, role, content string) *Message {
	return &Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
		Sequence:  -1,
	}
}

// NewReplyMessage creates an assistant message from a finished transcript,
// carrying the reply text, the tool timeline, and the token count.
func NewReplyMessage(sessionID string, tr *agent.Transcript) *Message {
	m := NewMessage(sessionID, RoleAssistant, tr.Reply())
	m.Tools = tr.Tools()
	m.TotalTokens = tr.TotalTokens()
	return m
}

// ToolsJSON returns the Tools field serialized to JSON for database storage.
// An empty timeline serializes to the empty string so the column stays NULL.
func (m *Message) ToolsJSON() (string, error) {
	if len(m.Tools) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m.Tools)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetToolsFromJSON deserializes JSON into the Tools field.
func (m *Message) SetToolsFromJSON(data string) error {
	if data == "" {
		m.Tools = nil
		return nil
	}
	return json.Unmarshal([]byte(data), &m.Tools)
}

// TruncateSummary returns the first line of content, truncated to 100 chars.
func TruncateSummary(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[:idx]
	}
	if len(content) > 100 {
		content = content[:97] + "..."
	}
	return content
}

// NewID returns a fresh conversation id for drafts created before the server
// has assigned one.
func NewID() string {
	return uuid.NewString()
}
