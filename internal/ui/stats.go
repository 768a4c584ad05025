package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionStats tracks timing and usage for a chat session.
type SessionStats struct {
	StartTime     time.Time
	TotalTokens   int
	ToolCallCount int
	TurnCount     int // For multi-turn sessions (REPL)

	// Time tracking
	LLMTime       time.Duration
	ToolTime      time.Duration
	lastEventTime time.Time
	inTool        bool
}

// NewSessionStats creates a new SessionStats with StartTime set to now.
func NewSessionStats() *SessionStats {
	now := time.Now()
	return &SessionStats{
		StartTime:     now,
		lastEventTime: now,
	}
}

// AddUsage adds token usage to the stats.
func (s *SessionStats) AddUsage(tokens int) {
	s.TotalTokens += tokens
}

// ToolStart marks the start of a tool execution.
func (s *SessionStats) ToolStart() {
	now := time.Now()
	if !s.inTool {
		// Was in LLM phase, record LLM time
		s.LLMTime += now.Sub(s.lastEventTime)
	}
	s.lastEventTime = now
	s.inTool = true
	s.ToolCallCount++
}

// ToolEnd marks the end of tool execution (back to LLM).
func (s *SessionStats) ToolEnd() {
	now := time.Now()
	if s.inTool {
		// Was in tool phase, record tool time
		s.ToolTime += now.Sub(s.lastEventTime)
	}
	s.lastEventTime = now
	s.inTool = false
}

// Finalize records any remaining time.
func (s *SessionStats) Finalize() {
	now := time.Now()
	if s.inTool {
		s.ToolTime += now.Sub(s.lastEventTime)
	} else {
		s.LLMTime += now.Sub(s.lastEventTime)
	}
	s.lastEventTime = now
}

// AddTurn increments the turn count.
func (s *SessionStats) AddTurn() {
	s.TurnCount++
}

// Render returns the stats as a compact single-line string.
func (s SessionStats) Render() string {
	total := time.Since(s.StartTime)

	tokensStr := formatTokenCount(s.TotalTokens) + " tokens"

	// Format time breakdown
	var timeStr string
	if s.ToolCallCount > 0 {
		timeStr = fmt.Sprintf("%.1fs (llm %.1fs + tool %.1fs)",
			total.Seconds(), s.LLMTime.Seconds(), s.ToolTime.Seconds())
	} else {
		timeStr = fmt.Sprintf("%.1fs", total.Seconds())
	}

	if s.TurnCount > 0 {
		// Multi-turn format: Stats: 34.5s | 3 turns | 4.5k tokens | 5 tools
		return fmt.Sprintf("Stats: %s | %d turns | %s | %d tools",
			timeStr, s.TurnCount, tokensStr, s.ToolCallCount)
	}

	return fmt.Sprintf("Stats: %s | %s | %d tools",
		timeStr, tokensStr, s.ToolCallCount)
}

// formatTokenCount formats a token count in compact form (1.2k, 12k, etc.)
func formatTokenCount(n int) string {
	if n < 1000 {
		return strconv.Itoa(n)
	}
	k := float64(n) / 1000
	if k < 10 {
		return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(k, 'f', 1, 64), "0"), ".") + "k"
	}
	return strconv.FormatFloat(k, 'f', 0, 64) + "k"
}
