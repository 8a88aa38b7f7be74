// Package chathistory keeps the per-session conversation log that is folded
// into refinement prompts. Messages are append-only.
package chathistory

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Collection is the document collection holding chat histories.
const Collection = "virtual_staging_chat_history"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one chat turn.
type Message struct {
	MessageID             string         `json:"message_id" dynamodbav:"message_id"`
	SessionID             string         `json:"session_id" dynamodbav:"session_id"`
	Role                  Role           `json:"role" dynamodbav:"role"`
	Content               string         `json:"content" dynamodbav:"content"`
	RefinementIteration   int            `json:"refinement_iteration" dynamodbav:"refinement_iteration"`
	StagingParametersUsed map[string]any `json:"staging_parameters_used,omitempty" dynamodbav:"staging_parameters_used,omitempty"`
	CreatedAt             time.Time      `json:"created_at" dynamodbav:"created_at"`
}

// History is the chat log of one staging session.
type History struct {
	HistoryID              string         `json:"history_id" dynamodbav:"history_id"`
	SessionID              string         `json:"session_id" dynamodbav:"session_id"`
	PropertyID             string         `json:"property_id" dynamodbav:"property_id"`
	UserID                 string         `json:"user_id,omitempty" dynamodbav:"user_id,omitempty"`
	Messages               []Message      `json:"messages" dynamodbav:"messages"`
	ContextSummary         string         `json:"context_summary,omitempty" dynamodbav:"context_summary,omitempty"`
	AccumulatedRefinements map[string]any `json:"accumulated_refinements" dynamodbav:"accumulated_refinements"`
	TotalMessages          int            `json:"total_messages" dynamodbav:"total_messages"`
	TotalIterations        int            `json:"total_iterations" dynamodbav:"total_iterations"`
	CreatedAt              time.Time      `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at" dynamodbav:"updated_at"`
	LastMessageAt          *time.Time     `json:"last_message_at,omitempty" dynamodbav:"last_message_at,omitempty"`
	Version                int64          `json:"version" dynamodbav:"version"`
}

func (h *History) append(m Message) {
	h.Messages = append(h.Messages, m)
	h.TotalMessages = len(h.Messages)
	h.UpdatedAt = m.CreatedAt
	at := m.CreatedAt
	h.LastMessageAt = &at
}

// Render formats the history as plain text for a prompt. With full set,
// every message is included; otherwise only the last lastN.
func (h *History) Render(full bool, lastN int) string {
	lines := []string{
		"Session ID: " + h.SessionID,
		"Property ID: " + h.PropertyID,
	}
	if h.ContextSummary != "" {
		lines = append(lines, "\nContext Summary:\n"+h.ContextSummary)
	}
	if len(h.AccumulatedRefinements) > 0 {
		lines = append(lines, "\nAccumulated Refinements:")
		keys := make([]string, 0, len(h.AccumulatedRefinements))
		for k := range h.AccumulatedRefinements {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("  - %s: %v", k, h.AccumulatedRefinements[k]))
		}
	}

	lines = append(lines, "\nConversation History:")
	msgs := h.Messages
	if !full && lastN >= 0 && len(msgs) > lastN {
		msgs = msgs[len(msgs)-lastN:]
	}
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("[%s] %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// Summary is a compact view of a history's counters.
type Summary struct {
	HistoryID              string         `json:"history_id"`
	TotalMessages          int            `json:"total_messages"`
	TotalIterations        int            `json:"total_iterations"`
	ContextSummary         string         `json:"context_summary,omitempty"`
	LastMessageAt          *time.Time     `json:"last_message_at,omitempty"`
	AccumulatedRefinements map[string]any `json:"accumulated_refinements"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}
