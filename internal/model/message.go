// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// StoppedMarker is appended to an assistant message when its stream was
// aborted mid-flight. Partial output is persisted, never silently dropped.
const StoppedMarker = "\n\n*[Response stopped]*"

// TokenUsage reports the token accounting of a completed generation.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Message represents a single message in a conversation.
//
// Model and TokenUsage are set only on assistant messages produced by a
// completed stream; aborted streams carry neither, only the StoppedMarker
// suffix in Content.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	Model      string      `json:"model,omitempty"`
	TokenUsage *TokenUsage `json:"tokenUsage,omitempty"`
}

// NewUserMessage creates a new user message with a generated ID.
func NewUserMessage(content string) Message {
	return Message{
		ID:        generateMessageID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistantMessage creates an assistant message from a completed stream.
func NewAssistantMessage(content, model string, usage TokenUsage) Message {
	return Message{
		ID:         generateMessageID(),
		Role:       RoleAssistant,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		Model:      model,
		TokenUsage: &usage,
	}
}

// NewAbortedMessage creates an assistant message from the partial text of an
// aborted stream, with the stopped marker appended.
func NewAbortedMessage(partial string) Message {
	return Message{
		ID:        generateMessageID(),
		Role:      RoleAssistant,
		Content:   partial + StoppedMarker,
		Timestamp: time.Now().UTC(),
	}
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen {
		return m.Content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// WIRE HISTORY
// =============================================================================

// ChatMessage is the role/content pair sent to the backend as history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryFromMessages converts persisted messages to the wire history format.
// Empty messages are skipped.
func HistoryFromMessages(messages []Message) []ChatMessage {
	history := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		history = append(history, ChatMessage{
			Role:    msg.Role.String(),
			Content: msg.Content,
		})
	}
	return history
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateMessageID creates a unique message ID: time-based with a random
// suffix, collision-resistant within a session.
func generateMessageID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return "msg_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + hex.EncodeToString(bytes)
}
