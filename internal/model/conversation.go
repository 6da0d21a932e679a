// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// PlaceholderTitle is the default title assigned at creation. A conversation
// that still carries it is eligible for automatic renaming from the first
// user message.
const PlaceholderTitle = "New chat"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat conversation with its ordered message history.
// Messages are append-only from the client's perspective; the backend is the
// durability authority.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `json:"messages"`
}

// NewConversation creates a conversation with a generated ID and the
// placeholder title. Used by backend implementations; clients receive IDs
// from the backend.
func NewConversation(title string) *Conversation {
	if title == "" {
		title = PlaceholderTitle
	}
	now := time.Now().UTC()
	return &Conversation{
		ID:        generateConversationID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]Message, 0),
	}
}

// =============================================================================
// MESSAGE ACCESS
// =============================================================================

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// History returns the role/content history for the backend call.
func (c *Conversation) History() []ChatMessage {
	return HistoryFromMessages(c.Messages)
}

// NeedsAutoTitle reports whether the conversation should be renamed from its
// first message: exactly one message exists and the title is still the
// placeholder.
func (c *Conversation) NeedsAutoTitle() bool {
	return len(c.Messages) == 1 && c.Title == PlaceholderTitle
}

// Preview returns a short preview from the first user message.
func (c *Conversation) Preview() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg.Preview(80)
		}
	}
	return ""
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}
