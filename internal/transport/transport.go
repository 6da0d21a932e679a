// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"

	"github.com/daybookhq/daybook-tui/internal/model"
)

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// Backend is the full set of calls the UI makes against a daybook backend.
//
// Invoke/response calls return their result or error directly. The two
// streaming calls (SendMessage, SmartQuery) only report synchronous issuance
// failures through their error return; stream content arrives via the event
// feeds, tagged with the correlation id so subscribers can discard events
// from sessions they no longer track.
type Backend interface {
	// --- Conversations ---

	// GetConversations returns all conversations, most recently updated
	// first, with full message histories.
	GetConversations(ctx context.Context) ([]model.Conversation, error)

	// GetConversation returns one conversation by id.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)

	// CreateConversation creates a conversation. An empty title yields the
	// placeholder title.
	CreateConversation(ctx context.Context, title string) (*model.Conversation, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// RenameConversation sets a conversation's title.
	RenameConversation(ctx context.Context, id, title string) error

	// AddMessage appends a message to a conversation's history.
	AddMessage(ctx context.Context, conversationID string, msg model.Message) error

	// --- Streaming ---

	// SendMessage starts an assistant response stream for the conversation.
	// Events arrive on the send feed keyed by conversationID. systemPrompt
	// is the optional prompt override (custom mode); empty means the
	// backend resolves the prompt itself.
	SendMessage(ctx context.Context, conversationID string, history []model.ChatMessage, systemPrompt string) error

	// AbortSend cancels the in-flight send stream, if any. Aborting when
	// nothing is streaming is a no-op.
	AbortSend(ctx context.Context) error

	// SmartQuery starts a one-off query stream over the user's data and
	// returns the backend-assigned query id. Events arrive on the query
	// feed keyed by that id.
	SmartQuery(ctx context.Context, text string) (string, error)

	// SubscribeSendEvents registers a handler for send stream events and
	// returns its unsubscribe function.
	SubscribeSendEvents(h StreamHandler) func()

	// SubscribeQueryEvents registers a handler for smart query stream
	// events and returns its unsubscribe function.
	SubscribeQueryEvents(h StreamHandler) func()

	// --- Settings ---

	// GetChatSettings returns the persisted chat settings.
	GetChatSettings(ctx context.Context) (model.ChatSettings, error)

	// SaveChatSettings merges the patch server-side and returns the full
	// resulting settings. Callers adopt the echo, not their local merge.
	SaveChatSettings(ctx context.Context, patch model.SettingsPatch) (model.ChatSettings, error)

	// GetProvider returns the active provider name.
	GetProvider(ctx context.Context) (string, error)

	// GetProviderModels returns the provider→models mapping.
	GetProviderModels(ctx context.Context) (map[string][]string, error)

	// --- Memory ---

	// MemoryCount returns how many stored memories are relevant to the
	// given history.
	MemoryCount(ctx context.Context, history []model.ChatMessage) (int, error)
}
