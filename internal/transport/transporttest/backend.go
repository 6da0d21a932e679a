// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transporttest provides an in-memory Backend fake for tests. State
// lives in exported fields; per-call error hooks simulate failures; stream
// events are driven by publishing on the exposed feeds.
package transporttest

import (
	"context"
	"strconv"
	"sync"

	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport"
)

// SendCall records one SendMessage invocation.
type SendCall struct {
	ConversationID string
	History        []model.ChatMessage
	SystemPrompt   string
}

// Backend is an in-memory transport.Backend.
type Backend struct {
	mu sync.Mutex

	Conversations []model.Conversation
	Settings      model.ChatSettings
	Provider      string
	Models        map[string][]string
	MemoryN       int

	SendFeed  *transport.Feed
	QueryFeed *transport.Feed

	// Records of streaming calls.
	SendCalls  []SendCall
	QueryTexts []string
	Aborts     int

	// Error hooks: when set, the matching call fails with that error.
	FailGetConversations error
	FailCreate           error
	FailAddMessage       error
	FailRename           error
	FailDelete           error
	FailSend             error
	FailQuery            error
	FailSaveSettings     error
	FailMemory           error

	// SettingsEcho, when set, overrides the echo returned by
	// SaveChatSettings to simulate a backend that adjusts the patch.
	SettingsEcho *model.ChatSettings

	// QueryIssued, when set, runs inside SmartQuery after the id is
	// assigned but before the call returns. Publishing on QueryFeed from
	// here simulates chunks that beat the issuance return.
	QueryIssued func(queryID string)

	nextConv  int
	nextQuery int
}

var _ transport.Backend = (*Backend)(nil)

// New creates an empty fake backend with sensible defaults.
func New() *Backend {
	return &Backend{
		Settings:  model.DefaultChatSettings(),
		Provider:  "ollama",
		Models:    map[string][]string{"ollama": {"qwen2.5:7b", "llama3.1:8b"}},
		SendFeed:  transport.NewFeed(),
		QueryFeed: transport.NewFeed(),
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func (b *Backend) GetConversations(ctx context.Context) ([]model.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailGetConversations != nil {
		return nil, b.FailGetConversations
	}
	out := make([]model.Conversation, len(b.Conversations))
	copy(out, b.Conversations)
	return out, nil
}

func (b *Backend) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if conv := b.findLocked(id); conv != nil {
		c := *conv
		return &c, nil
	}
	return nil, transport.ErrNotFound
}

func (b *Backend) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailCreate != nil {
		return nil, b.FailCreate
	}
	if title == "" {
		title = model.PlaceholderTitle
	}
	b.nextConv++
	conv := model.Conversation{
		ID:       "conv_" + strconv.Itoa(b.nextConv),
		Title:    title,
		Messages: []model.Message{},
	}
	b.Conversations = append([]model.Conversation{conv}, b.Conversations...)
	return &conv, nil
}

func (b *Backend) DeleteConversation(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailDelete != nil {
		return b.FailDelete
	}
	for i := range b.Conversations {
		if b.Conversations[i].ID == id {
			b.Conversations = append(b.Conversations[:i], b.Conversations[i+1:]...)
			return nil
		}
	}
	return transport.ErrNotFound
}

func (b *Backend) RenameConversation(ctx context.Context, id, title string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailRename != nil {
		return b.FailRename
	}
	if conv := b.findLocked(id); conv != nil {
		conv.Title = title
		return nil
	}
	return transport.ErrNotFound
}

func (b *Backend) AddMessage(ctx context.Context, conversationID string, msg model.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailAddMessage != nil {
		return b.FailAddMessage
	}
	if conv := b.findLocked(conversationID); conv != nil {
		conv.Messages = append(conv.Messages, msg)
		return nil
	}
	return transport.ErrNotFound
}

func (b *Backend) findLocked(id string) *model.Conversation {
	for i := range b.Conversations {
		if b.Conversations[i].ID == id {
			return &b.Conversations[i]
		}
	}
	return nil
}

// =============================================================================
// STREAMING
// =============================================================================

func (b *Backend) SendMessage(ctx context.Context, conversationID string, history []model.ChatMessage, systemPrompt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailSend != nil {
		return b.FailSend
	}
	b.SendCalls = append(b.SendCalls, SendCall{
		ConversationID: conversationID,
		History:        history,
		SystemPrompt:   systemPrompt,
	})
	return nil
}

func (b *Backend) AbortSend(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Aborts++
	return nil
}

func (b *Backend) SmartQuery(ctx context.Context, text string) (string, error) {
	b.mu.Lock()
	if b.FailQuery != nil {
		b.mu.Unlock()
		return "", b.FailQuery
	}
	b.QueryTexts = append(b.QueryTexts, text)
	b.nextQuery++
	id := "q_" + strconv.Itoa(b.nextQuery)
	hook := b.QueryIssued
	b.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return id, nil
}

func (b *Backend) SubscribeSendEvents(h transport.StreamHandler) func() {
	return b.SendFeed.Subscribe(h)
}

func (b *Backend) SubscribeQueryEvents(h transport.StreamHandler) func() {
	return b.QueryFeed.Subscribe(h)
}

// =============================================================================
// SETTINGS AND MEMORY
// =============================================================================

func (b *Backend) GetChatSettings(ctx context.Context) (model.ChatSettings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Settings, nil
}

func (b *Backend) SaveChatSettings(ctx context.Context, patch model.SettingsPatch) (model.ChatSettings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailSaveSettings != nil {
		return model.ChatSettings{}, b.FailSaveSettings
	}
	if b.SettingsEcho != nil {
		b.Settings = *b.SettingsEcho
		return b.Settings, nil
	}
	merged := b.Settings.Apply(patch)
	merged.Normalize()
	b.Settings = merged
	return merged, nil
}

func (b *Backend) GetProvider(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Provider, nil
}

func (b *Backend) GetProviderModels(ctx context.Context) (map[string][]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]string, len(b.Models))
	for k, v := range b.Models {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (b *Backend) MemoryCount(ctx context.Context, history []model.ChatMessage) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailMemory != nil {
		return 0, b.FailMemory
	}
	return b.MemoryN, nil
}

// =============================================================================
// TEST HELPERS
// =============================================================================

// SendCallCount returns how many sends were issued.
func (b *Backend) SendCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.SendCalls)
}

// LastSendCall returns the most recent send, or nil.
func (b *Backend) LastSendCall() *SendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.SendCalls) == 0 {
		return nil
	}
	call := b.SendCalls[len(b.SendCalls)-1]
	return &call
}
