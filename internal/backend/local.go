// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport"
)

// defaultSystemPrompt is used in default prompt mode and as the base of the
// context-aware prompt.
const defaultSystemPrompt = "You are Daybook's assistant. You help the user plan their days, " +
	"track tasks, and reflect on notes. Be concise and concrete."

const querySystemPrompt = "You answer one-off questions about the user's personal notes, " +
	"tasks, and plans. Answer directly from the facts below; say so when you don't know."

// =============================================================================
// LOCAL BACKEND
// =============================================================================

// Local is the in-process backend: SQLite persistence plus streaming chat
// against the configured provider. It satisfies transport.Backend for the
// TUI and additionally exposes synchronous stream methods for the daemon.
type Local struct {
	store    *Store
	provider *Provider

	sendFeed  *transport.Feed
	queryFeed *transport.Feed

	mu         sync.Mutex
	sendCancel context.CancelFunc
}

var _ transport.Backend = (*Local)(nil)

// NewLocal creates a local backend over an open store and provider.
func NewLocal(store *Store, provider *Provider) *Local {
	return &Local{
		store:     store,
		provider:  provider,
		sendFeed:  transport.NewFeed(),
		queryFeed: transport.NewFeed(),
	}
}

// =============================================================================
// CONVERSATIONS (delegated to the store)
// =============================================================================

func (l *Local) GetConversations(ctx context.Context) ([]model.Conversation, error) {
	return l.store.ListConversations(ctx)
}

func (l *Local) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return l.store.GetConversation(ctx, id)
}

func (l *Local) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	return l.store.CreateConversation(ctx, title)
}

func (l *Local) DeleteConversation(ctx context.Context, id string) error {
	return l.store.DeleteConversation(ctx, id)
}

func (l *Local) RenameConversation(ctx context.Context, id, title string) error {
	return l.store.RenameConversation(ctx, id, title)
}

func (l *Local) AddMessage(ctx context.Context, conversationID string, msg model.Message) error {
	return l.store.AddMessage(ctx, conversationID, msg)
}

// =============================================================================
// STREAMING
// =============================================================================

// prepareStream runs the synchronous part of stream issuance: settings load,
// provider reachability, and system prompt resolution. Failures here are
// issuance failures; everything after streams as events.
func (l *Local) prepareStream(ctx context.Context, promptOverride string) (model.ChatSettings, string, error) {
	settings, err := l.store.GetSettings(ctx)
	if err != nil {
		return model.ChatSettings{}, "", err
	}
	if err := l.provider.Ping(ctx); err != nil {
		return model.ChatSettings{}, "", err
	}

	prompt := promptOverride
	if prompt == "" {
		prompt = l.resolveSystemPrompt(ctx, settings)
	}
	return settings, prompt, nil
}

// resolveSystemPrompt builds the effective system prompt for the settings'
// prompt mode. Context mode folds stored memory facts into the prompt.
func (l *Local) resolveSystemPrompt(ctx context.Context, settings model.ChatSettings) string {
	switch settings.SystemPromptMode {
	case model.PromptModeCustom:
		if settings.CustomSystemPrompt != "" {
			return settings.CustomSystemPrompt
		}
		return defaultSystemPrompt
	case model.PromptModeContext:
		return withMemoryFacts(ctx, l.store, defaultSystemPrompt)
	default:
		return defaultSystemPrompt
	}
}

// withMemoryFacts appends stored memory facts to a base prompt. Memory is
// decoration: a read failure just yields the base prompt.
func withMemoryFacts(ctx context.Context, store *Store, base string) string {
	items, err := store.ListMemoryItems(ctx)
	if err != nil || len(items) == 0 {
		return base
	}
	// Newest facts win when there are too many to include.
	const maxFacts = 20
	if len(items) > maxFacts {
		items = items[len(items)-maxFacts:]
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nKnown facts about the user:\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return b.String()
}

// stream runs one provider stream, translating chunks into events on fn.
// A canceled context ends the stream silently; the aborting side has already
// decided what to do with the partial text.
func (l *Local) stream(ctx context.Context, id string, settings model.ChatSettings, history []model.ChatMessage, prompt string, fn func(transport.StreamEvent)) {
	usedModel, usage, err := l.provider.StreamChat(ctx, settings.Model, history, prompt, settings.MaxTokens, func(chunk string) {
		fn(transport.StreamEvent{ID: id, Kind: transport.EventChunk, Chunk: chunk})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fn(transport.StreamEvent{ID: id, Kind: transport.EventError, Err: err.Error()})
		return
	}

	if usedModel == "" {
		usedModel = settings.Model
	}
	fn(transport.StreamEvent{ID: id, Kind: transport.EventEnd, Model: usedModel, Usage: usage})
}

// SendMessage issues a send stream onto the send feed. A new send cancels
// any stream still in flight.
func (l *Local) SendMessage(ctx context.Context, conversationID string, history []model.ChatMessage, systemPrompt string) error {
	settings, prompt, err := l.prepareStream(ctx, systemPrompt)
	if err != nil {
		return err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	l.mu.Lock()
	if l.sendCancel != nil {
		l.sendCancel()
	}
	l.sendCancel = cancel
	l.mu.Unlock()

	go func() {
		defer cancel()
		l.stream(streamCtx, conversationID, settings, history, prompt, l.sendFeed.Publish)
	}()
	return nil
}

// AbortSend cancels the in-flight send stream, if any.
func (l *Local) AbortSend(ctx context.Context) error {
	l.mu.Lock()
	cancel := l.sendCancel
	l.sendCancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// SmartQuery issues a query stream onto the query feed and returns the
// assigned query id.
func (l *Local) SmartQuery(ctx context.Context, text string) (string, error) {
	settings, _, err := l.prepareStream(ctx, "")
	if err != nil {
		return "", err
	}

	queryID := "q_" + uuid.NewString()
	prompt := withMemoryFacts(ctx, l.store, querySystemPrompt)
	history := []model.ChatMessage{{Role: "user", Content: text}}

	go l.stream(context.Background(), queryID, settings, history, prompt, l.queryFeed.Publish)
	return queryID, nil
}

func (l *Local) SubscribeSendEvents(h transport.StreamHandler) func() {
	return l.sendFeed.Subscribe(h)
}

func (l *Local) SubscribeQueryEvents(h transport.StreamHandler) func() {
	return l.queryFeed.Subscribe(h)
}

// =============================================================================
// SYNCHRONOUS STREAMS (daemon entry points)
// =============================================================================

// StreamSend runs a send stream synchronously, delivering events to fn until
// the stream ends. The returned error covers issuance only.
func (l *Local) StreamSend(ctx context.Context, conversationID string, history []model.ChatMessage, systemPrompt string, fn func(transport.StreamEvent)) error {
	settings, prompt, err := l.prepareStream(ctx, systemPrompt)
	if err != nil {
		return err
	}
	l.stream(ctx, conversationID, settings, history, prompt, fn)
	return nil
}

// StreamQuery runs a smart query synchronously: it returns the assigned
// query id via started before streaming events to fn.
func (l *Local) StreamQuery(ctx context.Context, text string, started func(queryID string), fn func(transport.StreamEvent)) error {
	settings, _, err := l.prepareStream(ctx, "")
	if err != nil {
		return err
	}

	queryID := "q_" + uuid.NewString()
	started(queryID)

	prompt := withMemoryFacts(ctx, l.store, querySystemPrompt)
	history := []model.ChatMessage{{Role: "user", Content: text}}
	l.stream(ctx, queryID, settings, history, prompt, fn)
	return nil
}

// =============================================================================
// SETTINGS AND MEMORY
// =============================================================================

func (l *Local) GetChatSettings(ctx context.Context) (model.ChatSettings, error) {
	return l.store.GetSettings(ctx)
}

func (l *Local) SaveChatSettings(ctx context.Context, patch model.SettingsPatch) (model.ChatSettings, error) {
	return l.store.SaveSettings(ctx, patch)
}

func (l *Local) GetProvider(ctx context.Context) (string, error) {
	return l.provider.Name(), nil
}

// GetProviderModels returns the provider's installed models, falling back to
// the built-in list when the provider can't be asked.
func (l *Local) GetProviderModels(ctx context.Context) (map[string][]string, error) {
	models, err := l.provider.ListModels(ctx)
	if err != nil || len(models) == 0 {
		models = append([]string(nil), model.FallbackModels...)
	}
	return map[string][]string{l.provider.Name(): models}, nil
}

func (l *Local) MemoryCount(ctx context.Context, history []model.ChatMessage) (int, error) {
	return l.store.CountRelevantMemories(ctx, history)
}

// AddMemoryItem stores a memory fact. Exposed for the CLI's memory seeding.
func (l *Local) AddMemoryItem(ctx context.Context, content string) error {
	return l.store.AddMemoryItem(ctx, content)
}
