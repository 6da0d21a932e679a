// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"context"
	"strings"
	"sync"

	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport"
)

// =============================================================================
// CONVERSATION CACHE
// =============================================================================

// Conversations caches the backend's conversation list and tracks which
// conversation is active in the UI.
//
// Every mutation round-trips through the backend and then reloads the whole
// list, so the cache never drifts from what was actually persisted. The
// reload is awaited before the mutation method returns; callers can rely on
// the cache reflecting the mutation afterwards.
//
// Thread-safe: the coordinator mutates from command goroutines while the UI
// reads from the render loop.
type Conversations struct {
	backend transport.Backend

	mu       sync.RWMutex
	list     []model.Conversation
	activeID string
}

// NewConversations creates an empty cache over the given backend.
func NewConversations(backend transport.Backend) *Conversations {
	return &Conversations{backend: backend}
}

// Load replaces the cached list with the backend's current state.
func (c *Conversations) Load(ctx context.Context) error {
	list, err := c.backend.GetConversations(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = list

	// Drop the selection if its conversation disappeared underneath us.
	if c.activeID != "" && c.findLocked(c.activeID) == nil {
		c.activeID = ""
	}
	return nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Create makes a new conversation, reloads, and returns the new id. The id
// is returned before any reload races can reorder the list, so callers can
// select the conversation immediately.
func (c *Conversations) Create(ctx context.Context, title string) (string, error) {
	conv, err := c.backend.CreateConversation(ctx, title)
	if err != nil {
		return "", err
	}
	if err := c.Load(ctx); err != nil {
		return "", err
	}
	return conv.ID, nil
}

// Delete removes a conversation and reloads. Deleting the active
// conversation clears the selection.
func (c *Conversations) Delete(ctx context.Context, id string) error {
	if err := c.backend.DeleteConversation(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	if c.activeID == id {
		c.activeID = ""
	}
	c.mu.Unlock()

	return c.Load(ctx)
}

// Rename sets a conversation's title and reloads. A title that is empty
// after trimming is rejected silently; the existing title stands.
func (c *Conversations) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	if err := c.backend.RenameConversation(ctx, id, title); err != nil {
		return err
	}
	return c.Load(ctx)
}

// AddMessage appends a message to a conversation and reloads, so the cached
// history includes the new message before the caller proceeds.
func (c *Conversations) AddMessage(ctx context.Context, id string, msg model.Message) error {
	if err := c.backend.AddMessage(ctx, id, msg); err != nil {
		return err
	}
	return c.Load(ctx)
}

// =============================================================================
// SELECTION AND READS
// =============================================================================

// SetActive selects a conversation. Empty id clears the selection.
func (c *Conversations) SetActive(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeID = id
}

// ActiveID returns the selected conversation id, or "".
func (c *Conversations) ActiveID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID
}

// Active returns a copy of the selected conversation, or nil when nothing is
// selected or the selection no longer exists.
func (c *Conversations) Active() *model.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.activeID == "" {
		return nil
	}
	return c.findLocked(c.activeID)
}

// Get returns a copy of a conversation by id, or nil.
func (c *Conversations) Get(id string) *model.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.findLocked(id)
}

// All returns a snapshot of the cached list.
func (c *Conversations) All() []model.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Conversation, len(c.list))
	copy(out, c.list)
	return out
}

// Count returns the number of cached conversations.
func (c *Conversations) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.list)
}

// findLocked returns a copy of the conversation with the given id. Callers
// must hold at least a read lock.
func (c *Conversations) findLocked(id string) *model.Conversation {
	for i := range c.list {
		if c.list[i].ID == id {
			conv := c.list[i]
			return &conv
		}
	}
	return nil
}
