// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package memory tracks the memory indicator: how many stored memories are
// relevant to the current conversation. The count is decoration, never a
// gate; failures are swallowed and the last known count stands.
package memory

import (
	"context"
	"sync"

	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport"
)

// Counter queries the backend for relevant-memory counts on a best-effort
// basis.
type Counter struct {
	backend transport.Backend

	mu    sync.RWMutex
	count int
}

// NewCounter creates a counter starting at zero.
func NewCounter(backend transport.Backend) *Counter {
	return &Counter{backend: backend}
}

// Refresh queries the count for the given history and caches it. Errors are
// swallowed: the indicator must never surface a failure to the user, so a
// failed refresh just leaves the previous count in place and reports it.
func (c *Counter) Refresh(ctx context.Context, history []model.ChatMessage) int {
	n, err := c.backend.MemoryCount(ctx, history)
	if err != nil {
		return c.Count()
	}

	c.mu.Lock()
	c.count = n
	c.mu.Unlock()
	return n
}

// Count returns the last known count.
func (c *Counter) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// Reset clears the count, used when switching to a conversation with no
// history yet.
func (c *Counter) Reset() {
	c.mu.Lock()
	c.count = 0
	c.mu.Unlock()
}
