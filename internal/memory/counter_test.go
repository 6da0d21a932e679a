// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport/transporttest"
)

func TestRefreshUpdatesCount(t *testing.T) {
	backend := transporttest.New()
	backend.MemoryN = 3

	c := NewCounter(backend)
	history := []model.ChatMessage{{Role: "user", Content: "remind me about rent"}}

	if got := c.Refresh(context.Background(), history); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if c.Count() != 3 {
		t.Errorf("count not cached: %d", c.Count())
	}
}

func TestRefreshSwallowsErrors(t *testing.T) {
	backend := transporttest.New()
	backend.MemoryN = 5

	c := NewCounter(backend)
	c.Refresh(context.Background(), nil)

	// A later failure leaves the last known count in place.
	backend.FailMemory = errors.New("index rebuilding")
	if got := c.Refresh(context.Background(), nil); got != 5 {
		t.Errorf("failed refresh must report last count, got %d", got)
	}
	if c.Count() != 5 {
		t.Errorf("count clobbered by failure: %d", c.Count())
	}
}

func TestReset(t *testing.T) {
	backend := transporttest.New()
	backend.MemoryN = 2

	c := NewCounter(backend)
	c.Refresh(context.Background(), nil)
	c.Reset()
	if c.Count() != 0 {
		t.Errorf("expected 0 after reset, got %d", c.Count())
	}
}
