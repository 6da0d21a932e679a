// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"sync"

	"github.com/daybookhq/daybook-tui/internal/model"
)

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventKind discriminates stream events. Every stream is a sequence of chunk
// events terminated by exactly one end or error event.
type EventKind int

const (
	EventChunk EventKind = iota
	EventEnd
	EventError
)

// StreamEvent is one event of a streaming operation. ID is the correlation
// id: the conversation id for send streams, the query id for smart queries.
// Handlers must discard events whose ID does not match the session they are
// tracking.
type StreamEvent struct {
	ID   string
	Kind EventKind

	// Chunk text (EventChunk only).
	Chunk string

	// Completion metadata (EventEnd only).
	Model string
	Usage model.TokenUsage

	// Error text (EventError only).
	Err string
}

// StreamHandler receives stream events. Handlers are invoked synchronously
// from the stream's delivery goroutine; slow work delays later events of the
// same stream but never another stream.
type StreamHandler func(StreamEvent)

// =============================================================================
// SUBSCRIPTION FEED
// =============================================================================

// Feed is a subscription registry for one stream type (send or smart query).
// Subscribe returns an unsubscribe function; Publish fans an event out to
// every handler registered at that moment.
//
// Handlers are called outside the feed's lock so a handler may unsubscribe
// itself (or subscribe another) without deadlocking.
type Feed struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]StreamHandler
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{handlers: make(map[int]StreamHandler)}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribing twice is safe.
func (f *Feed) Subscribe(h StreamHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	f.handlers[id] = h

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, id)
	}
}

// Publish delivers an event to all current subscribers.
func (f *Feed) Publish(ev StreamEvent) {
	f.mu.Lock()
	handlers := make([]StreamHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
