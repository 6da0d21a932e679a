// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"sync"
	"time"
)

// =============================================================================
// ACCUMULATION BUFFER
// =============================================================================

// Buffer accumulates streamed text and decides when a snapshot should be
// mirrored to the UI. Chunks are appended from the stream goroutine at token
// rate; snapshots are published either when enough chunks piled up or when
// enough time passed since the last publish, whichever comes first.
//
// PERFORMANCE: publishing every token would redraw the view hundreds of
// times per second. Capping at ~30 snapshots per second keeps streaming
// smooth without burning CPU on redundant renders.
type Buffer struct {
	mu          sync.Mutex
	content     strings.Builder
	pending     int
	lastPublish time.Time

	batchSize   int
	minInterval time.Duration
}

// NewBuffer creates a buffer with default throttling: 15 chunks per batch,
// at most ~30 snapshots per second.
func NewBuffer() *Buffer {
	return NewBufferWithConfig(15, 33*time.Millisecond)
}

// NewBufferWithConfig creates a buffer with custom throttling. Zero values
// fall back to the defaults.
func NewBufferWithConfig(batchSize int, minInterval time.Duration) *Buffer {
	if batchSize <= 0 {
		batchSize = 15
	}
	if minInterval <= 0 {
		minInterval = 33 * time.Millisecond
	}
	return &Buffer{
		batchSize:   batchSize,
		minInterval: minInterval,
	}
}

// Append adds a chunk and reports whether a snapshot should be published
// now. When publish is true, snapshot holds the full accumulated text. The
// very first append always publishes, so the user sees the response start
// immediately.
func (b *Buffer) Append(chunk string) (snapshot string, publish bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.content.WriteString(chunk)
	b.pending++

	if b.pending < b.batchSize && time.Since(b.lastPublish) < b.minInterval {
		return "", false
	}

	b.pending = 0
	b.lastPublish = time.Now()
	return b.content.String(), true
}

// Snapshot returns the full accumulated text without affecting throttling.
func (b *Buffer) Snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content.String()
}

// Drain returns the full accumulated text and resets the buffer. Called
// once when a stream finishes or is aborted.
func (b *Buffer) Drain() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	content := b.content.String()
	b.content.Reset()
	b.pending = 0
	return content
}

// Len returns the accumulated byte length.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content.Len()
}
