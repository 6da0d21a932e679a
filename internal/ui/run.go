// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/daybookhq/daybook-tui/internal/chat"
	"github.com/daybookhq/daybook-tui/internal/memory"
	"github.com/daybookhq/daybook-tui/internal/settings"
	"github.com/daybookhq/daybook-tui/internal/store"
	"github.com/daybookhq/daybook-tui/internal/transport"
)

// =============================================================================
// PROGRAM SINK
// =============================================================================

// ProgramSink delivers coordinator messages into a bubbletea program. The
// coordinator is built before the program exists, so messages arriving
// before Attach are queued and flushed on attachment.
type ProgramSink struct {
	mu      sync.Mutex
	program *tea.Program
	queued  []tea.Msg
}

// NewProgramSink creates an unattached sink.
func NewProgramSink() *ProgramSink {
	return &ProgramSink{}
}

// Attach binds the sink to a running program and flushes queued messages.
func (s *ProgramSink) Attach(p *tea.Program) {
	s.mu.Lock()
	s.program = p
	queued := s.queued
	s.queued = nil
	s.mu.Unlock()

	for _, msg := range queued {
		p.Send(msg)
	}
}

// Send delivers or queues a message.
func (s *ProgramSink) Send(msg tea.Msg) {
	s.mu.Lock()
	p := s.program
	if p == nil {
		s.queued = append(s.queued, msg)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	p.Send(msg)
}

var _ chat.Sink = (*ProgramSink)(nil)

// =============================================================================
// ENTRY POINT
// =============================================================================

// Run wires the chat subsystem over a backend and runs the TUI until exit.
func Run(backend transport.Backend) error {
	convs := store.NewConversations(backend)
	resolver := settings.NewResolver(backend)
	counter := memory.NewCounter(backend)

	sink := NewProgramSink()
	coord := chat.NewCoordinator(backend, convs, resolver, counter, sink)
	coord.Start()
	defer coord.Close()

	app := NewApp(coord, convs, resolver)
	program := tea.NewProgram(app, tea.WithAltScreen())
	sink.Attach(program)

	_, err := program.Run()
	return err
}
