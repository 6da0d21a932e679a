// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/ui/styles"
)

// =============================================================================
// CONVERSATION SIDEBAR
// =============================================================================

// Sidebar renders the conversation list. Selection is an index into the
// backend-ordered list (newest first).
type Sidebar struct {
	theme    *styles.Theme
	width    int
	height   int
	selected int
}

// NewSidebar creates a sidebar with the given theme.
func NewSidebar(theme *styles.Theme) *Sidebar {
	return &Sidebar{theme: theme, width: 28}
}

// SetSize sets the sidebar dimensions.
func (s *Sidebar) SetSize(width, height int) {
	if width < 16 {
		width = 16
	}
	s.width = width
	s.height = height
}

// Width returns the sidebar's column width.
func (s *Sidebar) Width() int {
	return s.width
}

// Selected returns the selected index.
func (s *Sidebar) Selected() int {
	return s.selected
}

// Select clamps and sets the selected index for a list of n conversations.
func (s *Sidebar) Select(index, n int) {
	if n == 0 {
		s.selected = 0
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= n {
		index = n - 1
	}
	s.selected = index
}

// MoveSelection moves the selection by delta within a list of n items.
func (s *Sidebar) MoveSelection(delta, n int) {
	s.Select(s.selected+delta, n)
}

// View renders the sidebar for the given conversations, marking the active
// one.
func (s *Sidebar) View(conversations []model.Conversation, activeID string) string {
	var b strings.Builder
	b.WriteString(s.theme.SidebarTitle.Render("Conversations"))
	b.WriteString("\n")

	if len(conversations) == 0 {
		b.WriteString(s.theme.SidebarEmpty.Render("No conversations yet"))
		return s.theme.Sidebar.Width(s.width).Height(s.height).Render(b.String())
	}

	// Keep the selection visible when the list outgrows the panel.
	visible := s.height - 2
	if visible < 1 {
		visible = 1
	}
	start := 0
	if s.selected >= visible {
		start = s.selected - visible + 1
	}
	end := start + visible
	if end > len(conversations) {
		end = len(conversations)
	}

	inner := s.width - 2
	for i := start; i < end; i++ {
		conv := conversations[i]
		title := conv.Title
		if title == "" {
			title = model.PlaceholderTitle
		}

		prefix := "  "
		style := s.theme.SidebarItem
		if i == s.selected {
			prefix = "> "
			style = s.theme.SidebarSelected
		}
		if conv.ID == activeID {
			title = "• " + title
		}

		line := runewidth.Truncate(prefix+title, inner, "…")
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	return s.theme.Sidebar.Width(s.width).Height(s.height).Render(strings.TrimRight(b.String(), "\n"))
}
