// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application. It detects the
// terminal's color capability and adapts.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// LAYOUT
	// ==========================================================================

	App     lipgloss.Style
	Sidebar lipgloss.Style
	Main    lipgloss.Style

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style
	SidebarEmpty    lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	MessageBody    lipgloss.Style
	MessageMeta    lipgloss.Style
	StreamCursor   lipgloss.Style

	// ==========================================================================
	// INPUT
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// ==========================================================================
	// STATUS BAR
	// ==========================================================================

	StatusBar       lipgloss.Style
	StatusStreaming lipgloss.Style
	StatusMemory    lipgloss.Style
	StatusError     lipgloss.Style
	ShortcutKey     lipgloss.Style
	ShortcutDesc    lipgloss.Style

	// ==========================================================================
	// QUERY OVERLAY
	// ==========================================================================

	QueryBox    lipgloss.Style
	QueryTitle  lipgloss.Style
	QueryResult lipgloss.Style
}

// New builds the theme for the current terminal.
func New() *Theme {
	output := termenv.DefaultOutput()
	t := &Theme{
		IsDark:       lipgloss.HasDarkBackground(),
		ColorProfile: output.Profile,
	}

	t.App = lipgloss.NewStyle().Foreground(TextPrimary)
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)
	t.Main = lipgloss.NewStyle().PaddingLeft(1)

	t.SidebarTitle = lipgloss.NewStyle().Bold(true).Foreground(Indigo).MarginBottom(1)
	t.SidebarItem = lipgloss.NewStyle().Foreground(TextSecondary)
	t.SidebarSelected = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	t.SidebarEmpty = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Teal)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Indigo)
	t.MessageBody = lipgloss.NewStyle().Foreground(TextPrimary)
	t.MessageMeta = lipgloss.NewStyle().Foreground(TextMuted)
	t.StreamCursor = lipgloss.NewStyle().Foreground(Amber)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.InputPrompt = lipgloss.NewStyle().Foreground(Teal).Bold(true)

	t.StatusBar = lipgloss.NewStyle().Foreground(TextSecondary).Background(SurfaceDim)
	t.StatusStreaming = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.StatusMemory = lipgloss.NewStyle().Foreground(Emerald)
	t.StatusError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.ShortcutKey = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().Foreground(TextMuted)

	t.QueryBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Indigo).
		Padding(1, 2)
	t.QueryTitle = lipgloss.NewStyle().Bold(true).Foreground(Indigo)
	t.QueryResult = lipgloss.NewStyle().Foreground(TextPrimary)

	return t
}
