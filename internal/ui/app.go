// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui implements the daybook terminal interface: a conversation
// sidebar, a streaming chat transcript, and a smart query overlay, driven by
// the chat coordinator's messages.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/daybookhq/daybook-tui/internal/chat"
	"github.com/daybookhq/daybook-tui/internal/commands"
	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/settings"
	"github.com/daybookhq/daybook-tui/internal/store"
	"github.com/daybookhq/daybook-tui/internal/ui/styles"
)

// =============================================================================
// APP MODEL
// =============================================================================

// initLoadedMsg reports the result of the startup loads.
type initLoadedMsg struct {
	err error
}

// App is the root bubbletea model.
type App struct {
	coord    *chat.Coordinator
	convs    *store.Conversations
	settings *settings.Resolver

	theme    *styles.Theme
	sidebar  *Sidebar
	markdown *MarkdownRenderer

	input    textarea.Model
	viewport viewport.Model
	spin     spinner.Model

	registry *commands.Registry
	parser   *commands.Parser
	cmdCtx   *commands.Context

	width  int
	height int

	ready       bool
	showSidebar bool
	showHelp    bool

	// Streaming partial for the active conversation, mirrored from the
	// coordinator's throttled snapshots.
	streamText string

	// Smart query overlay state.
	queryOpen bool
	queryText string
	queryDone bool

	memoryCount int
	alert       string
}

// NewApp builds the root model around a started coordinator.
func NewApp(coord *chat.Coordinator, convs *store.Conversations, resolver *settings.Resolver) *App {
	theme := styles.New()

	input := textarea.New()
	input.Placeholder = "Message daybook (/help for commands)"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(1)
	input.Focus()

	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	spin.Style = theme.StatusStreaming

	registry := commands.NewRegistry()
	app := &App{
		coord:       coord,
		convs:       convs,
		settings:    resolver,
		theme:       theme,
		sidebar:     NewSidebar(theme),
		input:       input,
		spin:        spin,
		registry:    registry,
		parser:      commands.NewParser(registry),
		showSidebar: true,
	}
	app.cmdCtx = &commands.Context{
		Coordinator:   coord,
		Conversations: convs,
		Settings:      resolver,
	}
	return app
}

// Init loads conversations and settings before first paint.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		func() tea.Msg {
			ctx := context.Background()
			if err := a.convs.Load(ctx); err != nil {
				return initLoadedMsg{err: err}
			}
			// Settings load is best effort: partial results still render.
			a.settings.Load(ctx)
			return initLoadedMsg{}
		},
	)
}

// =============================================================================
// UPDATE
// =============================================================================

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case initLoadedMsg:
		if msg.err != nil {
			a.alert = "Error: " + msg.err.Error()
		}
		a.selectActiveFromList()
		a.refreshTranscript()
		return a, nil

	case chat.ConversationsReloadedMsg:
		a.selectActiveFromList()
		a.refreshTranscript()
		return a, nil

	case chat.ChatStreamTextMsg:
		if msg.ConversationID == a.convs.ActiveID() {
			a.streamText = msg.Text
			a.refreshTranscript()
		}
		return a, nil

	case chat.ChatStreamDoneMsg:
		a.streamText = ""
		if msg.Err != "" {
			a.alert = "Error: " + msg.Err
		}
		a.refreshTranscript()
		return a, nil

	case chat.SmartQueryStartedMsg:
		a.queryOpen = true
		a.queryDone = false
		a.queryText = ""
		return a, a.spin.Tick

	case chat.SmartQueryTextMsg:
		a.queryText = msg.Text
		return a, nil

	case chat.SmartQueryDoneMsg:
		a.queryOpen = true
		a.queryDone = true
		a.queryText = msg.Text
		return a, nil

	case chat.MemoryCountMsg:
		a.memoryCount = msg.Count
		return a, nil

	case chat.AlertMsg:
		a.alert = msg.Text
		return a, nil

	case commands.HelpMsg:
		a.showHelp = true
		a.refreshTranscript()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		if a.coord.IsStreaming() || (a.queryOpen && !a.queryDone) {
			return a, cmd
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit

	case "esc":
		switch {
		case a.queryOpen:
			a.coord.DismissQuery()
			a.queryOpen = false
			a.queryText = ""
		case a.showHelp:
			a.showHelp = false
			a.refreshTranscript()
		case a.coord.IsStreaming():
			return a, func() tea.Msg {
				a.coord.Abort(context.Background())
				return nil
			}
		default:
			a.input.Reset()
		}
		return a, nil

	case "enter":
		return a, a.submit()

	case "tab":
		a.showSidebar = !a.showSidebar
		a.resize(a.width, a.height)
		return a, nil

	case "ctrl+n":
		return a, func() tea.Msg {
			id, err := a.convs.Create(context.Background(), "")
			if err != nil {
				return chat.AlertMsg{Text: "Error: " + err.Error()}
			}
			a.convs.SetActive(id)
			return chat.ConversationsReloadedMsg{ActiveID: id}
		}

	case "ctrl+k", "ctrl+j":
		delta := 1
		if msg.String() == "ctrl+k" {
			delta = -1
		}
		list := a.convs.All()
		a.sidebar.MoveSelection(delta, len(list))
		if i := a.sidebar.Selected(); i < len(list) {
			a.convs.SetActive(list[i].ID)
		}
		a.refreshTranscript()
		return a, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// submit dispatches the input line: slash commands through the registry,
// everything else to the coordinator as a chat message.
func (a *App) submit() tea.Cmd {
	text := strings.TrimSpace(a.input.Value())
	if text == "" {
		return nil
	}
	a.input.Reset()
	a.alert = ""

	result := a.parser.Parse(text)
	if result.IsCommand {
		if result.Command == nil {
			a.alert = fmt.Sprintf("Unknown command: %s", result.CommandName)
			return nil
		}
		return result.Command.Handler(a.cmdCtx, result.Args, result.RawArgs)
	}

	return tea.Batch(
		a.spin.Tick,
		func() tea.Msg {
			// Failures surface through the coordinator's alert messages.
			a.coord.Send(context.Background(), text)
			return nil
		},
	)
}

// =============================================================================
// LAYOUT AND RENDERING
// =============================================================================

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height

	sidebarWidth := 0
	if a.showSidebar {
		sidebarWidth = width / 4
		if sidebarWidth > 36 {
			sidebarWidth = 36
		}
		a.sidebar.SetSize(sidebarWidth, height-5)
	}

	mainWidth := width - sidebarWidth - 2
	if mainWidth < 20 {
		mainWidth = 20
	}

	transcriptHeight := height - 5
	if transcriptHeight < 3 {
		transcriptHeight = 3
	}

	if !a.ready {
		a.viewport = viewport.New(mainWidth, transcriptHeight)
		a.ready = true
	} else {
		a.viewport.Width = mainWidth
		a.viewport.Height = transcriptHeight
	}

	a.input.SetWidth(width - 6)
	a.markdown = NewMarkdownRenderer(mainWidth - 2)
	a.refreshTranscript()
}

// selectActiveFromList aligns the sidebar selection with the active
// conversation.
func (a *App) selectActiveFromList() {
	list := a.convs.All()
	active := a.convs.ActiveID()
	if active == "" && len(list) > 0 {
		a.convs.SetActive(list[0].ID)
		active = list[0].ID
	}
	for i, conv := range list {
		if conv.ID == active {
			a.sidebar.Select(i, len(list))
			return
		}
	}
	a.sidebar.Select(0, len(list))
}

// refreshTranscript rebuilds the viewport content for the active
// conversation, including any in-flight stream text.
func (a *App) refreshTranscript() {
	if !a.ready {
		return
	}
	if a.showHelp {
		a.viewport.SetContent(a.renderHelp())
		a.viewport.GotoTop()
		return
	}

	conv := a.convs.Active()
	if conv == nil {
		a.viewport.SetContent(a.theme.MessageMeta.Render(
			"No conversation selected. Type a message to start one, or press ctrl+n."))
		return
	}

	var b strings.Builder
	for _, msg := range conv.Messages {
		b.WriteString(a.renderMessage(msg))
		b.WriteString("\n\n")
	}

	if a.streamText != "" && a.coord.StreamingConversationID() == conv.ID {
		b.WriteString(a.theme.AssistantLabel.Render("Assistant"))
		b.WriteString("\n")
		b.WriteString(a.markdownRender(a.streamText))
		b.WriteString(a.theme.StreamCursor.Render("▌"))
		b.WriteString("\n")
	}

	a.viewport.SetContent(strings.TrimRight(b.String(), "\n"))
	a.viewport.GotoBottom()
}

func (a *App) renderMessage(msg model.Message) string {
	var b strings.Builder
	switch msg.Role {
	case model.RoleUser:
		b.WriteString(a.theme.UserLabel.Render(msg.Role.DisplayName()))
		b.WriteString("\n")
		b.WriteString(a.theme.MessageBody.Render(msg.Content))
	default:
		b.WriteString(a.theme.AssistantLabel.Render(msg.Role.DisplayName()))
		b.WriteString("\n")
		b.WriteString(a.markdownRender(msg.Content))
		if msg.TokenUsage != nil {
			meta := fmt.Sprintf("%s · %d in / %d out tokens",
				msg.Model, msg.TokenUsage.Input, msg.TokenUsage.Output)
			b.WriteString("\n")
			b.WriteString(a.theme.MessageMeta.Render(meta))
		}
	}
	return b.String()
}

func (a *App) markdownRender(content string) string {
	if a.markdown == nil {
		return content
	}
	return a.markdown.Render(content)
}

func (a *App) renderHelp() string {
	var b strings.Builder
	b.WriteString(a.theme.SidebarTitle.Render("Commands"))
	b.WriteString("\n")
	for _, cmd := range a.registry.All() {
		b.WriteString(a.theme.ShortcutKey.Render(fmt.Sprintf("  %-10s", cmd.Name)))
		b.WriteString(a.theme.ShortcutDesc.Render(cmd.Description))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(a.theme.SidebarTitle.Render("Keys"))
	b.WriteString("\n")
	keys := [][2]string{
		{"enter", "send message"},
		{"esc", "stop stream / dismiss overlay"},
		{"tab", "toggle sidebar"},
		{"ctrl+n", "new conversation"},
		{"ctrl+j/k", "switch conversation"},
		{"ctrl+c", "quit"},
	}
	for _, k := range keys {
		b.WriteString(a.theme.ShortcutKey.Render(fmt.Sprintf("  %-10s", k[0])))
		b.WriteString(a.theme.ShortcutDesc.Render(k[1]))
		b.WriteString("\n")
	}
	return b.String()
}

func (a *App) View() string {
	if !a.ready {
		return "Loading daybook..."
	}

	if a.queryOpen {
		return a.renderQueryOverlay()
	}

	main := a.viewport.View()
	var row string
	if a.showSidebar {
		row = lipgloss.JoinHorizontal(lipgloss.Top,
			a.sidebar.View(a.convs.All(), a.convs.ActiveID()),
			a.theme.Main.Render(main))
	} else {
		row = a.theme.Main.Render(main)
	}

	input := a.theme.InputContainer.Width(a.width - 2).Render(
		a.theme.InputPrompt.Render("> ") + a.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, row, input, a.statusBar())
}

func (a *App) statusBar() string {
	var parts []string

	if a.coord.IsStreaming() {
		parts = append(parts, a.spin.View()+a.theme.StatusStreaming.Render("streaming (esc to stop)"))
	} else {
		parts = append(parts, a.theme.StatusBar.Render(a.settings.Settings().Model))
	}

	if a.memoryCount > 0 {
		noun := "memories"
		if a.memoryCount == 1 {
			noun = "memory"
		}
		parts = append(parts, a.theme.StatusMemory.Render(
			fmt.Sprintf("◆ %d %s", a.memoryCount, noun)))
	}

	if a.alert != "" {
		parts = append(parts, a.theme.StatusError.Render(a.alert))
	}

	parts = append(parts, a.theme.ShortcutDesc.Render("/help for commands"))
	return a.theme.StatusBar.Width(a.width).Render(" " + strings.Join(parts, "  ·  "))
}

func (a *App) renderQueryOverlay() string {
	var b strings.Builder
	b.WriteString(a.theme.QueryTitle.Render("Smart Query"))
	b.WriteString("\n\n")
	if !a.queryDone && a.queryText == "" {
		b.WriteString(a.spin.View())
		b.WriteString(a.theme.MessageMeta.Render(" thinking..."))
	} else {
		b.WriteString(a.theme.QueryResult.Render(a.markdownRender(a.queryText)))
		if !a.queryDone {
			b.WriteString(a.theme.StreamCursor.Render("▌"))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(a.theme.MessageMeta.Render("esc to dismiss"))

	box := a.theme.QueryBox.Width(a.width - 8).Render(b.String())
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, box)
}
