// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/daybookhq/daybook-tui/internal/chat"
	"github.com/daybookhq/daybook-tui/internal/model"
)

// HelpMsg carries the command list for the help overlay.
type HelpMsg struct {
	Commands []*Command
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "/ask",
		Aliases:     []string{"/a"},
		Description: "Ask a question over your notes, tasks, and calendar",
		Usage:       "/ask <question>",
		Handler:     handleAsk,
	})

	r.Register(&Command{
		Name:        "/new",
		Aliases:     []string{"/n"},
		Description: "Start a new conversation",
		Usage:       "/new",
		Handler:     handleNew,
	})

	r.Register(&Command{
		Name:        "/rename",
		Description: "Rename the active conversation",
		Usage:       "/rename <title>",
		Handler:     handleRename,
	})

	r.Register(&Command{
		Name:        "/delete",
		Description: "Delete the active conversation",
		Usage:       "/delete",
		Handler:     handleDelete,
	})

	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Switch the chat model",
		Usage:       "/model <name>",
		Handler:     handleModel,
	})

	r.Register(&Command{
		Name:        "/prompt",
		Description: "Set the system prompt mode",
		Usage:       "/prompt <default|context|custom> [custom text]",
		Handler:     handlePrompt,
	})

	r.Register(&Command{
		Name:        "/tokens",
		Description: "Set the max response tokens",
		Usage:       "/tokens <n>",
		Handler:     handleTokens,
	})

	r.Register(&Command{
		Name:        "/stop",
		Description: "Stop the current response",
		Usage:       "/stop",
		Handler:     handleStop,
	})

	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show available commands",
		Usage:       "/help",
		Handler:     handleHelp,
	})

	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Quit daybook",
		Usage:       "/quit",
		Handler: func(*Context, []string, string) tea.Cmd {
			return tea.Quit
		},
	})
}

// =============================================================================
// HANDLERS
// =============================================================================

func alertCmd(text string) tea.Cmd {
	return func() tea.Msg { return chat.AlertMsg{Text: text} }
}

// handleAsk routes the rest of the line, verbatim, into a smart query.
func handleAsk(ctx *Context, _ []string, raw string) tea.Cmd {
	if strings.TrimSpace(raw) == "" {
		return alertCmd("Usage: /ask <question>")
	}
	return func() tea.Msg {
		ctx.Coordinator.Ask(context.Background(), raw)
		return nil
	}
}

func handleNew(ctx *Context, _ []string, _ string) tea.Cmd {
	return func() tea.Msg {
		id, err := ctx.Conversations.Create(context.Background(), "")
		if err != nil {
			return chat.AlertMsg{Text: "Error: " + err.Error()}
		}
		ctx.Conversations.SetActive(id)
		return chat.ConversationsReloadedMsg{ActiveID: id}
	}
}

func handleRename(ctx *Context, _ []string, raw string) tea.Cmd {
	title := strings.TrimSpace(raw)
	if title == "" {
		return alertCmd("Usage: /rename <title>")
	}
	return func() tea.Msg {
		id := ctx.Conversations.ActiveID()
		if id == "" {
			return chat.AlertMsg{Text: "No active conversation"}
		}
		if err := ctx.Conversations.Rename(context.Background(), id, title); err != nil {
			return chat.AlertMsg{Text: "Error: " + err.Error()}
		}
		return chat.ConversationsReloadedMsg{ActiveID: id}
	}
}

func handleDelete(ctx *Context, _ []string, _ string) tea.Cmd {
	return func() tea.Msg {
		id := ctx.Conversations.ActiveID()
		if id == "" {
			return chat.AlertMsg{Text: "No active conversation"}
		}
		if err := ctx.Conversations.Delete(context.Background(), id); err != nil {
			return chat.AlertMsg{Text: "Error: " + err.Error()}
		}
		return chat.ConversationsReloadedMsg{}
	}
}

func handleModel(ctx *Context, args []string, _ string) tea.Cmd {
	if len(args) != 1 {
		return alertCmd("Usage: /model <name>")
	}
	name := args[0]
	return func() tea.Msg {
		if _, err := ctx.Settings.Save(context.Background(), model.SettingsPatch{Model: &name}); err != nil {
			return chat.AlertMsg{Text: "Error: " + err.Error()}
		}
		return chat.AlertMsg{Text: "Model set to " + name}
	}
}

func handlePrompt(ctx *Context, args []string, raw string) tea.Cmd {
	if len(args) == 0 {
		return alertCmd("Usage: /prompt <default|context|custom> [custom text]")
	}

	mode := model.SystemPromptMode(strings.ToLower(args[0]))
	if !mode.Valid() {
		return alertCmd("Unknown prompt mode: " + args[0])
	}

	patch := model.SettingsPatch{SystemPromptMode: &mode}
	if mode == model.PromptModeCustom {
		text := strings.TrimSpace(strings.TrimPrefix(raw, args[0]))
		if text == "" {
			return alertCmd("Usage: /prompt custom <text>")
		}
		patch.CustomSystemPrompt = &text
	}

	return func() tea.Msg {
		if _, err := ctx.Settings.Save(context.Background(), patch); err != nil {
			return chat.AlertMsg{Text: "Error: " + err.Error()}
		}
		return chat.AlertMsg{Text: "Prompt mode set to " + string(mode)}
	}
}

func handleTokens(ctx *Context, args []string, _ string) tea.Cmd {
	if len(args) != 1 {
		return alertCmd("Usage: /tokens <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return alertCmd("Token budget must be a positive number")
	}
	return func() tea.Msg {
		if _, err := ctx.Settings.Save(context.Background(), model.SettingsPatch{MaxTokens: &n}); err != nil {
			return chat.AlertMsg{Text: "Error: " + err.Error()}
		}
		return chat.AlertMsg{Text: "Max tokens set to " + args[0]}
	}
}

func handleStop(ctx *Context, _ []string, _ string) tea.Cmd {
	return func() tea.Msg {
		ctx.Coordinator.Abort(context.Background())
		return nil
	}
}

func handleHelp(_ *Context, _ []string, _ string) tea.Cmd {
	return func() tea.Msg {
		return HelpMsg{Commands: NewRegistry().All()}
	}
}
