// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/daybookhq/daybook-tui/internal/config"
	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport"
	"github.com/daybookhq/daybook-tui/internal/ui/styles"
	"github.com/daybookhq/daybook-tui/internal/util"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(styles.Teal).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(styles.Rose).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(styles.TextMuted)
	stoppedStyle = lipgloss.NewStyle().Foreground(styles.Amber)
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// replInput wraps liner with persistent history.
type replInput struct {
	line        *liner.State
	historyFile string
}

func newREPLInput() *replInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &replInput{line: line, historyFile: filepath.Join(dir, "chat_history")}

	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

func (in *replInput) read(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

func (in *replInput) close() {
	if err := config.EnsureDir(); err == nil {
		if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			in.line.WriteHistory(f)
			f.Close()
		}
	}
	in.line.Close()
}

// =============================================================================
// CHAT REPL
// =============================================================================

// replSession drives one line-oriented chat against a backend. The REPL
// owns the session coordination the TUI delegates to the chat package:
// persisting messages, auto-titling, and abort handling.
type replSession struct {
	backend transport.Backend
	input   *replInput
	convID  string
}

// RunChat runs the interactive chat REPL until EOF or /quit.
func RunChat(ctx context.Context, backend transport.Backend) error {
	session := &replSession{backend: backend, input: newREPLInput()}
	defer session.input.close()

	fmt.Println(infoStyle.Render("daybook chat - /new starts over, /quit exits, ctrl+c stops a response"))

	for {
		input, err := session.input.read(promptStyle.Render("daybook> "))
		if err != nil {
			// Ctrl+C at the prompt or EOF both end the session.
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || strings.EqualFold(input, "exit"):
			return nil
		case input == "/new":
			session.convID = ""
			fmt.Println(infoStyle.Render("Started a new conversation."))
			continue
		case strings.HasPrefix(input, "/ask "):
			if err := HandleAsk(ctx, backend, strings.TrimPrefix(input, "/ask ")); err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			continue
		case strings.HasPrefix(input, "/"):
			fmt.Fprintln(os.Stderr, errorStyle.Render("Unknown command: "+input))
			continue
		}

		if err := session.send(ctx, input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// send persists the user message, streams the reply to stdout, and persists
// the outcome. Ctrl+C during the stream aborts it and keeps the partial.
func (s *replSession) send(ctx context.Context, text string) error {
	if s.convID == "" {
		conv, err := s.backend.CreateConversation(ctx, "")
		if err != nil {
			return err
		}
		s.convID = conv.ID
	}

	if err := s.backend.AddMessage(ctx, s.convID, model.NewUserMessage(text)); err != nil {
		return err
	}

	conv, err := s.backend.GetConversation(ctx, s.convID)
	if err != nil {
		return err
	}
	if conv.NeedsAutoTitle() {
		if title := util.TitleFromDraft(text); title != "" {
			// Title is decoration; a failure doesn't block the send.
			s.backend.RenameConversation(ctx, s.convID, title)
		}
	}

	done := make(chan transport.StreamEvent, 1)
	var full strings.Builder
	unsub := s.backend.SubscribeSendEvents(func(ev transport.StreamEvent) {
		if ev.ID != s.convID {
			return
		}
		switch ev.Kind {
		case transport.EventChunk:
			full.WriteString(ev.Chunk)
			fmt.Print(ev.Chunk)
		case transport.EventEnd, transport.EventError:
			done <- ev
		}
	})
	defer unsub()

	if err := s.backend.SendMessage(ctx, s.convID, conv.History(), ""); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		s.stopResponse(ctx, full.String())
		fmt.Println("\n" + stoppedStyle.Render("[Response stopped]"))
		return nil

	case ev := <-done:
		fmt.Println()
		if ev.Kind == transport.EventError {
			return fmt.Errorf("%s", ev.Err)
		}
		msg := model.NewAssistantMessage(full.String(), ev.Model, ev.Usage)
		if err := s.backend.AddMessage(ctx, s.convID, msg); err != nil {
			return fmt.Errorf("response generated but not saved: %w", err)
		}
		if IsStdoutTTY() {
			fmt.Println(infoStyle.Render(fmt.Sprintf("  %s · %d in / %d out tokens",
				ev.Model, ev.Usage.Input, ev.Usage.Output)))
		}
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopResponse aborts the in-flight stream. Text that already streamed is
// kept with the stopped marker; an abort before the first chunk persists
// nothing.
func (s *replSession) stopResponse(ctx context.Context, partial string) {
	s.backend.AbortSend(ctx)
	if partial == "" {
		return
	}
	s.backend.AddMessage(ctx, s.convID, model.NewAbortedMessage(partial))
}
