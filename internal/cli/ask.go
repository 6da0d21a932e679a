// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/daybookhq/daybook-tui/internal/transport"
)

// =============================================================================
// MARKDOWN OUTPUT
// =============================================================================

// newMarkdownRenderer builds a terminal renderer sized to the current
// terminal, or nil when markdown output is not appropriate.
func newMarkdownRenderer() *glamour.TermRenderer {
	if !IsStdoutTTY() {
		return nil
	}
	width := TerminalWidth(80)
	if width > 100 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func renderMarkdown(r *glamour.TermRenderer, content string) string {
	if r == nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// ONE-SHOT ASK
// =============================================================================

// HandleAsk runs a single smart query and writes the answer to stdout.
// On a TTY the answer streams as raw text and is re-rendered as markdown on
// completion; piped output gets the raw text only.
func HandleAsk(ctx context.Context, backend transport.Backend, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("nothing to ask")
	}

	done := make(chan error, 1)
	var full strings.Builder

	// This process issues exactly one query, so no id filtering is needed;
	// filtering here would race with the id assignment below.
	unsub := backend.SubscribeQueryEvents(func(ev transport.StreamEvent) {
		switch ev.Kind {
		case transport.EventChunk:
			full.WriteString(ev.Chunk)
			fmt.Print(ev.Chunk)
		case transport.EventEnd:
			done <- nil
		case transport.EventError:
			done <- fmt.Errorf("%s", ev.Err)
		}
	})
	defer unsub()

	if _, err := backend.SmartQuery(ctx, question); err != nil {
		return err
	}

	select {
	case err := <-done:
		if err != nil {
			fmt.Println()
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	fmt.Println()

	// Replace the raw stream with a rendered version when on a terminal.
	if r := newMarkdownRenderer(); r != nil && full.Len() > 0 {
		fmt.Fprint(os.Stdout, "\n"+renderMarkdown(r, full.String()))
	}
	return nil
}
