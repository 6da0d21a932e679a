// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"reflect"
	"testing"
)

func TestParseNonCommand(t *testing.T) {
	p := NewParser(NewRegistry())

	result := p.Parse("just a chat message")
	if result.IsCommand {
		t.Error("plain text must not parse as command")
	}

	// A slash mid-sentence is not a command either.
	result = p.Parse("weird / input")
	if result.IsCommand {
		t.Error("mid-sentence slash must not parse as command")
	}
}

func TestParseAskKeepsRawText(t *testing.T) {
	p := NewParser(NewRegistry())

	result := p.Parse(`/ask what's due "this week" in the garden plan?`)
	if !result.IsCommand || result.Command == nil || result.Command.Name != "/ask" {
		t.Fatalf("expected /ask command, got %+v", result)
	}
	if result.RawArgs != `what's due "this week" in the garden plan?` {
		t.Errorf("raw args mangled: %q", result.RawArgs)
	}
}

func TestParseUnknownCommand(t *testing.T) {
	p := NewParser(NewRegistry())

	result := p.Parse("/frobnicate now")
	if !result.IsCommand {
		t.Fatal("expected command parse")
	}
	if result.Command != nil {
		t.Errorf("unknown command resolved: %+v", result.Command)
	}
	if result.CommandName != "/frobnicate" {
		t.Errorf("unexpected command name: %q", result.CommandName)
	}
}

func TestParseAliases(t *testing.T) {
	p := NewParser(NewRegistry())

	for alias, want := range map[string]string{
		"/a":    "/ask",
		"/n":    "/new",
		"/m":    "/model",
		"/h":    "/help",
		"/q":    "/quit",
		"/exit": "/quit",
	} {
		result := p.Parse(alias)
		if result.Command == nil || result.Command.Name != want {
			t.Errorf("alias %s: expected %s, got %+v", alias, want, result.Command)
		}
	}
}

func TestSplitCommandLineQuoting(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{`one two three`, []string{"one", "two", "three"}},
		{`"quoted arg" tail`, []string{"quoted arg", "tail"}},
		{`'single quoted' x`, []string{"single quoted", "x"}},
		{`"inner \" quote"`, []string{`inner " quote`}},
		{``, nil},
	}

	for _, tt := range tests {
		got := splitCommandLine(tt.input)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCommandLine(%q) = %#v, want %#v", tt.input, got, tt.want)
		}
	}
}

func TestRegistryComplete(t *testing.T) {
	r := NewRegistry()

	got := r.Complete("/m")
	if !reflect.DeepEqual(got, []string{"/model"}) {
		t.Errorf("unexpected completion: %v", got)
	}

	if len(r.Complete("/")) != len(r.All()) {
		t.Error("bare slash must complete every command")
	}
}

func TestHelpListsAllCommands(t *testing.T) {
	msg := handleHelp(nil, nil, "")()
	help, ok := msg.(HelpMsg)
	if !ok {
		t.Fatalf("expected HelpMsg, got %T", msg)
	}
	if len(help.Commands) != len(NewRegistry().All()) {
		t.Errorf("help missing commands: %d", len(help.Commands))
	}
}
