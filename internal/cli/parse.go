// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information, set at build time by the linker.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// Command identifies the requested entry point.
type Command int

const (
	// CmdTUI launches the full-screen interface (default).
	CmdTUI Command = iota
	// CmdAsk runs a one-shot smart query.
	CmdAsk
	// CmdChat runs the line-oriented REPL.
	CmdChat
	// CmdServe runs the HTTP daemon.
	CmdServe
	// CmdVersion prints version information.
	CmdVersion
	// CmdHelp prints usage.
	CmdHelp
)

// Parse interprets os.Args into a command and its remaining arguments.
func Parse() (Command, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return CmdTUI, nil
	}

	switch strings.ToLower(args[0]) {
	case "ask":
		return CmdAsk, args[1:]
	case "chat":
		return CmdChat, args[1:]
	case "serve", "daemon":
		return CmdServe, args[1:]
	case "version", "--version", "-v":
		return CmdVersion, nil
	case "help", "--help", "-h":
		return CmdHelp, nil
	default:
		// Unrecognized words are treated as an ask, so `daybook when is
		// rent due` just works.
		return CmdAsk, args
	}
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("daybook %s (%s)\n", Version, GitCommit)
}

// PrintUsage writes usage to stdout.
func PrintUsage() {
	fmt.Print(`daybook - plan your days from the terminal

Usage:
  daybook              Launch the TUI
  daybook ask <text>   Ask a one-shot question about your notes and plans
  daybook chat         Line-oriented chat session
  daybook serve        Run the HTTP daemon for remote clients
  daybook version      Print version information
  daybook help         Show this help

Configuration lives in ~/.daybook/config.toml.
`)
}
