// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for the TUI. Input
// starting with "/" is parsed against the registry; everything else is a
// plain chat message. The one special case is /ask, which routes the rest
// of the line verbatim into a smart query.
package commands
