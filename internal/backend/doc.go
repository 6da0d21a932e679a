// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend implements the local daybook backend: SQLite persistence
// for conversations, settings, and memory items, plus streaming chat against
// an Ollama-compatible provider. Local satisfies transport.Backend, so the
// TUI runs against it in-process; the daemon in internal/server exposes the
// same backend over HTTP for remote clients.
package backend
