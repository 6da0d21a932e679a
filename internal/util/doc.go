// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across the daybook TUI.
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TitleFromDraft: derive a conversation title from a message draft
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
package util
