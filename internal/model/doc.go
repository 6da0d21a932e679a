// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared between the daybook UI
// and its backend: conversations, messages, and chat settings.
//
// Conversations are authoritative on the backend; the structs here are the
// records exchanged across the transport boundary. Message IDs are generated
// client-side (time-based plus a random suffix) so a message can be
// referenced before the backend confirms the append.
package model
