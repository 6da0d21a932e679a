// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat coordinates streaming chat sessions against the backend.
//
// The Coordinator owns two independent stream slots: the send stream for the
// active conversation and the smart query stream. Each slot tracks its
// session with a correlation id; events that arrive for any other id are
// dropped, which is what makes switching conversations or re-asking safe
// while a stale stream is still winding down.
//
// Streamed text accumulates in a Buffer outside the UI's state; the UI only
// sees throttled snapshot messages, so render load stays flat no matter how
// fast the provider emits tokens.
package chat
