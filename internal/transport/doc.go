// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport defines the boundary between the daybook UI and its
// backend: one-shot invoke/response calls plus long-lived event
// subscriptions (chunk/end/error triples) for streaming operations.
//
// Two implementations exist: the in-process local backend
// (internal/backend) and the HTTP Client in this package, which talks to a
// daybook daemon and converts its NDJSON stream responses into events. The
// UI depends only on the Backend interface, so both are interchangeable.
package transport
