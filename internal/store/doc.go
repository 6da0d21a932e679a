// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the client-side conversation cache. The backend is the
// durability authority; this cache is a read model refreshed by wholesale
// reload after every mutation, plus the active-conversation selection.
package store
