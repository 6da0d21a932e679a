// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the local backend over HTTP for remote daybook
// clients.
//
// Endpoints:
//   - GET    /health                        - Health check
//   - GET    /v1/conversations              - List conversations
//   - POST   /v1/conversations              - Create conversation
//   - GET    /v1/conversations/{id}         - Get one conversation
//   - PATCH  /v1/conversations/{id}         - Rename conversation
//   - DELETE /v1/conversations/{id}         - Delete conversation
//   - POST   /v1/conversations/{id}/messages - Append a message
//   - POST   /v1/chat/send                  - Stream an assistant response (NDJSON)
//   - POST   /v1/query                      - Stream a smart query (NDJSON)
//   - GET    /v1/settings/chat              - Get chat settings
//   - PATCH  /v1/settings/chat              - Merge and echo chat settings
//   - GET    /v1/provider                   - Active provider name
//   - GET    /v1/provider/models            - Provider model catalog
//   - POST   /v1/memory/count               - Relevant-memory count
//
// Stream responses are NDJSON lines in the transport wire format; aborts are
// client disconnects, which cancel the request context and stop generation.
package server
