// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

// =============================================================================
// COORDINATOR MESSAGES
// =============================================================================

// The coordinator pushes these messages into the UI's message loop via its
// Sink. Stream text messages carry full snapshots, not deltas, so a dropped
// or reordered message can never corrupt the rendered text.

// ChatStreamTextMsg is a throttled snapshot of the in-flight assistant
// response for a conversation.
type ChatStreamTextMsg struct {
	ConversationID string
	Text           string
}

// ChatStreamDoneMsg signals that the send stream finished. Err is set when
// the stream failed; Aborted is set when the user stopped it.
type ChatStreamDoneMsg struct {
	ConversationID string
	Aborted        bool
	Err            string
}

// SmartQueryStartedMsg signals that a smart query was issued.
type SmartQueryStartedMsg struct {
	QueryID string
}

// SmartQueryTextMsg is a throttled snapshot of the in-flight query answer.
type SmartQueryTextMsg struct {
	QueryID string
	Text    string
}

// SmartQueryDoneMsg carries the final query result. Text is the complete
// answer, or an "Error: ..." line when the query failed.
type SmartQueryDoneMsg struct {
	QueryID string
	Text    string
	Err     string
}

// ConversationsReloadedMsg signals that the conversation cache was refreshed
// after a mutation; views re-read it.
type ConversationsReloadedMsg struct {
	ActiveID string
}

// MemoryCountMsg carries a refreshed relevant-memory count.
type MemoryCountMsg struct {
	Count int
}

// AlertMsg carries a user-facing error line for the status area.
type AlertMsg struct {
	Text string
}
