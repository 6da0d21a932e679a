// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/daybookhq/daybook-tui/internal/memory"
	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/settings"
	"github.com/daybookhq/daybook-tui/internal/store"
	"github.com/daybookhq/daybook-tui/internal/transport"
	"github.com/daybookhq/daybook-tui/internal/transport/transporttest"
)

// recordingSink collects coordinator messages.
type recordingSink struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (s *recordingSink) Send(msg tea.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSink) all() []tea.Msg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tea.Msg(nil), s.msgs...)
}

func (s *recordingSink) lastDone() *ChatStreamDoneMsg {
	for _, msg := range s.all() {
		if done, ok := msg.(ChatStreamDoneMsg); ok {
			return &done
		}
	}
	return nil
}

func (s *recordingSink) lastQueryDone() *SmartQueryDoneMsg {
	var found *SmartQueryDoneMsg
	for _, msg := range s.all() {
		if done, ok := msg.(SmartQueryDoneMsg); ok {
			d := done
			found = &d
		}
	}
	return found
}

func newTestCoordinator(t *testing.T) (*Coordinator, *transporttest.Backend, *recordingSink, *store.Conversations) {
	t.Helper()

	backend := transporttest.New()
	convs := store.NewConversations(backend)
	resolver := settings.NewResolver(backend)
	counter := memory.NewCounter(backend)
	sink := &recordingSink{}

	coord := NewCoordinator(backend, convs, resolver, counter, sink)
	coord.Start()
	t.Cleanup(coord.Close)
	return coord, backend, sink, convs
}

// =============================================================================
// SEND SEQUENCE
// =============================================================================

func TestSendPersistsUserMessageAndIssuesStream(t *testing.T) {
	coord, backend, _, convs := newTestCoordinator(t)
	ctx := context.Background()

	if err := coord.Send(ctx, "  plan my week  "); err != nil {
		t.Fatal(err)
	}

	conv := convs.Active()
	if conv == nil {
		t.Fatal("no active conversation after send")
	}
	if conv.MessageCount() != 1 || conv.Messages[0].Content != "plan my week" {
		t.Errorf("user message not persisted trimmed: %+v", conv.Messages)
	}

	call := backend.LastSendCall()
	if call == nil {
		t.Fatal("no send issued")
	}
	if call.ConversationID != conv.ID {
		t.Errorf("send keyed to wrong conversation: %q", call.ConversationID)
	}
	if len(call.History) != 1 || call.History[0].Content != "plan my week" {
		t.Errorf("history missing the just-persisted message: %+v", call.History)
	}
	if !coord.IsStreaming() {
		t.Error("expected streaming state after issuance")
	}
}

func TestSendAutoTitlesFirstMessage(t *testing.T) {
	coord, _, _, convs := newTestCoordinator(t)
	ctx := context.Background()

	long := strings.Repeat("週", 60)
	if err := coord.Send(ctx, long); err != nil {
		t.Fatal(err)
	}

	conv := convs.Active()
	if got := []rune(conv.Title); len(got) != 50 {
		t.Errorf("expected 50-rune title, got %d runes: %q", len(got), conv.Title)
	}
	if conv.Title != strings.Repeat("週", 50) {
		t.Errorf("unexpected auto-title: %q", conv.Title)
	}
}

func TestSendDoesNotRetitleRenamedConversation(t *testing.T) {
	coord, backend, _, convs := newTestCoordinator(t)
	ctx := context.Background()

	id, _ := convs.Create(ctx, "")
	convs.SetActive(id)
	convs.Rename(ctx, id, "Chosen name")

	if err := coord.Send(ctx, "first message"); err != nil {
		t.Fatal(err)
	}
	if got := convs.Get(id).Title; got != "Chosen name" {
		t.Errorf("renamed conversation must keep its title, got %q", got)
	}

	// Finish the stream and send again: two messages, still no retitle.
	backend.SendFeed.Publish(transport.StreamEvent{ID: id, Kind: transport.EventEnd, Model: "m"})
	convs.Rename(ctx, id, model.PlaceholderTitle)
	if err := coord.Send(ctx, "second message"); err != nil {
		t.Fatal(err)
	}
	if got := convs.Get(id).Title; got != model.PlaceholderTitle {
		t.Errorf("multi-message conversation must not auto-title, got %q", got)
	}
}

func TestSendWhileStreamingIsIgnored(t *testing.T) {
	coord, backend, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	coord.Send(ctx, "first")
	coord.Send(ctx, "second")

	if n := backend.SendCallCount(); n != 1 {
		t.Errorf("expected exactly 1 send, got %d", n)
	}
	if conv := backend.Conversations[0]; len(conv.Messages) != 1 {
		t.Errorf("second send must not persist anything: %+v", conv.Messages)
	}
}

func TestSendIssuanceFailureClearsStreamingState(t *testing.T) {
	coord, backend, sink, convs := newTestCoordinator(t)
	ctx := context.Background()

	backend.FailSend = errors.New("provider offline")
	if err := coord.Send(ctx, "hello"); err == nil {
		t.Fatal("expected issuance error")
	}

	if coord.IsStreaming() {
		t.Error("failed issuance must not leave streaming state")
	}
	// The user message stays persisted; only the stream failed.
	if conv := convs.Active(); conv == nil || conv.MessageCount() != 1 {
		t.Errorf("user message lost on issuance failure")
	}

	alerted := false
	for _, msg := range sink.all() {
		if alert, ok := msg.(AlertMsg); ok && strings.Contains(alert.Text, "provider offline") {
			alerted = true
		}
	}
	if !alerted {
		t.Error("expected alert for issuance failure")
	}

	// The slot is free again.
	backend.FailSend = nil
	if err := coord.Send(ctx, "retry"); err != nil {
		t.Errorf("slot not released after failure: %v", err)
	}
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

func TestStreamChunksAccumulateAndPersistOnEnd(t *testing.T) {
	coord, backend, sink, convs := newTestCoordinator(t)
	ctx := context.Background()

	coord.Send(ctx, "hi")
	convID := convs.ActiveID()

	for _, chunk := range []string{"Hel", "lo", " there"} {
		backend.SendFeed.Publish(transport.StreamEvent{ID: convID, Kind: transport.EventChunk, Chunk: chunk})
	}
	backend.SendFeed.Publish(transport.StreamEvent{
		ID: convID, Kind: transport.EventEnd,
		Model: "qwen2.5:7b", Usage: model.TokenUsage{Input: 8, Output: 3},
	})

	conv := convs.Get(convID)
	if conv.MessageCount() != 2 {
		t.Fatalf("expected user+assistant messages, got %d", conv.MessageCount())
	}
	assistant := conv.Messages[1]
	if assistant.Content != "Hello there" {
		t.Errorf("chunks lost or reordered: %q", assistant.Content)
	}
	if assistant.Model != "qwen2.5:7b" || assistant.TokenUsage == nil || assistant.TokenUsage.Output != 3 {
		t.Errorf("completion metadata not persisted: %+v", assistant)
	}

	if coord.IsStreaming() {
		t.Error("streaming state must clear on end")
	}
	done := sink.lastDone()
	if done == nil || done.Err != "" || done.Aborted {
		t.Errorf("unexpected done message: %+v", done)
	}
}

func TestStreamEventsForOtherIDsAreDropped(t *testing.T) {
	coord, backend, _, convs := newTestCoordinator(t)
	ctx := context.Background()

	coord.Send(ctx, "hi")
	convID := convs.ActiveID()

	// A stale stream from a previously abandoned conversation.
	backend.SendFeed.Publish(transport.StreamEvent{ID: "conv_stale", Kind: transport.EventChunk, Chunk: "GARBAGE"})
	backend.SendFeed.Publish(transport.StreamEvent{ID: "conv_stale", Kind: transport.EventEnd, Model: "m"})

	if !coord.IsStreaming() {
		t.Fatal("stale end event must not finalize the live session")
	}

	backend.SendFeed.Publish(transport.StreamEvent{ID: convID, Kind: transport.EventChunk, Chunk: "clean"})
	backend.SendFeed.Publish(transport.StreamEvent{ID: convID, Kind: transport.EventEnd, Model: "m"})

	conv := convs.Get(convID)
	if got := conv.Messages[1].Content; got != "clean" {
		t.Errorf("stale chunk leaked into response: %q", got)
	}
}

func TestStreamErrorDiscardsPartialAndAlerts(t *testing.T) {
	coord, backend, sink, convs := newTestCoordinator(t)
	ctx := context.Background()

	coord.Send(ctx, "hi")
	convID := convs.ActiveID()

	backend.SendFeed.Publish(transport.StreamEvent{ID: convID, Kind: transport.EventChunk, Chunk: "part"})
	backend.SendFeed.Publish(transport.StreamEvent{ID: convID, Kind: transport.EventError, Err: "model crashed"})

	// Partial text is not persisted on error.
	if conv := convs.Get(convID); conv.MessageCount() != 1 {
		t.Errorf("error stream must not persist partial content: %+v", conv.Messages)
	}
	if coord.IsStreaming() {
		t.Error("streaming state must clear on error")
	}
	done := sink.lastDone()
	if done == nil || done.Err != "model crashed" {
		t.Errorf("unexpected done message: %+v", done)
	}
}

// =============================================================================
// ABORT
// =============================================================================

func TestAbortPersistsPartialWithStoppedMarker(t *testing.T) {
	coord, backend, sink, convs := newTestCoordinator(t)
	ctx := context.Background()

	coord.Send(ctx, "hi")
	convID := convs.ActiveID()

	backend.SendFeed.Publish(transport.StreamEvent{ID: convID, Kind: transport.EventChunk, Chunk: "Partial ans"})
	if err := coord.Abort(ctx); err != nil {
		t.Fatal(err)
	}

	conv := convs.Get(convID)
	if conv.MessageCount() != 2 {
		t.Fatalf("expected aborted message persisted, got %d messages", conv.MessageCount())
	}
	if got := conv.Messages[1].Content; got != "Partial ans"+model.StoppedMarker {
		t.Errorf("unexpected aborted content: %q", got)
	}
	if backend.Aborts != 1 {
		t.Errorf("backend abort not invoked: %d", backend.Aborts)
	}

	done := sink.lastDone()
	if done == nil || !done.Aborted {
		t.Errorf("expected aborted done message: %+v", done)
	}

	// Chunks still in flight after the abort land nowhere.
	backend.SendFeed.Publish(transport.StreamEvent{ID: convID, Kind: transport.EventChunk, Chunk: "late"})
	backend.SendFeed.Publish(transport.StreamEvent{ID: convID, Kind: transport.EventEnd, Model: "m"})
	if got := convs.Get(convID).MessageCount(); got != 2 {
		t.Errorf("late events persisted after abort: %d messages", got)
	}
}

func TestAbortWithEmptyBufferPersistsNothing(t *testing.T) {
	coord, backend, sink, convs := newTestCoordinator(t)
	ctx := context.Background()

	coord.Send(ctx, "hi")
	convID := convs.ActiveID()

	// Abort before any chunk arrived.
	if err := coord.Abort(ctx); err != nil {
		t.Fatal(err)
	}

	if got := convs.Get(convID).MessageCount(); got != 1 {
		t.Errorf("empty abort must not persist a message, got %d messages", got)
	}
	if backend.Aborts != 1 {
		t.Errorf("backend abort not invoked: %d", backend.Aborts)
	}
	if coord.IsStreaming() {
		t.Error("streaming state must clear on abort")
	}
	done := sink.lastDone()
	if done == nil || !done.Aborted {
		t.Errorf("expected aborted done message: %+v", done)
	}
}

func TestAbortWithoutStreamIsNoOp(t *testing.T) {
	coord, backend, _, _ := newTestCoordinator(t)

	if err := coord.Abort(context.Background()); err != nil {
		t.Fatal(err)
	}
	if backend.Aborts != 0 {
		t.Error("abort without stream must not reach the backend")
	}
}

// =============================================================================
// SMART QUERY
// =============================================================================

func TestAskStreamsToCompletion(t *testing.T) {
	coord, backend, sink, _ := newTestCoordinator(t)
	ctx := context.Background()

	queryID, err := coord.Ask(ctx, "what did I plan for friday")
	if err != nil {
		t.Fatal(err)
	}
	if queryID == "" {
		t.Fatal("expected query id")
	}
	if coord.ActiveQueryID() != queryID {
		t.Errorf("query session not armed: %q", coord.ActiveQueryID())
	}

	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventChunk, Chunk: "Dentist "})
	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventChunk, Chunk: "at 3pm"})
	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventEnd})

	done := sink.lastQueryDone()
	if done == nil || done.Text != "Dentist at 3pm" || done.Err != "" {
		t.Errorf("unexpected query result: %+v", done)
	}
	if coord.ActiveQueryID() != "" {
		t.Error("query session must clear on end")
	}
}

func TestAskIssuanceFailureYieldsErrorText(t *testing.T) {
	coord, backend, sink, _ := newTestCoordinator(t)

	backend.FailQuery = errors.New("index unavailable")
	if _, err := coord.Ask(context.Background(), "anything"); err == nil {
		t.Fatal("expected issuance error")
	}

	done := sink.lastQueryDone()
	if done == nil || done.Text != "Error: index unavailable" {
		t.Errorf("expected Error: text result, got %+v", done)
	}
}

func TestAskKeepsChunksDeliveredDuringIssuance(t *testing.T) {
	coord, backend, sink, _ := newTestCoordinator(t)
	ctx := context.Background()

	// The backend starts streaming before SmartQuery returns.
	backend.QueryIssued = func(queryID string) {
		backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventChunk, Chunk: "Dentist "})
	}

	queryID, err := coord.Ask(ctx, "what did I plan for friday")
	if err != nil {
		t.Fatal(err)
	}

	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventChunk, Chunk: "at 3pm"})
	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventEnd})

	done := sink.lastQueryDone()
	if done == nil || done.Text != "Dentist at 3pm" {
		t.Errorf("chunk delivered during issuance was lost: %+v", done)
	}
}

func TestQueryErrorKeepsStreamedPartial(t *testing.T) {
	coord, backend, sink, _ := newTestCoordinator(t)
	ctx := context.Background()

	queryID, _ := coord.Ask(ctx, "question")
	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventChunk, Chunk: "Partial insight"})
	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventError, Err: "model crashed"})

	done := sink.lastQueryDone()
	if done == nil || done.Text != "Partial insight" {
		t.Errorf("streamed text must survive a mid-stream error: %+v", done)
	}
	if done != nil && done.Err != "model crashed" {
		t.Errorf("error not carried alongside the partial: %+v", done)
	}
	if coord.ActiveQueryID() != "" {
		t.Error("query session must clear on error")
	}
}

func TestQueryErrorWithEmptyBufferShowsErrorText(t *testing.T) {
	coord, backend, sink, _ := newTestCoordinator(t)

	queryID, _ := coord.Ask(context.Background(), "question")
	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventError, Err: "index unavailable"})

	done := sink.lastQueryDone()
	if done == nil || done.Text != "Error: index unavailable" {
		t.Errorf("empty-buffer error must show the error line: %+v", done)
	}
}

func TestNewAskReplacesOldQuery(t *testing.T) {
	coord, backend, sink, _ := newTestCoordinator(t)
	ctx := context.Background()

	first, _ := coord.Ask(ctx, "first question")
	second, _ := coord.Ask(ctx, "second question")

	// Events of the replaced query are dropped.
	backend.QueryFeed.Publish(transport.StreamEvent{ID: first, Kind: transport.EventChunk, Chunk: "stale"})
	backend.QueryFeed.Publish(transport.StreamEvent{ID: first, Kind: transport.EventEnd})

	if coord.ActiveQueryID() != second {
		t.Errorf("replaced query clobbered the live one: %q", coord.ActiveQueryID())
	}

	backend.QueryFeed.Publish(transport.StreamEvent{ID: second, Kind: transport.EventChunk, Chunk: "fresh"})
	backend.QueryFeed.Publish(transport.StreamEvent{ID: second, Kind: transport.EventEnd})

	done := sink.lastQueryDone()
	if done == nil || done.QueryID != second || done.Text != "fresh" {
		t.Errorf("unexpected result after replacement: %+v", done)
	}
}

func TestDismissQueryDropsRemainingEvents(t *testing.T) {
	coord, backend, sink, _ := newTestCoordinator(t)
	ctx := context.Background()

	queryID, _ := coord.Ask(ctx, "question")
	coord.DismissQuery()

	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventChunk, Chunk: "late"})
	backend.QueryFeed.Publish(transport.StreamEvent{ID: queryID, Kind: transport.EventEnd})

	if done := sink.lastQueryDone(); done != nil {
		t.Errorf("dismissed query still produced a result: %+v", done)
	}
}

// =============================================================================
// SETTINGS AND MEMORY INTEGRATION
// =============================================================================

func TestSendForwardsCustomSystemPrompt(t *testing.T) {
	backend := transporttest.New()
	backend.Settings = model.ChatSettings{
		Model:              "qwen2.5:7b",
		SystemPromptMode:   model.PromptModeCustom,
		CustomSystemPrompt: "You are terse.",
		MaxTokens:          2048,
	}

	convs := store.NewConversations(backend)
	resolver := settings.NewResolver(backend)
	if err := resolver.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	coord := NewCoordinator(backend, convs, resolver, memory.NewCounter(backend), sink)
	coord.Start()
	defer coord.Close()

	coord.Send(context.Background(), "hello")
	if call := backend.LastSendCall(); call == nil || call.SystemPrompt != "You are terse." {
		t.Errorf("custom prompt not forwarded: %+v", call)
	}
}

func TestSendRefreshesMemoryCount(t *testing.T) {
	coord, backend, sink, _ := newTestCoordinator(t)
	backend.MemoryN = 4

	coord.Send(context.Background(), "remember the rent")

	found := false
	for _, msg := range sink.all() {
		if count, ok := msg.(MemoryCountMsg); ok && count.Count == 4 {
			found = true
		}
	}
	if !found {
		t.Error("expected memory count message after send")
	}
}

func TestMemoryCountPublishedBeforeIssuance(t *testing.T) {
	coord, backend, sink, _ := newTestCoordinator(t)
	backend.MemoryN = 2
	backend.FailSend = errors.New("provider offline")

	// Even a failed issuance sees the count: it is published before the
	// stream request goes out.
	if err := coord.Send(context.Background(), "remember the rent"); err == nil {
		t.Fatal("expected issuance error")
	}

	found := false
	for _, msg := range sink.all() {
		if count, ok := msg.(MemoryCountMsg); ok && count.Count == 2 {
			found = true
		}
	}
	if !found {
		t.Error("memory count must be published before the stream request")
	}
}

func TestMemoryFailureDoesNotBlockSend(t *testing.T) {
	coord, backend, _, convs := newTestCoordinator(t)
	backend.FailMemory = errors.New("index rebuilding")

	if err := coord.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("memory failure must not fail the send: %v", err)
	}
	if convs.Active() == nil {
		t.Error("send did not complete")
	}
}
