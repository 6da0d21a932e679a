// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// fakeProviderServer emulates the Ollama API: health, tags, and a streaming
// chat endpoint that replies with the given chunks.
func fakeProviderServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"qwen2.5:7b"},{"name":"llama3.1:8b"}]}`)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, chunk := range chunks {
			line, _ := json.Marshal(map[string]any{
				"model":   "qwen2.5:7b",
				"message": map[string]string{"role": "assistant", "content": chunk},
				"done":    false,
			})
			w.Write(append(line, '\n'))
			flusher.Flush()
		}
		line, _ := json.Marshal(map[string]any{
			"model":             "qwen2.5:7b",
			"message":           map[string]string{"role": "assistant", "content": ""},
			"done":              true,
			"prompt_eval_count": 7,
			"eval_count":        len(chunks),
		})
		w.Write(append(line, '\n'))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestLocal(t *testing.T, chunks []string) *Local {
	t.Helper()
	srv := fakeProviderServer(t, chunks)
	provider := NewProvider(&ProviderConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	return NewLocal(newTestStore(t), provider)
}

// =============================================================================
// STORE
// =============================================================================

func TestStoreConversationLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if conv.Title != model.PlaceholderTitle {
		t.Errorf("expected placeholder title, got %q", conv.Title)
	}

	if err := store.AddMessage(ctx, conv.ID, model.NewUserMessage("first")); err != nil {
		t.Fatal(err)
	}
	usage := model.TokenUsage{Input: 9, Output: 4}
	if err := store.AddMessage(ctx, conv.ID, model.NewAssistantMessage("reply", "qwen2.5:7b", usage)); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount() != 2 {
		t.Fatalf("expected 2 messages, got %d", got.MessageCount())
	}
	if got.Messages[0].Role != model.RoleUser || got.Messages[1].Role != model.RoleAssistant {
		t.Errorf("message order lost: %+v", got.Messages)
	}
	assistant := got.Messages[1]
	if assistant.Model != "qwen2.5:7b" || assistant.TokenUsage == nil || *assistant.TokenUsage != usage {
		t.Errorf("metadata not persisted: %+v", assistant)
	}

	if err := store.RenameConversation(ctx, conv.ID, "Named"); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.GetConversation(ctx, conv.ID); got.Title != "Named" {
		t.Errorf("rename not persisted: %q", got.Title)
	}

	if err := store.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetConversation(ctx, conv.ID); err != ErrConversationNotFound {
		t.Errorf("expected not-found after delete, got %v", err)
	}
}

func TestStoreListOrdersByRecency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older, _ := store.CreateConversation(ctx, "older")
	time.Sleep(2 * time.Millisecond)
	newer, _ := store.CreateConversation(ctx, "newer")

	list, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != newer.ID {
		t.Fatalf("expected newest first: %+v", list)
	}

	// Touching the older one by message moves it to the top.
	time.Sleep(2 * time.Millisecond)
	store.AddMessage(ctx, older.ID, model.NewUserMessage("bump"))
	list, _ = store.ListConversations(ctx)
	if list[0].ID != older.ID {
		t.Errorf("message append must bump recency: %+v", list)
	}
}

func TestStoreMissingConversationErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddMessage(ctx, "conv_nope", model.NewUserMessage("x")); err == nil {
		t.Error("expected error adding message to missing conversation")
	}
	if err := store.RenameConversation(ctx, "conv_nope", "t"); err != ErrConversationNotFound {
		t.Errorf("expected not-found, got %v", err)
	}
	if err := store.DeleteConversation(ctx, "conv_nope"); err != ErrConversationNotFound {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestStoreSettingsMergeAndNormalize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Defaults before anything was saved.
	settings, err := store.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if settings != model.DefaultChatSettings() {
		t.Errorf("expected defaults, got %+v", settings)
	}

	name := "llama3.1:8b"
	saved, err := store.SaveSettings(ctx, model.SettingsPatch{Model: &name})
	if err != nil {
		t.Fatal(err)
	}
	if saved.Model != name || saved.MaxTokens != 2048 {
		t.Errorf("merge wrong: %+v", saved)
	}

	// Invalid values normalize on save; the echo reflects the fix.
	bad := -10
	saved, err = store.SaveSettings(ctx, model.SettingsPatch{MaxTokens: &bad})
	if err != nil {
		t.Fatal(err)
	}
	if saved.MaxTokens != 2048 {
		t.Errorf("expected normalized tokens, got %d", saved.MaxTokens)
	}
	if saved.Model != name {
		t.Errorf("unrelated field lost: %+v", saved)
	}

	// Persisted across reads.
	settings, _ = store.GetSettings(ctx)
	if settings != saved {
		t.Errorf("settings not persisted: %+v vs %+v", settings, saved)
	}
}

func TestStoreMemoryCountHeuristic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AddMemoryItem(ctx, "User pays rent on the first of the month")
	store.AddMemoryItem(ctx, "Dentist is Dr. Alvarez")
	store.AddMemoryItem(ctx, "Prefers tea over coffee")

	history := []model.ChatMessage{{Role: "user", Content: "When is my rent due? Also book the dentist."}}
	count, err := store.CountRelevantMemories(ctx, history)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 relevant items, got %d", count)
	}

	// Empty history never matches.
	if count, _ := store.CountRelevantMemories(ctx, nil); count != 0 {
		t.Errorf("expected 0 for empty history, got %d", count)
	}
}

// =============================================================================
// LOCAL BACKEND STREAMING
// =============================================================================

func TestLocalSendMessageStreams(t *testing.T) {
	local := newTestLocal(t, []string{"Hel", "lo"})
	ctx := context.Background()

	events := make(chan transport.StreamEvent, 16)
	unsub := local.SubscribeSendEvents(func(ev transport.StreamEvent) { events <- ev })
	defer unsub()

	history := []model.ChatMessage{{Role: "user", Content: "hi"}}
	if err := local.SendMessage(ctx, "conv_1", history, ""); err != nil {
		t.Fatal(err)
	}

	var got []transport.StreamEvent
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if ev.Kind == transport.EventEnd || ev.Kind == transport.EventError {
				goto done
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timed out")
		}
	}
done:
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %+v", got)
	}
	if got[0].Chunk+got[1].Chunk != "Hello" {
		t.Errorf("unexpected chunks: %+v", got)
	}
	end := got[2]
	if end.Kind != transport.EventEnd || end.ID != "conv_1" || end.Model != "qwen2.5:7b" {
		t.Errorf("unexpected end event: %+v", end)
	}
	if end.Usage.Input != 7 || end.Usage.Output != 2 {
		t.Errorf("usage not forwarded: %+v", end.Usage)
	}
}

func TestLocalSendIssuanceFailsWhenProviderDown(t *testing.T) {
	provider := NewProvider(&ProviderConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	local := NewLocal(newTestStore(t), provider)

	err := local.SendMessage(context.Background(), "conv_1", nil, "")
	if err == nil {
		t.Fatal("expected issuance failure when provider is unreachable")
	}
}

func TestLocalStreamQueryAssignsID(t *testing.T) {
	local := newTestLocal(t, []string{"Dentist at 3pm"})

	var queryID string
	var events []transport.StreamEvent
	err := local.StreamQuery(context.Background(), "when is the dentist?",
		func(id string) { queryID = id },
		func(ev transport.StreamEvent) { events = append(events, ev) })
	if err != nil {
		t.Fatal(err)
	}

	if queryID == "" {
		t.Fatal("query id not assigned")
	}
	if len(events) != 2 || events[0].ID != queryID || events[0].Chunk != "Dentist at 3pm" {
		t.Errorf("unexpected events: %+v", events)
	}
	if events[1].Kind != transport.EventEnd {
		t.Errorf("missing end event: %+v", events)
	}
}

func TestLocalSmartQueryFeedsQueryFeed(t *testing.T) {
	local := newTestLocal(t, []string{"answer"})

	resultCh := make(chan transport.StreamEvent, 8)
	unsub := local.SubscribeQueryEvents(func(ev transport.StreamEvent) { resultCh <- ev })
	defer unsub()

	queryID, err := local.SmartQuery(context.Background(), "question")
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-resultCh:
			if ev.ID != queryID {
				t.Errorf("event for wrong query: %+v", ev)
			}
			if ev.Kind == transport.EventEnd {
				return
			}
		case <-deadline:
			t.Fatal("timed out")
		}
	}
}

func TestLocalProviderModelsWithFallback(t *testing.T) {
	local := newTestLocal(t, nil)

	catalog, err := local.GetProviderModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(catalog["ollama"]) != 2 {
		t.Errorf("expected provider models, got %+v", catalog)
	}

	// Unreachable provider falls back to the built-in list.
	down := NewLocal(newTestStore(t), NewProvider(&ProviderConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}))
	catalog, err = down.GetProviderModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := catalog["ollama"]; len(got) != len(model.FallbackModels) {
		t.Errorf("expected fallback models, got %+v", got)
	}
}
