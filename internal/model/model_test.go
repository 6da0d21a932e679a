// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
)

func TestNewUserMessage(t *testing.T) {
	msg := NewUserMessage("hello")

	if msg.Role != RoleUser {
		t.Errorf("expected role user, got %s", msg.Role)
	}
	if msg.Content != "hello" {
		t.Errorf("expected content 'hello', got %s", msg.Content)
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("expected msg_ prefix, got %s", msg.ID)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if msg.TokenUsage != nil {
		t.Error("user message should carry no token usage")
	}
}

func TestNewAssistantMessage(t *testing.T) {
	msg := NewAssistantMessage("Hello there", "qwen2.5:7b", TokenUsage{Input: 10, Output: 3})

	if msg.Role != RoleAssistant {
		t.Errorf("expected role assistant, got %s", msg.Role)
	}
	if msg.Model != "qwen2.5:7b" {
		t.Errorf("expected model, got %s", msg.Model)
	}
	if msg.TokenUsage == nil || msg.TokenUsage.Input != 10 || msg.TokenUsage.Output != 3 {
		t.Errorf("unexpected token usage: %+v", msg.TokenUsage)
	}
}

func TestNewAbortedMessage(t *testing.T) {
	msg := NewAbortedMessage("Partial ans")

	if msg.Content != "Partial ans\n\n*[Response stopped]*" {
		t.Errorf("unexpected content: %q", msg.Content)
	}
	if msg.Model != "" || msg.TokenUsage != nil {
		t.Error("aborted message should carry no model or usage")
	}
}

func TestMessageIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewUserMessage("x").ID
		if seen[id] {
			t.Fatalf("duplicate message ID: %s", id)
		}
		seen[id] = true
	}
}

func TestHistoryFromMessages(t *testing.T) {
	messages := []Message{
		NewUserMessage("question"),
		NewAssistantMessage("answer", "m", TokenUsage{}),
		{ID: "msg_x", Role: RoleAssistant, Content: ""}, // skipped
	}

	history := HistoryFromMessages(messages)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "question" {
		t.Errorf("unexpected first entry: %+v", history[0])
	}
	if history[1].Role != "assistant" || history[1].Content != "answer" {
		t.Errorf("unexpected second entry: %+v", history[1])
	}
}

func TestConversationNeedsAutoTitle(t *testing.T) {
	conv := NewConversation("")
	if conv.Title != PlaceholderTitle {
		t.Errorf("expected placeholder title, got %q", conv.Title)
	}
	if conv.NeedsAutoTitle() {
		t.Error("empty conversation must not need auto-title")
	}

	conv.Messages = append(conv.Messages, NewUserMessage("first"))
	if !conv.NeedsAutoTitle() {
		t.Error("one message + placeholder title should need auto-title")
	}

	conv.Title = "Plan my week"
	if conv.NeedsAutoTitle() {
		t.Error("renamed conversation must not need auto-title")
	}

	conv.Title = PlaceholderTitle
	conv.Messages = append(conv.Messages, NewAssistantMessage("ok", "m", TokenUsage{}))
	if conv.NeedsAutoTitle() {
		t.Error("two messages must not need auto-title")
	}
}

func TestConversationLastMessage(t *testing.T) {
	conv := NewConversation("t")
	if conv.LastMessage() != nil {
		t.Error("expected nil last message for empty conversation")
	}
	conv.Messages = append(conv.Messages, NewUserMessage("a"), NewUserMessage("b"))
	if got := conv.LastMessage(); got == nil || got.Content != "b" {
		t.Errorf("unexpected last message: %+v", got)
	}
}

func TestChatSettingsNormalize(t *testing.T) {
	s := ChatSettings{Model: "", SystemPromptMode: "bogus", MaxTokens: -5}
	s.Normalize()

	defaults := DefaultChatSettings()
	if s.Model != defaults.Model {
		t.Errorf("model not defaulted: %q", s.Model)
	}
	if s.SystemPromptMode != PromptModeDefault {
		t.Errorf("mode not defaulted: %q", s.SystemPromptMode)
	}
	if s.MaxTokens != defaults.MaxTokens {
		t.Errorf("max tokens not defaulted: %d", s.MaxTokens)
	}
}

func TestChatSettingsApply(t *testing.T) {
	base := DefaultChatSettings()

	mode := PromptModeCustom
	prompt := "You are terse."
	merged := base.Apply(SettingsPatch{SystemPromptMode: &mode, CustomSystemPrompt: &prompt})

	if merged.SystemPromptMode != PromptModeCustom || merged.CustomSystemPrompt != prompt {
		t.Errorf("patch not applied: %+v", merged)
	}
	// Unset fields keep their previous values.
	if merged.Model != base.Model || merged.MaxTokens != base.MaxTokens {
		t.Errorf("unpatched fields changed: %+v", merged)
	}
	// Original untouched.
	if base.SystemPromptMode != PromptModeDefault {
		t.Errorf("Apply mutated receiver: %+v", base)
	}
}

func TestSystemPromptOverride(t *testing.T) {
	s := DefaultChatSettings()
	if s.SystemPromptOverride() != "" {
		t.Error("default mode must not override the prompt")
	}

	s.SystemPromptMode = PromptModeContext
	if s.SystemPromptOverride() != "" {
		t.Error("context mode prompt is resolved backend-side, not sent")
	}

	s.SystemPromptMode = PromptModeCustom
	s.CustomSystemPrompt = "be brief"
	if s.SystemPromptOverride() != "be brief" {
		t.Error("custom mode must forward the custom prompt")
	}
}
