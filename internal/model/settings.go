// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// SYSTEM PROMPT MODE
// =============================================================================

// SystemPromptMode selects how the assistant's system prompt is resolved.
type SystemPromptMode string

const (
	// PromptModeDefault uses the backend's built-in prompt.
	PromptModeDefault SystemPromptMode = "default"
	// PromptModeContext lets the backend build a context-aware prompt; the
	// client never sends prompt text in this mode.
	PromptModeContext SystemPromptMode = "context"
	// PromptModeCustom forwards CustomSystemPrompt verbatim.
	PromptModeCustom SystemPromptMode = "custom"
)

// Valid reports whether the mode is one of the known values.
func (m SystemPromptMode) Valid() bool {
	switch m {
	case PromptModeDefault, PromptModeContext, PromptModeCustom:
		return true
	}
	return false
}

// =============================================================================
// CHAT SETTINGS
// =============================================================================

// ChatSettings is the chat configuration: model, prompt mode, and generation
// budget. The backend validates and merges updates; clients always adopt the
// backend's echoed value after a save.
type ChatSettings struct {
	Model              string           `json:"model"`
	SystemPromptMode   SystemPromptMode `json:"systemPromptMode"`
	CustomSystemPrompt string           `json:"customSystemPrompt,omitempty"`
	MaxTokens          int              `json:"maxTokens"`
}

// DefaultChatSettings returns the settings used before any are persisted.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		Model:            "qwen2.5:7b",
		SystemPromptMode: PromptModeDefault,
		MaxTokens:        2048,
	}
}

// SystemPromptOverride returns the prompt text to forward with a send
// request: the custom prompt when mode is custom, empty otherwise (the
// context-aware prompt is resolved backend-side and never sent explicitly).
func (s ChatSettings) SystemPromptOverride() string {
	if s.SystemPromptMode == PromptModeCustom {
		return s.CustomSystemPrompt
	}
	return ""
}

// Normalize clamps invalid values back to safe defaults. Backend
// implementations call this before persisting so the echoed settings are
// always valid.
func (s *ChatSettings) Normalize() {
	defaults := DefaultChatSettings()
	if s.Model == "" {
		s.Model = defaults.Model
	}
	if !s.SystemPromptMode.Valid() {
		s.SystemPromptMode = defaults.SystemPromptMode
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = defaults.MaxTokens
	}
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

// SettingsPatch is a partial settings update. Nil fields are left unchanged
// by Apply; the backend merge is authoritative.
type SettingsPatch struct {
	Model              *string           `json:"model,omitempty"`
	SystemPromptMode   *SystemPromptMode `json:"systemPromptMode,omitempty"`
	CustomSystemPrompt *string           `json:"customSystemPrompt,omitempty"`
	MaxTokens          *int              `json:"maxTokens,omitempty"`
}

// Apply merges the patch into a copy of the settings and returns it.
func (s ChatSettings) Apply(p SettingsPatch) ChatSettings {
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.SystemPromptMode != nil {
		s.SystemPromptMode = *p.SystemPromptMode
	}
	if p.CustomSystemPrompt != nil {
		s.CustomSystemPrompt = *p.CustomSystemPrompt
	}
	if p.MaxTokens != nil {
		s.MaxTokens = *p.MaxTokens
	}
	return s
}

// FallbackModels is the minimal model list shown when the active provider is
// absent from the provider→models mapping.
var FallbackModels = []string{"qwen2.5:7b", "llama3.1:8b"}
