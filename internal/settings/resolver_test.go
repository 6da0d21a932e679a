// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport/transporttest"
)

func TestLoadResolvesAllThree(t *testing.T) {
	backend := transporttest.New()
	backend.Settings = model.ChatSettings{
		Model:            "llama3.1:8b",
		SystemPromptMode: model.PromptModeContext,
		MaxTokens:        4096,
	}
	backend.Provider = "ollama"
	backend.Models = map[string][]string{"ollama": {"llama3.1:8b", "qwen2.5:7b"}}

	r := NewResolver(backend)
	if err := r.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	if r.Settings().Model != "llama3.1:8b" {
		t.Errorf("unexpected settings: %+v", r.Settings())
	}
	if r.Provider() != "ollama" {
		t.Errorf("unexpected provider: %q", r.Provider())
	}
	if !reflect.DeepEqual(r.Models(), []string{"llama3.1:8b", "qwen2.5:7b"}) {
		t.Errorf("unexpected models: %v", r.Models())
	}
	if !r.Loaded() {
		t.Error("expected loaded state")
	}
}

func TestModelsFallBackForUnknownProvider(t *testing.T) {
	backend := transporttest.New()
	backend.Provider = "anthropic"
	backend.Models = map[string][]string{"ollama": {"qwen2.5:7b"}}

	r := NewResolver(backend)
	if err := r.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(r.Models(), model.FallbackModels) {
		t.Errorf("expected fallback models, got %v", r.Models())
	}
}

func TestSettingsDefaultBeforeLoad(t *testing.T) {
	r := NewResolver(transporttest.New())
	if r.Settings() != model.DefaultChatSettings() {
		t.Errorf("unexpected pre-load settings: %+v", r.Settings())
	}
	if r.Loaded() {
		t.Error("must not report loaded before Load")
	}
}

func TestSaveAdoptsBackendEcho(t *testing.T) {
	backend := transporttest.New()
	// Backend rewrites the save: caps tokens, keeps its own model.
	backend.SettingsEcho = &model.ChatSettings{
		Model:            "qwen2.5:7b",
		SystemPromptMode: model.PromptModeDefault,
		MaxTokens:        2048,
	}

	r := NewResolver(backend)
	huge := 999999
	echo, err := r.Save(context.Background(), model.SettingsPatch{MaxTokens: &huge})
	if err != nil {
		t.Fatal(err)
	}

	// The cached value is the echo, not the local merge.
	if echo.MaxTokens != 2048 || r.Settings().MaxTokens != 2048 {
		t.Errorf("echo not adopted: echo=%+v cached=%+v", echo, r.Settings())
	}
}

func TestSaveFailureKeepsCurrentSettings(t *testing.T) {
	backend := transporttest.New()
	backend.FailSaveSettings = errors.New("disk full")

	r := NewResolver(backend)
	before := r.Settings()

	mode := model.PromptModeCustom
	if _, err := r.Save(context.Background(), model.SettingsPatch{SystemPromptMode: &mode}); err == nil {
		t.Fatal("expected save error")
	}
	if r.Settings() != before {
		t.Errorf("settings changed despite failed save: %+v", r.Settings())
	}
}
