// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/daybookhq/daybook-tui/internal/model"
)

// =============================================================================
// PROVIDER ERRORS
// =============================================================================

var (
	ErrProviderUnavailable = errors.New("model provider is not running")
	ErrModelNotFound       = errors.New("model not found")
)

// =============================================================================
// PROVIDER CLIENT
// =============================================================================

// ProviderConfig holds provider connection options.
type ProviderConfig struct {
	// Name identifies the provider in the settings UI (default: "ollama").
	Name string

	// BaseURL of the Ollama-compatible API (default: http://127.0.0.1:11434).
	// Explicit IPv4 avoids IPv6 resolution issues on Windows.
	BaseURL string

	// Timeout for non-streaming requests (default: 30s).
	Timeout time.Duration
}

// DefaultProviderConfig returns the default provider configuration.
func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		Name:    "ollama",
		BaseURL: "http://127.0.0.1:11434",
		Timeout: 30 * time.Second,
	}
}

// Provider is a client for an Ollama-compatible chat API.
type Provider struct {
	config     *ProviderConfig
	httpClient *http.Client

	// Streaming requests run without a client timeout; lifetime is the
	// request context's.
	streamClient *http.Client
}

// NewProvider creates a provider client.
func NewProvider(config *ProviderConfig) *Provider {
	if config == nil {
		config = DefaultProviderConfig()
	}
	if config.Name == "" {
		config.Name = "ollama"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:11434"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Provider{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
	}
}

// Name returns the provider's display name.
func (p *Provider) Name() string {
	return p.config.Name
}

// Ping verifies the provider is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ErrProviderUnavailable
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %s", ErrProviderUnavailable, resp.Status)
	}
	return nil
}

// ListModels returns the provider's installed model names.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, ErrProviderUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list models: %s", resp.Status)
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	names := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

type providerMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type providerChatRequest struct {
	Model    string            `json:"model"`
	Messages []providerMessage `json:"messages"`
	Stream   bool              `json:"stream"`
	Options  map[string]any    `json:"options,omitempty"`
}

// StreamChat streams a chat completion, invoking fn for every content chunk
// in arrival order. Returns the model that answered and the token usage from
// the final stream line. A non-empty systemPrompt is prepended as the system
// message.
func (p *Provider) StreamChat(ctx context.Context, modelName string, history []model.ChatMessage, systemPrompt string, maxTokens int, fn func(chunk string)) (string, model.TokenUsage, error) {
	messages := make([]providerMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, providerMessage{Role: "system", Content: systemPrompt})
	}
	for _, msg := range history {
		messages = append(messages, providerMessage{Role: msg.Role, Content: msg.Content})
	}

	reqBody := providerChatRequest{
		Model:    modelName,
		Messages: messages,
		Stream:   true,
	}
	if maxTokens > 0 {
		reqBody.Options = map[string]any{"num_predict": maxTokens}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", model.TokenUsage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", model.TokenUsage{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", model.TokenUsage{}, ctx.Err()
		}
		return "", model.TokenUsage{}, ErrProviderUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", model.TokenUsage{}, ErrModelNotFound
	}
	if resp.StatusCode != http.StatusOK {
		var provErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&provErr); err == nil && provErr.Error != "" {
			return "", model.TokenUsage{}, errors.New(provErr.Error)
		}
		return "", model.TokenUsage{}, fmt.Errorf("stream request failed: %s", resp.Status)
	}

	return p.readStream(ctx, resp.Body, fn)
}

// readStream consumes the provider's NDJSON response line by line.
func (p *Provider) readStream(ctx context.Context, body io.Reader, fn func(chunk string)) (string, model.TokenUsage, error) {
	reader := bufio.NewReader(body)
	var usedModel string
	var usage model.TokenUsage

	for {
		if err := ctx.Err(); err != nil {
			return usedModel, usage, err
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && (err != io.EOF || len(line) == 0) {
			if err == io.EOF {
				return usedModel, usage, nil
			}
			return usedModel, usage, err
		}

		var chunk struct {
			Model   string `json:"model"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Done            bool   `json:"done"`
			Error           string `json:"error,omitempty"`
			PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
			EvalCount       int    `json:"eval_count,omitempty"`
		}
		if jsonErr := json.Unmarshal(line, &chunk); jsonErr != nil {
			// Skip malformed lines
			if err == io.EOF {
				return usedModel, usage, nil
			}
			continue
		}

		if chunk.Error != "" {
			return usedModel, usage, errors.New(chunk.Error)
		}
		if chunk.Model != "" {
			usedModel = chunk.Model
		}
		if chunk.Message.Content != "" {
			fn(chunk.Message.Content)
		}
		if chunk.Done {
			usage.Input = chunk.PromptEvalCount
			usage.Output = chunk.EvalCount
			return usedModel, usage, nil
		}
		if err == io.EOF {
			return usedModel, usage, nil
		}
	}
}
