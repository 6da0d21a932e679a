// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/daybookhq/daybook-tui/internal/model"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the daybook HTTP client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeUnavailable
	ErrTypeTimeout
	ErrTypeNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
)

// Sentinel errors for easy checking.
var (
	ErrUnavailable = &ClientError{Type: ErrTypeUnavailable, Message: "daybook daemon is not running"}
	ErrTimeout     = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrNotFound    = &ClientError{Type: ErrTypeNotFound, Message: "not found"}
)

// IsUnavailable checks if an error indicates the daemon is unreachable.
func IsUnavailable(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeUnavailable
	}
	return false
}

// IsNotFound checks if an error is a not-found error.
func IsNotFound(err error) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == ErrTypeNotFound
	}
	return false
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the daybook HTTP client.
type ClientConfig struct {
	// BaseURL is the daemon base URL (default: http://127.0.0.1:7133).
	// Uses an explicit IPv4 address instead of localhost to avoid IPv6
	// resolution issues on Windows.
	BaseURL string

	// Timeout for invoke/response requests (default: 30s).
	Timeout time.Duration
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: "http://127.0.0.1:7133",
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the HTTP implementation of Backend, talking to a daybook daemon
// over its NDJSON streaming API. Thread-safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client

	// Streams use a client without timeout; lifetime is governed by the
	// per-stream context held in sendCancel.
	streamClient *http.Client

	sendFeed  *Feed
	queryFeed *Feed

	mu         sync.Mutex
	sendCancel context.CancelFunc
}

var _ Backend = (*Client)(nil)

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultClientConfig())
}

// NewClientWithConfig creates a client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:7133"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
		sendFeed:     NewFeed(),
		queryFeed:    NewFeed(),
	}
}

// =============================================================================
// INVOKE HELPERS
// =============================================================================

// apiError is the daemon's error envelope.
type apiError struct {
	Error string `json:"error"`
}

// invoke performs one request/response call. in and out may be nil.
func (c *Client) invoke(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: apiErr.Error}
		}
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "request failed: " + resp.Status}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
		}
	}
	return nil
}

// openStream issues a streaming POST and returns the response on 2xx.
func (c *Client) openStream(ctx context.Context, path string, in any) (*http.Response, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, ErrTimeout
		}
		return nil, ErrUnavailable
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: apiErr.Error}
		}
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "stream request failed: " + resp.Status}
	}
	return resp, nil
}

// pumpStream reads stream events until the body is exhausted and publishes
// them on the feed. Transport failures mid-stream surface as an error event
// unless the stream was deliberately canceled.
func (c *Client) pumpStream(ctx context.Context, body io.ReadCloser, feed *Feed, id string) {
	defer body.Close()

	decoder := NewStreamDecoder(body)
	for {
		ev, err := decoder.ReadEvent()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				feed.Publish(StreamEvent{ID: id, Kind: EventError, Err: "stream interrupted: " + err.Error()})
			}
			return
		}
		feed.Publish(ev)
		if ev.Kind == EventEnd || ev.Kind == EventError {
			return
		}
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

type createConversationRequest struct {
	Title string `json:"title"`
}

type renameConversationRequest struct {
	Title string `json:"title"`
}

// GetConversations returns all conversations with their histories.
func (c *Client) GetConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.invoke(ctx, http.MethodGet, "/v1/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation returns one conversation by id.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var out model.Conversation
	if err := c.invoke(ctx, http.MethodGet, "/v1/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateConversation creates a conversation on the daemon.
func (c *Client) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	var out model.Conversation
	if err := c.invoke(ctx, http.MethodPost, "/v1/conversations", createConversationRequest{Title: title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.invoke(ctx, http.MethodDelete, "/v1/conversations/"+url.PathEscape(id), nil, nil)
}

// RenameConversation sets a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	return c.invoke(ctx, http.MethodPatch, "/v1/conversations/"+url.PathEscape(id), renameConversationRequest{Title: title}, nil)
}

// AddMessage appends a message to a conversation.
func (c *Client) AddMessage(ctx context.Context, conversationID string, msg model.Message) error {
	return c.invoke(ctx, http.MethodPost, "/v1/conversations/"+url.PathEscape(conversationID)+"/messages", msg, nil)
}

// =============================================================================
// STREAMING
// =============================================================================

type sendRequest struct {
	ConversationID string              `json:"conversation_id"`
	History        []model.ChatMessage `json:"history"`
	SystemPrompt   string              `json:"system_prompt,omitempty"`
}

type queryRequest struct {
	Text string `json:"text"`
}

// SendMessage starts an assistant response stream. The returned error covers
// issuance only; chunks arrive on the send feed keyed by conversationID.
//
// A new send cancels any stream still in flight; the daemon aborts the
// abandoned generation when its request context dies.
func (c *Client) SendMessage(ctx context.Context, conversationID string, history []model.ChatMessage, systemPrompt string) error {
	// The stream outlives this call, so it runs on its own context rather
	// than the caller's.
	streamCtx, cancel := context.WithCancel(context.Background())

	resp, err := c.openStream(streamCtx, "/v1/chat/send", sendRequest{
		ConversationID: conversationID,
		History:        history,
		SystemPrompt:   systemPrompt,
	})
	if err != nil {
		cancel()
		return err
	}

	c.mu.Lock()
	if c.sendCancel != nil {
		c.sendCancel()
	}
	c.sendCancel = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		c.pumpStream(streamCtx, resp.Body, c.sendFeed, conversationID)
	}()
	return nil
}

// AbortSend cancels the in-flight send stream. The daemon sees the closed
// connection and stops generation; no further events are published.
func (c *Client) AbortSend(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.sendCancel
	c.sendCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// SmartQuery starts a query stream and returns the daemon-assigned query id
// from the stream's opening line.
func (c *Client) SmartQuery(ctx context.Context, text string) (string, error) {
	streamCtx, cancel := context.WithCancel(context.Background())

	resp, err := c.openStream(streamCtx, "/v1/query", queryRequest{Text: text})
	if err != nil {
		cancel()
		return "", err
	}

	decoder := NewStreamDecoder(resp.Body)
	queryID, err := decoder.ReadStart()
	if err != nil {
		cancel()
		resp.Body.Close()
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "query stream missing start line", Cause: err}
	}

	go func() {
		defer cancel()
		defer resp.Body.Close()
		for {
			ev, err := decoder.ReadEvent()
			if err != nil {
				if err != io.EOF && streamCtx.Err() == nil {
					c.queryFeed.Publish(StreamEvent{ID: queryID, Kind: EventError, Err: "stream interrupted: " + err.Error()})
				}
				return
			}
			c.queryFeed.Publish(ev)
			if ev.Kind == EventEnd || ev.Kind == EventError {
				return
			}
		}
	}()
	return queryID, nil
}

// SubscribeSendEvents registers a send stream handler.
func (c *Client) SubscribeSendEvents(h StreamHandler) func() {
	return c.sendFeed.Subscribe(h)
}

// SubscribeQueryEvents registers a smart query stream handler.
func (c *Client) SubscribeQueryEvents(h StreamHandler) func() {
	return c.queryFeed.Subscribe(h)
}

// =============================================================================
// SETTINGS
// =============================================================================

type providerResponse struct {
	Provider string `json:"provider"`
}

// GetChatSettings returns the persisted chat settings.
func (c *Client) GetChatSettings(ctx context.Context) (model.ChatSettings, error) {
	var out model.ChatSettings
	err := c.invoke(ctx, http.MethodGet, "/v1/settings/chat", nil, &out)
	return out, err
}

// SaveChatSettings sends a partial update and returns the daemon's merged
// settings.
func (c *Client) SaveChatSettings(ctx context.Context, patch model.SettingsPatch) (model.ChatSettings, error) {
	var out model.ChatSettings
	err := c.invoke(ctx, http.MethodPatch, "/v1/settings/chat", patch, &out)
	return out, err
}

// GetProvider returns the active provider name.
func (c *Client) GetProvider(ctx context.Context) (string, error) {
	var out providerResponse
	if err := c.invoke(ctx, http.MethodGet, "/v1/provider", nil, &out); err != nil {
		return "", err
	}
	return out.Provider, nil
}

// GetProviderModels returns the provider→models mapping.
func (c *Client) GetProviderModels(ctx context.Context) (map[string][]string, error) {
	var out map[string][]string
	if err := c.invoke(ctx, http.MethodGet, "/v1/provider/models", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// MEMORY
// =============================================================================

type memoryCountRequest struct {
	History []model.ChatMessage `json:"history"`
}

type memoryCountResponse struct {
	Count int `json:"count"`
}

// MemoryCount returns how many stored memories are relevant to the history.
func (c *Client) MemoryCount(ctx context.Context, history []model.ChatMessage) (int, error) {
	var out memoryCountResponse
	if err := c.invoke(ctx, http.MethodPost, "/v1/memory/count", memoryCountRequest{History: history}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
