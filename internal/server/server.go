// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/daybookhq/daybook-tui/internal/backend"
	"github.com/daybookhq/daybook-tui/internal/model"
	"github.com/daybookhq/daybook-tui/internal/transport"
)

// DefaultPort is the daemon's default listen port.
const DefaultPort = 7133

// =============================================================================
// SERVER
// =============================================================================

// Config holds daemon options.
type Config struct {
	// Host to bind (default: 127.0.0.1). The daemon serves one user; binding
	// loopback keeps it off the network unless explicitly configured.
	Host string

	// Port to listen on (default: 7133).
	Port int

	// RateLimiter applied to all endpoints (default: DefaultRateLimiter).
	RateLimiter *RateLimiter

	// Logger for request logging (default: stderr).
	Logger *log.Logger
}

// Server is the daybook daemon: the local backend exposed over HTTP.
type Server struct {
	config  *Config
	local   *backend.Local
	httpSrv *http.Server
}

// New creates a server over an initialized local backend.
func New(local *backend.Local, config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.Host == "" {
		config.Host = "127.0.0.1"
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.RateLimiter == nil {
		config.RateLimiter = DefaultRateLimiter()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Server{config: config, local: local}
}

// Handler builds the daemon's full handler, middleware included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /v1/conversations", s.handleListConversations)
	mux.HandleFunc("POST /v1/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("PATCH /v1/conversations/{id}", s.handleRenameConversation)
	mux.HandleFunc("DELETE /v1/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", s.handleAddMessage)

	mux.HandleFunc("POST /v1/chat/send", s.handleChatSend)
	mux.HandleFunc("POST /v1/query", s.handleQuery)

	mux.HandleFunc("GET /v1/settings/chat", s.handleGetSettings)
	mux.HandleFunc("PATCH /v1/settings/chat", s.handleSaveSettings)

	mux.HandleFunc("GET /v1/provider", s.handleGetProvider)
	mux.HandleFunc("GET /v1/provider/models", s.handleGetProviderModels)

	mux.HandleFunc("POST /v1/memory/count", s.handleMemoryCount)

	return Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(s.config.Logger),
		RateLimitMiddleware(s.config.RateLimiter),
		BodyLimitMiddleware(),
	)(mux)
}

// ListenAndServe runs the daemon until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		// No WriteTimeout: chat streams are open-ended and governed by the
		// request context instead.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Printf("daybook daemon listening on %s", addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the daemon's error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeBackendError maps backend errors onto HTTP statuses.
func writeBackendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, backend.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, backend.ErrModelNotFound):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.local.GetConversations(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if list == nil {
		list = []model.Conversation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	conv, err := s.local.CreateConversation(r.Context(), req.Title)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.local.GetConversation(r.Context(), r.PathValue("id"))
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.local.RenameConversation(r.Context(), r.PathValue("id"), req.Title); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.local.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var msg model.Message
	if !decodeBody(w, r, &msg) {
		return
	}
	if msg.Content == "" {
		writeError(w, http.StatusBadRequest, "message content is required")
		return
	}
	if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
		writeError(w, http.StatusBadRequest, "invalid message role")
		return
	}
	if err := s.local.AddMessage(r.Context(), r.PathValue("id"), msg); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

// =============================================================================
// STREAMING
// =============================================================================

// streamWriter writes NDJSON event lines, flushing after each so chunks reach
// the client as they are generated.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newStreamWriter(w http.ResponseWriter) *streamWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return &streamWriter{w: w, flusher: flusher}
}

func (sw *streamWriter) writeLine(line []byte) {
	sw.w.Write(line)
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string              `json:"conversation_id"`
		History        []model.ChatMessage `json:"history"`
		SystemPrompt   string              `json:"system_prompt"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	// Issuance failures happen before any stream bytes, so they can still be
	// a proper HTTP error. Once streaming starts, failures become error
	// events on the stream itself.
	var sw *streamWriter
	err := s.local.StreamSend(r.Context(), req.ConversationID, req.History, req.SystemPrompt, func(ev transport.StreamEvent) {
		if sw == nil {
			sw = newStreamWriter(w)
		}
		sw.writeLine(transport.EncodeEventLine(ev))
	})
	if err != nil {
		if sw == nil {
			writeBackendError(w, err)
		}
		return
	}
	// A stream that produced no events still needs headers on the wire.
	if sw == nil {
		newStreamWriter(w)
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	var sw *streamWriter
	err := s.local.StreamQuery(r.Context(), req.Text,
		func(queryID string) {
			sw = newStreamWriter(w)
			sw.writeLine(transport.EncodeStartLine(queryID))
		},
		func(ev transport.StreamEvent) {
			sw.writeLine(transport.EncodeEventLine(ev))
		})
	if err != nil && sw == nil {
		writeBackendError(w, err)
	}
}

// =============================================================================
// SETTINGS AND PROVIDER
// =============================================================================

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.local.GetChatSettings(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	saved, err := s.local.SaveChatSettings(r.Context(), patch)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	name, err := s.local.GetProvider(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"provider": name})
}

func (s *Server) handleGetProviderModels(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.local.GetProviderModels(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

// =============================================================================
// MEMORY
// =============================================================================

func (s *Server) handleMemoryCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		History []model.ChatMessage `json:"history"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	count, err := s.local.MemoryCount(r.Context(), req.History)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}
