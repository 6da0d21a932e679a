// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/daybookhq/daybook-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrConversationNotFound = errors.New("conversation not found")
)

// =============================================================================
// STORE
// =============================================================================

// Store is the SQLite persistence layer.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the database at path. Use
// ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection also keeps
	// :memory: databases coherent across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init metadata: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ListConversations returns all conversations with full message histories,
// most recently updated first.
func (s *Store) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		var created, updated int64
		if err := rows.Scan(&conv.ID, &conv.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.CreatedAt = time.UnixMilli(created).UTC()
		conv.UpdatedAt = time.UnixMilli(updated).UTC()
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range convs {
		messages, err := s.listMessages(ctx, convs[i].ID)
		if err != nil {
			return nil, err
		}
		convs[i].Messages = messages
	}
	return convs, nil
}

// GetConversation returns one conversation with its messages.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.Title, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv.CreatedAt = time.UnixMilli(created).UTC()
	conv.UpdatedAt = time.UnixMilli(updated).UTC()

	conv.Messages, err = s.listMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation inserts a new conversation. An empty title becomes the
// placeholder title.
func (s *Store) CreateConversation(ctx context.Context, title string) (*model.Conversation, error) {
	conv := model.NewConversation(title)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// DeleteConversation removes a conversation; messages cascade.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// RenameConversation sets the title and bumps updated_at.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// AddMessage appends a message and bumps the conversation's updated_at.
func (s *Store) AddMessage(ctx context.Context, conversationID string, msg model.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`, conversationID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to compute sequence: %w", err)
	}

	var inputTokens, outputTokens sql.NullInt64
	if msg.TokenUsage != nil {
		inputTokens = sql.NullInt64{Int64: int64(msg.TokenUsage.Input), Valid: true}
		outputTokens = sql.NullInt64{Int64: int64(msg.TokenUsage.Output), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, model, input_tokens, output_tokens, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, conversationID, string(msg.Role), msg.Content,
		nullString(msg.Model), inputTokens, outputTokens, msg.Timestamp.UnixMilli(), seq)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}

	return tx.Commit()
}

// listMessages returns a conversation's messages in order.
func (s *Store) listMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, model, input_tokens, output_tokens, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0)
	for rows.Next() {
		var msg model.Message
		var modelName sql.NullString
		var inputTokens, outputTokens sql.NullInt64
		var created int64
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &modelName, &inputTokens, &outputTokens, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Model = modelName.String
		msg.Timestamp = time.UnixMilli(created).UTC()
		if inputTokens.Valid || outputTokens.Valid {
			msg.TokenUsage = &model.TokenUsage{
				Input:  int(inputTokens.Int64),
				Output: int(outputTokens.Int64),
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

// GetSettings returns the persisted chat settings, or defaults when none
// were saved yet.
func (s *Store) GetSettings(ctx context.Context) (model.ChatSettings, error) {
	var settings model.ChatSettings
	var mode string
	err := s.db.QueryRowContext(ctx,
		`SELECT model, system_prompt_mode, custom_system_prompt, max_tokens FROM chat_settings WHERE id = 1`).
		Scan(&settings.Model, &mode, &settings.CustomSystemPrompt, &settings.MaxTokens)
	if err == sql.ErrNoRows {
		return model.DefaultChatSettings(), nil
	}
	if err != nil {
		return model.ChatSettings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	settings.SystemPromptMode = model.SystemPromptMode(mode)
	settings.Normalize()
	return settings, nil
}

// SaveSettings merges the patch into the persisted settings, normalizes, and
// returns the stored result.
func (s *Store) SaveSettings(ctx context.Context, patch model.SettingsPatch) (model.ChatSettings, error) {
	current, err := s.GetSettings(ctx)
	if err != nil {
		return model.ChatSettings{}, err
	}

	merged := current.Apply(patch)
	merged.Normalize()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_settings (id, model, system_prompt_mode, custom_system_prompt, max_tokens)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   model = excluded.model,
		   system_prompt_mode = excluded.system_prompt_mode,
		   custom_system_prompt = excluded.custom_system_prompt,
		   max_tokens = excluded.max_tokens`,
		merged.Model, string(merged.SystemPromptMode), merged.CustomSystemPrompt, merged.MaxTokens)
	if err != nil {
		return model.ChatSettings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return merged, nil
}

// =============================================================================
// MEMORY ITEMS
// =============================================================================

// AddMemoryItem stores a memory fact.
func (s *Store) AddMemoryItem(ctx context.Context, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_items (content, created_at) VALUES (?, ?)`,
		content, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to add memory item: %w", err)
	}
	return nil
}

// ListMemoryItems returns all memory facts, oldest first.
func (s *Store) ListMemoryItems(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content FROM memory_items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory items: %w", err)
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		items = append(items, content)
	}
	return items, rows.Err()
}

// CountRelevantMemories counts memory items sharing at least one significant
// word with the history. A keyword heuristic, not semantic search; the count
// only feeds the indicator badge.
func (s *Store) CountRelevantMemories(ctx context.Context, history []model.ChatMessage) (int, error) {
	items, err := s.ListMemoryItems(ctx)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 || len(history) == 0 {
		return 0, nil
	}

	keywords := make(map[string]bool)
	for _, msg := range history {
		for _, word := range strings.Fields(strings.ToLower(msg.Content)) {
			word = strings.Trim(word, ".,!?;:\"'()")
			if len([]rune(word)) >= 4 {
				keywords[word] = true
			}
		}
	}

	count := 0
	for _, item := range items {
		for _, word := range strings.Fields(strings.ToLower(item)) {
			word = strings.Trim(word, ".,!?;:\"'()")
			if keywords[word] {
				count++
				break
			}
		}
	}
	return count, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
