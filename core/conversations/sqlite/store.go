// Package sqlite stores conversation history in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/koscakluka/ema-companion/core/llms"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-companion/core/conversations/sqlite"

var logger = otelslog.NewLogger(scopeName)

type Store struct{ db *sql.DB }

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			parts_json TEXT NOT NULL DEFAULT '',
			tool_calls_json TEXT NOT NULL DEFAULT '',
			tool_call_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			reasoning TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append writes the messages in one transaction.
func (s *Store) Append(ctx context.Context, conversationID string, messages ...llms.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO messages
		(conversation_id, created_at, role, content, parts_json, tool_calls_json, tool_call_id, name, reasoning)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, msg := range messages {
		parts, err := encodeJSON(msg.Parts)
		if err != nil {
			return fmt.Errorf("failed to encode content parts: %w", err)
		}
		toolCalls, err := encodeJSON(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to encode tool calls: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, conversationID, now, string(msg.Role), msg.Content,
			parts, toolCalls, msg.ToolCallID, msg.Name, msg.ReasoningContent); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, conversationID string, limit int) ([]llms.Message, error) {
	query := `SELECT role, content, parts_json, tool_calls_json, tool_call_id, name, reasoning
		FROM messages WHERE conversation_id = ? ORDER BY id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []llms.Message{}
	for rows.Next() {
		var (
			msg       llms.Message
			role      string
			parts     string
			toolCalls string
		)
		if err := rows.Scan(&role, &msg.Content, &parts, &toolCalls, &msg.ToolCallID, &msg.Name, &msg.ReasoningContent); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = llms.Role(role)
		if parts != "" {
			if err := json.Unmarshal([]byte(parts), &msg.Parts); err != nil {
				logger.Warn("dropping undecodable content parts", "conversation_id", conversationID, "error", err)
			}
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				logger.Warn("dropping undecodable tool calls", "conversation_id", conversationID, "error", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

// encodeJSON returns "" for empty slices so rows stay compact.
func encodeJSON[T any](values []T) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
