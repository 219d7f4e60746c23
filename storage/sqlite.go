package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/loomlabs/loom/compression"
	"github.com/loomlabs/loom/llm"
)

// SqliteStorage implements ConversationStorage and CompressionStore
// over a SQLite database. Thread-safe: sql.DB handles connection
// pooling and concurrent access.
type SqliteStorage struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT NOT NULL DEFAULT '',
			tool_calls TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE,
			UNIQUE(session_id, message_index)
		);

		CREATE TABLE IF NOT EXISTS compressions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			original_message_count INTEGER NOT NULL,
			compressed_message_count INTEGER NOT NULL,
			original_tokens INTEGER NOT NULL,
			compressed_tokens INTEGER NOT NULL,
			compression_ratio REAL NOT NULL,
			key_topics TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
		CREATE INDEX IF NOT EXISTS idx_compressions_session ON compressions(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save replaces the stored history for a session.
func (s *SqliteStorage) Save(ctx context.Context, sessionID string, history []llm.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id) VALUES (?)
		 ON CONFLICT(session_id) DO UPDATE SET updated_at = datetime('now')`,
		sessionID); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	for i, msg := range history {
		toolCalls := ""
		if len(msg.ToolCalls) > 0 {
			data, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to marshal tool calls: %w", err)
			}
			toolCalls = string(data)
		}
		metadata := ""
		if len(msg.Metadata) > 0 {
			data, err := json.Marshal(msg.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata: %w", err)
			}
			metadata = string(data)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, message_index, role, content, tool_call_id, tool_calls, metadata)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, i, string(msg.Role), msg.Content, msg.ToolCallID, toolCalls, metadata); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Load returns the stored history for a session, empty if unknown.
func (s *SqliteStorage) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_call_id, tool_calls, metadata
		 FROM messages WHERE session_id = ? ORDER BY message_index`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	history := []llm.Message{}
	for rows.Next() {
		var role, content, toolCallID, toolCalls, metadata string
		if err := rows.Scan(&role, &content, &toolCallID, &toolCalls, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg := llm.Message{
			Role:       llm.Role(role),
			Content:    content,
			ToolCallID: toolCallID,
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
			}
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		history = append(history, msg)
	}
	return history, rows.Err()
}

// Delete removes a session, its messages, and its compression records.
func (s *SqliteStorage) Delete(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM compressions WHERE session_id = ?`,
		`DELETE FROM sessions WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, sessionID); err != nil {
			return fmt.Errorf("failed to delete session data: %w", err)
		}
	}
	return tx.Commit()
}

// ListSessions lists all session IDs.
func (s *SqliteStorage) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}

// Exists checks if a session exists.
func (s *SqliteStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sessions WHERE session_id = ?`, sessionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return count > 0, nil
}

// RecordCompression appends a compression record for a session.
func (s *SqliteStorage) RecordCompression(ctx context.Context, sessionID string, meta compression.Metadata) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compressions
		 (session_id, original_message_count, compressed_message_count,
		  original_tokens, compressed_tokens, compression_ratio, key_topics, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		meta.OriginalMessageCount, meta.CompressedMessageCount,
		meta.OriginalTokens, meta.CompressedTokens, meta.CompressionRatio,
		strings.Join(meta.KeyTopics, ","), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record compression: %w", err)
	}
	return nil
}

// CompressionHistory returns records for a session, oldest first.
func (s *SqliteStorage) CompressionHistory(ctx context.Context, sessionID string) ([]CompressionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT original_message_count, compressed_message_count,
		        original_tokens, compressed_tokens, compression_ratio, key_topics, created_at
		 FROM compressions WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query compressions: %w", err)
	}
	defer rows.Close()

	var records []CompressionRecord
	for rows.Next() {
		var rec CompressionRecord
		var topics string
		rec.SessionID = sessionID
		if err := rows.Scan(
			&rec.Metadata.OriginalMessageCount, &rec.Metadata.CompressedMessageCount,
			&rec.Metadata.OriginalTokens, &rec.Metadata.CompressedTokens,
			&rec.Metadata.CompressionRatio, &topics, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan compression record: %w", err)
		}
		if topics != "" {
			rec.Metadata.KeyTopics = strings.Split(topics, ",")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Verify interface compliance
var (
	_ ConversationStorage = (*SqliteStorage)(nil)
	_ CompressionStore    = (*SqliteStorage)(nil)
)
