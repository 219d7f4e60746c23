// Package storage persists conversation history and compression
// provenance.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interfaces
// - Allows swapping between memory and SQLite without API changes
// - Each implementation encapsulates its own data structures
package storage

import (
	"context"

	"github.com/loomlabs/loom/compression"
	"github.com/loomlabs/loom/llm"
)

// ConversationStorage stores message history per session.
type ConversationStorage interface {
	// Save saves conversation history for a session.
	Save(ctx context.Context, sessionID string, history []llm.Message) error

	// Load loads conversation history for a session.
	// Returns empty slice (not nil) if the session doesn't exist.
	// Errors only signal storage failures, never missing sessions.
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)

	// Delete deletes conversation history for a session.
	Delete(ctx context.Context, sessionID string) error

	// ListSessions lists all session IDs.
	ListSessions(ctx context.Context) ([]string, error)

	// Exists checks if a session exists.
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// CompressionRecord ties one compression pass to a session for audit
// and debugging of context-budget behavior.
type CompressionRecord struct {
	SessionID string
	Metadata  compression.Metadata
	CreatedAt int64
}

// CompressionStore records compression passes per session.
type CompressionStore interface {
	// RecordCompression appends a compression record for a session.
	RecordCompression(ctx context.Context, sessionID string, meta compression.Metadata) error

	// CompressionHistory returns records for a session, oldest first.
	CompressionHistory(ctx context.Context, sessionID string) ([]CompressionRecord, error)
}
