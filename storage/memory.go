package storage

import (
	"context"
	"sync"
	"time"

	"github.com/loomlabs/loom/compression"
	"github.com/loomlabs/loom/llm"
)

// InMemoryStorage implements ConversationStorage and CompressionStore
// with in-process maps. Data is lost when the process terminates;
// suitable for tests and ephemeral sessions.
type InMemoryStorage struct {
	mu           sync.RWMutex
	sessions     map[string][]llm.Message
	compressions map[string][]CompressionRecord
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		sessions:     make(map[string][]llm.Message),
		compressions: make(map[string][]CompressionRecord),
	}
}

// Save saves conversation history for a session.
func (s *InMemoryStorage) Save(ctx context.Context, sessionID string, history []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to protect against external mutation
	copied := make([]llm.Message, len(history))
	copy(copied, history)
	s.sessions[sessionID] = copied
	return nil
}

// Load loads conversation history for a session.
func (s *InMemoryStorage) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return []llm.Message{}, nil
	}

	copied := make([]llm.Message, len(history))
	copy(copied, history)
	return copied, nil
}

// Delete deletes conversation history and compression records for a session.
func (s *InMemoryStorage) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	delete(s.compressions, sessionID)
	return nil
}

// ListSessions lists all session IDs.
func (s *InMemoryStorage) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.sessions))
	for sessionID := range s.sessions {
		sessions = append(sessions, sessionID)
	}
	return sessions, nil
}

// Exists checks if a session exists.
func (s *InMemoryStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[sessionID]
	return ok, nil
}

// RecordCompression appends a compression record for a session.
func (s *InMemoryStorage) RecordCompression(ctx context.Context, sessionID string, meta compression.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.compressions[sessionID] = append(s.compressions[sessionID], CompressionRecord{
		SessionID: sessionID,
		Metadata:  meta,
		CreatedAt: time.Now().Unix(),
	})
	return nil
}

// CompressionHistory returns records for a session, oldest first.
func (s *InMemoryStorage) CompressionHistory(ctx context.Context, sessionID string) ([]CompressionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.compressions[sessionID]
	copied := make([]CompressionRecord, len(records))
	copy(copied, records)
	return copied, nil
}

// Verify interface compliance
var (
	_ ConversationStorage = (*InMemoryStorage)(nil)
	_ CompressionStore    = (*InMemoryStorage)(nil)
)
