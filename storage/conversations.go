// Package storage provides the process-scoped conversation registry and the
// badger-backed durable session store.
package storage

import (
	"log/slog"
	"sync"

	"github.com/driftwoodlabs/raggate/datatypes"
)

// ConversationStore maps session ids to their single shared Conversation.
// Join has compare-and-insert semantics: concurrent joins on the same
// session id always resolve to exactly one Conversation instance, which is
// what lets multiple tabs or devices fan in to the same transcript.
//
// The registry is process-lifetime only; conversations are never persisted
// here.
type ConversationStore struct {
	mu        sync.Mutex
	bySession map[string]*datatypes.Conversation
}

// NewConversationStore creates an empty registry.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{bySession: make(map[string]*datatypes.Conversation)}
}

// Join returns the Conversation for a session id, creating it lazily on the
// first join. The second return value reports whether this call created it.
func (s *ConversationStore) Join(sessionID string) (*datatypes.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.bySession[sessionID]; ok {
		return conv, false
	}
	conv := datatypes.NewConversation(sessionID)
	s.bySession[sessionID] = conv
	slog.Info("created conversation", "sessionId", sessionID, "conversationId", conv.ID)
	return conv, true
}

// Get returns the Conversation for a session id without creating one.
func (s *ConversationStore) Get(sessionID string) (*datatypes.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.bySession[sessionID]
	return conv, ok
}

// Len reports the number of live conversations.
func (s *ConversationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bySession)
}
