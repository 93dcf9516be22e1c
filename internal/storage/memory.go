package storage

import (
	"context"
	"fmt"
	"sync"
)

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps token sets in process memory. Tokens are lost on
// restart, which only forces a fresh authorization; fine for development and
// single-instance deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*TokenSet // realm -> token set
}

// NewMemoryStore creates a new in-memory token store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*TokenSet),
	}
}

// Put stores or replaces the token set for a realm
func (s *MemoryStore) Put(_ context.Context, tokens *TokenSet) error {
	if tokens == nil {
		return fmt.Errorf("token set cannot be nil")
	}
	if tokens.Realm == "" {
		return fmt.Errorf("token set realm cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *tokens
	s.tokens[tokens.Realm] = &stored
	return nil
}

// Get retrieves the token set for a realm
func (s *MemoryStore) Get(_ context.Context, realm string) (*TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens, exists := s.tokens[realm]
	if !exists {
		return nil, ErrTokenSetNotFound
	}
	result := *tokens
	return &result, nil
}

// Delete removes the token set for a realm
func (s *MemoryStore) Delete(_ context.Context, realm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, realm)
	return nil
}
