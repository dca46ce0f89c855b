package session

import (
	"context"
	"errors"
	"sync"
)

// InMemoryStore is an in-memory implementation of the Store interface.
type InMemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Save stores the token.
func (s *InMemoryStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Load retrieves the token.
func (s *InMemoryStore) Load(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// Clear removes the token.
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
