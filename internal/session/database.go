package session

import (
	"context"
	"errors"
	"fmt"

	"authflow-go/internal/storage"
)

// DefaultSlot names the token row used when the host configures none.
const DefaultSlot = "default"

// TokenDB is the persistence needed by DatabaseStore.
type TokenDB interface {
	StoreToken(ctx context.Context, slot, token string) error
	GetToken(ctx context.Context, slot string) (string, error)
	DeleteToken(ctx context.Context, slot string) error
}

// DatabaseStore keeps the token in a database row that survives restarts.
type DatabaseStore struct {
	db   TokenDB
	slot string
}

// NewDatabaseStore creates a DatabaseStore bound to one slot.
func NewDatabaseStore(db TokenDB, slot string) *DatabaseStore {
	if slot == "" {
		slot = DefaultSlot
	}
	return &DatabaseStore{db: db, slot: slot}
}

// Save stores the token.
func (s *DatabaseStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if err := s.db.StoreToken(ctx, s.slot, token); err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}
	return nil
}

// Load retrieves the token.
func (s *DatabaseStore) Load(ctx context.Context) (string, error) {
	token, err := s.db.GetToken(ctx, s.slot)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to load session token: %w", err)
	}
	return token, nil
}

// Clear removes the token.
func (s *DatabaseStore) Clear(ctx context.Context) error {
	if err := s.db.DeleteToken(ctx, s.slot); err != nil {
		return fmt.Errorf("failed to clear session token: %w", err)
	}
	return nil
}
