package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name tokens are filed under.
const DefaultKeyringService = "authflow"

// KeyringStore keeps the token in the operating system's credential store.
// Protection at rest is whatever the platform keyring provides.
type KeyringStore struct {
	service string
	slot    string
}

// NewKeyringStore creates a KeyringStore for the given service and slot.
func NewKeyringStore(service, slot string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	if slot == "" {
		slot = DefaultSlot
	}
	return &KeyringStore{service: service, slot: slot}
}

// Save stores the token.
func (s *KeyringStore) Save(_ context.Context, token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if err := keyring.Set(s.service, s.slot, token); err != nil {
		return fmt.Errorf("failed to write token to keyring: %w", err)
	}
	return nil
}

// Load retrieves the token.
func (s *KeyringStore) Load(_ context.Context) (string, error) {
	token, err := keyring.Get(s.service, s.slot)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to read token from keyring: %w", err)
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Clear removes the token. Clearing an empty slot is not an error.
func (s *KeyringStore) Clear(_ context.Context) error {
	if err := keyring.Delete(s.service, s.slot); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}
