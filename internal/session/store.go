package session

import (
	"context"
	"errors"
)

// ErrNoToken is returned by Store.Load when no token is stored.
var ErrNoToken = errors.New("no session token")

// Store holds the long-lived bearer token of the current user.
// One Store is constructed per application instance and passed by reference.
type Store interface {
	// Save persists token, replacing any previous one.
	Save(ctx context.Context, token string) error
	// Load returns the stored token or ErrNoToken.
	Load(ctx context.Context) (string, error)
	// Clear removes the stored token.
	Clear(ctx context.Context) error
}

// IsAuthenticated reports whether a non-empty token can be loaded.
// Expiry is not checked; the resource server enforces it with 401s.
func IsAuthenticated(ctx context.Context, s Store) bool {
	token, err := s.Load(ctx)
	return err == nil && token != ""
}
