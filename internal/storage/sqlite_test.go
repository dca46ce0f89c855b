package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSQLiteStorage_Migrate(t *testing.T) {
	s := newTestStorage(t)

	version, dirty, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, s.Migrate())
}

func TestSQLiteStorage_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.GetToken(ctx, "default")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.StoreToken(ctx, "default", "first"))
	token, err := s.GetToken(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "first", token)

	// Storing again replaces the token.
	require.NoError(t, s.StoreToken(ctx, "default", "second"))
	token, err = s.GetToken(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "second", token)

	// Slots are independent.
	_, err = s.GetToken(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteToken(ctx, "default"))
	_, err = s.GetToken(ctx, "default")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing slot is fine.
	assert.NoError(t, s.DeleteToken(ctx, "default"))
}

func TestSQLiteStorage_InvalidInput(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"store empty slot", func() error { return s.StoreToken(ctx, "", "tok") }},
		{"store empty token", func() error { return s.StoreToken(ctx, "default", "") }},
		{"get empty slot", func() error { _, err := s.GetToken(ctx, ""); return err }},
		{"delete empty slot", func() error { return s.DeleteToken(ctx, "") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), ErrInvalidInput)
		})
	}
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	s, err := NewSQLiteStorage(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.StoreToken(ctx, "default", "kept"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	token, err := s.GetToken(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "kept", token)

	version, dirty, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}
