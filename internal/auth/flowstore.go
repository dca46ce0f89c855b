package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Logical per-flow storage keys.
const (
	KeyCodeVerifier = "code_verifier"
	KeyOAuthState   = "oauth_state"
	KeyAttemptID    = "attempt_id"
	KeyStartedAt    = "started_at"
)

// ErrNoAttempt is returned by FlowStore.Load when no flow attempt is stored.
var ErrNoAttempt = errors.New("no flow attempt in progress")

// Attempt is one authorization flow attempt: the PKCE verifier and the CSRF
// state created together at flow start.
type Attempt struct {
	ID        string
	Verifier  string
	State     string
	StartedAt time.Time
}

// FlowStore holds at most one live Attempt. Save overwrites any previous
// attempt; an overwritten attempt can no longer pass state validation.
type FlowStore interface {
	Save(ctx context.Context, attempt *Attempt) error
	Load(ctx context.Context) (*Attempt, error)
	Clear(ctx context.Context) error
}

// MemoryFlowStore is a process-scoped FlowStore. Its contents disappear with
// the process. A positive ttl additionally expires an abandoned attempt.
type MemoryFlowStore struct {
	mu      sync.Mutex
	attempt *Attempt
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryFlowStore creates a MemoryFlowStore. ttl <= 0 disables expiry.
func NewMemoryFlowStore(ttl time.Duration) *MemoryFlowStore {
	return &MemoryFlowStore{
		ttl: ttl,
		now: time.Now,
	}
}

// Save stores a copy of attempt, replacing any previous one.
func (s *MemoryFlowStore) Save(_ context.Context, attempt *Attempt) error {
	if attempt == nil {
		return errors.New("attempt cannot be nil")
	}
	cp := *attempt

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = &cp
	return nil
}

// Load returns the live attempt or ErrNoAttempt.
func (s *MemoryFlowStore) Load(_ context.Context) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt == nil {
		return nil, ErrNoAttempt
	}
	if s.ttl > 0 && s.now().Sub(s.attempt.StartedAt) > s.ttl {
		s.attempt = nil
		return nil, ErrNoAttempt
	}

	cp := *s.attempt
	return &cp, nil
}

// Clear removes the live attempt, if any.
func (s *MemoryFlowStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = nil
	return nil
}
