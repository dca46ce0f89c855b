package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFlowTTL bounds how long an abandoned attempt survives in Redis.
const DefaultFlowTTL = 10 * time.Minute

// RedisFlowStore keeps the live attempt in a Redis hash so that a host
// restarted between redirect and callback can still complete the flow.
// The hash lives under "<prefix>:flow:<scope>" and expires after ttl.
type RedisFlowStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisFlowStore creates a RedisFlowStore for one browsing scope.
func NewRedisFlowStore(client redis.UniversalClient, prefix, scope string, ttl time.Duration) *RedisFlowStore {
	if ttl <= 0 {
		ttl = DefaultFlowTTL
	}
	return &RedisFlowStore{
		client: client,
		key:    fmt.Sprintf("%s:flow:%s", prefix, scope),
		ttl:    ttl,
	}
}

// Save replaces the stored attempt atomically.
func (s *RedisFlowStore) Save(ctx context.Context, attempt *Attempt) error {
	if attempt == nil {
		return errors.New("attempt cannot be nil")
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key, map[string]any{
			KeyAttemptID:    attempt.ID,
			KeyCodeVerifier: attempt.Verifier,
			KeyOAuthState:   attempt.State,
			KeyStartedAt:    attempt.StartedAt.UTC().Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, s.key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save flow attempt: %w", err)
	}
	return nil
}

// Load returns the stored attempt or ErrNoAttempt.
func (s *RedisFlowStore) Load(ctx context.Context) (*Attempt, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load flow attempt: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrNoAttempt
	}

	attempt := &Attempt{
		ID:       vals[KeyAttemptID],
		Verifier: vals[KeyCodeVerifier],
		State:    vals[KeyOAuthState],
	}
	if ts := vals[KeyStartedAt]; ts != "" {
		startedAt, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", KeyStartedAt, err)
		}
		attempt.StartedAt = startedAt
	}

	return attempt, nil
}

// Clear deletes the stored attempt.
func (s *RedisFlowStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear flow attempt: %w", err)
	}
	return nil
}
