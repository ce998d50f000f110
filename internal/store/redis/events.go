package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultEventTTL is how long a seen event ID is kept
const DefaultEventTTL = 15 * time.Minute

// Store remembers seen Slack events in Redis, shared by every replica
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a new Redis store; ttl <= 0 uses DefaultEventTTL
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

// MarkSeen records eventID and reports whether it was new
func (s *Store) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	created, err := s.client.SetNX(ctx, EventKey(eventID), time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event: %w", err)
	}
	return created, nil
}

// Forget removes eventID so that a retry is processed again
func (s *Store) Forget(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, EventKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to forget event: %w", err)
	}
	return nil
}

// Ping checks that Redis answers
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Name() string { return "redis" }
