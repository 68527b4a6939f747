package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedKeyPrefix = "payment:event:"

// IdempotencyStore implements kafka.IdempotencyStore with expiring keys.
type IdempotencyStore struct {
	client redis.UniversalClient
	group  string
	ttl    time.Duration
}

func NewIdempotencyStore(client redis.UniversalClient, group string, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, group: group, ttl: ttl}
}

func (s *IdempotencyStore) key(eventID string) string {
	return processedKeyPrefix + s.group + ":" + eventID
}

func (s *IdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists processed event: %w", err)
	}
	return n > 0, nil
}

func (s *IdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.client.SetNX(ctx, s.key(eventID), 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis mark processed event: %w", err)
	}
	return nil
}
