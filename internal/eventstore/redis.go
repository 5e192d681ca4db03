package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stripe retries deliveries for up to three days.
const defaultTTL = 72 * time.Hour

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: defaultTTL}
}

func (s *RedisStore) Seen(ctx context.Context, eventID string) (bool, error) {
	err := s.client.Get(ctx, key(eventID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	return true, nil
}

func (s *RedisStore) Mark(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, key(eventID), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func key(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}
