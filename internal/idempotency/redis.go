// Package idempotency gates duplicate order submissions. A claim is a
// Redis SETNX with a TTL: first submission wins, replays of the same
// (user, key) pair are rejected until the TTL lapses.
package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "order:idem:"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Claim returns false if the key was already claimed.
func (s *RedisStore) Claim(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, keyPrefix+key, 1, s.ttl).Result()
}

// Release frees a claim so a failed order creation does not block the
// client's retry of the same key.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}
