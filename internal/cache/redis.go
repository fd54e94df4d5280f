package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "release:cache"

// RedisStore implements Store on a Redis server. SET is atomic per key, so
// the atomic-publish requirement holds without extra coordination. Entries
// carry no TTL.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a RedisStore and verifies connectivity.
func NewRedisStore(ctx context.Context, opts *redis.Options) (*RedisStore, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func redisKey(stage, key string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, stage, key)
}

// Get returns the payload for (stage, key).
func (s *RedisStore) Get(ctx context.Context, stage, key string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, redisKey(stage, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s/%s: %w", stage, key, err)
	}
	return data, true, nil
}

// Set stores the payload for (stage, key) with no expiry.
func (s *RedisStore) Set(ctx context.Context, stage, key string, payload []byte) error {
	if err := s.rdb.Set(ctx, redisKey(stage, key), payload, 0).Err(); err != nil {
		return fmt.Errorf("cache set %s/%s: %w", stage, key, err)
	}
	return nil
}
