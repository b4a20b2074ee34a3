package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps the checkpoint fields in a single Redis hash. It is the
// deployable alternative to the JSON file when the synchronizer runs without
// a persistent volume.
type RedisStorage struct {
	rdb *redis.Client
	key string
}

func NewRedisStorage(rdb *redis.Client, key string) *RedisStorage {
	if key == "" {
		key = "moss:checkpoint"
	}
	return &RedisStorage{
		rdb: rdb,
		key: key,
	}
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read checkpoint field %s: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key string, value string) error {
	if err := s.rdb.HSet(ctx, s.key, key, value).Err(); err != nil {
		return fmt.Errorf("failed to write checkpoint field %s: %w", key, err)
	}
	return nil
}
