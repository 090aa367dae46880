package redislivestore

import (
	"context"
	"fmt"
	"time"

	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

type callbackStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCallbackStore(rdb *redis.Client, ttl time.Duration) ports.CallbackStore {
	return &callbackStore{rdb, ttl}
}

func (s *callbackStore) MarkProcessed(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, callbackKey(key), time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark callback %s as processed: %w", key, err)
	}
	return ok, nil
}

func (s *callbackStore) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, callbackKey(key)).Err()
}

func callbackKey(key string) string {
	return fmt.Sprintf("%s:%s", callbackKeyPrefix, key)
}
