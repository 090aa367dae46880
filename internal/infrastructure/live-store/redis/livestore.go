package redislivestore

import (
	"time"

	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/redis/go-redis/v9"
)

const (
	callbackKeyPrefix = "callback"
	snapshotKeyPrefix = "snapshot"

	// Processed callbacks are remembered long after any lock they refer to has expired.
	defaultCallbackTTL = 30 * 24 * time.Hour
)

type redisLiveStore struct {
	callbacks ports.CallbackStore
	snapshots ports.SnapshotStore
}

func NewLiveStore(rdb *redis.Client, numOfRetries int) ports.LiveStore {
	return &redisLiveStore{
		callbacks: NewCallbackStore(rdb, defaultCallbackTTL),
		snapshots: NewSnapshotStore(rdb, numOfRetries),
	}
}

func (s *redisLiveStore) Callbacks() ports.CallbackStore { return s.callbacks }
func (s *redisLiveStore) Snapshots() ports.SnapshotStore { return s.snapshots }
