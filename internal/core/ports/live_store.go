package ports

import (
	"context"

	"github.com/arkade-os/pegd/internal/core/domain"
)

type LiveStore interface {
	Callbacks() CallbackStore
	Snapshots() SnapshotStore
}

// CallbackStore deduplicates external callbacks so that each one is handled once.
type CallbackStore interface {
	// MarkProcessed records the key and returns false if it was already recorded.
	MarkProcessed(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

// SnapshotStore keeps the last reserve reading of each feed for quick reads.
type SnapshotStore interface {
	Set(ctx context.Context, snapshot domain.ReserveSnapshot) error
	Get(ctx context.Context, source string) (*domain.ReserveSnapshot, error)
}
