package inmemorylivestore

import "github.com/arkade-os/pegd/internal/core/ports"

type inMemoryLiveStore struct {
	callbacks ports.CallbackStore
	snapshots ports.SnapshotStore
}

func NewLiveStore() ports.LiveStore {
	return &inMemoryLiveStore{
		callbacks: NewCallbackStore(),
		snapshots: NewSnapshotStore(),
	}
}

func (s *inMemoryLiveStore) Callbacks() ports.CallbackStore { return s.callbacks }
func (s *inMemoryLiveStore) Snapshots() ports.SnapshotStore { return s.snapshots }
