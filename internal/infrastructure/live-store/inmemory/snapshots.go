package inmemorylivestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
)

type snapshotStore struct {
	lock      *sync.RWMutex
	snapshots map[string]domain.ReserveSnapshot
}

func NewSnapshotStore() ports.SnapshotStore {
	return &snapshotStore{
		lock:      &sync.RWMutex{},
		snapshots: make(map[string]domain.ReserveSnapshot),
	}
}

func (s *snapshotStore) Set(_ context.Context, snapshot domain.ReserveSnapshot) error {
	if snapshot.Source == "" {
		return fmt.Errorf("missing snapshot source")
	}
	if snapshot.LockedReserveUnits == nil {
		return fmt.Errorf("missing locked reserve amount")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snapshots[snapshot.Source] = snapshot.WithWarning(snapshot.Warning)
	return nil
}

func (s *snapshotStore) Get(_ context.Context, source string) (*domain.ReserveSnapshot, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	snapshot, ok := s.snapshots[source]
	if !ok {
		return nil, nil
	}
	snapshot = snapshot.WithWarning(snapshot.Warning)
	return &snapshot, nil
}
