package inmemorylivestore

import (
	"context"
	"sync"

	"github.com/arkade-os/pegd/internal/core/ports"
)

type callbackStore struct {
	lock      *sync.Mutex
	processed map[string]struct{}
}

func NewCallbackStore() ports.CallbackStore {
	return &callbackStore{
		lock:      &sync.Mutex{},
		processed: make(map[string]struct{}),
	}
}

func (s *callbackStore) MarkProcessed(_ context.Context, key string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.processed[key]; ok {
		return false, nil
	}
	s.processed[key] = struct{}{}
	return true, nil
}

func (s *callbackStore) Forget(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.processed, key)
	return nil
}
