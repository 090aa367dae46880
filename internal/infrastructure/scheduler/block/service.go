package blockscheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arkade-os/pegd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type Option func(*service)

func WithTickerInterval(interval time.Duration) Option {
	return func(s *service) {
		s.tickerInterval = interval
	}
}

type tipFetcher interface {
	GetTipHeight(ctx context.Context) (int64, error)
}

type service struct {
	explorer       tipFetcher
	lock           sync.Locker
	handlers       []func(height int64)
	lastHeight     int64
	stopCh         chan struct{}
	stopOnce       sync.Once
	tickerInterval time.Duration
}

// NewBlockNotifier polls the chain tip of the given explorer and calls the registered
// handlers whenever it advances.
func NewBlockNotifier(explorer ports.Explorer, opts ...Option) (ports.BlockNotifier, error) {
	if explorer == nil {
		return nil, fmt.Errorf("explorer is required")
	}

	svc := &service{
		explorer:       explorer,
		lock:           &sync.Mutex{},
		handlers:       make([]func(int64), 0),
		stopCh:         make(chan struct{}),
		tickerInterval: time.Second * 10,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (s *service) Start() {
	go func() {
		ticker := time.NewTicker(s.tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				height, handlers, err := s.popNewBlock()
				if err != nil {
					log.Errorf("error fetching tip height: %s", err)
					continue
				}
				if len(handlers) <= 0 {
					continue
				}

				log.Debugf("new block %d, notifying %d handlers", height, len(handlers))
				for _, handler := range handlers {
					go handler(height)
				}
			}
		}
	}()
}

func (s *service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *service) OnNewBlock(handler func(height int64)) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.handlers = append(s.handlers, handler)
}

func (s *service) popNewBlock() (int64, []func(int64), error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.tickerInterval)
	defer cancel()

	tip, err := s.explorer.GetTipHeight(ctx)
	if err != nil {
		return 0, nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if tip <= s.lastHeight {
		return tip, nil, nil
	}
	s.lastHeight = tip

	handlers := make([]func(int64), len(s.handlers))
	copy(handlers, s.handlers)
	return tip, handlers, nil
}
