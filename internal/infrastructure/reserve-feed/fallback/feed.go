package fallbackfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/arkade-os/pegd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultPrimaryTimeout = 5 * time.Second

type Option func(*feed)

// WithPrimaryTimeout bounds the primary query so that the fallback can still answer within
// the caller deadline.
func WithPrimaryTimeout(timeout time.Duration) Option {
	return func(f *feed) {
		f.primaryTimeout = timeout
	}
}

type feed struct {
	primary        ports.ReserveFeed
	fallback       ports.ReserveFeed
	primaryTimeout time.Duration

	lock        sync.RWMutex
	lastWarning string
}

// NewFeed queries the primary feed and answers from the fallback one whenever the primary
// fails, times out or reports an unavailable reading.
func NewFeed(primary, fallback ports.ReserveFeed, opts ...Option) (ports.DegradableFeed, error) {
	if primary == nil || fallback == nil {
		return nil, fmt.Errorf("both primary and fallback feeds are required")
	}

	f := &feed{
		primary:        primary,
		fallback:       fallback,
		primaryTimeout: defaultPrimaryTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *feed) Name() string {
	return fmt.Sprintf("%s+%s", f.primary.Name(), f.fallback.Name())
}

func (f *feed) GetLockedReserveUnits(ctx context.Context) (domain.ReserveSnapshot, error) {
	primaryCtx, cancel := context.WithTimeout(ctx, f.primaryTimeout)
	snapshot, err := f.primary.GetLockedReserveUnits(primaryCtx)
	cancel()

	reason := ""
	switch {
	case err != nil:
		reason = err.Error()
	case snapshot.IntegrityStatus == domain.IntegrityStatusUnavailable:
		reason = fmt.Sprintf("%s unavailable", f.primary.Name())
		if snapshot.Warning != "" {
			reason = fmt.Sprintf("%s: %s", reason, snapshot.Warning)
		}
	default:
		f.setWarning("")
		return snapshot, nil
	}

	log.Warnf("primary reserve feed %s failed: %s", f.primary.Name(), reason)

	snapshot, err = f.fallback.GetLockedReserveUnits(ctx)
	if err == nil && snapshot.IntegrityStatus == domain.IntegrityStatusUnavailable {
		err = fmt.Errorf("%s unavailable", f.fallback.Name())
	}
	if err != nil {
		warning := fmt.Sprintf("primary failed: %s, fallback failed: %s", reason, err)
		f.setWarning(warning)
		return domain.ReserveSnapshot{}, errors.FEED_UNAVAILABLE.New("%s", warning).
			WithMetadata(errors.FeedUnavailableMetadata{Source: f.Name()})
	}

	warning := fmt.Sprintf("fallback used: %s", reason)
	f.setWarning(warning)
	return snapshot.WithWarning(warning), nil
}

func (f *feed) GetIntegrityStatus(ctx context.Context) (domain.IntegrityStatus, error) {
	snapshot, err := f.GetLockedReserveUnits(ctx)
	if err != nil {
		return domain.IntegrityStatusUnavailable, err
	}
	return snapshot.IntegrityStatus, nil
}

func (f *feed) GetLastWarning() string {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.lastWarning
}

// Sync refreshes every underlying feed that supports it.
func (f *feed) Sync(ctx context.Context) error {
	var errs []error
	for _, inner := range []ports.ReserveFeed{f.primary, f.fallback} {
		syncable, ok := inner.(ports.SyncableFeed)
		if !ok {
			continue
		}
		if err := syncable.Sync(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", inner.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to sync reserve feeds: %v", errs)
	}
	return nil
}

func (f *feed) setWarning(warning string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.lastWarning = warning
}
