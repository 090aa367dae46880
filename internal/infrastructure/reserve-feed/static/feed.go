package staticfeed

import (
	"context"
	"fmt"
	"math/big"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
)

const feedName = "static"

type feed struct {
	locked *big.Int
}

// NewFeed returns a feed that always reports the given amount of reserve units.
func NewFeed(locked *big.Int) (ports.ReserveFeed, error) {
	if locked == nil || locked.Sign() < 0 {
		return nil, fmt.Errorf("invalid static reserve amount %v", locked)
	}
	return &feed{new(big.Int).Set(locked)}, nil
}

func (f *feed) Name() string {
	return feedName
}

func (f *feed) GetLockedReserveUnits(ctx context.Context) (domain.ReserveSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReserveSnapshot{}, err
	}
	return domain.NewReserveSnapshot(feedName, f.locked, 1, 0), nil
}

func (f *feed) GetIntegrityStatus(_ context.Context) (domain.IntegrityStatus, error) {
	return domain.IntegrityStatusComplete, nil
}
