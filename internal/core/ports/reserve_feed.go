package ports

import (
	"context"

	"github.com/arkade-os/pegd/internal/core/domain"
)

// ReserveFeed reports the reserve currently locked outside the system.
// Implementations must honor ctx and report an unavailable snapshot or an error instead of
// blocking past its deadline.
type ReserveFeed interface {
	Name() string
	GetLockedReserveUnits(ctx context.Context) (domain.ReserveSnapshot, error)
	GetIntegrityStatus(ctx context.Context) (domain.IntegrityStatus, error)
}

// DegradableFeed is implemented by feeds that may answer from a fallback source.
type DegradableFeed interface {
	ReserveFeed
	// GetLastWarning returns the warning of the last query, empty if the primary answered.
	GetLastWarning() string
}

// SyncableFeed is implemented by feeds whose state is refreshed from a chain source.
type SyncableFeed interface {
	ReserveFeed
	Sync(ctx context.Context) error
}
