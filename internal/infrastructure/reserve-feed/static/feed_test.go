package staticfeed_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/arkade-os/pegd/internal/core/domain"
	staticfeed "github.com/arkade-os/pegd/internal/infrastructure/reserve-feed/static"
	"github.com/stretchr/testify/require"
)

func TestStaticFeed(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		locked := big.NewInt(100_000_000)
		feed, err := staticfeed.NewFeed(locked)
		require.NoError(t, err)
		require.Equal(t, "static", feed.Name())

		// Mutating the input must not change the reported reserve.
		locked.SetInt64(1)

		snapshot, err := feed.GetLockedReserveUnits(context.Background())
		require.NoError(t, err)
		require.Equal(t, "100000000", snapshot.LockedReserveUnits.String())
		require.Equal(t, domain.IntegrityStatusComplete, snapshot.IntegrityStatus)
		require.Equal(t, 1, snapshot.SourceCount)
		require.Zero(t, snapshot.PendingCount)
		require.Empty(t, snapshot.Warning)

		status, err := feed.GetIntegrityStatus(context.Background())
		require.NoError(t, err)
		require.Equal(t, domain.IntegrityStatusComplete, status)
	})

	t.Run("canceled context", func(t *testing.T) {
		feed, err := staticfeed.NewFeed(big.NewInt(1))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = feed.GetLockedReserveUnits(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := staticfeed.NewFeed(nil)
		require.Error(t, err)
		_, err = staticfeed.NewFeed(big.NewInt(-1))
		require.Error(t, err)
	})
}
