package application

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	pegerrors "github.com/arkade-os/pegd/pkg/errors"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLiveStore struct {
	callbacks *mockCallbackStore
	snapshots *mockSnapshotStore
}

func (m *mockLiveStore) Callbacks() ports.CallbackStore { return m.callbacks }
func (m *mockLiveStore) Snapshots() ports.SnapshotStore { return m.snapshots }

type mockSnapshotStore struct {
	lock      sync.Mutex
	snapshots map[string]domain.ReserveSnapshot
}

func (s *mockSnapshotStore) Set(_ context.Context, snapshot domain.ReserveSnapshot) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.snapshots == nil {
		s.snapshots = make(map[string]domain.ReserveSnapshot)
	}
	s.snapshots[snapshot.Source] = snapshot
	return nil
}

func (s *mockSnapshotStore) Get(_ context.Context, source string) (*domain.ReserveSnapshot, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	snapshot, ok := s.snapshots[source]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

func TestService(t *testing.T) {
	ctx := context.Background()

	feed := newMockFeed(100_000_000)
	repoManager := newMockRepoManager()
	scheduler := &mockScheduler{}
	scheduler.On("ScheduleTaskOnce", mock.Anything).Return(nil)
	scheduler.On("ScheduleRecurringTask", 30*time.Minute).Return(nil)

	svc, err := NewService(
		repoManager, feed, newMockSettlement(), newMockSigner(t), scheduler, nil,
		&mockLiveStore{&mockCallbackStore{}, &mockSnapshotStore{}}, nil, nil,
		Config{
			AttestationInterval: 30 * time.Minute,
			Redemption: RedemptionConfig{
				Network: &chaincfg.RegressionNetParams,
				Timeout: time.Hour,
			},
		},
	)
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	scheduler.AssertCalled(t, "ScheduleRecurringTask", 30*time.Minute)

	require.Equal(t, "Peg: 10 tokens = 1 BTC", svc.GetPegInfo().Statement)

	_, err = svc.Mint(ctx, big.NewInt(5), "deposit", "tx1")
	require.NoError(t, err)
	_, err = svc.Mint(ctx, big.NewInt(6), "deposit", "tx2")
	require.Error(t, err)
	require.True(t, pegerrors.COLLATERAL_SHORTFALL.Is(err))

	supply, err := svc.GetSupply(ctx)
	require.NoError(t, err)
	require.Equal(t, "5", supply.Supply)
	require.Equal(t, "5", supply.Minted)
	require.Equal(t, "0", supply.Burned)

	info, err := svc.GetCollateralization(ctx)
	require.NoError(t, err)
	require.True(t, info.Fact.IsFullyReserved)
	require.Equal(t, "200.00", info.CollateralizationPct)

	reserve, err := svc.GetReserve(ctx)
	require.NoError(t, err)
	require.False(t, reserve.Cached)
	require.Equal(t, "100000000", reserve.Snapshot.LockedReserveUnits.String())

	att, err := svc.ProduceAttestation(ctx)
	require.NoError(t, err)
	latest, err := svc.GetLatestAttestation(ctx)
	require.NoError(t, err)
	require.Equal(t, att.Id, latest.Id)
	pubkey, err := svc.GetSignerPubkey(ctx)
	require.NoError(t, err)
	require.Equal(t, att.SignerPublicKey, pubkey)

	// Display reads fall back to the cached reading, mints never do.
	feed.fail(errors.New("explorer down"))
	reserve, err = svc.GetReserve(ctx)
	require.NoError(t, err)
	require.True(t, reserve.Cached)
	require.NotEmpty(t, reserve.Snapshot.Warning)
	_, err = svc.Mint(ctx, big.NewInt(1), "deposit", "tx3")
	require.Error(t, err)
	require.True(t, pegerrors.FEED_UNAVAILABLE.Is(err))

	intent, err := svc.RequestRedeem(ctx, "alice", big.NewInt(2), regtestAddress(t), "")
	require.NoError(t, err)
	intent, err = svc.LockRedemption(ctx, intent.Id)
	require.NoError(t, err)
	require.Equal(t, domain.RedemptionStateLocked, intent.State)

	intents, err := svc.ListRedemptions(ctx, "alice", domain.RedemptionStateLocked)
	require.NoError(t, err)
	require.Len(t, intents, 1)
}
