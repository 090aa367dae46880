package application

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	pegerrors "github.com/arkade-os/pegd/pkg/errors"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type redemptionFixture struct {
	engine     *redemptionEngine
	ledger     *supplyLedger
	repo       *mockRedemptionRepo
	settlement *mockSettlement
	scheduler  *mockScheduler
}

func newRedemptionFixture(
	t *testing.T, supply int64, timeout time.Duration, cfg RedemptionConfig,
) *redemptionFixture {
	ctx := context.Background()
	ledger, err := newSupplyLedger(ctx, &mockSupplyRepo{}, nil, nil)
	require.NoError(t, err)
	if supply > 0 {
		mustMint(t, ledger, supply)
	}

	scheduler := &mockScheduler{}
	scheduler.On("ScheduleTaskOnce", mock.Anything).Return(nil)

	cfg.Network = &chaincfg.RegressionNetParams
	cfg.Timeout = timeout
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}

	repo := newMockRedemptionRepo()
	settlement := newMockSettlement()
	engine := newRedemptionEngine(
		ledger, repo, settlement, scheduler, &mockCallbackStore{}, &mockEventRepo{}, nil, nil,
		cfg,
	)
	t.Cleanup(engine.stop)

	return &redemptionFixture{engine, ledger, repo, settlement, scheduler}
}

func (f *redemptionFixture) state(t *testing.T, id string) domain.RedemptionState {
	intent, err := f.repo.GetIntent(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, intent)
	return intent.State
}

func TestRedemptionEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("quote", func(t *testing.T) {
		f := newRedemptionFixture(t, 10, time.Hour, RedemptionConfig{})

		intent, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(3), regtestAddress(t), "")
		require.NoError(t, err)
		require.Equal(t, domain.RedemptionStateQuoted, intent.State)
		require.Equal(t, "30000000", intent.QuotedReserveUnits.String())
		require.Equal(t, intent.CreatedAt+3600, intent.ExpiresAt)
		f.scheduler.AssertCalled(t, "ScheduleTaskOnce", intent.ExpiresAt)

		locked, err := f.engine.lock(ctx, intent.Id)
		require.NoError(t, err)
		require.Equal(t, "30000000", locked.QuotedReserveUnits.String())
		require.Equal(t, uint64(30_000_000), locked.LockRef.Amount)
	})

	t.Run("claim", func(t *testing.T) {
		f := newRedemptionFixture(t, 10, time.Hour, RedemptionConfig{})

		intent, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(3), regtestAddress(t), "")
		require.NoError(t, err)
		intent, err = f.engine.lock(ctx, intent.Id)
		require.NoError(t, err)
		require.Equal(t, domain.RedemptionStateLocked, intent.State)

		// Nothing is burned before the claim is confirmed.
		require.Equal(t, "10", f.ledger.currentSupply().String())

		f.settlement.setStatus(intent.LockRef.Id, ports.LockStatusConfirmed)
		require.Eventually(t, func() bool {
			return f.state(t, intent.Id) == domain.RedemptionStateClaimed
		}, 5*time.Second, 20*time.Millisecond)

		require.Equal(t, "7", f.ledger.currentSupply().String())

		claimed, err := f.engine.get(ctx, intent.Id)
		require.NoError(t, err)
		require.NotEmpty(t, claimed.BurnEntryId)
		require.Equal(t, "30000000", claimed.QuotedReserveUnits.String())

		burns, err := f.ledger.history(ctx, domain.SupplyEntryKindBurn)
		require.NoError(t, err)
		require.Len(t, burns, 1)
		require.Equal(t, "redemption:"+intent.Id, burns[0].Reason)
		require.Equal(t, claimed.BurnEntryId, burns[0].Id)
	})

	t.Run("duplicate confirmations burn once", func(t *testing.T) {
		f := newRedemptionFixture(t, 10, time.Hour, RedemptionConfig{PollInterval: time.Hour})

		intent, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(2), regtestAddress(t), "")
		require.NoError(t, err)
		_, err = f.engine.lock(ctx, intent.Id)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, f.engine.handleConfirmation(ctx, intent.Id))
		}
		require.Equal(t, domain.RedemptionStateClaimed, f.state(t, intent.Id))
		require.Equal(t, "8", f.ledger.currentSupply().String())

		// Late expiry is ignored.
		require.NoError(t, f.engine.handleExpiry(ctx, intent.Id))
		require.Equal(t, domain.RedemptionStateClaimed, f.state(t, intent.Id))
	})

	t.Run("expire without claim", func(t *testing.T) {
		f := newRedemptionFixture(t, 10, 2*time.Second, RedemptionConfig{})

		intent, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(3), regtestAddress(t), "")
		require.NoError(t, err)
		require.Equal(t, "30000000", intent.QuotedReserveUnits.String())
		intent, err = f.engine.lock(ctx, intent.Id)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return f.state(t, intent.Id) == domain.RedemptionStateExpired
		}, 10*time.Second, 50*time.Millisecond)

		require.Equal(t, "10", f.ledger.currentSupply().String())
		require.Eventually(t, func() bool {
			return f.settlement.refundCount(intent.LockRef.Id) >= 1
		}, 5*time.Second, 20*time.Millisecond)

		// A confirmation after expiry never burns.
		require.NoError(t, f.engine.handleConfirmation(ctx, intent.Id))
		require.Equal(t, "10", f.ledger.currentSupply().String())

		// The refund is observed later on.
		f.settlement.setStatus(intent.LockRef.Id, ports.LockStatusRefunded)
		require.Eventually(t, func() bool {
			return f.state(t, intent.Id) == domain.RedemptionStateRefunded
		}, 5*time.Second, 20*time.Millisecond)
		require.Equal(t, "10", f.ledger.currentSupply().String())
	})

	t.Run("expired quote", func(t *testing.T) {
		f := newRedemptionFixture(t, 10, time.Second, RedemptionConfig{})

		intent, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(1), regtestAddress(t), "")
		require.NoError(t, err)

		time.Sleep(1100 * time.Millisecond)

		_, err = f.engine.lock(ctx, intent.Id)
		require.Error(t, err)
		require.True(t, pegerrors.REDEMPTION_EXPIRED.Is(err))
		require.Equal(t, domain.RedemptionStateCancelled, f.state(t, intent.Id))
	})

	t.Run("cancel", func(t *testing.T) {
		f := newRedemptionFixture(t, 10, time.Hour, RedemptionConfig{})

		intent, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(1), regtestAddress(t), "")
		require.NoError(t, err)

		cancelled, err := f.engine.cancelRedemption(ctx, intent.Id)
		require.NoError(t, err)
		require.Equal(t, domain.RedemptionStateCancelled, cancelled.State)

		_, err = f.engine.lock(ctx, intent.Id)
		require.Error(t, err)
		require.True(t, pegerrors.INVALID_STATE_TRANSITION.Is(err))

		_, err = f.engine.cancelRedemption(ctx, intent.Id)
		require.Error(t, err)
		require.True(t, pegerrors.INVALID_STATE_TRANSITION.Is(err))
	})

	t.Run("invalid requests", func(t *testing.T) {
		f := newRedemptionFixture(t, 10, time.Hour, RedemptionConfig{
			MinAmount: big.NewInt(2),
			MaxAmount: big.NewInt(8),
		})
		mainnetAddr := "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"

		fixtures := []struct {
			name        string
			amount      *big.Int
			address     string
			paymentHash string
			expected    interface{ Is(error) bool }
		}{
			{"zero amount", big.NewInt(0), regtestAddress(t), "", pegerrors.INVALID_AMOUNT},
			{"below min", big.NewInt(1), regtestAddress(t), "", pegerrors.AMOUNT_TOO_LOW},
			{"above max", big.NewInt(9), regtestAddress(t), "", pegerrors.AMOUNT_TOO_HIGH},
			{"garbage address", big.NewInt(2), "not-an-address", "", pegerrors.INVALID_ADDRESS},
			{"wrong network", big.NewInt(2), mainnetAddr, "", pegerrors.INVALID_ADDRESS},
			{"bad payment hash", big.NewInt(2), regtestAddress(t), "abcd", pegerrors.INVALID_PAYMENT_HASH},
		}

		for _, fx := range fixtures {
			t.Run(fx.name, func(t *testing.T) {
				_, err := f.engine.requestRedeem(ctx, "alice", fx.amount, fx.address, fx.paymentHash)
				require.Error(t, err)
				require.True(t, fx.expected.Is(err), err.Error())
			})
		}

		t.Run("above supply", func(t *testing.T) {
			g := newRedemptionFixture(t, 1, time.Hour, RedemptionConfig{})
			_, err := g.engine.requestRedeem(ctx, "alice", big.NewInt(2), regtestAddress(t), "")
			require.Error(t, err)
			require.True(t, pegerrors.INSUFFICIENT_SUPPLY.Is(err))
		})

		t.Run("not found", func(t *testing.T) {
			_, err := f.engine.lock(ctx, "missing")
			require.Error(t, err)
			require.True(t, pegerrors.INTENT_NOT_FOUND.Is(err))
		})
	})

	t.Run("restore", func(t *testing.T) {
		f := newRedemptionFixture(t, 10, time.Hour, RedemptionConfig{})

		intent, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(4), regtestAddress(t), "")
		require.NoError(t, err)
		intent, err = f.engine.lock(ctx, intent.Id)
		require.NoError(t, err)
		f.engine.stop()

		// A new engine over the same state resumes watching the lock.
		engine := newRedemptionEngine(
			f.ledger, f.repo, f.settlement, f.scheduler, &mockCallbackStore{}, nil, nil, nil,
			RedemptionConfig{
				Network:      &chaincfg.RegressionNetParams,
				Timeout:      time.Hour,
				PollInterval: 20 * time.Millisecond,
			},
		)
		t.Cleanup(engine.stop)
		require.NoError(t, engine.restore(ctx))

		// The tokens of the restored lock are still reserved.
		_, err = engine.requestRedeem(ctx, "bob", big.NewInt(7), regtestAddress(t), "")
		require.Error(t, err)
		require.True(t, pegerrors.INSUFFICIENT_SUPPLY.Is(err))

		f.settlement.setStatus(intent.LockRef.Id, ports.LockStatusConfirmed)
		require.Eventually(t, func() bool {
			return f.state(t, intent.Id) == domain.RedemptionStateClaimed
		}, 5*time.Second, 20*time.Millisecond)
		require.Equal(t, "6", f.ledger.currentSupply().String())
	})

	t.Run("pending intents reserve supply", func(t *testing.T) {
		f := newRedemptionFixture(t, 5, time.Hour, RedemptionConfig{PollInterval: time.Hour})

		alice, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(5), regtestAddress(t), "")
		require.NoError(t, err)

		_, err = f.engine.requestRedeem(ctx, "bob", big.NewInt(5), regtestAddress(t), "")
		require.Error(t, err)
		require.True(t, pegerrors.INSUFFICIENT_SUPPLY.Is(err))
		var typedErr pegerrors.TypedError[pegerrors.InsufficientSupplyMetadata]
		require.True(t, errors.As(err, &typedErr))
		require.Equal(t, "5", typedErr.TypedMetadata().Reserved)

		// Cancelling releases the reservation.
		_, err = f.engine.cancelRedemption(ctx, alice.Id)
		require.NoError(t, err)

		bob, err := f.engine.requestRedeem(ctx, "bob", big.NewInt(3), regtestAddress(t), "")
		require.NoError(t, err)
		carol, err := f.engine.requestRedeem(ctx, "carol", big.NewInt(2), regtestAddress(t), "")
		require.NoError(t, err)
		_, err = f.engine.requestRedeem(ctx, "dave", big.NewInt(1), regtestAddress(t), "")
		require.Error(t, err)
		require.True(t, pegerrors.INSUFFICIENT_SUPPLY.Is(err))

		// Both locks can be claimed, the supply backs every one of them.
		for _, intent := range []*domain.RedeemIntent{bob, carol} {
			_, err := f.engine.lock(ctx, intent.Id)
			require.NoError(t, err)
			require.NoError(t, f.engine.handleConfirmation(ctx, intent.Id))
			require.Equal(t, domain.RedemptionStateClaimed, f.state(t, intent.Id))
		}
		require.Equal(t, "0", f.ledger.currentSupply().String())

		f.engine.mu.Lock()
		require.Empty(t, f.engine.reserved)
		f.engine.mu.Unlock()
	})

	t.Run("expired lock stays reserved until refunded", func(t *testing.T) {
		f := newRedemptionFixture(t, 5, 2*time.Second, RedemptionConfig{PollInterval: time.Hour})

		intent, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(5), regtestAddress(t), "")
		require.NoError(t, err)
		_, err = f.engine.lock(ctx, intent.Id)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return !f.scheduler.AfterNow(intent.ExpiresAt)
		}, 4*time.Second, 20*time.Millisecond)
		require.NoError(t, f.engine.handleExpiry(ctx, intent.Id))
		require.Equal(t, domain.RedemptionStateExpired, f.state(t, intent.Id))

		_, err = f.engine.requestRedeem(ctx, "bob", big.NewInt(1), regtestAddress(t), "")
		require.Error(t, err)
		require.True(t, pegerrors.INSUFFICIENT_SUPPLY.Is(err))

		require.NoError(t, f.engine.handleRefund(ctx, intent.Id))
		require.Equal(t, domain.RedemptionStateRefunded, f.state(t, intent.Id))

		_, err = f.engine.requestRedeem(ctx, "bob", big.NewInt(5), regtestAddress(t), "")
		require.NoError(t, err)
	})

	t.Run("refund does not block other intents", func(t *testing.T) {
		f := newRedemptionFixture(t, 10, 2*time.Second, RedemptionConfig{PollInterval: time.Hour})

		intent, err := f.engine.requestRedeem(ctx, "alice", big.NewInt(3), regtestAddress(t), "")
		require.NoError(t, err)
		intent, err = f.engine.lock(ctx, intent.Id)
		require.NoError(t, err)

		gate := f.settlement.holdRefunds()
		require.Eventually(t, func() bool {
			return !f.scheduler.AfterNow(intent.ExpiresAt)
		}, 4*time.Second, 20*time.Millisecond)

		expired := make(chan error, 1)
		go func() { expired <- f.engine.handleExpiry(ctx, intent.Id) }()
		require.Eventually(t, func() bool {
			return f.state(t, intent.Id) == domain.RedemptionStateExpired
		}, 3*time.Second, 20*time.Millisecond)

		quoted := make(chan error, 1)
		go func() {
			_, err := f.engine.requestRedeem(ctx, "bob", big.NewInt(2), regtestAddress(t), "")
			quoted <- err
		}()
		select {
		case err := <-quoted:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "redeem request blocked by a pending refund")
		}

		close(gate)
		select {
		case err := <-expired:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "expiry not completed")
		}
		require.Equal(t, 1, f.settlement.refundCount(intent.LockRef.Id))
	})

	t.Run("expiry fired early is rescheduled", func(t *testing.T) {
		ledger, err := newSupplyLedger(ctx, &mockSupplyRepo{}, nil, nil)
		require.NoError(t, err)
		mustMint(t, ledger, 10)

		repo := newMockRedemptionRepo()
		scheduler := &earlyScheduler{}
		engine := newRedemptionEngine(
			ledger, repo, newMockSettlement(), scheduler, &mockCallbackStore{}, nil, nil, nil,
			RedemptionConfig{
				Network:      &chaincfg.RegressionNetParams,
				Timeout:      time.Second,
				PollInterval: time.Hour,
			},
		)
		t.Cleanup(engine.stop)

		intent, err := engine.requestRedeem(ctx, "alice", big.NewInt(1), regtestAddress(t), "")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			got, err := repo.GetIntent(ctx, intent.Id)
			return err == nil && got.State == domain.RedemptionStateCancelled
		}, 5*time.Second, 50*time.Millisecond)
		require.Greater(t, scheduler.calls.Load(), int32(1))
	})
}
