package db_test

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/arkade-os/pegd/internal/infrastructure/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	dbDir := t.TempDir()
	tests := []struct {
		name   string
		config db.ServiceConfig
	}{
		{
			name: "repo_manager_with_badger_stores",
			config: db.ServiceConfig{
				EventStoreType:   "inmemory",
				DataStoreType:    "badger",
				EventStoreConfig: nil,
				DataStoreConfig:  []interface{}{"", nil},
			},
		},
		{
			name: "repo_manager_with_sqlite_stores",
			config: db.ServiceConfig{
				EventStoreType:   "inmemory",
				DataStoreType:    "sqlite",
				EventStoreConfig: nil,
				DataStoreConfig:  []interface{}{dbDir},
			},
		},
	}
	if pgDsn := os.Getenv("PEGD_TEST_POSTGRES_DSN"); pgDsn != "" {
		tests = append(tests, struct {
			name   string
			config db.ServiceConfig
		}{
			name: "repo_manager_with_postgres_stores",
			config: db.ServiceConfig{
				EventStoreType:   "postgres",
				DataStoreType:    "postgres",
				EventStoreConfig: []interface{}{pgDsn, true},
				DataStoreConfig:  []interface{}{pgDsn, true},
			},
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := db.NewService(tt.config)
			require.NoError(t, err)
			require.NotNil(t, svc)

			testEventRepository(t, svc)
			testSupplyRepository(t, svc)
			testUtxoRepository(t, svc)
			testAttestationRepository(t, svc)
			testRedemptionRepository(t, svc)

			svc.Close()
		})
	}

	t.Run("invalid config", func(t *testing.T) {
		_, err := db.NewService(db.ServiceConfig{
			EventStoreType: "inmemory",
			DataStoreType:  "leveldb",
		})
		require.Error(t, err)

		_, err = db.NewService(db.ServiceConfig{
			EventStoreType:  "kafka",
			DataStoreType:   "badger",
			DataStoreConfig: []interface{}{"", nil},
		})
		require.Error(t, err)
	})
}

func testEventRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_event_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Events()

		received := make(chan []domain.Event, 2)
		repo.RegisterEventsHandler(domain.SupplyTopic, func(events []domain.Event) {
			received <- events
		})
		redemptionEvents := make(chan []domain.Event, 1)
		repo.RegisterEventsHandler(domain.RedemptionTopic, func(events []domain.Event) {
			redemptionEvents <- events
		})
		defer repo.ClearRegisteredHandlers()

		events := []domain.Event{
			domain.TokensMinted{
				Id:        uuid.NewString(),
				Type:      domain.EventTypeTokensMinted,
				Amount:    "5",
				Reason:    "deposit",
				Supply:    "5",
				Timestamp: time.Now().Unix(),
			},
			domain.PegEnforced{
				Id:          uuid.NewString(),
				Type:        domain.EventTypePegEnforced,
				TokenAmount: "6",
				Locked:      "100000000",
				Required:    "110000000",
				Shortfall:   "10000000",
				Timestamp:   time.Now().Unix(),
			},
		}
		require.NoError(t, repo.Publish(ctx, domain.SupplyTopic, events...))
		require.NoError(t, repo.Publish(ctx, domain.SupplyTopic))

		select {
		case got := <-received:
			require.Len(t, got, 2)
			require.Equal(t, domain.EventTypeTokensMinted, got[0].GetType())
			require.Equal(t, domain.EventTypePegEnforced, got[1].GetType())
		case <-time.After(5 * time.Second):
			require.FailNow(t, "events not dispatched")
		}
		require.Empty(t, redemptionEvents)
	})
}

func testSupplyRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_supply_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Supply()

		// Seq is unique across runs sharing the same db.
		seq := uint64(time.Now().UnixNano())
		ref := uuid.NewString()

		mint := domain.NewSupplyEntry(
			domain.SupplyEntryKindMint, big.NewInt(10), "deposit", ref,
		)
		mint.Seq = seq
		burn := domain.NewSupplyEntry(
			domain.SupplyEntryKindBurn, big.NewInt(3), "redemption", "",
		)
		burn.Seq = seq + 1

		got, err := repo.GetEntryByRef(ctx, ref)
		require.NoError(t, err)
		require.Nil(t, got)

		require.NoError(t, repo.AddEntry(ctx, mint))
		require.NoError(t, repo.AddEntry(ctx, burn))

		duplicate := domain.NewSupplyEntry(
			domain.SupplyEntryKindMint, big.NewInt(1), "deposit", ref,
		)
		duplicate.Seq = seq + 2
		err = repo.AddEntry(ctx, duplicate)
		require.ErrorIs(t, err, domain.ErrDuplicateSupplyRef)

		got, err = repo.GetEntryByRef(ctx, ref)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, mint.Id, got.Id)
		require.Equal(t, "10", got.Amount.String())
		require.Equal(t, domain.SupplyEntryKindMint, got.Kind)

		entries, err := repo.GetEntries(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(entries), 2)
		last := entries[len(entries)-2:]
		require.Equal(t, mint.Id, last[0].Id)
		require.Equal(t, burn.Id, last[1].Id)
		for i := 1; i < len(entries); i++ {
			require.Less(t, entries[i-1].Seq, entries[i].Seq)
		}

		burns, err := repo.GetEntries(ctx, domain.SupplyEntryKindBurn)
		require.NoError(t, err)
		require.NotEmpty(t, burns)
		for _, entry := range burns {
			require.Equal(t, domain.SupplyEntryKindBurn, entry.Kind)
		}
		require.Equal(t, burn.Id, burns[len(burns)-1].Id)
		require.Equal(t, "3", burns[len(burns)-1].Amount.String())
	})
}

func testUtxoRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_utxo_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Utxos()

		address := "bcrt1q" + uuid.NewString()
		txid := randomTxid()
		utxos := []domain.Utxo{
			{
				Outpoint:  domain.Outpoint{Txid: txid, VOut: 0},
				Address:   address,
				Amount:    50_000_000,
				Confirmed: true,
				BlockTime: 1700000000,
				UpdatedAt: time.Now().Unix(),
			},
			{
				Outpoint:  domain.Outpoint{Txid: txid, VOut: 1},
				Address:   address,
				Amount:    25_000_000,
				UpdatedAt: time.Now().Unix(),
			},
		}
		require.NoError(t, repo.AddUtxos(ctx, utxos))

		// Adding the same outpoints again replaces them.
		utxos[1].Confirmed = true
		require.NoError(t, repo.AddUtxos(ctx, utxos))

		got, err := repo.GetUtxosByAddress(ctx, address)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, utxos[0].Outpoint, got[0].Outpoint)
		require.True(t, got[1].Confirmed)
		total, pending := domain.SumUtxos(got)
		require.Equal(t, "75000000", total.String())
		require.Zero(t, pending)

		all, err := repo.GetAllUtxos(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(all), 2)

		require.NoError(t, repo.RemoveUtxos(ctx, []domain.Outpoint{
			utxos[0].Outpoint, {Txid: randomTxid(), VOut: 3},
		}))
		got, err = repo.GetUtxosByAddress(ctx, address)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, uint32(1), got[0].VOut)
	})
}

func testAttestationRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_attestation_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Attestations()

		now := time.Now().Unix()
		older := newAttestation(now - 3600)
		newer := newAttestation(now)

		require.NoError(t, repo.Add(ctx, older))
		require.NoError(t, repo.Add(ctx, newer))

		latest, err := repo.GetLatest(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		require.Equal(t, newer, *latest)

		got, err := repo.Get(ctx, older.Id)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, older, *got)

		got, err = repo.Get(ctx, uuid.NewString())
		require.NoError(t, err)
		require.Nil(t, got)

		inRange, err := repo.GetAll(ctx, now-60, 0)
		require.NoError(t, err)
		require.NotEmpty(t, inRange)
		require.Equal(t, newer.Id, inRange[0].Id)
		for _, att := range inRange {
			require.NotEqual(t, older.Id, att.Id)
		}

		inRange, err = repo.GetAll(ctx, now-7200, now-60)
		require.NoError(t, err)
		ids := make([]string, 0, len(inRange))
		for _, att := range inRange {
			ids = append(ids, att.Id)
		}
		require.Contains(t, ids, older.Id)
		require.NotContains(t, ids, newer.Id)

		_, err = repo.GetAll(ctx, now, now-10)
		require.Error(t, err)
	})
}

func testRedemptionRepository(t *testing.T, svc ports.RepoManager) {
	t.Run("test_redemption_repository", func(t *testing.T) {
		ctx := context.Background()
		repo := svc.Redemptions()

		requester := uuid.NewString()
		first := domain.NewRedeemIntent(
			requester, big.NewInt(3), "bcrt1qclaim", "", time.Hour,
		)
		second := domain.NewRedeemIntent(
			requester, big.NewInt(1), "bcrt1qclaim", "", time.Hour,
		)
		second.CreatedAt = first.CreatedAt + 1

		require.NoError(t, repo.AddOrUpdateIntent(ctx, first))
		require.NoError(t, repo.AddOrUpdateIntent(ctx, second))

		require.NoError(t, first.Lock(domain.LockRef{
			Id:        "lock-" + first.Id,
			Address:   "bcrt1qlock",
			Script:    "6382",
			Amount:    30_000_000,
			ExpiresAt: first.ExpiresAt,
		}))
		require.NoError(t, repo.AddOrUpdateIntent(ctx, first))

		got, err := repo.GetIntent(ctx, first.Id)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, domain.RedemptionStateLocked, got.State)
		require.Equal(t, "3", got.TokenAmount.String())
		require.Equal(t, "30000000", got.QuotedReserveUnits.String())
		require.Equal(t, first.LockRef, got.LockRef)

		got, err = repo.GetIntent(ctx, uuid.NewString())
		require.NoError(t, err)
		require.Nil(t, got)

		byRequester, err := repo.GetIntentsByRequester(ctx, requester)
		require.NoError(t, err)
		require.Len(t, byRequester, 2)
		require.Equal(t, first.Id, byRequester[0].Id)
		require.Equal(t, second.Id, byRequester[1].Id)

		locked, err := repo.GetIntentsByState(ctx, domain.RedemptionStateLocked)
		require.NoError(t, err)
		require.Contains(t, intentIds(locked), first.Id)
		require.NotContains(t, intentIds(locked), second.Id)

		open, err := repo.GetIntentsByState(
			ctx, domain.RedemptionStateQuoted, domain.RedemptionStateLocked,
		)
		require.NoError(t, err)
		require.Contains(t, intentIds(open), first.Id)
		require.Contains(t, intentIds(open), second.Id)

		none, err := repo.GetIntentsByState(ctx)
		require.NoError(t, err)
		require.Empty(t, none)
	})
}

func newAttestation(producedAt int64) domain.Attestation {
	return domain.Attestation{
		Version: domain.AttestationVersion,
		Id:      uuid.NewString(),
		Snapshot: domain.AttestedSnapshot{
			LockedReserveUnits: "100000000",
			SourceCount:        2,
			AsOf:               producedAt,
			IntegrityStatus:    domain.IntegrityStatusComplete,
			Source:             "utxo",
		},
		OutstandingTokenUnits: "5",
		RequiredReserveUnits:  "50000000",
		ReserveUnitsPerToken:  "10000000",
		IsFullyReserved:       true,
		CollateralizationPct:  "200.00",
		SignerPublicKey:       "25a43cecfa0e1b1a4f72d64ad15f4cfa7a84d0723e8511c969aa543638ea9967",
		ProducedAt:            producedAt,
		Signature:             "00",
	}
}

func intentIds(intents []domain.RedeemIntent) []string {
	ids := make([]string, 0, len(intents))
	for _, intent := range intents {
		ids = append(ids, intent.Id)
	}
	return ids
}

func randomTxid() string {
	id := uuid.New()
	other := uuid.New()
	return (id.String() + other.String())[:64]
}
