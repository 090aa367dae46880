package application

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// In-memory implementations of the ports used by the application tests.

type mockSupplyRepo struct {
	lock    sync.Mutex
	entries []domain.SupplyEntry
}

func (r *mockSupplyRepo) AddEntry(_ context.Context, entry domain.SupplyEntry) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, e := range r.entries {
		if entry.Ref != "" && e.Ref == entry.Ref {
			return domain.ErrDuplicateSupplyRef
		}
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *mockSupplyRepo) GetEntries(
	_ context.Context, kinds ...domain.SupplyEntryKind,
) ([]domain.SupplyEntry, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	entries := make([]domain.SupplyEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if len(kinds) == 0 {
			entries = append(entries, e)
			continue
		}
		for _, k := range kinds {
			if e.Kind == k {
				entries = append(entries, e)
				break
			}
		}
	}
	return entries, nil
}

func (r *mockSupplyRepo) GetEntryByRef(
	_ context.Context, ref string,
) (*domain.SupplyEntry, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, e := range r.entries {
		if e.Ref == ref {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (r *mockSupplyRepo) Close() {}

type mockRedemptionRepo struct {
	lock    sync.Mutex
	intents map[string]domain.RedeemIntent
}

func newMockRedemptionRepo() *mockRedemptionRepo {
	return &mockRedemptionRepo{intents: make(map[string]domain.RedeemIntent)}
}

func (r *mockRedemptionRepo) AddOrUpdateIntent(
	_ context.Context, intent domain.RedeemIntent,
) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.intents[intent.Id] = intent
	return nil
}

func (r *mockRedemptionRepo) GetIntent(
	_ context.Context, id string,
) (*domain.RedeemIntent, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	intent, ok := r.intents[id]
	if !ok {
		return nil, nil
	}
	return &intent, nil
}

func (r *mockRedemptionRepo) GetIntentsByState(
	_ context.Context, states ...domain.RedemptionState,
) ([]domain.RedeemIntent, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	intents := make([]domain.RedeemIntent, 0)
	for _, intent := range r.intents {
		for _, s := range states {
			if intent.State == s {
				intents = append(intents, intent)
				break
			}
		}
	}
	sort.SliceStable(intents, func(i, j int) bool {
		return intents[i].CreatedAt < intents[j].CreatedAt
	})
	return intents, nil
}

func (r *mockRedemptionRepo) GetIntentsByRequester(
	_ context.Context, requester string,
) ([]domain.RedeemIntent, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	intents := make([]domain.RedeemIntent, 0)
	for _, intent := range r.intents {
		if intent.Requester == requester {
			intents = append(intents, intent)
		}
	}
	return intents, nil
}

func (r *mockRedemptionRepo) Close() {}

type mockAttestationRepo struct {
	lock  sync.Mutex
	items []domain.Attestation
}

func (r *mockAttestationRepo) Add(_ context.Context, att domain.Attestation) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.items = append(r.items, att)
	return nil
}

func (r *mockAttestationRepo) GetLatest(_ context.Context) (*domain.Attestation, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.items) == 0 {
		return nil, nil
	}
	att := r.items[len(r.items)-1]
	return &att, nil
}

func (r *mockAttestationRepo) Get(_ context.Context, id string) (*domain.Attestation, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, att := range r.items {
		if att.Id == id {
			a := att
			return &a, nil
		}
	}
	return nil, nil
}

func (r *mockAttestationRepo) GetAll(
	_ context.Context, after, before int64,
) ([]domain.Attestation, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	list := make([]domain.Attestation, 0, len(r.items))
	for i := len(r.items) - 1; i >= 0; i-- {
		att := r.items[i]
		if (after > 0 && att.ProducedAt < after) || (before > 0 && att.ProducedAt > before) {
			continue
		}
		list = append(list, att)
	}
	return list, nil
}

func (r *mockAttestationRepo) Close() {}

type mockEventRepo struct {
	lock   sync.Mutex
	events []domain.Event
}

func (r *mockEventRepo) Publish(_ context.Context, _ string, events ...domain.Event) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *mockEventRepo) RegisterEventsHandler(string, func([]domain.Event)) {}
func (r *mockEventRepo) ClearRegisteredHandlers(...string)                  {}
func (r *mockEventRepo) Close()                                             {}

func (r *mockEventRepo) countByType(t domain.EventType) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	count := 0
	for _, e := range r.events {
		if e.GetType() == t {
			count++
		}
	}
	return count
}

type mockRepoManager struct {
	supply       *mockSupplyRepo
	redemptions  *mockRedemptionRepo
	attestations *mockAttestationRepo
	events       *mockEventRepo
}

func newMockRepoManager() *mockRepoManager {
	return &mockRepoManager{
		supply:       &mockSupplyRepo{},
		redemptions:  newMockRedemptionRepo(),
		attestations: &mockAttestationRepo{},
		events:       &mockEventRepo{},
	}
}

func (m *mockRepoManager) Events() domain.EventRepository             { return m.events }
func (m *mockRepoManager) Supply() domain.SupplyRepository            { return m.supply }
func (m *mockRepoManager) Utxos() domain.UtxoRepository               { return nil }
func (m *mockRepoManager) Attestations() domain.AttestationRepository { return m.attestations }
func (m *mockRepoManager) Redemptions() domain.RedemptionRepository   { return m.redemptions }
func (m *mockRepoManager) Close()                                     {}

// mockFeed reports a configurable reserve, or fails.
type mockFeed struct {
	lock   sync.Mutex
	locked *big.Int
	status domain.IntegrityStatus
	err    error
	delay  time.Duration
}

func newMockFeed(locked int64) *mockFeed {
	return &mockFeed{locked: big.NewInt(locked), status: domain.IntegrityStatusComplete}
}

func (f *mockFeed) Name() string { return "mock" }

func (f *mockFeed) GetLockedReserveUnits(ctx context.Context) (domain.ReserveSnapshot, error) {
	f.lock.Lock()
	locked, status, err, delay := f.locked, f.status, f.err, f.delay
	f.lock.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return domain.UnavailableSnapshot(f.Name(), ctx.Err().Error()), nil
		case <-time.After(delay):
		}
	}
	if err != nil {
		return domain.ReserveSnapshot{}, err
	}
	if status == domain.IntegrityStatusUnavailable {
		return domain.UnavailableSnapshot(f.Name(), "offline"), nil
	}
	return domain.NewReserveSnapshot(f.Name(), locked, 1, 0), nil
}

func (f *mockFeed) GetIntegrityStatus(ctx context.Context) (domain.IntegrityStatus, error) {
	snapshot, err := f.GetLockedReserveUnits(ctx)
	if err != nil {
		return domain.IntegrityStatusUnavailable, err
	}
	return snapshot.IntegrityStatus, nil
}

func (f *mockFeed) set(locked int64) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.locked = big.NewInt(locked)
}

func (f *mockFeed) fail(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}

type mockSigner struct {
	key *btcec.PrivateKey
}

func newMockSigner(t *testing.T) *mockSigner {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return &mockSigner{key}
}

func (s *mockSigner) GetPubkey(context.Context) (*btcec.PublicKey, error) {
	return s.key.PubKey(), nil
}

func (s *mockSigner) SignMessage(_ context.Context, digest []byte) ([]byte, error) {
	sig, err := schnorr.Sign(s.key, digest)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// mockSettlement keeps lock statuses in memory.
type mockSettlement struct {
	lock     sync.Mutex
	statuses map[string]ports.LockStatus
	refunds  map[string]int
	openErr  error
	// refundGate, when set, holds every refund until it is closed.
	refundGate chan struct{}
}

func newMockSettlement() *mockSettlement {
	return &mockSettlement{
		statuses: make(map[string]ports.LockStatus),
		refunds:  make(map[string]int),
	}
}

func (s *mockSettlement) OpenLock(
	_ context.Context, req ports.LockRequest,
) (domain.LockRef, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.openErr != nil {
		return domain.LockRef{}, s.openErr
	}
	id := uuid.New().String()
	s.statuses[id] = ports.LockStatusPending
	return domain.LockRef{
		Id:          id,
		Address:     fmt.Sprintf("lock-%s", id),
		PaymentHash: req.PaymentHash,
		Amount:      req.ReserveUnits.Uint64(),
		ExpiresAt:   time.Now().Add(req.Timeout).Unix(),
	}, nil
}

func (s *mockSettlement) ObserveConfirmation(
	_ context.Context, ref domain.LockRef,
) (ports.LockStatus, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	status, ok := s.statuses[ref.Id]
	if !ok {
		return "", fmt.Errorf("unknown lock %s", ref.Id)
	}
	return status, nil
}

func (s *mockSettlement) Refund(ctx context.Context, ref domain.LockRef) error {
	s.lock.Lock()
	gate := s.refundGate
	s.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.refunds[ref.Id]++
	return nil
}

func (s *mockSettlement) holdRefunds() chan struct{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refundGate = make(chan struct{})
	return s.refundGate
}

func (s *mockSettlement) setStatus(id string, status ports.LockStatus) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.statuses[id] = status
}

func (s *mockSettlement) refundCount(id string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.refunds[id]
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Start() {}
func (m *mockScheduler) Stop()  {}

func (m *mockScheduler) AddNow(lifetime int64) int64 {
	return time.Now().Add(time.Duration(lifetime) * time.Second).Unix()
}

func (m *mockScheduler) AfterNow(expiry int64) bool {
	return time.Unix(expiry, 0).After(time.Now())
}

func (m *mockScheduler) ScheduleTaskOnce(at int64, task func()) error {
	args := m.Called(at)
	return args.Error(0)
}

func (m *mockScheduler) ScheduleRecurringTask(interval time.Duration, task func()) error {
	args := m.Called(interval)
	return args.Error(0)
}

// earlyScheduler runs every task shortly after it is scheduled, regardless of the
// requested time.
type earlyScheduler struct {
	mockScheduler
	calls atomic.Int32
}

func (s *earlyScheduler) ScheduleTaskOnce(_ int64, task func()) error {
	s.calls.Add(1)
	time.AfterFunc(100*time.Millisecond, task)
	return nil
}

type mockCallbackStore struct {
	lock sync.Mutex
	keys map[string]struct{}
}

func (s *mockCallbackStore) MarkProcessed(_ context.Context, key string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *mockCallbackStore) Forget(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.keys, key)
	return nil
}

func regtestAddress(t *testing.T) string {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(
		make([]byte, 20), &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func mustMint(t *testing.T, ledger *supplyLedger, amount int64) {
	_, err := ledger.recordMint(context.Background(), big.NewInt(amount), "test", "", nil)
	require.NoError(t, err)
}
