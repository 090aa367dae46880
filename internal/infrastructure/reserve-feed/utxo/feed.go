package utxofeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const (
	feedName          = "utxo"
	defaultMaxSyncAge = 2 * time.Hour
)

type Option func(*Feed)

// WithMaxSyncAge sets how old the last successful sync can get before the feed reports
// itself unavailable. Zero disables the age check.
func WithMaxSyncAge(maxAge time.Duration) Option {
	return func(f *Feed) {
		f.maxSyncAge = maxAge
	}
}

// Feed sums the confirmed outputs sitting on a watch-list of reserve addresses.
// Outputs are keyed by outpoint, adding or removing the same one twice has no effect.
// With an explorer, the outputs are trusted only while the explorer sync is healthy.
type Feed struct {
	explorer   ports.Explorer
	repo       domain.UtxoRepository
	addresses  []string
	maxSyncAge time.Duration

	// serializes syncs with manual updates
	lock sync.Mutex

	syncLock    sync.RWMutex
	lastSyncAt  time.Time
	lastSyncErr error
}

func NewFeed(
	explorer ports.Explorer, repo domain.UtxoRepository, addresses []string, opts ...Option,
) (*Feed, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing utxo repository")
	}
	if len(addresses) <= 0 {
		return nil, fmt.Errorf("missing reserve addresses")
	}

	seen := make(map[string]struct{})
	watchList := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		watchList = append(watchList, addr)
	}

	f := &Feed{
		explorer:   explorer,
		repo:       repo,
		addresses:  watchList,
		maxSyncAge: defaultMaxSyncAge,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.maxSyncAge < 0 {
		return nil, fmt.Errorf("invalid max sync age %s", f.maxSyncAge)
	}
	return f, nil
}

func (f *Feed) Name() string {
	return feedName
}

func (f *Feed) Addresses() []string {
	return append([]string(nil), f.addresses...)
}

func (f *Feed) GetLockedReserveUnits(ctx context.Context) (domain.ReserveSnapshot, error) {
	if reason := f.unhealthySync(time.Now()); reason != "" {
		return domain.UnavailableSnapshot(feedName, reason), nil
	}

	utxos, err := f.watchedUtxos(ctx)
	if err != nil {
		return domain.ReserveSnapshot{}, err
	}

	total, pending := domain.SumUtxos(utxos)
	return domain.NewReserveSnapshot(feedName, total, len(utxos)-pending, pending), nil
}

func (f *Feed) GetIntegrityStatus(ctx context.Context) (domain.IntegrityStatus, error) {
	snapshot, err := f.GetLockedReserveUnits(ctx)
	if err != nil {
		return domain.IntegrityStatusUnavailable, err
	}
	return snapshot.IntegrityStatus, nil
}

// AddUtxos inserts or replaces the given outputs.
func (f *Feed) AddUtxos(ctx context.Context, utxos ...domain.Utxo) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.addUtxos(ctx, utxos)
}

func (f *Feed) RemoveUtxos(ctx context.Context, outpoints ...domain.Outpoint) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if len(outpoints) <= 0 {
		return nil
	}
	return f.repo.RemoveUtxos(ctx, outpoints)
}

// Sync replaces the outputs of every watched address with the ones currently reported by
// the explorer. Addresses that fail to sync keep their previous outputs.
func (f *Feed) Sync(ctx context.Context) error {
	if f.explorer == nil {
		return fmt.Errorf("missing explorer")
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	var failed []string
	for _, addr := range f.addresses {
		if err := f.syncAddress(ctx, addr); err != nil {
			log.WithError(err).Warnf("failed to sync reserve address %s", addr)
			failed = append(failed, addr)
		}
	}

	var err error
	if len(failed) > 0 {
		err = fmt.Errorf("failed to sync %d/%d reserve addresses", len(failed), len(f.addresses))
	}
	f.recordSync(time.Now(), err)
	return err
}

// LastSync returns the time of the last successful sync and the error of the most recent
// one, if it failed.
func (f *Feed) LastSync() (time.Time, error) {
	f.syncLock.RLock()
	defer f.syncLock.RUnlock()
	return f.lastSyncAt, f.lastSyncErr
}

func (f *Feed) recordSync(at time.Time, err error) {
	f.syncLock.Lock()
	defer f.syncLock.Unlock()

	f.lastSyncErr = err
	if err == nil {
		f.lastSyncAt = at
	}
}

// unhealthySync returns why the stored outputs cannot be trusted, if so. Without an
// explorer the outputs are maintained manually and always trusted.
func (f *Feed) unhealthySync(now time.Time) string {
	if f.explorer == nil {
		return ""
	}

	lastSyncAt, lastSyncErr := f.LastSync()
	switch {
	case lastSyncErr != nil:
		return fmt.Sprintf("last reserve sync failed: %s", lastSyncErr)
	case lastSyncAt.IsZero():
		return "reserve addresses not synced yet"
	case f.maxSyncAge > 0 && now.Sub(lastSyncAt) > f.maxSyncAge:
		return fmt.Sprintf(
			"last reserve sync is %s old", now.Sub(lastSyncAt).Truncate(time.Second),
		)
	default:
		return ""
	}
}

func (f *Feed) syncAddress(ctx context.Context, addr string) error {
	fetched, err := f.explorer.GetUtxos(ctx, addr)
	if err != nil {
		return err
	}
	stored, err := f.repo.GetUtxosByAddress(ctx, addr)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	current := make(map[domain.Outpoint]struct{}, len(fetched))
	utxos := make([]domain.Utxo, 0, len(fetched))
	for _, u := range fetched {
		outpoint := domain.Outpoint{Txid: u.Txid, VOut: u.Vout}
		if _, ok := current[outpoint]; ok {
			continue
		}
		current[outpoint] = struct{}{}
		utxos = append(utxos, domain.Utxo{
			Outpoint:  outpoint,
			Address:   addr,
			Amount:    u.Amount,
			Confirmed: u.Status.Confirmed,
			BlockTime: u.Status.BlockTime,
			UpdatedAt: now,
		})
	}

	spent := make([]domain.Outpoint, 0)
	for _, u := range stored {
		if _, ok := current[u.Outpoint]; !ok {
			spent = append(spent, u.Outpoint)
		}
	}

	if err := f.addUtxos(ctx, utxos); err != nil {
		return err
	}
	if len(spent) > 0 {
		if err := f.repo.RemoveUtxos(ctx, spent); err != nil {
			return err
		}
	}

	log.Debugf(
		"synced reserve address %s: %d outputs, %d removed", addr, len(utxos), len(spent),
	)
	return nil
}

func (f *Feed) addUtxos(ctx context.Context, utxos []domain.Utxo) error {
	if len(utxos) <= 0 {
		return nil
	}
	for _, u := range utxos {
		if len(u.Txid) <= 0 {
			return fmt.Errorf("missing txid of utxo on %s", u.Address)
		}
	}
	return f.repo.AddUtxos(ctx, utxos)
}

func (f *Feed) watchedUtxos(ctx context.Context) ([]domain.Utxo, error) {
	utxos := make([]domain.Utxo, 0)
	for _, addr := range f.addresses {
		list, err := f.repo.GetUtxosByAddress(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to get utxos of %s: %w", addr, err)
		}
		utxos = append(utxos, list...)
	}
	return utxos, nil
}

