package application

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/telemetry"
	"github.com/arkade-os/pegd/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// supplyLedger is the single source of truth for the outstanding supply.
// Every mutation, together with any admission check, runs under mu so that no caller
// can observe a partially applied entry or race a check against another write.
type supplyLedger struct {
	mu      sync.Mutex
	repo    domain.SupplyRepository
	events  domain.EventRepository
	metrics *telemetry.Metrics

	totals  domain.SupplyTotals
	lastSeq uint64
}

func newSupplyLedger(
	ctx context.Context, repo domain.SupplyRepository, events domain.EventRepository,
	metrics *telemetry.Metrics,
) (*supplyLedger, error) {
	entries, err := repo.GetEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load supply entries: %w", err)
	}

	totals := domain.ComputeSupplyTotals(entries)
	if totals.Supply.Sign() < 0 {
		return nil, fmt.Errorf("corrupted ledger: negative supply %s", totals.Supply)
	}

	var lastSeq uint64
	if len(entries) > 0 {
		lastSeq = entries[len(entries)-1].Seq
	}

	log.Debugf(
		"loaded %d supply entries, current supply %s", len(entries), totals.Supply,
	)
	metrics.SetSupply(totals.Supply)

	return &supplyLedger{
		repo:    repo,
		events:  events,
		metrics: metrics,
		totals:  totals,
		lastSeq: lastSeq,
	}, nil
}

func (l *supplyLedger) currentSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return new(big.Int).Set(l.totals.Supply)
}

func (l *supplyLedger) getTotals() domain.SupplyTotals {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.totals.Apply(domain.SupplyEntry{})
}

func (l *supplyLedger) history(
	ctx context.Context, kinds ...domain.SupplyEntryKind,
) ([]domain.SupplyEntry, error) {
	return l.repo.GetEntries(ctx, kinds...)
}

// withSupply runs fn with the current supply while holding the ledger lock.
func (l *supplyLedger) withSupply(fn func(outstanding *big.Int) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return fn(new(big.Int).Set(l.totals.Supply))
}

// recordMint appends a mint entry once admit accepts the current supply. admit runs
// under the ledger lock, so no other entry can be appended in between.
func (l *supplyLedger) recordMint(
	ctx context.Context, amount *big.Int, reason, ref string,
	admit func(outstanding *big.Int) error,
) (*domain.SupplyEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validateEntry(ctx, amount, ref); err != nil {
		return nil, err
	}

	if admit != nil {
		if err := admit(new(big.Int).Set(l.totals.Supply)); err != nil {
			return nil, err
		}
	}

	entry := domain.NewSupplyEntry(domain.SupplyEntryKindMint, amount, reason, ref)
	if err := l.append(ctx, &entry); err != nil {
		return nil, err
	}

	l.publish(domain.TokensMinted{
		Id:        entry.Id,
		Type:      domain.EventTypeTokensMinted,
		Amount:    entry.Amount.String(),
		Reason:    entry.Reason,
		Supply:    l.totals.Supply.String(),
		Timestamp: entry.CreatedAt,
	})
	return &entry, nil
}

func (l *supplyLedger) recordBurn(
	ctx context.Context, amount *big.Int, reason, ref string,
) (*domain.SupplyEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.validateEntry(ctx, amount, ref); err != nil {
		return nil, err
	}

	if amount.Cmp(l.totals.Supply) > 0 {
		return nil, errors.INSUFFICIENT_SUPPLY.New(
			"cannot burn %s tokens, current supply is %s", amount, l.totals.Supply,
		).WithMetadata(errors.InsufficientSupplyMetadata{
			Requested: amount.String(),
			Supply:    l.totals.Supply.String(),
		})
	}

	entry := domain.NewSupplyEntry(domain.SupplyEntryKindBurn, amount, reason, ref)
	if err := l.append(ctx, &entry); err != nil {
		return nil, err
	}

	l.publish(domain.TokensBurned{
		Id:        entry.Id,
		Type:      domain.EventTypeTokensBurned,
		Amount:    entry.Amount.String(),
		Reason:    entry.Reason,
		Supply:    l.totals.Supply.String(),
		Timestamp: entry.CreatedAt,
	})
	return &entry, nil
}

// must be called with the lock held
func (l *supplyLedger) validateEntry(ctx context.Context, amount *big.Int, ref string) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.INVALID_AMOUNT.New("amount must be greater than zero")
	}
	if ref == "" {
		return nil
	}

	existing, err := l.repo.GetEntryByRef(ctx, ref)
	if err != nil {
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to look up entry ref: %w", err))
	}
	if existing != nil {
		return errors.DUPLICATE_ENTRY.New("entry with ref %s already recorded", ref).
			WithMetadata(errors.DuplicateEntryMetadata{Ref: ref})
	}
	return nil
}

// must be called with the lock held
func (l *supplyLedger) append(ctx context.Context, entry *domain.SupplyEntry) error {
	entry.Seq = l.lastSeq + 1
	if err := l.repo.AddEntry(ctx, *entry); err != nil {
		if err == domain.ErrDuplicateSupplyRef {
			return errors.DUPLICATE_ENTRY.New("entry with ref %s already recorded", entry.Ref).
				WithMetadata(errors.DuplicateEntryMetadata{Ref: entry.Ref})
		}
		return errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to store supply entry: %w", err))
	}

	l.lastSeq = entry.Seq
	l.totals = l.totals.Apply(*entry)
	l.metrics.SetSupply(l.totals.Supply)

	log.Infof(
		"recorded %s of %s tokens (%s), supply is now %s",
		entry.Kind, entry.Amount, entry.Reason, l.totals.Supply,
	)
	return nil
}

func (l *supplyLedger) publish(events ...domain.Event) {
	publishEvents(l.events, domain.SupplyTopic, events...)
}
