package application

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/arkade-os/pegd/internal/telemetry"
	"github.com/arkade-os/pegd/pkg/errors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// AssertCanMint admits a mint of proposed tokens iff the locked reserve backs the whole
// supply after the mint. The comparison is on integers only.
func AssertCanMint(proposed, locked, outstanding *big.Int) error {
	newSupply := new(big.Int).Add(outstanding, proposed)
	required := domain.TokensToReserveUnits(newSupply)
	if locked.Cmp(required) >= 0 {
		return nil
	}

	shortfall := new(big.Int).Sub(required, locked)
	return errors.COLLATERAL_SHORTFALL.New(
		"locked reserve %s sats does not cover required %s sats", locked, required,
	).WithMetadata(errors.CollateralShortfallMetadata{
		Locked:    locked.String(),
		Required:  required.String(),
		Shortfall: shortfall.String(),
	})
}

type mintGuard struct {
	feed        ports.ReserveFeed
	ledger      *supplyLedger
	events      domain.EventRepository
	alerts      ports.Alerts
	metrics     *telemetry.Metrics
	feedTimeout time.Duration
}

func newMintGuard(
	feed ports.ReserveFeed, ledger *supplyLedger, events domain.EventRepository,
	alerts ports.Alerts, metrics *telemetry.Metrics, feedTimeout time.Duration,
) *mintGuard {
	return &mintGuard{feed, ledger, events, alerts, metrics, feedTimeout}
}

// mint reads the reserve feed and the supply, runs the guard and records the entry, all
// within one ledger lock acquisition.
func (g *mintGuard) mint(
	ctx context.Context, amount *big.Int, reason, ref string,
) (*domain.SupplyEntry, error) {
	var fact *domain.CollateralizationFact

	entry, err := g.ledger.recordMint(ctx, amount, reason, ref, func(outstanding *big.Int) error {
		snapshot, err := readReserve(ctx, g.feed, g.feedTimeout)
		if err != nil {
			return err
		}
		g.metrics.SetLockedReserve(snapshot.LockedReserveUnits)

		if err := AssertCanMint(amount, snapshot.LockedReserveUnits, outstanding); err != nil {
			f := domain.NewCollateralizationFact(
				snapshot.LockedReserveUnits, new(big.Int).Add(outstanding, amount),
			)
			fact = &f
			return err
		}
		return nil
	})
	if err != nil {
		result := "error"
		if errors.COLLATERAL_SHORTFALL.Is(err) {
			result = "denied"
			g.onShortfall(amount, fact)
		}
		g.metrics.IncMint(result)
		return nil, err
	}

	g.metrics.IncMint("admitted")
	return entry, nil
}

func (g *mintGuard) onShortfall(amount *big.Int, fact *domain.CollateralizationFact) {
	if fact == nil {
		return
	}

	log.WithField("locked", fact.Locked.String()).
		WithField("required", fact.Required.String()).
		Warnf("mint of %s tokens denied, collateral shortfall of %s sats", amount, fact.Shortfall())

	event := domain.PegEnforced{
		Id:          uuid.New().String(),
		Type:        domain.EventTypePegEnforced,
		TokenAmount: amount.String(),
		Locked:      fact.Locked.String(),
		Required:    fact.Required.String(),
		Shortfall:   fact.Shortfall().String(),
		Timestamp:   time.Now().Unix(),
	}
	publishEvents(g.events, domain.SupplyTopic, event)

	publishAlert(g.alerts, ports.CollateralShortfall, map[string]string{
		"tokenAmount":          amount.String(),
		"lockedSats":           fact.Locked.String(),
		"requiredSats":         fact.Required.String(),
		"shortfallSats":        fact.Shortfall().String(),
		"collateralizationPct": fact.DisplayPercentage(),
	})
}

// readReserve queries the feed under a timeout. Unavailable readings and timeouts are
// reported as FEED_UNAVAILABLE, never as a zero reserve.
func readReserve(
	ctx context.Context, feed ports.ReserveFeed, timeout time.Duration,
) (domain.ReserveSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	snapshot, err := feed.GetLockedReserveUnits(ctx)
	if err != nil {
		if errors.FEED_UNAVAILABLE.Is(err) {
			return domain.ReserveSnapshot{}, err
		}
		return domain.ReserveSnapshot{}, errors.FEED_UNAVAILABLE.Wrap(
			fmt.Errorf("failed to read reserve from %s: %w", feed.Name(), err),
		).WithMetadata(errors.FeedUnavailableMetadata{Source: feed.Name()})
	}
	if snapshot.IntegrityStatus == domain.IntegrityStatusUnavailable ||
		snapshot.LockedReserveUnits == nil {
		return domain.ReserveSnapshot{}, errors.FEED_UNAVAILABLE.New(
			"reserve feed %s unavailable: %s", feed.Name(), snapshot.Warning,
		).WithMetadata(errors.FeedUnavailableMetadata{Source: feed.Name()})
	}
	return snapshot, nil
}
