package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/arkade-os/pegd/internal/telemetry"
	"github.com/arkade-os/pegd/pkg/errors"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	log "github.com/sirupsen/logrus"
)

const (
	defaultFeedTimeout         = 10 * time.Second
	defaultAttestationInterval = 30 * time.Minute
)

type Config struct {
	// FeedTimeout bounds every reserve feed query.
	FeedTimeout time.Duration
	// AttestationInterval is the period of the attestation job, zero disables it.
	AttestationInterval time.Duration
	Redemption          RedemptionConfig
}

type service struct {
	// services
	repoManager ports.RepoManager
	feed        ports.ReserveFeed
	signer      ports.SignerService
	scheduler   ports.SchedulerService
	blocks      ports.BlockNotifier
	cache       ports.LiveStore
	alerts      ports.Alerts
	metrics     *telemetry.Metrics

	ledger       *supplyLedger
	guard        *mintGuard
	attestations *attestationService
	redemptions  *redemptionEngine

	// config
	cfg Config

	// stop and background go routine handlers
	stop func()
	ctx  context.Context
	wg   *sync.WaitGroup
}

func NewService(
	repoManager ports.RepoManager,
	feed ports.ReserveFeed,
	settlement ports.SettlementService,
	signer ports.SignerService,
	scheduler ports.SchedulerService,
	blocks ports.BlockNotifier,
	cache ports.LiveStore,
	alerts ports.Alerts,
	metrics *telemetry.Metrics,
	cfg Config,
) (Service, error) {
	ctx := context.Background()

	if cfg.FeedTimeout <= 0 {
		cfg.FeedTimeout = defaultFeedTimeout
	}

	if _, err := signer.GetPubkey(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch signer pubkey: %s", err)
	}

	ledger, err := newSupplyLedger(ctx, repoManager.Supply(), repoManager.Events(), metrics)
	if err != nil {
		return nil, err
	}

	var callbacks ports.CallbackStore
	if cache != nil {
		callbacks = cache.Callbacks()
	}

	ctx, cancel := context.WithCancel(ctx)

	svc := &service{
		repoManager: repoManager,
		feed:        feed,
		signer:      signer,
		scheduler:   scheduler,
		blocks:      blocks,
		cache:       cache,
		alerts:      alerts,
		metrics:     metrics,
		ledger:      ledger,
		guard: newMintGuard(
			feed, ledger, repoManager.Events(), alerts, metrics, cfg.FeedTimeout,
		),
		attestations: newAttestationService(
			feed, ledger, signer, repoManager.Attestations(), repoManager.Events(),
			alerts, metrics, cfg.FeedTimeout,
		),
		redemptions: newRedemptionEngine(
			ledger, repoManager.Redemptions(), settlement, scheduler, callbacks,
			repoManager.Events(), alerts, metrics, cfg.Redemption,
		),
		cfg:  cfg,
		stop: cancel,
		ctx:  ctx,
		wg:   &sync.WaitGroup{},
	}

	repoManager.Events().RegisterEventsHandler(domain.SupplyTopic, func(events []domain.Event) {
		for _, event := range events {
			if e, ok := event.(domain.PegEnforced); ok {
				log.Debugf(
					"peg enforced: denied %s tokens, shortfall %s sats", e.TokenAmount, e.Shortfall,
				)
			}
		}
	})

	return svc, nil
}

func (s *service) Start() error {
	log.Debug("starting scheduler...")
	if s.scheduler != nil {
		s.scheduler.Start()
	}

	log.Debug("restoring redemptions...")
	if err := s.redemptions.restore(s.ctx); err != nil {
		return err
	}

	if s.blocks != nil {
		if feed, ok := s.feed.(ports.SyncableFeed); ok {
			s.blocks.OnNewBlock(func(height int64) {
				s.syncFeed(feed, height)
			})
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.syncFeed(feed, 0)
			}()
		}
		s.blocks.Start()
	}

	if s.scheduler != nil && s.cfg.AttestationInterval > 0 {
		if err := s.scheduler.ScheduleRecurringTask(
			s.cfg.AttestationInterval, s.produceAttestation,
		); err != nil {
			return fmt.Errorf("failed to schedule attestations: %w", err)
		}
	}

	log.Debug("started app service")
	return nil
}

func (s *service) Stop() {
	s.stop()
	if s.blocks != nil {
		s.blocks.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.redemptions.stop()
	s.wg.Wait()

	s.repoManager.Close()
	log.Debug("closed connection to db")
}

func (s *service) GetPegInfo() domain.PegInfo {
	return domain.GetPegInfo()
}

func (s *service) Mint(
	ctx context.Context, amount *big.Int, reason, ref string,
) (*domain.SupplyEntry, error) {
	return s.guard.mint(ctx, amount, reason, ref)
}

func (s *service) GetSupply(_ context.Context) (*SupplyInfo, error) {
	totals := s.ledger.getTotals()
	return &SupplyInfo{
		Supply: totals.Supply.String(),
		Minted: totals.Minted.String(),
		Burned: totals.Burned.String(),
		Peg:    domain.GetPegInfo(),
	}, nil
}

func (s *service) GetSupplyHistory(
	ctx context.Context, kinds ...domain.SupplyEntryKind,
) ([]domain.SupplyEntry, error) {
	entries, err := s.ledger.history(ctx, kinds...)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	return entries, nil
}

// GetReserve reads the feed for display. When the feed fails, the last cached reading is
// returned with a warning. Mints never use cached readings.
func (s *service) GetReserve(ctx context.Context) (*ReserveInfo, error) {
	snapshot, err := readReserve(ctx, s.feed, s.cfg.FeedTimeout)
	if err != nil {
		cached := s.cachedSnapshot(ctx)
		if cached == nil {
			return nil, err
		}
		log.WithError(err).Warn("reserve feed failed, serving cached reading")
		return &ReserveInfo{
			Snapshot: cached.WithWarning(fmt.Sprintf("cached reading: %s", err)),
			Cached:   true,
		}, nil
	}

	s.metrics.SetLockedReserve(snapshot.LockedReserveUnits)
	if s.cache != nil {
		if err := s.cache.Snapshots().Set(ctx, snapshot); err != nil {
			log.WithError(err).Warn("failed to cache reserve snapshot")
		}
	}

	info := &ReserveInfo{Snapshot: snapshot}
	if feed, ok := s.feed.(ports.DegradableFeed); ok {
		info.LastWarning = feed.GetLastWarning()
	}
	return info, nil
}

func (s *service) GetCollateralization(ctx context.Context) (*CollateralizationInfo, error) {
	snapshot, fact, err := s.attestations.buildSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &CollateralizationInfo{
		Snapshot:             snapshot,
		Fact:                 fact,
		CollateralizationPct: fact.DisplayPercentage(),
	}, nil
}

func (s *service) ProduceAttestation(ctx context.Context) (*domain.Attestation, error) {
	return s.attestations.produce(ctx)
}

func (s *service) GetLatestAttestation(ctx context.Context) (*domain.Attestation, error) {
	return s.attestations.latest(ctx)
}

func (s *service) GetAttestation(ctx context.Context, id string) (*domain.Attestation, error) {
	return s.attestations.get(ctx, id)
}

func (s *service) ListAttestations(
	ctx context.Context, after, before int64,
) ([]domain.Attestation, error) {
	if err := validateTimeRange(after, before); err != nil {
		return nil, errors.INVALID_ARGUMENT.New("%s", err.Error())
	}
	list, err := s.repoManager.Attestations().GetAll(ctx, after, before)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	return list, nil
}

func (s *service) GetSignerPubkey(ctx context.Context) (string, error) {
	pubkey, err := s.signer.GetPubkey(ctx)
	if err != nil {
		return "", errors.INTERNAL_ERROR.Wrap(err)
	}
	return hex.EncodeToString(schnorr.SerializePubKey(pubkey)), nil
}

func (s *service) RequestRedeem(
	ctx context.Context, requester string, tokenAmount *big.Int,
	claimAddress, paymentHash string,
) (*domain.RedeemIntent, error) {
	return s.redemptions.requestRedeem(ctx, requester, tokenAmount, claimAddress, paymentHash)
}

func (s *service) LockRedemption(ctx context.Context, id string) (*domain.RedeemIntent, error) {
	return s.redemptions.lock(ctx, id)
}

func (s *service) CancelRedemption(ctx context.Context, id string) (*domain.RedeemIntent, error) {
	return s.redemptions.cancelRedemption(ctx, id)
}

func (s *service) SyncRedemption(ctx context.Context, id string) (*domain.RedeemIntent, error) {
	if _, err := s.redemptions.get(ctx, id); err != nil {
		return nil, err
	}
	s.redemptions.observe(ctx, id)
	return s.redemptions.get(ctx, id)
}

func (s *service) GetRedemption(ctx context.Context, id string) (*domain.RedeemIntent, error) {
	return s.redemptions.get(ctx, id)
}

func (s *service) ListRedemptions(
	ctx context.Context, requester string, states ...domain.RedemptionState,
) ([]domain.RedeemIntent, error) {
	return s.redemptions.list(ctx, requester, states...)
}

func (s *service) produceAttestation() {
	if _, err := s.attestations.produce(s.ctx); err != nil {
		log.WithError(err).Warn("failed to produce scheduled attestation")
	}
}

func (s *service) syncFeed(feed ports.SyncableFeed, height int64) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.FeedTimeout)
	defer cancel()

	if err := feed.Sync(ctx); err != nil {
		log.WithError(err).Warnf("failed to sync reserve feed at height %d", height)
		return
	}
	log.Debugf("synced reserve feed %s at height %d", feed.Name(), height)
}

func (s *service) cachedSnapshot(ctx context.Context) *domain.ReserveSnapshot {
	if s.cache == nil {
		return nil
	}
	snapshot, err := s.cache.Snapshots().Get(ctx, s.feed.Name())
	if err != nil {
		log.WithError(err).Warn("failed to read cached reserve snapshot")
		return nil
	}
	return snapshot
}
