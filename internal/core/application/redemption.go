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
	pegerrors "github.com/arkade-os/pegd/pkg/errors"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
)

const (
	settlementTimeout   = 30 * time.Second
	quoteExpiredReason  = "quote expired"
	lockExpiredReason   = "lock not claimed before expiry"
	confirmationKeyPfx  = "confirmation"
	defaultPollInterval = 10 * time.Second
)

type RedemptionConfig struct {
	Network      *chaincfg.Params
	Timeout      time.Duration
	PollInterval time.Duration
	// MinAmount and MaxAmount bound a single redemption, in tokens. Nil or zero disables
	// the bound.
	MinAmount *big.Int
	MaxAmount *big.Int
}

// redemptionEngine drives redeem intents through the HTLC state machine.
// Every state transition happens under mu, external observations happen outside of it.
type redemptionEngine struct {
	ledger     *supplyLedger
	repo       domain.RedemptionRepository
	settlement ports.SettlementService
	scheduler  ports.SchedulerService
	callbacks  ports.CallbackStore
	events     domain.EventRepository
	alerts     ports.Alerts
	metrics    *telemetry.Metrics
	cfg        RedemptionConfig

	mu             sync.Mutex
	watches        map[string]context.CancelFunc
	pendingRefunds map[string]struct{}
	// reserved holds the token amount of every quoted, locked or expired intent, none of
	// which is burned yet.
	reserved map[string]*big.Int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newRedemptionEngine(
	ledger *supplyLedger, repo domain.RedemptionRepository,
	settlement ports.SettlementService, scheduler ports.SchedulerService,
	callbacks ports.CallbackStore, events domain.EventRepository, alerts ports.Alerts,
	metrics *telemetry.Metrics, cfg RedemptionConfig,
) *redemptionEngine {
	if cfg.Network == nil {
		cfg.Network = &chaincfg.MainNetParams
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &redemptionEngine{
		ledger:         ledger,
		repo:           repo,
		settlement:     settlement,
		scheduler:      scheduler,
		callbacks:      callbacks,
		events:         events,
		alerts:         alerts,
		metrics:        metrics,
		cfg:            cfg,
		watches:        make(map[string]context.CancelFunc),
		pendingRefunds: make(map[string]struct{}),
		reserved:       make(map[string]*big.Int),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// restore resumes the watches of the intents that are not settled yet and schedules the
// expiry of the pending quotes.
func (e *redemptionEngine) restore(ctx context.Context) error {
	intents, err := e.repo.GetIntentsByState(
		ctx, domain.RedemptionStateQuoted, domain.RedemptionStateLocked,
		domain.RedemptionStateExpired,
	)
	if err != nil {
		return fmt.Errorf("failed to fetch pending intents: %w", err)
	}
	if len(intents) <= 0 {
		return nil
	}

	log.Infof("redemption: restoring %d pending intents", len(intents))

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, intent := range intents {
		e.reserve(intent)
		switch intent.State {
		case domain.RedemptionStateQuoted:
			e.scheduleExpiry(intent)
		case domain.RedemptionStateLocked:
			e.scheduleExpiry(intent)
			e.startWatch(intent.Id)
		case domain.RedemptionStateExpired:
			// Refund is idempotent on the settlement side, retry it in case the last
			// attempt was lost.
			e.pendingRefunds[intent.Id] = struct{}{}
			e.startWatch(intent.Id)
		}
	}
	return nil
}

func (e *redemptionEngine) stop() {
	e.cancel()
	e.wg.Wait()
}

func (e *redemptionEngine) requestRedeem(
	ctx context.Context, requester string, tokenAmount *big.Int,
	claimAddress, paymentHash string,
) (*domain.RedeemIntent, error) {
	if err := e.validateAmount(tokenAmount); err != nil {
		return nil, err
	}
	if err := e.validateAddress(claimAddress); err != nil {
		return nil, err
	}
	if err := validatePaymentHash(paymentHash); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Tokens already promised to pending intents cannot be redeemed twice.
	supply := e.ledger.currentSupply()
	reserved := e.reservedTokens()
	if available := new(big.Int).Sub(supply, reserved); tokenAmount.Cmp(available) > 0 {
		return nil, pegerrors.INSUFFICIENT_SUPPLY.New(
			"cannot redeem %s tokens, current supply is %s of which %s already under redemption",
			tokenAmount, supply, reserved,
		).WithMetadata(pegerrors.InsufficientSupplyMetadata{
			Requested: tokenAmount.String(),
			Supply:    supply.String(),
			Reserved:  reserved.String(),
		})
	}

	intent := domain.NewRedeemIntent(
		requester, tokenAmount, claimAddress, paymentHash, e.cfg.Timeout,
	)

	if err := e.save(ctx, intent, ""); err != nil {
		return nil, err
	}
	e.scheduleExpiry(intent)

	log.Infof(
		"redemption: quoted intent %s, %s tokens for %s sats to %s",
		intent.Id, intent.TokenAmount, intent.QuotedReserveUnits, intent.ExternalClaimAddress,
	)
	return &intent, nil
}

// lock opens the external time-locked contract for a quoted intent.
func (e *redemptionEngine) lock(ctx context.Context, id string) (*domain.RedeemIntent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, err := e.getIntent(ctx, id)
	if err != nil {
		return nil, err
	}

	if intent.State == domain.RedemptionStateQuoted && intent.IsExpired(time.Now()) {
		if err := e.cancelIntent(ctx, intent, quoteExpiredReason); err != nil {
			return nil, err
		}
		return nil, pegerrors.REDEMPTION_EXPIRED.New("intent %s expired", id).
			WithMetadata(pegerrors.IntentMetadata{IntentId: id})
	}
	if !intent.State.CanTransitionTo(domain.RedemptionStateLocked) {
		return nil, invalidTransition(intent, domain.RedemptionStateLocked)
	}

	opCtx, cancel := context.WithTimeout(ctx, settlementTimeout)
	defer cancel()

	ref, err := e.settlement.OpenLock(opCtx, ports.LockRequest{
		ReserveUnits: new(big.Int).Set(intent.QuotedReserveUnits),
		ClaimAddress: intent.ExternalClaimAddress,
		PaymentHash:  intent.PaymentHash,
		Timeout:      time.Until(time.Unix(intent.ExpiresAt, 0)),
	})
	if err != nil {
		return nil, pegerrors.INTERNAL_ERROR.Wrap(
			fmt.Errorf("failed to open lock for intent %s: %w", id, err),
		)
	}

	if err := intent.Lock(ref); err != nil {
		return nil, invalidTransition(intent, domain.RedemptionStateLocked)
	}
	if err := e.save(ctx, *intent, ""); err != nil {
		return nil, err
	}
	e.startWatch(intent.Id)

	log.Infof("redemption: locked intent %s at %s", intent.Id, ref.Address)
	return intent, nil
}

func (e *redemptionEngine) cancelRedemption(
	ctx context.Context, id string,
) (*domain.RedeemIntent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, err := e.getIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !intent.State.CanTransitionTo(domain.RedemptionStateCancelled) {
		return nil, invalidTransition(intent, domain.RedemptionStateCancelled)
	}
	if err := e.cancelIntent(ctx, intent, "cancelled by requester"); err != nil {
		return nil, err
	}
	return intent, nil
}

// handleConfirmation burns the redeemed tokens once the external claim is confirmed.
// Duplicated or late confirmations are ignored.
func (e *redemptionEngine) handleConfirmation(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, err := e.getIntent(ctx, id)
	if err != nil {
		return err
	}
	if intent.State != domain.RedemptionStateLocked {
		log.Debugf("redemption: ignoring confirmation of intent %s in state %s", id, intent.State)
		return nil
	}

	key := fmt.Sprintf("%s:%s", confirmationKeyPfx, id)
	if e.callbacks != nil {
		first, err := e.callbacks.MarkProcessed(ctx, key)
		if err != nil {
			return pegerrors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to mark callback: %w", err))
		}
		if !first {
			log.Debugf("redemption: confirmation of intent %s already handled", id)
			return nil
		}
	}

	burnEntryId, err := e.burn(ctx, *intent)
	if err != nil {
		if e.callbacks != nil {
			if err := e.callbacks.Forget(ctx, key); err != nil {
				log.WithError(err).Warnf("redemption: failed to release callback %s", key)
			}
		}
		return err
	}

	if err := intent.Claim(burnEntryId); err != nil {
		return invalidTransition(intent, domain.RedemptionStateClaimed)
	}
	if err := e.save(ctx, *intent, ""); err != nil {
		return err
	}
	e.stopWatch(id)

	log.Infof("redemption: intent %s claimed, burned %s tokens", id, intent.TokenAmount)
	return nil
}

// handleExpiry cancels a quote past its expiry, or expires a lock that was not claimed in
// time and triggers the refund path. Nothing is burned.
func (e *redemptionEngine) handleExpiry(ctx context.Context, id string) error {
	intent, err := e.expire(ctx, id)
	if err != nil || intent == nil {
		return err
	}

	e.refund(ctx, *intent)

	e.mu.Lock()
	defer e.mu.Unlock()
	// The watch keeps running to observe the refund.
	e.startWatch(intent.Id)
	return nil
}

// expire applies the expiry of the given intent and returns it if its lock must be
// refunded.
func (e *redemptionEngine) expire(ctx context.Context, id string) (*domain.RedeemIntent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, err := e.getIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !intent.IsExpired(time.Now()) {
		log.Debugf("redemption: intent %s not expired yet", id)
		return nil, nil
	}

	switch intent.State {
	case domain.RedemptionStateQuoted:
		return nil, e.cancelIntent(ctx, intent, quoteExpiredReason)
	case domain.RedemptionStateLocked:
		if err := intent.Expire(lockExpiredReason); err != nil {
			return nil, invalidTransition(intent, domain.RedemptionStateExpired)
		}
		if err := e.save(ctx, *intent, lockExpiredReason); err != nil {
			return nil, err
		}
		e.pendingRefunds[intent.Id] = struct{}{}

		publishAlert(e.alerts, ports.RedemptionExpired, map[string]string{
			"intentId":    intent.Id,
			"tokenAmount": intent.TokenAmount.String(),
			"lockAddress": intent.LockRef.Address,
			"lockedBTC":   formatBTC(intent.LockRef.Amount),
		})
		log.Infof("redemption: intent %s expired, refunding lock", id)
		return intent, nil
	default:
		log.Debugf("redemption: ignoring expiry of intent %s in state %s", id, intent.State)
		return nil, nil
	}
}

// handleRefund marks an expired intent as refunded once the refund is confirmed.
func (e *redemptionEngine) handleRefund(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	intent, err := e.getIntent(ctx, id)
	if err != nil {
		return err
	}
	if intent.State != domain.RedemptionStateExpired {
		log.Debugf("redemption: ignoring refund of intent %s in state %s", id, intent.State)
		return nil
	}

	if err := intent.Refund(); err != nil {
		return invalidTransition(intent, domain.RedemptionStateRefunded)
	}
	if err := e.save(ctx, *intent, ""); err != nil {
		return err
	}
	delete(e.pendingRefunds, id)
	e.stopWatch(id)

	log.Infof("redemption: intent %s refunded", id)
	return nil
}

func (e *redemptionEngine) get(ctx context.Context, id string) (*domain.RedeemIntent, error) {
	return e.getIntent(ctx, id)
}

func (e *redemptionEngine) list(
	ctx context.Context, requester string, states ...domain.RedemptionState,
) ([]domain.RedeemIntent, error) {
	var (
		intents []domain.RedeemIntent
		err     error
	)
	if requester != "" {
		intents, err = e.repo.GetIntentsByRequester(ctx, requester)
	} else {
		intents, err = e.repo.GetIntentsByState(ctx, states...)
	}
	if err != nil {
		return nil, pegerrors.INTERNAL_ERROR.Wrap(err)
	}
	if requester == "" || len(states) == 0 {
		return intents, nil
	}

	filtered := make([]domain.RedeemIntent, 0, len(intents))
	for _, intent := range intents {
		for _, state := range states {
			if intent.State == state {
				filtered = append(filtered, intent)
				break
			}
		}
	}
	return filtered, nil
}

// observe polls the settlement for the given intent and returns true when no further
// observation is needed.
func (e *redemptionEngine) observe(ctx context.Context, id string) bool {
	intent, err := e.repo.GetIntent(ctx, id)
	if err != nil {
		log.WithError(err).Warnf("redemption: failed to fetch intent %s", id)
		return false
	}
	if intent == nil {
		return true
	}

	switch intent.State {
	case domain.RedemptionStateLocked, domain.RedemptionStateExpired:
	default:
		return true
	}

	opCtx, cancel := context.WithTimeout(ctx, settlementTimeout)
	status, err := e.settlement.ObserveConfirmation(opCtx, intent.LockRef)
	cancel()
	if err != nil {
		log.WithError(err).Warnf("redemption: failed to observe lock of intent %s", id)
		return false
	}

	switch status {
	case ports.LockStatusConfirmed:
		if err := e.handleConfirmation(ctx, id); err != nil {
			log.WithError(err).Warnf("redemption: failed to handle confirmation of %s", id)
			return false
		}
		return e.isSettled(ctx, id)
	case ports.LockStatusExpired:
		if err := e.handleExpiry(ctx, id); err != nil {
			log.WithError(err).Warnf("redemption: failed to handle expiry of %s", id)
		}
		e.retryRefund(ctx, id)
		return false
	case ports.LockStatusRefunded:
		if intent.State == domain.RedemptionStateLocked {
			if err := e.handleExpiry(ctx, id); err != nil {
				log.WithError(err).Warnf("redemption: failed to handle expiry of %s", id)
				return false
			}
		}
		if err := e.handleRefund(ctx, id); err != nil {
			log.WithError(err).Warnf("redemption: failed to handle refund of %s", id)
			return false
		}
		return true
	default:
		if intent.State == domain.RedemptionStateLocked && intent.IsExpired(time.Now()) {
			if err := e.handleExpiry(ctx, id); err != nil {
				log.WithError(err).Warnf("redemption: failed to handle expiry of %s", id)
			}
		}
		e.retryRefund(ctx, id)
		return false
	}
}

func (e *redemptionEngine) isSettled(ctx context.Context, id string) bool {
	intent, err := e.repo.GetIntent(ctx, id)
	if err != nil || intent == nil {
		return false
	}
	return intent.State == domain.RedemptionStateClaimed ||
		intent.State == domain.RedemptionStateRefunded ||
		intent.State == domain.RedemptionStateCancelled
}

func (e *redemptionEngine) retryRefund(ctx context.Context, id string) {
	e.mu.Lock()
	_, pending := e.pendingRefunds[id]
	e.mu.Unlock()
	if !pending {
		return
	}

	intent, err := e.repo.GetIntent(ctx, id)
	if err != nil || intent == nil || intent.State != domain.RedemptionStateExpired {
		return
	}
	e.refund(ctx, *intent)
}

// refund asks the settlement to refund the lock of an expired intent. It must be called
// without the lock held, only the outcome is recorded under it.
func (e *redemptionEngine) refund(ctx context.Context, intent domain.RedeemIntent) {
	opCtx, cancel := context.WithTimeout(ctx, settlementTimeout)
	err := e.settlement.Refund(opCtx, intent.LockRef)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		log.WithError(err).Warnf("redemption: failed to refund lock of intent %s", intent.Id)
		e.pendingRefunds[intent.Id] = struct{}{}
		return
	}
	delete(e.pendingRefunds, intent.Id)
}

// must be called with the lock held
func (e *redemptionEngine) burn(ctx context.Context, intent domain.RedeemIntent) (string, error) {
	ref := intent.BurnRef()
	entry, err := e.ledger.recordBurn(ctx, intent.TokenAmount, ref, ref)
	if err == nil {
		return entry.Id, nil
	}
	if !pegerrors.DUPLICATE_ENTRY.Is(err) {
		return "", err
	}

	// The burn was recorded but the intent was not updated, reuse the existing entry.
	existing, lookupErr := e.ledger.repo.GetEntryByRef(ctx, ref)
	if lookupErr != nil || existing == nil {
		return "", err
	}
	return existing.Id, nil
}

// must be called with the lock held
func (e *redemptionEngine) cancelIntent(
	ctx context.Context, intent *domain.RedeemIntent, reason string,
) error {
	if err := intent.Cancel(reason); err != nil {
		return invalidTransition(intent, domain.RedemptionStateCancelled)
	}
	if err := e.save(ctx, *intent, reason); err != nil {
		return err
	}
	log.Infof("redemption: intent %s cancelled (%s)", intent.Id, reason)
	return nil
}

// must be called with the lock held
func (e *redemptionEngine) save(
	ctx context.Context, intent domain.RedeemIntent, reason string,
) error {
	if err := e.repo.AddOrUpdateIntent(ctx, intent); err != nil {
		return pegerrors.INTERNAL_ERROR.Wrap(
			fmt.Errorf("failed to store intent %s: %w", intent.Id, err),
		)
	}

	e.reserve(intent)
	e.metrics.IncRedemption(string(intent.State))
	publishEvents(e.events, domain.RedemptionTopic, domain.RedemptionUpdated{
		Id:        intent.Id,
		Type:      domain.EventTypeRedemptionUpdated,
		State:     intent.State,
		Reason:    reason,
		Timestamp: intent.UpdatedAt,
	})
	return nil
}

// reserve keeps the reservation of the given intent in line with its state. The tokens of
// an intent stay reserved until it is claimed, refunded or cancelled.
// must be called with the lock held
func (e *redemptionEngine) reserve(intent domain.RedeemIntent) {
	switch intent.State {
	case domain.RedemptionStateQuoted, domain.RedemptionStateLocked,
		domain.RedemptionStateExpired:
		e.reserved[intent.Id] = new(big.Int).Set(intent.TokenAmount)
	default:
		delete(e.reserved, intent.Id)
	}
}

// must be called with the lock held
func (e *redemptionEngine) reservedTokens() *big.Int {
	total := big.NewInt(0)
	for _, amount := range e.reserved {
		total.Add(total, amount)
	}
	return total
}

// must be called with the lock held
func (e *redemptionEngine) startWatch(id string) {
	if _, ok := e.watches[id]; ok {
		return
	}

	ctx, cancel := context.WithCancel(e.ctx)
	e.watches[id] = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("redemption: watch of intent %s panicked: %v", id, r)
			}
		}()

		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.observe(ctx, id) {
					e.mu.Lock()
					e.stopWatch(id)
					e.mu.Unlock()
					return
				}
			}
		}
	}()
}

// must be called with the lock held
func (e *redemptionEngine) stopWatch(id string) {
	if cancel, ok := e.watches[id]; ok {
		cancel()
		delete(e.watches, id)
	}
}

// must be called with the lock held
func (e *redemptionEngine) scheduleExpiry(intent domain.RedeemIntent) {
	if e.scheduler == nil {
		return
	}

	id := intent.Id
	task := func() {
		if e.ctx.Err() != nil {
			return
		}
		// A task that fires ahead of the expiry is scheduled again.
		if e.scheduler.AfterNow(intent.ExpiresAt) {
			e.mu.Lock()
			e.scheduleExpiry(intent)
			e.mu.Unlock()
			return
		}
		if err := e.handleExpiry(e.ctx, id); err != nil {
			log.WithError(err).Warnf("redemption: failed to expire intent %s", id)
		}
	}

	if !e.scheduler.AfterNow(intent.ExpiresAt) {
		go task()
		return
	}
	if err := e.scheduler.ScheduleTaskOnce(intent.ExpiresAt, task); err != nil {
		log.WithError(err).Warnf("redemption: failed to schedule expiry of intent %s", id)
	}
}

func (e *redemptionEngine) getIntent(ctx context.Context, id string) (*domain.RedeemIntent, error) {
	intent, err := e.repo.GetIntent(ctx, id)
	if err != nil {
		return nil, pegerrors.INTERNAL_ERROR.Wrap(err)
	}
	if intent == nil {
		return nil, pegerrors.INTENT_NOT_FOUND.New("intent %s not found", id).
			WithMetadata(pegerrors.IntentMetadata{IntentId: id})
	}
	return intent, nil
}

func (e *redemptionEngine) validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return pegerrors.INVALID_AMOUNT.New("token amount must be greater than zero")
	}
	if min := e.cfg.MinAmount; min != nil && min.Sign() > 0 && amount.Cmp(min) < 0 {
		return pegerrors.AMOUNT_TOO_LOW.New(
			"token amount %s is below the minimum of %s", amount, min,
		).WithMetadata(pegerrors.AmountTooLowMetadata{
			Amount:    amount.String(),
			MinAmount: min.String(),
		})
	}
	if max := e.cfg.MaxAmount; max != nil && max.Sign() > 0 && amount.Cmp(max) > 0 {
		return pegerrors.AMOUNT_TOO_HIGH.New(
			"token amount %s is above the maximum of %s", amount, max,
		).WithMetadata(pegerrors.AmountTooHighMetadata{
			Amount:    amount.String(),
			MaxAmount: max.String(),
		})
	}
	return nil
}

func (e *redemptionEngine) validateAddress(address string) error {
	addr, err := btcutil.DecodeAddress(address, e.cfg.Network)
	if err == nil && !addr.IsForNet(e.cfg.Network) {
		err = fmt.Errorf("address is not for network %s", e.cfg.Network.Name)
	}
	if err != nil {
		return pegerrors.INVALID_ADDRESS.New("invalid claim address %s: %s", address, err).
			WithMetadata(pegerrors.InvalidAddressMetadata{Address: address})
	}
	return nil
}

// validatePaymentHash accepts an empty hash or a hex encoded 32-byte hash.
func validatePaymentHash(paymentHash string) error {
	if paymentHash == "" {
		return nil
	}
	buf, err := hex.DecodeString(paymentHash)
	if err != nil || len(buf) != 32 {
		return pegerrors.INVALID_PAYMENT_HASH.New(
			"payment hash must be a hex encoded 32-byte hash",
		)
	}
	return nil
}

func invalidTransition(intent *domain.RedeemIntent, to domain.RedemptionState) error {
	return pegerrors.INVALID_STATE_TRANSITION.New(
		"intent %s cannot move from %s to %s", intent.Id, intent.State, to,
	).WithMetadata(pegerrors.InvalidTransitionMetadata{
		IntentId: intent.Id,
		From:     string(intent.State),
		To:       string(to),
	})
}
