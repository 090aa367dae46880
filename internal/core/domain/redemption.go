package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

type RedemptionState string

const (
	RedemptionStateQuoted    RedemptionState = "quoted"
	RedemptionStateLocked    RedemptionState = "locked"
	RedemptionStateClaimed   RedemptionState = "claimed"
	RedemptionStateExpired   RedemptionState = "expired"
	RedemptionStateRefunded  RedemptionState = "refunded"
	RedemptionStateCancelled RedemptionState = "cancelled"
)

// Intents only move forward through this graph.
var redemptionTransitions = map[RedemptionState][]RedemptionState{
	RedemptionStateQuoted:  {RedemptionStateLocked, RedemptionStateCancelled},
	RedemptionStateLocked:  {RedemptionStateClaimed, RedemptionStateExpired},
	RedemptionStateExpired: {RedemptionStateRefunded},
}

func (s RedemptionState) CanTransitionTo(next RedemptionState) bool {
	for _, allowed := range redemptionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s RedemptionState) IsValid() bool {
	switch s {
	case RedemptionStateQuoted, RedemptionStateLocked, RedemptionStateClaimed,
		RedemptionStateExpired, RedemptionStateRefunded, RedemptionStateCancelled:
		return true
	default:
		return false
	}
}

// IsFinal reports whether the intent can no longer be claimed nor burn tokens.
func (s RedemptionState) IsFinal() bool {
	switch s {
	case RedemptionStateClaimed, RedemptionStateExpired,
		RedemptionStateRefunded, RedemptionStateCancelled:
		return true
	default:
		return false
	}
}

// LockRef identifies an external time-locked contract opened for an intent.
type LockRef struct {
	Id          string
	Address     string
	Script      string
	PaymentHash string
	Amount      uint64
	ExpiresAt   int64
}

func (l LockRef) IsEmpty() bool {
	return l.Id == ""
}

type RedeemIntent struct {
	Id                   string
	Requester            string
	TokenAmount          *big.Int
	QuotedReserveUnits   *big.Int
	ExternalClaimAddress string
	PaymentHash          string
	State                RedemptionState
	LockRef              LockRef
	BurnEntryId          string
	FailureReason        string
	CreatedAt            int64
	ExpiresAt            int64
	UpdatedAt            int64
}

// NewRedeemIntent quotes the reserve amount at the fixed peg ratio. The quote never changes
// for the lifetime of the intent.
func NewRedeemIntent(
	requester string, tokenAmount *big.Int, claimAddress, paymentHash string,
	timeout time.Duration,
) RedeemIntent {
	now := time.Now()
	return RedeemIntent{
		Id:                   uuid.New().String(),
		Requester:            requester,
		TokenAmount:          new(big.Int).Set(tokenAmount),
		QuotedReserveUnits:   TokensToReserveUnits(tokenAmount),
		ExternalClaimAddress: claimAddress,
		PaymentHash:          paymentHash,
		State:                RedemptionStateQuoted,
		CreatedAt:            now.Unix(),
		ExpiresAt:            now.Add(timeout).Unix(),
		UpdatedAt:            now.Unix(),
	}
}

func (r RedeemIntent) IsExpired(now time.Time) bool {
	return !now.Before(time.Unix(r.ExpiresAt, 0))
}

func (r RedeemIntent) BurnRef() string {
	return fmt.Sprintf("redemption:%s", r.Id)
}

func (r *RedeemIntent) Lock(ref LockRef) error {
	if err := r.transition(RedemptionStateLocked); err != nil {
		return err
	}
	r.LockRef = ref
	return nil
}

func (r *RedeemIntent) Claim(burnEntryId string) error {
	if err := r.transition(RedemptionStateClaimed); err != nil {
		return err
	}
	r.BurnEntryId = burnEntryId
	return nil
}

func (r *RedeemIntent) Expire(reason string) error {
	if err := r.transition(RedemptionStateExpired); err != nil {
		return err
	}
	r.FailureReason = reason
	return nil
}

func (r *RedeemIntent) Refund() error {
	return r.transition(RedemptionStateRefunded)
}

func (r *RedeemIntent) Cancel(reason string) error {
	if err := r.transition(RedemptionStateCancelled); err != nil {
		return err
	}
	r.FailureReason = reason
	return nil
}

func (r *RedeemIntent) transition(next RedemptionState) error {
	if !r.State.CanTransitionTo(next) {
		return &InvalidTransitionError{IntentId: r.Id, From: r.State, To: next}
	}
	r.State = next
	r.UpdatedAt = time.Now().Unix()
	return nil
}

type InvalidTransitionError struct {
	IntentId string
	From     RedemptionState
	To       RedemptionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("intent %s cannot move from %s to %s", e.IntentId, e.From, e.To)
}
