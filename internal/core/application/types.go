package application

import (
	"context"
	"math/big"

	"github.com/arkade-os/pegd/internal/core/domain"
)

type Service interface {
	Start() error
	Stop()

	GetPegInfo() domain.PegInfo
	Mint(ctx context.Context, amount *big.Int, reason, ref string) (*domain.SupplyEntry, error)
	GetSupply(ctx context.Context) (*SupplyInfo, error)
	GetSupplyHistory(
		ctx context.Context, kinds ...domain.SupplyEntryKind,
	) ([]domain.SupplyEntry, error)

	GetReserve(ctx context.Context) (*ReserveInfo, error)
	GetCollateralization(ctx context.Context) (*CollateralizationInfo, error)

	ProduceAttestation(ctx context.Context) (*domain.Attestation, error)
	GetLatestAttestation(ctx context.Context) (*domain.Attestation, error)
	GetAttestation(ctx context.Context, id string) (*domain.Attestation, error)
	ListAttestations(ctx context.Context, after, before int64) ([]domain.Attestation, error)
	GetSignerPubkey(ctx context.Context) (string, error)

	RequestRedeem(
		ctx context.Context, requester string, tokenAmount *big.Int,
		claimAddress, paymentHash string,
	) (*domain.RedeemIntent, error)
	LockRedemption(ctx context.Context, id string) (*domain.RedeemIntent, error)
	CancelRedemption(ctx context.Context, id string) (*domain.RedeemIntent, error)
	// SyncRedemption observes the lock of the given intent right away and applies the
	// result, instead of waiting for the next poll.
	SyncRedemption(ctx context.Context, id string) (*domain.RedeemIntent, error)
	GetRedemption(ctx context.Context, id string) (*domain.RedeemIntent, error)
	ListRedemptions(
		ctx context.Context, requester string, states ...domain.RedemptionState,
	) ([]domain.RedeemIntent, error)
}

type SupplyInfo struct {
	Supply string
	Minted string
	Burned string
	Peg    domain.PegInfo
}

type ReserveInfo struct {
	Snapshot domain.ReserveSnapshot
	// LastWarning is the warning of the last reading of a degradable feed.
	LastWarning string
	Cached      bool
}

type CollateralizationInfo struct {
	Snapshot             domain.ReserveSnapshot
	Fact                 domain.CollateralizationFact
	CollateralizationPct string
}
