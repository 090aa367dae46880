package ports

import (
	"context"
	"math/big"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
)

type LockStatus string

const (
	LockStatusPending   LockStatus = "pending"
	LockStatusConfirmed LockStatus = "confirmed"
	LockStatusExpired   LockStatus = "expired"
	LockStatusRefunded  LockStatus = "refunded"
)

type LockRequest struct {
	ReserveUnits *big.Int
	ClaimAddress string
	PaymentHash  string
	Timeout      time.Duration
}

// SettlementService drives the external time-locked contract backing a redemption.
type SettlementService interface {
	OpenLock(ctx context.Context, req LockRequest) (domain.LockRef, error)
	// ObserveConfirmation reports whether the claim of the lock is confirmed externally.
	ObserveConfirmation(ctx context.Context, ref domain.LockRef) (LockStatus, error)
	Refund(ctx context.Context, ref domain.LockRef) error
}
