package handlers

import (
	"context"

	"github.com/arkade-os/pegd/internal/core/application"
	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/gorilla/mux"
)

// Handler registers its routes on a router.
type Handler interface {
	RegisterRoutes(r *mux.Router)
}

type intentFunc func(ctx context.Context, id string) (*domain.RedeemIntent, error)

// Amounts are base-10 strings on the wire.

type mintRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
	Ref    string `json:"ref"`
}

type redeemRequest struct {
	Requester    string `json:"requester"`
	Amount       string `json:"amount"`
	ClaimAddress string `json:"claimAddress"`
	PaymentHash  string `json:"paymentHash"`
}

type supplyEntry struct {
	Id        string `json:"id"`
	Seq       uint64 `json:"seq"`
	Kind      string `json:"kind"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
	Ref       string `json:"ref,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

type supplyInfo struct {
	Supply string         `json:"supply"`
	Minted string         `json:"minted"`
	Burned string         `json:"burned"`
	Peg    domain.PegInfo `json:"peg"`
}

type reserveSnapshot struct {
	LockedReserveUnits string `json:"lockedReserveUnits"`
	SourceCount        int    `json:"sourceCount"`
	PendingCount       int    `json:"pendingCount"`
	AsOf               int64  `json:"asOf"`
	IntegrityStatus    string `json:"integrityStatus"`
	Source             string `json:"source"`
	Warning            string `json:"warning,omitempty"`
}

type reserveInfo struct {
	Snapshot    reserveSnapshot `json:"snapshot"`
	LastWarning string          `json:"lastWarning,omitempty"`
	Cached      bool            `json:"cached"`
}

type collateralizationInfo struct {
	Snapshot             reserveSnapshot `json:"snapshot"`
	Locked               string          `json:"locked"`
	Outstanding          string          `json:"outstanding"`
	Required             string          `json:"required"`
	ReserveUnitsPerToken string          `json:"reserveUnitsPerToken"`
	IsFullyReserved      bool            `json:"isFullyReserved"`
	CollateralizationPct string          `json:"collateralizationPct"`
}

type lockRef struct {
	Id          string `json:"id"`
	Address     string `json:"address"`
	Script      string `json:"script,omitempty"`
	PaymentHash string `json:"paymentHash,omitempty"`
	Amount      uint64 `json:"amount"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type redeemIntent struct {
	Id                 string   `json:"id"`
	Requester          string   `json:"requester"`
	TokenAmount        string   `json:"tokenAmount"`
	QuotedReserveUnits string   `json:"quotedReserveUnits"`
	ClaimAddress       string   `json:"claimAddress"`
	PaymentHash        string   `json:"paymentHash,omitempty"`
	State              string   `json:"state"`
	Lock               *lockRef `json:"lock,omitempty"`
	BurnEntryId        string   `json:"burnEntryId,omitempty"`
	FailureReason      string   `json:"failureReason,omitempty"`
	CreatedAt          int64    `json:"createdAt"`
	ExpiresAt          int64    `json:"expiresAt"`
	UpdatedAt          int64    `json:"updatedAt"`
}

type signerInfo struct {
	Pubkey string `json:"pubkey"`
}

func toSupplyEntry(e domain.SupplyEntry) supplyEntry {
	return supplyEntry{
		Id:        e.Id,
		Seq:       e.Seq,
		Kind:      e.Kind.String(),
		Amount:    e.Amount.String(),
		Reason:    e.Reason,
		Ref:       e.Ref,
		CreatedAt: e.CreatedAt,
	}
}

func toSupplyInfo(info *application.SupplyInfo) supplyInfo {
	return supplyInfo{
		Supply: info.Supply,
		Minted: info.Minted,
		Burned: info.Burned,
		Peg:    info.Peg,
	}
}

func toReserveSnapshot(s domain.ReserveSnapshot) reserveSnapshot {
	locked := "0"
	if s.LockedReserveUnits != nil {
		locked = s.LockedReserveUnits.String()
	}
	return reserveSnapshot{
		LockedReserveUnits: locked,
		SourceCount:        s.SourceCount,
		PendingCount:       s.PendingCount,
		AsOf:               s.AsOf,
		IntegrityStatus:    string(s.IntegrityStatus),
		Source:             s.Source,
		Warning:            s.Warning,
	}
}

func toCollateralizationInfo(info *application.CollateralizationInfo) collateralizationInfo {
	return collateralizationInfo{
		Snapshot:             toReserveSnapshot(info.Snapshot),
		Locked:               info.Fact.Locked.String(),
		Outstanding:          info.Fact.Outstanding.String(),
		Required:             info.Fact.Required.String(),
		ReserveUnitsPerToken: info.Fact.Ratio.String(),
		IsFullyReserved:      info.Fact.IsFullyReserved,
		CollateralizationPct: info.CollateralizationPct,
	}
}

func toRedeemIntent(i domain.RedeemIntent) redeemIntent {
	intent := redeemIntent{
		Id:                 i.Id,
		Requester:          i.Requester,
		TokenAmount:        i.TokenAmount.String(),
		QuotedReserveUnits: i.QuotedReserveUnits.String(),
		ClaimAddress:       i.ExternalClaimAddress,
		PaymentHash:        i.PaymentHash,
		State:              string(i.State),
		BurnEntryId:        i.BurnEntryId,
		FailureReason:      i.FailureReason,
		CreatedAt:          i.CreatedAt,
		ExpiresAt:          i.ExpiresAt,
		UpdatedAt:          i.UpdatedAt,
	}
	if !i.LockRef.IsEmpty() {
		intent.Lock = &lockRef{
			Id:          i.LockRef.Id,
			Address:     i.LockRef.Address,
			Script:      i.LockRef.Script,
			PaymentHash: i.LockRef.PaymentHash,
			Amount:      i.LockRef.Amount,
			ExpiresAt:   i.LockRef.ExpiresAt,
		}
	}
	return intent
}
