package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

type SupplyEntryKind uint8

const (
	SupplyEntryKindUnspecified SupplyEntryKind = iota
	SupplyEntryKindMint
	SupplyEntryKindBurn
)

func (k SupplyEntryKind) String() string {
	switch k {
	case SupplyEntryKindMint:
		return "mint"
	case SupplyEntryKindBurn:
		return "burn"
	default:
		return "unspecified"
	}
}

func SupplyEntryKindFromString(s string) SupplyEntryKind {
	switch s {
	case "mint":
		return SupplyEntryKindMint
	case "burn":
		return SupplyEntryKindBurn
	default:
		return SupplyEntryKindUnspecified
	}
}

// SupplyEntry is an immutable record of the ledger. Entries are never deleted.
type SupplyEntry struct {
	Id     string
	Seq    uint64
	Kind   SupplyEntryKind
	Amount *big.Int
	Reason string
	// Ref is an optional idempotency key, at most one entry exists per non-empty ref.
	Ref       string
	CreatedAt int64
}

func NewSupplyEntry(kind SupplyEntryKind, amount *big.Int, reason, ref string) SupplyEntry {
	return SupplyEntry{
		Id:        uuid.New().String(),
		Kind:      kind,
		Amount:    new(big.Int).Set(amount),
		Reason:    reason,
		Ref:       ref,
		CreatedAt: time.Now().Unix(),
	}
}

type SupplyTotals struct {
	Supply *big.Int
	Minted *big.Int
	Burned *big.Int
}

func NewSupplyTotals() SupplyTotals {
	return SupplyTotals{
		Supply: big.NewInt(0),
		Minted: big.NewInt(0),
		Burned: big.NewInt(0),
	}
}

// Apply returns the totals after the given entry.
func (t SupplyTotals) Apply(entry SupplyEntry) SupplyTotals {
	next := SupplyTotals{
		Supply: new(big.Int).Set(t.Supply),
		Minted: new(big.Int).Set(t.Minted),
		Burned: new(big.Int).Set(t.Burned),
	}
	switch entry.Kind {
	case SupplyEntryKindMint:
		next.Minted.Add(next.Minted, entry.Amount)
		next.Supply.Add(next.Supply, entry.Amount)
	case SupplyEntryKindBurn:
		next.Burned.Add(next.Burned, entry.Amount)
		next.Supply.Sub(next.Supply, entry.Amount)
	}
	return next
}

// ComputeSupplyTotals folds the given entries, in append order, into totals.
func ComputeSupplyTotals(entries []SupplyEntry) SupplyTotals {
	totals := NewSupplyTotals()
	for _, entry := range entries {
		totals = totals.Apply(entry)
	}
	return totals
}
