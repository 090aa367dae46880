package domain

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

type IntegrityStatus string

const (
	IntegrityStatusComplete    IntegrityStatus = "complete"
	IntegrityStatusPartial     IntegrityStatus = "partial"
	IntegrityStatusUnavailable IntegrityStatus = "unavailable"
)

func (s IntegrityStatus) IsValid() bool {
	switch s {
	case IntegrityStatusComplete, IntegrityStatusPartial, IntegrityStatusUnavailable:
		return true
	default:
		return false
	}
}

// ReserveSnapshot is produced by a reserve feed on demand and never mutated afterwards.
type ReserveSnapshot struct {
	LockedReserveUnits *big.Int
	SourceCount        int
	PendingCount       int
	AsOf               int64
	IntegrityStatus    IntegrityStatus
	Source             string
	Warning            string
}

func NewReserveSnapshot(
	source string, locked *big.Int, sourceCount, pendingCount int,
) ReserveSnapshot {
	status := IntegrityStatusComplete
	if pendingCount > 0 {
		status = IntegrityStatusPartial
	}
	return ReserveSnapshot{
		LockedReserveUnits: new(big.Int).Set(locked),
		SourceCount:        sourceCount,
		PendingCount:       pendingCount,
		AsOf:               time.Now().Unix(),
		IntegrityStatus:    status,
		Source:             source,
	}
}

func UnavailableSnapshot(source, reason string) ReserveSnapshot {
	return ReserveSnapshot{
		LockedReserveUnits: big.NewInt(0),
		AsOf:               time.Now().Unix(),
		IntegrityStatus:    IntegrityStatusUnavailable,
		Source:             source,
		Warning:            reason,
	}
}

// WithWarning returns a copy of the snapshot carrying the given warning.
func (s ReserveSnapshot) WithWarning(warning string) ReserveSnapshot {
	s.LockedReserveUnits = new(big.Int).Set(s.LockedReserveUnits)
	s.Warning = warning
	return s
}

type Outpoint struct {
	Txid string
	VOut uint32
}

func (k *Outpoint) FromString(s string) error {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return fmt.Errorf("invalid outpoint string: %s", s)
	}
	k.Txid = parts[0]
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid vout string: %s", parts[1])
	}
	k.VOut = uint32(vout)
	return nil
}

func (k Outpoint) String() string {
	return fmt.Sprintf("%s:%d", k.Txid, k.VOut)
}

// Utxo is a reserve output observed on one of the watched addresses.
type Utxo struct {
	Outpoint
	Address   string
	Amount    uint64
	Confirmed bool
	BlockTime int64
	UpdatedAt int64
}

// SumUtxos returns the confirmed total and the number of pending (unconfirmed) outputs.
func SumUtxos(utxos []Utxo) (*big.Int, int) {
	total := big.NewInt(0)
	pending := 0
	for _, u := range utxos {
		if !u.Confirmed {
			pending++
			continue
		}
		total.Add(total, new(big.Int).SetUint64(u.Amount))
	}
	return total, pending
}
