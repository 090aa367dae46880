package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// The peg ratio is fixed for the lifetime of the process. Changing it requires a governed
// migration of the ledger, never a runtime operation.
const (
	// ReserveUnitsPerBaseAsset is the number of sats in one BTC.
	ReserveUnitsPerBaseAsset = 100_000_000
	// TokensPerBaseAsset is the number of tokens backed by one BTC.
	TokensPerBaseAsset = 10
	// ReserveUnitsPerToken is the number of sats required to back one token.
	ReserveUnitsPerToken = ReserveUnitsPerBaseAsset / TokensPerBaseAsset
)

var reserveUnitsPerToken = big.NewInt(ReserveUnitsPerToken)

// ReserveUnitsPerTokenBig returns a fresh copy of the peg ratio.
func ReserveUnitsPerTokenBig() *big.Int {
	return new(big.Int).Set(reserveUnitsPerToken)
}

// TokensToReserveUnits returns the sats required to back the given amount of tokens.
func TokensToReserveUnits(tokens *big.Int) *big.Int {
	return new(big.Int).Mul(tokens, reserveUnitsPerToken)
}

// ReserveUnitsToTokens returns the number of tokens fully backed by the given sats,
// rounding down.
func ReserveUnitsToTokens(units *big.Int) *big.Int {
	return new(big.Int).Quo(units, reserveUnitsPerToken)
}

// ParseAmount parses a base-10, non-negative integer amount.
func ParseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative, got %s", s)
	}
	return amount, nil
}

type PegInfo struct {
	TokensPerBaseAsset       uint64 `json:"tokensPerBaseAsset"`
	ReserveUnitsPerBaseAsset uint64 `json:"reserveUnitsPerBaseAsset"`
	ReserveUnitsPerToken     uint64 `json:"reserveUnitsPerToken"`
	Statement                string `json:"statement"`
}

func GetPegInfo() PegInfo {
	return PegInfo{
		TokensPerBaseAsset:       TokensPerBaseAsset,
		ReserveUnitsPerBaseAsset: ReserveUnitsPerBaseAsset,
		ReserveUnitsPerToken:     ReserveUnitsPerToken,
		Statement:                fmt.Sprintf("Peg: %d tokens = 1 BTC", TokensPerBaseAsset),
	}
}

// CollateralizationFact is derived from a (locked, outstanding) pair and never stored on its own.
type CollateralizationFact struct {
	Locked          *big.Int
	Outstanding     *big.Int
	Required        *big.Int
	Ratio           *big.Int
	IsFullyReserved bool
}

func NewCollateralizationFact(locked, outstanding *big.Int) CollateralizationFact {
	required := TokensToReserveUnits(outstanding)
	return CollateralizationFact{
		Locked:          new(big.Int).Set(locked),
		Outstanding:     new(big.Int).Set(outstanding),
		Required:        required,
		Ratio:           ReserveUnitsPerTokenBig(),
		IsFullyReserved: locked.Cmp(required) >= 0,
	}
}

// Shortfall returns how many sats are missing to fully back the outstanding supply.
func (f CollateralizationFact) Shortfall() *big.Int {
	if f.IsFullyReserved {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(f.Required, f.Locked)
}

// DisplayPercentage renders locked/required as a percentage with 2 decimals.
// Display only: admission decisions compare integers.
func (f CollateralizationFact) DisplayPercentage() string {
	if f.Required.Sign() == 0 {
		return "n/a"
	}
	locked := decimal.NewFromBigInt(f.Locked, 0)
	required := decimal.NewFromBigInt(f.Required, 0)
	return locked.Div(required).Mul(decimal.NewFromInt(100)).StringFixed(2)
}
