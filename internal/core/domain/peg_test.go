package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPegRatio(t *testing.T) {
	require.Equal(t, 10_000_000, ReserveUnitsPerToken)
	require.Equal(t, "Peg: 10 tokens = 1 BTC", GetPegInfo().Statement)

	// Callers must not be able to alter the ratio through the returned value.
	ratio := ReserveUnitsPerTokenBig()
	ratio.SetInt64(1)
	require.Equal(t, int64(ReserveUnitsPerToken), ReserveUnitsPerTokenBig().Int64())
}

func TestReserveUnitsToTokensFloors(t *testing.T) {
	tests := []struct {
		units    int64
		expected int64
	}{
		{0, 0},
		{9_999_999, 0},
		{10_000_000, 1},
		{25_000_001, 2},
		{29_999_999, 2},
		{30_000_000, 3},
	}

	for _, tt := range tests {
		units := big.NewInt(tt.units)
		tokens := ReserveUnitsToTokens(units)
		require.Equal(t, tt.expected, tokens.Int64(), "units %d", tt.units)

		// round trip never exceeds the input
		require.LessOrEqual(t, TokensToReserveUnits(tokens).Cmp(units), 0)
	}
}

func TestTokensToReserveUnitsLargeAmounts(t *testing.T) {
	// 2^80 tokens would overflow 64-bit arithmetic.
	tokens := new(big.Int).Lsh(big.NewInt(1), 80)
	units := TokensToReserveUnits(tokens)

	expected := new(big.Int).Mul(tokens, big.NewInt(ReserveUnitsPerToken))
	require.Zero(t, expected.Cmp(units))
	require.Zero(t, tokens.Cmp(ReserveUnitsToTokens(units)))
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("25000001")
	require.NoError(t, err)
	require.Equal(t, int64(25_000_001), amount.Int64())

	for _, invalid := range []string{"", "-1", "1.5", "abc"} {
		_, err := ParseAmount(invalid)
		require.Error(t, err, invalid)
	}
}

func TestCollateralizationFact(t *testing.T) {
	t.Run("fully reserved", func(t *testing.T) {
		fact := NewCollateralizationFact(big.NewInt(100_000_000), big.NewInt(5))
		require.True(t, fact.IsFullyReserved)
		require.Equal(t, "50000000", fact.Required.String())
		require.Equal(t, "0", fact.Shortfall().String())
		require.Equal(t, "200.00", fact.DisplayPercentage())
	})

	t.Run("under reserved", func(t *testing.T) {
		fact := NewCollateralizationFact(big.NewInt(100_000_000), big.NewInt(11))
		require.False(t, fact.IsFullyReserved)
		require.Equal(t, "110000000", fact.Required.String())
		require.Equal(t, "10000000", fact.Shortfall().String())
		require.Equal(t, "90.91", fact.DisplayPercentage())
	})

	t.Run("no supply", func(t *testing.T) {
		fact := NewCollateralizationFact(big.NewInt(0), big.NewInt(0))
		require.True(t, fact.IsFullyReserved)
		require.Equal(t, "n/a", fact.DisplayPercentage())
	})
}

func TestSupplyTotals(t *testing.T) {
	entries := []SupplyEntry{
		NewSupplyEntry(SupplyEntryKindMint, big.NewInt(5), "genesis", ""),
		NewSupplyEntry(SupplyEntryKindMint, big.NewInt(3), "deposit", ""),
		NewSupplyEntry(SupplyEntryKindBurn, big.NewInt(2), "redemption:1", "redemption:1"),
	}

	totals := ComputeSupplyTotals(entries)
	require.Equal(t, "6", totals.Supply.String())
	require.Equal(t, "8", totals.Minted.String())
	require.Equal(t, "2", totals.Burned.String())
}

func TestSumUtxos(t *testing.T) {
	utxos := []Utxo{
		{Outpoint: Outpoint{Txid: "a", VOut: 0}, Amount: 50_000_000, Confirmed: true},
		{Outpoint: Outpoint{Txid: "a", VOut: 1}, Amount: 20_000_000, Confirmed: false},
		{Outpoint: Outpoint{Txid: "b", VOut: 0}, Amount: 30_000_000, Confirmed: true},
	}

	total, pending := SumUtxos(utxos)
	require.Equal(t, "80000000", total.String())
	require.Equal(t, 1, pending)
}
