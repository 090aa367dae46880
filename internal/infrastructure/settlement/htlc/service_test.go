package htlc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

const fundingTxid = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

type mockExplorer struct {
	lock      sync.Mutex
	txs       map[string][]ports.ExplorerTx
	outspends map[string]*ports.Outspend
	broadcast []string
}

func newMockExplorer() *mockExplorer {
	return &mockExplorer{
		txs:       make(map[string][]ports.ExplorerTx),
		outspends: make(map[string]*ports.Outspend),
	}
}

func (m *mockExplorer) fund(address string, amount uint64) {
	m.fundWith(address, amount, true)
}

// fundWith replaces the funding tx of the given address.
func (m *mockExplorer) fundWith(address string, amount uint64, confirmed bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.txs[address] = []ports.ExplorerTx{{
		Txid: fundingTxid,
		Outputs: []ports.TxOutput{
			{Address: "bcrt1qchange", Amount: 1_000},
			{Address: address, Amount: amount},
		},
		Status: ports.TxStatus{Confirmed: confirmed},
	}}
}

func (m *mockExplorer) spend(vout uint32, witness []string, confirmed bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.outspends[fmt.Sprintf("%s:%d", fundingTxid, vout)] = &ports.Outspend{
		Spent:   true,
		Txid:    "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098",
		Witness: witness,
		Status:  ports.TxStatus{Confirmed: confirmed},
	}
}

func (m *mockExplorer) GetTipHeight(context.Context) (int64, error) { return 100, nil }

func (m *mockExplorer) GetUtxos(context.Context, string) ([]ports.ExplorerUtxo, error) {
	return nil, nil
}

func (m *mockExplorer) GetTxs(_ context.Context, address string) ([]ports.ExplorerTx, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.txs[address], nil
}

func (m *mockExplorer) GetOutspend(
	_ context.Context, txid string, vout uint32,
) (*ports.Outspend, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if outspend, ok := m.outspends[fmt.Sprintf("%s:%d", txid, vout)]; ok {
		return outspend, nil
	}
	return &ports.Outspend{}, nil
}

func (m *mockExplorer) Broadcast(_ context.Context, txHex string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.broadcast = append(m.broadcast, txHex)
	return "refund-txid", nil
}

type fixture struct {
	svc      *service
	explorer *mockExplorer
	claimKey *btcec.PrivateKey
	claimTo  string
	preimage []byte
	hash     string
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	refundKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	claimKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	claimAddr, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(claimKey.PubKey().SerializeCompressed()), &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	explorer := newMockExplorer()
	settlement, err := NewService(explorer, &chaincfg.RegressionNetParams, refundKey)
	require.NoError(t, err)

	preimage := bytes.Repeat([]byte{0x42}, 32)
	hash := sha256.Sum256(preimage)

	f := &fixture{
		svc:      settlement.(*service),
		explorer: explorer,
		claimKey: claimKey,
		claimTo:  claimAddr.EncodeAddress(),
		preimage: preimage,
		hash:     hex.EncodeToString(hash[:]),
		now:      time.Unix(1_700_000_000, 0),
	}
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) openLock(t *testing.T, units int64) domain.LockRef {
	ref, err := f.svc.OpenLock(context.Background(), ports.LockRequest{
		ReserveUnits: big.NewInt(units),
		ClaimAddress: f.claimTo,
		PaymentHash:  f.hash,
		Timeout:      time.Hour,
	})
	require.NoError(t, err)
	return ref
}

func (f *fixture) status(t *testing.T, ref domain.LockRef) ports.LockStatus {
	status, err := f.svc.ObserveConfirmation(context.Background(), ref)
	require.NoError(t, err)
	return status
}

// spendingTx returns a tx spending the funding output of the given lock.
func spendingTx(t *testing.T, ref domain.LockRef, locktime uint32) (*wire.MsgTx, []byte) {
	hash, err := chainhash.NewHashFromStr(fundingTxid)
	require.NoError(t, err)
	addr, err := btcutil.DecodeAddress(ref.Address, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	tx := wire.NewMsgTx(2)
	tx.LockTime = locktime
	in := wire.NewTxIn(wire.NewOutPoint(hash, 1), nil, nil)
	in.Sequence = wire.MaxTxInSequenceNum - 1
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(int64(ref.Amount)-500, pkScript))
	return tx, pkScript
}

func execute(
	t *testing.T, tx *wire.MsgTx, pkScript []byte, amount int64,
) error {
	prevOuts := txscript.NewMultiPrevOutFetcher(nil)
	prevOuts.AddPrevOut(tx.TxIn[0].PreviousOutPoint, wire.NewTxOut(amount, pkScript))
	vm, err := txscript.NewEngine(
		pkScript, tx, 0, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(tx, prevOuts), amount, prevOuts,
	)
	require.NoError(t, err)
	return vm.Execute()
}

func TestOpenLock(t *testing.T) {
	f := newFixture(t)
	ref := f.openLock(t, 30_000_000)

	require.Equal(t, uint64(30_000_000), ref.Amount)
	require.Equal(t, f.now.Add(time.Hour).Unix(), ref.ExpiresAt)
	require.Equal(t, f.hash, ref.PaymentHash)

	script, err := hex.DecodeString(ref.Script)
	require.NoError(t, err)
	addr, err := LockAddress(script, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.Equal(t, addr.EncodeAddress(), ref.Address)
	require.Equal(t, hex.EncodeToString(addr.WitnessProgram()), ref.Id)

	t.Run("claim path", func(t *testing.T) {
		tx, pkScript := spendingTx(t, ref, 0)
		sigHashes := txscript.NewTxSigHashes(tx, singlePrevOut(pkScript, ref.Amount))
		sig, err := txscript.RawTxInWitnessSignature(
			tx, sigHashes, 0, int64(ref.Amount), script, txscript.SigHashAll, f.claimKey,
		)
		require.NoError(t, err)
		tx.TxIn[0].Witness = wire.TxWitness{
			sig, f.claimKey.PubKey().SerializeCompressed(), f.preimage, {0x01}, script,
		}
		require.NoError(t, execute(t, tx, pkScript, int64(ref.Amount)))

		// A wrong preimage does not unlock the claim branch.
		tx.TxIn[0].Witness[2] = bytes.Repeat([]byte{0x43}, 32)
		require.Error(t, execute(t, tx, pkScript, int64(ref.Amount)))
	})

	t.Run("refund before locktime", func(t *testing.T) {
		tx, pkScript := spendingTx(t, ref, uint32(ref.ExpiresAt-1))
		sigHashes := txscript.NewTxSigHashes(tx, singlePrevOut(pkScript, ref.Amount))
		sig, err := txscript.RawTxInWitnessSignature(
			tx, sigHashes, 0, int64(ref.Amount), script, txscript.SigHashAll, f.svc.refundKey,
		)
		require.NoError(t, err)
		tx.TxIn[0].Witness = wire.TxWitness{
			sig, f.svc.refundKey.PubKey().SerializeCompressed(), {}, script,
		}
		require.Error(t, execute(t, tx, pkScript, int64(ref.Amount)))
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name string
			req  ports.LockRequest
		}{
			{
				name: "zero amount",
				req: ports.LockRequest{
					ReserveUnits: big.NewInt(0), ClaimAddress: f.claimTo,
					PaymentHash: f.hash, Timeout: time.Hour,
				},
			},
			{
				name: "missing payment hash",
				req: ports.LockRequest{
					ReserveUnits: big.NewInt(1), ClaimAddress: f.claimTo, Timeout: time.Hour,
				},
			},
			{
				name: "mainnet address",
				req: ports.LockRequest{
					ReserveUnits: big.NewInt(1),
					ClaimAddress: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
					PaymentHash:  f.hash,
					Timeout:      time.Hour,
				},
			},
			{
				name: "script address",
				req: ports.LockRequest{
					ReserveUnits: big.NewInt(1), ClaimAddress: ref.Address,
					PaymentHash: f.hash, Timeout: time.Hour,
				},
			},
		}
		for _, fx := range fixtures {
			t.Run(fx.name, func(t *testing.T) {
				_, err := f.svc.OpenLock(context.Background(), fx.req)
				require.Error(t, err)
			})
		}
	})
}

func TestObserveConfirmation(t *testing.T) {
	t.Run("claimed", func(t *testing.T) {
		f := newFixture(t)
		ref := f.openLock(t, 30_000_000)
		require.Equal(t, ports.LockStatusPending, f.status(t, ref))

		f.explorer.fund(ref.Address, ref.Amount)
		require.Equal(t, ports.LockStatusPending, f.status(t, ref))

		witness := []string{"30", "02", hex.EncodeToString(f.preimage), "01", ref.Script}
		f.explorer.spend(1, witness, false)
		require.Equal(t, ports.LockStatusPending, f.status(t, ref))

		f.explorer.spend(1, witness, true)
		require.Equal(t, ports.LockStatusConfirmed, f.status(t, ref))
	})

	t.Run("expired and refunded", func(t *testing.T) {
		f := newFixture(t)
		ref := f.openLock(t, 30_000_000)
		f.explorer.fund(ref.Address, ref.Amount)

		ctx := context.Background()
		require.Error(t, f.svc.Refund(ctx, ref))

		f.now = f.now.Add(time.Hour)
		require.Equal(t, ports.LockStatusExpired, f.status(t, ref))

		require.NoError(t, f.svc.Refund(ctx, ref))
		require.Len(t, f.explorer.broadcast, 1)

		raw, err := hex.DecodeString(f.explorer.broadcast[0])
		require.NoError(t, err)
		var tx wire.MsgTx
		require.NoError(t, tx.Deserialize(bytes.NewReader(raw)))
		require.Equal(t, uint32(ref.ExpiresAt), tx.LockTime)
		require.Len(t, tx.TxIn, 1)
		require.Equal(t, uint32(1), tx.TxIn[0].PreviousOutPoint.Index)
		require.Len(t, tx.TxOut, 1)
		require.Equal(
			t, int64(ref.Amount)-int64(txOverheadVsize+refundInputVsize+p2wpkhOutputVsize)*defaultFeeRate,
			tx.TxOut[0].Value,
		)

		addr, err := btcutil.DecodeAddress(ref.Address, &chaincfg.RegressionNetParams)
		require.NoError(t, err)
		pkScript, err := txscript.PayToAddrScript(addr)
		require.NoError(t, err)
		require.NoError(t, execute(t, &tx, pkScript, int64(ref.Amount)))

		witness := make([]string, 0, len(tx.TxIn[0].Witness))
		for _, item := range tx.TxIn[0].Witness {
			witness = append(witness, hex.EncodeToString(item))
		}
		f.explorer.spend(1, witness, false)
		require.Equal(t, ports.LockStatusExpired, f.status(t, ref))

		// Nothing left to refund.
		require.NoError(t, f.svc.Refund(ctx, ref))
		require.Len(t, f.explorer.broadcast, 1)

		f.explorer.spend(1, witness, true)
		require.Equal(t, ports.LockStatusRefunded, f.status(t, ref))
	})

	t.Run("underfunded", func(t *testing.T) {
		f := newFixture(t)
		ref := f.openLock(t, 30_000_000)
		f.explorer.fund(ref.Address, ref.Amount-1)

		witness := []string{"30", "02", hex.EncodeToString(f.preimage), "01", ref.Script}
		f.explorer.spend(1, witness, true)
		require.Equal(t, ports.LockStatusPending, f.status(t, ref))

		// Past expiry the lock is settled as refunded, never as claimed.
		f.now = f.now.Add(time.Hour)
		require.Equal(t, ports.LockStatusRefunded, f.status(t, ref))
	})

	t.Run("unconfirmed funding", func(t *testing.T) {
		f := newFixture(t)
		ref := f.openLock(t, 30_000_000)
		f.explorer.fundWith(ref.Address, ref.Amount, false)

		witness := []string{"30", "02", hex.EncodeToString(f.preimage), "01", ref.Script}
		f.explorer.spend(1, witness, true)
		require.Equal(t, ports.LockStatusPending, f.status(t, ref))

		f.explorer.fundWith(ref.Address, ref.Amount, true)
		require.Equal(t, ports.LockStatusConfirmed, f.status(t, ref))
	})

	t.Run("overfunded", func(t *testing.T) {
		f := newFixture(t)
		ref := f.openLock(t, 30_000_000)
		f.explorer.fund(ref.Address, ref.Amount+10_000)
		require.Equal(t, ports.LockStatusPending, f.status(t, ref))

		witness := []string{"30", "02", hex.EncodeToString(f.preimage), "01", ref.Script}
		f.explorer.spend(1, witness, true)
		require.Equal(t, ports.LockStatusConfirmed, f.status(t, ref))
	})

	t.Run("claim with wrong preimage", func(t *testing.T) {
		f := newFixture(t)
		ref := f.openLock(t, 30_000_000)
		f.explorer.fund(ref.Address, ref.Amount)

		witness := []string{"30", "02", hex.EncodeToString(bytes.Repeat([]byte{0x01}, 32)), "01", ref.Script}
		f.explorer.spend(1, witness, true)
		require.Equal(t, ports.LockStatusPending, f.status(t, ref))
	})

	t.Run("never funded", func(t *testing.T) {
		f := newFixture(t)
		ref := f.openLock(t, 30_000_000)

		f.now = f.now.Add(2 * time.Hour)
		require.Equal(t, ports.LockStatusRefunded, f.status(t, ref))
		require.NoError(t, f.svc.Refund(context.Background(), ref))
		require.Empty(t, f.explorer.broadcast)
	})
}

func singlePrevOut(pkScript []byte, amount uint64) txscript.PrevOutputFetcher {
	return txscript.NewCannedPrevOutputFetcher(pkScript, int64(amount))
}
