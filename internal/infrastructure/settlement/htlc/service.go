package htlc

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

const (
	defaultFeeRate = 2 // sats/vbyte

	txOverheadVsize   = 11
	refundInputVsize  = 100
	p2wpkhOutputVsize = 31
	dustLimit         = 546

	claimWitnessItems = 5
)

type Option func(*service)

func WithFeeRate(satsPerVbyte int64) Option {
	return func(s *service) {
		s.feeRate = satsPerVbyte
	}
}

type fundingOutput struct {
	outpoint  wire.OutPoint
	amount    int64
	confirmed bool
}

// covers reports whether the output is a confirmed funding of the whole locked amount.
func (o fundingOutput) covers(ref domain.LockRef) bool {
	return o.confirmed && o.amount >= int64(ref.Amount)
}

type service struct {
	explorer      ports.Explorer
	network       *chaincfg.Params
	refundKey     *btcec.PrivateKey
	refundAddress btcutil.Address
	feeRate       int64
	now           func() time.Time
}

// NewService returns a settlement that locks redemptions in P2WSH hash time-locked
// contracts. The operator funds the lock address, the claimer spends it with the payment
// preimage, and the refund key takes the funds back after the locktime.
func NewService(
	explorer ports.Explorer, network *chaincfg.Params, refundKey *btcec.PrivateKey,
	opts ...Option,
) (ports.SettlementService, error) {
	if explorer == nil {
		return nil, fmt.Errorf("missing explorer")
	}
	if network == nil {
		return nil, fmt.Errorf("missing network")
	}
	if refundKey == nil {
		return nil, fmt.Errorf("missing refund key")
	}

	refundAddress, err := btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(refundKey.PubKey().SerializeCompressed()), network,
	)
	if err != nil {
		return nil, err
	}

	svc := &service{
		explorer:      explorer,
		network:       network,
		refundKey:     refundKey,
		refundAddress: refundAddress,
		feeRate:       defaultFeeRate,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *service) OpenLock(_ context.Context, req ports.LockRequest) (domain.LockRef, error) {
	if req.ReserveUnits == nil || req.ReserveUnits.Sign() <= 0 || !req.ReserveUnits.IsUint64() {
		return domain.LockRef{}, fmt.Errorf("invalid lock amount %v", req.ReserveUnits)
	}
	if req.Timeout <= 0 {
		return domain.LockRef{}, fmt.Errorf("invalid lock timeout %s", req.Timeout)
	}
	paymentHash, err := hex.DecodeString(req.PaymentHash)
	if err != nil || len(paymentHash) != paymentHashSize {
		return domain.LockRef{}, fmt.Errorf("a 32-byte payment hash is required")
	}
	claimPkh, err := pubkeyHash(req.ClaimAddress, s.network)
	if err != nil {
		return domain.LockRef{}, err
	}

	locktime := s.now().Add(req.Timeout).Unix()
	script, err := LockScript(
		paymentHash, claimPkh, btcutil.Hash160(s.refundKey.PubKey().SerializeCompressed()),
		locktime,
	)
	if err != nil {
		return domain.LockRef{}, err
	}
	addr, err := LockAddress(script, s.network)
	if err != nil {
		return domain.LockRef{}, err
	}

	ref := domain.LockRef{
		Id:          hex.EncodeToString(addr.WitnessProgram()),
		Address:     addr.EncodeAddress(),
		Script:      hex.EncodeToString(script),
		PaymentHash: req.PaymentHash,
		Amount:      req.ReserveUnits.Uint64(),
		ExpiresAt:   locktime,
	}
	log.Infof(
		"htlc: lock %s opened, fund %s with %s", ref.Id, ref.Address,
		btcutil.Amount(ref.Amount).String(),
	)
	return ref, nil
}

func (s *service) ObserveConfirmation(
	ctx context.Context, ref domain.LockRef,
) (ports.LockStatus, error) {
	outputs, err := s.fundingOutputs(ctx, ref)
	if err != nil {
		return "", err
	}

	expired := !s.now().Before(time.Unix(ref.ExpiresAt, 0))
	if len(outputs) <= 0 {
		if expired {
			log.Warnf("htlc: lock %s expired without being funded", ref.Id)
			return ports.LockStatusRefunded, nil
		}
		return ports.LockStatusPending, nil
	}

	// Only the claim of an output funding the whole locked amount settles the lock, an
	// underfunded or unconfirmed funding keeps it pending until expiry.
	open := false
	for _, out := range outputs {
		outspend, err := s.explorer.GetOutspend(
			ctx, out.outpoint.Hash.String(), out.outpoint.Index,
		)
		if err != nil {
			return "", err
		}
		if !outspend.Spent || !outspend.Status.Confirmed {
			open = true
			continue
		}
		if !isClaim(outspend.Witness, ref.PaymentHash) {
			continue
		}
		if out.covers(ref) {
			return ports.LockStatusConfirmed, nil
		}
		log.Warnf(
			"htlc: lock %s claimed from output %s of %d sats, %d sats expected",
			ref.Id, out.outpoint, out.amount, ref.Amount,
		)
	}

	switch {
	case !expired:
		return ports.LockStatusPending, nil
	case !open:
		return ports.LockStatusRefunded, nil
	default:
		return ports.LockStatusExpired, nil
	}
}

// Refund sweeps the unspent outputs of an expired lock back to the refund key.
func (s *service) Refund(ctx context.Context, ref domain.LockRef) error {
	if s.now().Before(time.Unix(ref.ExpiresAt, 0)) {
		return fmt.Errorf("lock %s expires at %d", ref.Id, ref.ExpiresAt)
	}

	script, err := hex.DecodeString(ref.Script)
	if err != nil {
		return fmt.Errorf("invalid lock script: %s", err)
	}

	outputs, err := s.fundingOutputs(ctx, ref)
	if err != nil {
		return err
	}
	unspent := make([]fundingOutput, 0, len(outputs))
	for _, out := range outputs {
		outspend, err := s.explorer.GetOutspend(
			ctx, out.outpoint.Hash.String(), out.outpoint.Index,
		)
		if err != nil {
			return err
		}
		if !outspend.Spent {
			unspent = append(unspent, out)
		}
	}
	if len(unspent) <= 0 {
		log.Debugf("htlc: nothing to refund for lock %s", ref.Id)
		return nil
	}

	tx, err := s.refundTx(script, ref.ExpiresAt, unspent)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return err
	}
	txid, err := s.explorer.Broadcast(ctx, hex.EncodeToString(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to broadcast refund of lock %s: %w", ref.Id, err)
	}

	log.Infof("htlc: broadcasted refund %s of lock %s", txid, ref.Id)
	return nil
}

func (s *service) refundTx(
	script []byte, locktime int64, outputs []fundingOutput,
) (*wire.MsgTx, error) {
	addr, err := LockAddress(script, s.network)
	if err != nil {
		return nil, err
	}
	lockPkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, err
	}
	refundPkScript, err := txscript.PayToAddrScript(s.refundAddress)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(2)
	tx.LockTime = uint32(locktime)

	prevOuts := txscript.NewMultiPrevOutFetcher(nil)
	total := int64(0)
	for _, out := range outputs {
		in := wire.NewTxIn(&out.outpoint, nil, nil)
		in.Sequence = wire.MaxTxInSequenceNum - 1
		tx.AddTxIn(in)
		prevOuts.AddPrevOut(out.outpoint, wire.NewTxOut(out.amount, lockPkScript))
		total += out.amount
	}

	vsize := int64(txOverheadVsize + refundInputVsize*len(outputs) + p2wpkhOutputVsize)
	value := total - vsize*s.feeRate
	if value < dustLimit {
		return nil, fmt.Errorf("refund of %d sats does not cover fees", total)
	}
	tx.AddTxOut(wire.NewTxOut(value, refundPkScript))

	sigHashes := txscript.NewTxSigHashes(tx, prevOuts)
	pubkey := s.refundKey.PubKey().SerializeCompressed()
	for i, out := range outputs {
		sig, err := txscript.RawTxInWitnessSignature(
			tx, sigHashes, i, out.amount, script, txscript.SigHashAll, s.refundKey,
		)
		if err != nil {
			return nil, err
		}
		tx.TxIn[i].Witness = wire.TxWitness{sig, pubkey, {}, script}
	}
	return tx, nil
}

func (s *service) fundingOutputs(
	ctx context.Context, ref domain.LockRef,
) ([]fundingOutput, error) {
	txs, err := s.explorer.GetTxs(ctx, ref.Address)
	if err != nil {
		return nil, err
	}

	outputs := make([]fundingOutput, 0)
	for _, tx := range txs {
		hash, err := chainhash.NewHashFromStr(tx.Txid)
		if err != nil {
			return nil, fmt.Errorf("invalid txid %s: %s", tx.Txid, err)
		}
		for i, out := range tx.Outputs {
			if out.Address != ref.Address {
				continue
			}
			outputs = append(outputs, fundingOutput{
				outpoint:  *wire.NewOutPoint(hash, uint32(i)),
				amount:    int64(out.Amount),
				confirmed: tx.Status.Confirmed,
			})
		}
	}
	return outputs, nil
}

// isClaim reports whether the witness spends the claim branch with the preimage of the
// given payment hash.
func isClaim(witness []string, paymentHash string) bool {
	if len(witness) != claimWitnessItems {
		return false
	}
	preimage, err := hex.DecodeString(witness[2])
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(paymentHash)
	if err != nil {
		return false
	}
	hash := sha256.Sum256(preimage)
	return bytes.Equal(hash[:], expected)
}
