package htlc

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

const (
	paymentHashSize = 32
	pubkeyHashSize  = 20
)

// LockScript returns the witness script of the hash time-locked contract:
//
//	OP_IF
//	  OP_SIZE 32 OP_EQUALVERIFY OP_SHA256 <payment_hash> OP_EQUALVERIFY
//	  OP_DUP OP_HASH160 <claim_pkh>
//	OP_ELSE
//	  <locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	  OP_DUP OP_HASH160 <refund_pkh>
//	OP_ENDIF
//	OP_EQUALVERIFY OP_CHECKSIG
func LockScript(paymentHash, claimPkh, refundPkh []byte, locktime int64) ([]byte, error) {
	if len(paymentHash) != paymentHashSize {
		return nil, fmt.Errorf("invalid payment hash length %d", len(paymentHash))
	}
	if len(claimPkh) != pubkeyHashSize || len(refundPkh) != pubkeyHashSize {
		return nil, fmt.Errorf("invalid pubkey hash length")
	}
	if locktime < txscript.LockTimeThreshold {
		return nil, fmt.Errorf("locktime %d is not a timestamp", locktime)
	}

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_IF).
		AddOp(txscript.OP_SIZE).
		AddInt64(paymentHashSize).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_SHA256).
		AddData(paymentHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(claimPkh).
		AddOp(txscript.OP_ELSE).
		AddInt64(locktime).
		AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).
		AddOp(txscript.OP_DROP).
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(refundPkh).
		AddOp(txscript.OP_ENDIF).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// LockAddress returns the P2WSH address of the given witness script.
func LockAddress(script []byte, network *chaincfg.Params) (*btcutil.AddressWitnessScriptHash, error) {
	hash := sha256.Sum256(script)
	return btcutil.NewAddressWitnessScriptHash(hash[:], network)
}

// pubkeyHash returns the hash160 committed by a P2WPKH or P2PKH address.
func pubkeyHash(address string, network *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, network)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %s", address, err)
	}
	if !addr.IsForNet(network) {
		return nil, fmt.Errorf("address %s is not for %s", address, network.Name)
	}

	switch a := addr.(type) {
	case *btcutil.AddressWitnessPubKeyHash:
		return a.WitnessProgram(), nil
	case *btcutil.AddressPubKeyHash:
		return a.ScriptAddress(), nil
	default:
		return nil, fmt.Errorf("address %s must be p2wpkh or p2pkh", address)
	}
}
