package ports

import (
	"context"

	"github.com/btcsuite/btcd/btcec/v2"
)

type SignerService interface {
	GetPubkey(ctx context.Context) (*btcec.PublicKey, error)
	// SignMessage returns the BIP-340 signature of the given 32-byte digest.
	SignMessage(ctx context.Context, digest []byte) ([]byte, error)
}
