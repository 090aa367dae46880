package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	log "github.com/sirupsen/logrus"
)

const digestSize = 32

type signer struct {
	key *btcec.PrivateKey
}

// NewSigner signs attestation digests with the given key.
func NewSigner(key *btcec.PrivateKey) (ports.SignerService, error) {
	if key == nil {
		return nil, fmt.Errorf("missing signing key")
	}
	return &signer{key}, nil
}

func (s *signer) GetPubkey(_ context.Context) (*btcec.PublicKey, error) {
	return s.key.PubKey(), nil
}

func (s *signer) SignMessage(_ context.Context, digest []byte) ([]byte, error) {
	if len(digest) != digestSize {
		return nil, fmt.Errorf("invalid digest length %d, must be %d", len(digest), digestSize)
	}
	sig, err := schnorr.Sign(s.key, digest)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// ParseKey parses a hex encoded 32-byte private key.
func ParseKey(keyHex string) (*btcec.PrivateKey, error) {
	buf, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %s", err)
	}
	if len(buf) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid private key length %d", len(buf))
	}
	key, _ := btcec.PrivKeyFromBytes(buf)
	return key, nil
}

// LoadOrCreateKey reads the hex encoded key stored at path, generating and storing a new
// one if the file does not exist.
func LoadOrCreateKey(path string) (*btcec.PrivateKey, error) {
	buf, err := os.ReadFile(path)
	if err == nil {
		return ParseKey(string(buf))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key file: %s", err)
	}

	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key dir: %s", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Serialize())), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %s", err)
	}

	log.Infof("generated new signing key at %s", path)
	return key, nil
}
