package signer_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/arkade-os/pegd/internal/infrastructure/signer"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"
)

func TestSigner(t *testing.T) {
	ctx := context.Background()
	key, err := signer.ParseKey(
		"  0101010101010101010101010101010101010101010101010101010101010101\n",
	)
	require.NoError(t, err)

	svc, err := signer.NewSigner(key)
	require.NoError(t, err)

	pubkey, err := svc.GetPubkey(ctx)
	require.NoError(t, err)
	require.True(t, pubkey.IsEqual(key.PubKey()))

	digest := sha256.Sum256([]byte("attestation"))
	sigBytes, err := svc.SignMessage(ctx, digest[:])
	require.NoError(t, err)
	sig, err := schnorr.ParseSignature(sigBytes)
	require.NoError(t, err)
	require.True(t, sig.Verify(digest[:], pubkey))

	_, err = svc.SignMessage(ctx, []byte("short"))
	require.Error(t, err)

	_, err = signer.NewSigner(nil)
	require.Error(t, err)
}

func TestParseKey(t *testing.T) {
	for _, keyHex := range []string{"", "zz", "0101", hex.EncodeToString(make([]byte, 33))} {
		_, err := signer.ParseKey(keyHex)
		require.Error(t, err, keyHex)
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "signer.key")

	key, err := signer.LoadOrCreateKey(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := signer.LoadOrCreateKey(path)
	require.NoError(t, err)
	require.Equal(t, key.Serialize(), loaded.Serialize())

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))
	_, err = signer.LoadOrCreateKey(path)
	require.Error(t, err)
}
