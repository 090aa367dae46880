package domain

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"math/big"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const AttestationVersion = 1

var attestationTag = []byte("pegd/attestation")

// AttestedSnapshot is the reserve snapshot as it appears in a signed attestation.
// Amounts are base-10 strings.
type AttestedSnapshot struct {
	LockedReserveUnits string          `json:"lockedReserveUnits"`
	SourceCount        int             `json:"sourceCount"`
	PendingCount       int             `json:"pendingCount"`
	AsOf               int64           `json:"asOf"`
	IntegrityStatus    IntegrityStatus `json:"integrityStatus"`
	Source             string          `json:"source"`
	Warning            string          `json:"warning"`
}

func NewAttestedSnapshot(s ReserveSnapshot) AttestedSnapshot {
	return AttestedSnapshot{
		LockedReserveUnits: s.LockedReserveUnits.String(),
		SourceCount:        s.SourceCount,
		PendingCount:       s.PendingCount,
		AsOf:               s.AsOf,
		IntegrityStatus:    s.IntegrityStatus,
		Source:             s.Source,
		Warning:            s.Warning,
	}
}

// Attestation is immutable once signed. A new attestation supersedes an old one.
type Attestation struct {
	Version               uint32           `json:"version"`
	Id                    string           `json:"id"`
	Snapshot              AttestedSnapshot `json:"snapshot"`
	OutstandingTokenUnits string           `json:"outstandingTokenUnits"`
	RequiredReserveUnits  string           `json:"requiredReserveUnits"`
	ReserveUnitsPerToken  string           `json:"reserveUnitsPerToken"`
	IsFullyReserved       bool             `json:"isFullyReserved"`
	CollateralizationPct  string           `json:"collateralizationPct"`
	SignerPublicKey       string           `json:"signerPublicKey"`
	ProducedAt            int64            `json:"producedAt"`
	Signature             string           `json:"signature"`
}

// canonicalAttestation fixes the order of the signed fields.
type canonicalAttestation struct {
	Version               uint32           `json:"version"`
	Id                    string           `json:"id"`
	Snapshot              AttestedSnapshot `json:"snapshot"`
	OutstandingTokenUnits string           `json:"outstandingTokenUnits"`
	RequiredReserveUnits  string           `json:"requiredReserveUnits"`
	ReserveUnitsPerToken  string           `json:"reserveUnitsPerToken"`
	IsFullyReserved       bool             `json:"isFullyReserved"`
	CollateralizationPct  string           `json:"collateralizationPct"`
	SignerPublicKey       string           `json:"signerPublicKey"`
	ProducedAt            int64            `json:"producedAt"`
}

// CanonicalBytes returns the deterministic encoding of every field but the signature.
func (a Attestation) CanonicalBytes() ([]byte, error) {
	return json.Marshal(canonicalAttestation{
		Version:               a.Version,
		Id:                    a.Id,
		Snapshot:              a.Snapshot,
		OutstandingTokenUnits: a.OutstandingTokenUnits,
		RequiredReserveUnits:  a.RequiredReserveUnits,
		ReserveUnitsPerToken:  a.ReserveUnitsPerToken,
		IsFullyReserved:       a.IsFullyReserved,
		CollateralizationPct:  a.CollateralizationPct,
		SignerPublicKey:       a.SignerPublicKey,
		ProducedAt:            a.ProducedAt,
	})
}

// Digest is the tagged hash of the canonical encoding, the message signed with BIP-340.
func (a Attestation) Digest() (*chainhash.Hash, error) {
	buf, err := a.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	return chainhash.TaggedHash(attestationTag, buf), nil
}

var (
	attestationKeys = jsonKeys(Attestation{})
	snapshotKeys    = jsonKeys(AttestedSnapshot{})
)

// DecodeAttestation parses a published attestation. Unlike a plain json decoding, every
// field must be present, non null and known, both at the top level and in the snapshot.
func DecodeAttestation(buf []byte) (*Attestation, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(buf, &fields); err != nil {
		return nil, fmt.Errorf("malformed attestation: %w", err)
	}
	if err := checkKeys(fields, attestationKeys); err != nil {
		return nil, err
	}
	snapshotFields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(fields["snapshot"], &snapshotFields); err != nil {
		return nil, fmt.Errorf("malformed snapshot: %w", err)
	}
	if err := checkKeys(snapshotFields, snapshotKeys); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	att := Attestation{}
	if err := dec.Decode(&att); err != nil {
		return nil, fmt.Errorf("malformed attestation: %w", err)
	}
	return &att, nil
}

func checkKeys(fields map[string]json.RawMessage, keys []string) error {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok {
			return fmt.Errorf("missing field %q", key)
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return fmt.Errorf("null field %q", key)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if !slices.Contains(keys, key) {
			return fmt.Errorf("unknown field %q", key)
		}
	}
	return nil
}

func jsonKeys(v any) []string {
	t := reflect.TypeOf(v)
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		keys = append(keys, name)
	}
	return keys
}

// Age returns how old the attestation is at the given instant.
func (a Attestation) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(a.ProducedAt, 0))
}

// IsStale reports whether the attestation is older than maxAge at the given instant.
func (a Attestation) IsStale(maxAge time.Duration, now time.Time) bool {
	return a.Age(now) > maxAge
}

// Validate checks the structure of the attestation and the consistency of its derived
// fields. It does not check the signature.
func (a Attestation) Validate() error {
	if a.Version != AttestationVersion {
		return fmt.Errorf("unsupported version %d", a.Version)
	}
	if a.Id == "" {
		return fmt.Errorf("missing id")
	}
	if a.ProducedAt <= 0 {
		return fmt.Errorf("missing produced at")
	}
	if !a.Snapshot.IntegrityStatus.IsValid() {
		return fmt.Errorf("invalid integrity status %q", a.Snapshot.IntegrityStatus)
	}
	if a.Snapshot.IntegrityStatus == IntegrityStatusUnavailable {
		return fmt.Errorf("snapshot reports unavailable reserves")
	}
	locked, err := ParseAmount(a.Snapshot.LockedReserveUnits)
	if err != nil {
		return fmt.Errorf("invalid locked reserve units: %w", err)
	}
	outstanding, err := ParseAmount(a.OutstandingTokenUnits)
	if err != nil {
		return fmt.Errorf("invalid outstanding token units: %w", err)
	}
	required, err := ParseAmount(a.RequiredReserveUnits)
	if err != nil {
		return fmt.Errorf("invalid required reserve units: %w", err)
	}
	ratio, err := ParseAmount(a.ReserveUnitsPerToken)
	if err != nil {
		return fmt.Errorf("invalid reserve units per token: %w", err)
	}
	if ratio.Cmp(reserveUnitsPerToken) != 0 {
		return fmt.Errorf("peg ratio mismatch: got %s, expected %d", ratio, ReserveUnitsPerToken)
	}
	if required.Cmp(new(big.Int).Mul(outstanding, ratio)) != 0 {
		return fmt.Errorf("required reserve units do not match outstanding supply")
	}
	if a.IsFullyReserved != (locked.Cmp(required) >= 0) {
		return fmt.Errorf("full reserve flag does not match amounts")
	}
	if _, err := parseXOnlyPubkey(a.SignerPublicKey); err != nil {
		return fmt.Errorf("invalid signer public key: %w", err)
	}
	if _, err := parseSignature(a.Signature); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	return nil
}

// VerifyAttestation reports whether the attestation is well formed and carries a valid
// signature from the given key. It never panics and has no side effects.
func VerifyAttestation(a Attestation, pubkey *btcec.PublicKey) bool {
	return CheckAttestation(a, pubkey) == nil
}

// CheckAttestation is VerifyAttestation returning the reason of the rejection.
func CheckAttestation(a Attestation, pubkey *btcec.PublicKey) error {
	if pubkey == nil {
		return fmt.Errorf("missing expected signer key")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	signer, _ := parseXOnlyPubkey(a.SignerPublicKey)
	if !bytes.Equal(schnorr.SerializePubKey(signer), schnorr.SerializePubKey(pubkey)) {
		return fmt.Errorf("unexpected signer %s", a.SignerPublicKey)
	}
	sig, _ := parseSignature(a.Signature)
	digest, err := a.Digest()
	if err != nil {
		return fmt.Errorf("failed to encode attestation: %w", err)
	}
	if !sig.Verify(digest[:], pubkey) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

func parseXOnlyPubkey(s string) (*btcec.PublicKey, error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return schnorr.ParsePubKey(buf)
}

func parseSignature(s string) (*schnorr.Signature, error) {
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return schnorr.ParseSignature(buf)
}
