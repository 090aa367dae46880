package application

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/core/ports"
	"github.com/arkade-os/pegd/internal/telemetry"
	"github.com/arkade-os/pegd/pkg/errors"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// VerifyAttestation checks the attestation against the expected signer and, if maxAge is
// positive, against its age at the given instant.
// It returns ATTESTATION_INVALID or ATTESTATION_STALE.
func VerifyAttestation(
	att domain.Attestation, pubkey *btcec.PublicKey, maxAge time.Duration, now time.Time,
) error {
	if err := domain.CheckAttestation(att, pubkey); err != nil {
		return errors.ATTESTATION_INVALID.Wrap(err).
			WithMetadata(errors.AttestationInvalidMetadata{Reason: err.Error()})
	}
	if maxAge > 0 && att.IsStale(maxAge, now) {
		age := att.Age(now).Truncate(time.Second)
		return errors.ATTESTATION_STALE.New(
			"attestation produced %s ago, max age is %s", age, maxAge,
		).WithMetadata(errors.AttestationStaleMetadata{
			ProducedAt: att.ProducedAt,
			MaxAge:     maxAge.String(),
			Age:        age.String(),
		})
	}
	return nil
}

// SignAttestation builds the attestation of the given (snapshot, outstanding) pair and
// signs its canonical encoding.
func SignAttestation(
	ctx context.Context, signer ports.SignerService,
	snapshot domain.ReserveSnapshot, outstanding *big.Int,
) (*domain.Attestation, error) {
	pubkey, err := signer.GetPubkey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get signer pubkey: %w", err)
	}

	fact := domain.NewCollateralizationFact(snapshot.LockedReserveUnits, outstanding)
	att := domain.Attestation{
		Version:               domain.AttestationVersion,
		Id:                    uuid.New().String(),
		Snapshot:              domain.NewAttestedSnapshot(snapshot),
		OutstandingTokenUnits: fact.Outstanding.String(),
		RequiredReserveUnits:  fact.Required.String(),
		ReserveUnitsPerToken:  fact.Ratio.String(),
		IsFullyReserved:       fact.IsFullyReserved,
		CollateralizationPct:  fact.DisplayPercentage(),
		SignerPublicKey:       hex.EncodeToString(schnorr.SerializePubKey(pubkey)),
		ProducedAt:            time.Now().Unix(),
	}

	digest, err := att.Digest()
	if err != nil {
		return nil, fmt.Errorf("failed to encode attestation: %w", err)
	}
	sig, err := signer.SignMessage(ctx, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign attestation: %w", err)
	}
	att.Signature = hex.EncodeToString(sig)

	return &att, nil
}

type attestationService struct {
	feed        ports.ReserveFeed
	ledger      *supplyLedger
	signer      ports.SignerService
	repo        domain.AttestationRepository
	events      domain.EventRepository
	alerts      ports.Alerts
	metrics     *telemetry.Metrics
	feedTimeout time.Duration
}

func newAttestationService(
	feed ports.ReserveFeed, ledger *supplyLedger, signer ports.SignerService,
	repo domain.AttestationRepository, events domain.EventRepository,
	alerts ports.Alerts, metrics *telemetry.Metrics, feedTimeout time.Duration,
) *attestationService {
	return &attestationService{
		feed, ledger, signer, repo, events, alerts, metrics, feedTimeout,
	}
}

// buildSnapshot reads the reserve and the supply as a pair under the ledger lock.
func (a *attestationService) buildSnapshot(
	ctx context.Context,
) (domain.ReserveSnapshot, domain.CollateralizationFact, error) {
	var (
		snapshot domain.ReserveSnapshot
		fact     domain.CollateralizationFact
	)
	err := a.ledger.withSupply(func(outstanding *big.Int) error {
		s, err := readReserve(ctx, a.feed, a.feedTimeout)
		if err != nil {
			return err
		}
		snapshot = s
		fact = domain.NewCollateralizationFact(s.LockedReserveUnits, outstanding)
		return nil
	})
	if err != nil {
		return domain.ReserveSnapshot{}, domain.CollateralizationFact{}, err
	}

	a.metrics.SetLockedReserve(snapshot.LockedReserveUnits)
	if snapshot.Warning != "" {
		log.WithField("source", snapshot.Source).Warnf("degraded reserve reading: %s", snapshot.Warning)
		publishAlert(a.alerts, ports.FeedDegraded, map[string]string{
			"source":  snapshot.Source,
			"warning": snapshot.Warning,
		})
	}
	return snapshot, fact, nil
}

// produce builds, signs and stores a fresh attestation.
func (a *attestationService) produce(ctx context.Context) (*domain.Attestation, error) {
	snapshot, fact, err := a.buildSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	att, err := SignAttestation(ctx, a.signer, snapshot, fact.Outstanding)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}

	if err := a.repo.Add(ctx, *att); err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to store attestation: %w", err))
	}

	a.metrics.SetAttestation(att.ProducedAt, att.IsFullyReserved)
	publishEvents(a.events, domain.AttestationTopic, domain.AttestationPublished{
		Id:              att.Id,
		Type:            domain.EventTypeAttestationPublished,
		IsFullyReserved: att.IsFullyReserved,
		ProducedAt:      att.ProducedAt,
	})
	publishAlert(a.alerts, ports.AttestationProduced, map[string]string{
		"id":                   att.Id,
		"lockedSats":           att.Snapshot.LockedReserveUnits,
		"outstandingTokens":    att.OutstandingTokenUnits,
		"requiredSats":         att.RequiredReserveUnits,
		"collateralizationPct": att.CollateralizationPct,
		"fullyReserved":        fmt.Sprintf("%t", att.IsFullyReserved),
	})

	log.Infof(
		"produced attestation %s: locked %s sats, outstanding %s tokens, collateralization %s%%",
		att.Id, att.Snapshot.LockedReserveUnits, att.OutstandingTokenUnits,
		att.CollateralizationPct,
	)
	return att, nil
}

func (a *attestationService) latest(ctx context.Context) (*domain.Attestation, error) {
	att, err := a.repo.GetLatest(ctx)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	if att == nil {
		return nil, errors.ATTESTATION_NOT_FOUND.New("no attestation produced yet")
	}
	return att, nil
}

func (a *attestationService) get(ctx context.Context, id string) (*domain.Attestation, error) {
	att, err := a.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(err)
	}
	if att == nil {
		return nil, errors.ATTESTATION_NOT_FOUND.New("attestation %s not found", id)
	}
	return att, nil
}
