package pgdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	dbutil "github.com/arkade-os/pegd/internal/infrastructure/db/dbuitl"
	"github.com/arkade-os/pegd/internal/infrastructure/db/postgres/sqlc/queries"
)

type attestationRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewAttestationRepository(config ...interface{}) (domain.AttestationRepository, error) {
	db, err := openConfig("attestation", config...)
	if err != nil {
		return nil, err
	}
	return &attestationRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *attestationRepository) Add(ctx context.Context, attestation domain.Attestation) error {
	payload, err := json.Marshal(attestation)
	if err != nil {
		return fmt.Errorf("failed to encode attestation: %w", err)
	}

	return execTx(ctx, r.db, func(querierWithTx *queries.Queries) error {
		return querierWithTx.InsertAttestation(ctx, queries.InsertAttestationParams{
			ID:         attestation.Id,
			ProducedAt: attestation.ProducedAt,
			Payload:    string(payload),
			InsertedAt: time.Now().UnixNano(),
		})
	})
}

func (r *attestationRepository) GetLatest(ctx context.Context) (*domain.Attestation, error) {
	row, err := r.querier.SelectLatestAttestation(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest attestation: %w", err)
	}
	return toAttestation(row)
}

func (r *attestationRepository) Get(ctx context.Context, id string) (*domain.Attestation, error) {
	row, err := r.querier.SelectAttestation(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attestation: %w", err)
	}
	return toAttestation(row)
}

func (r *attestationRepository) GetAll(
	ctx context.Context, after, before int64,
) ([]domain.Attestation, error) {
	if err := dbutil.ValidateTimeRange(after, before); err != nil {
		return nil, err
	}

	rows, err := r.querier.SelectAttestationsInRange(ctx, queries.SelectAttestationsInRangeParams{
		After:  after,
		Before: before,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attestations: %w", err)
	}

	attestations := make([]domain.Attestation, 0, len(rows))
	for _, row := range rows {
		attestation, err := toAttestation(row)
		if err != nil {
			return nil, err
		}
		attestations = append(attestations, *attestation)
	}
	return attestations, nil
}

func (r *attestationRepository) Close() {
	// nolint:all
	r.db.Close()
}

func toAttestation(row queries.Attestation) (*domain.Attestation, error) {
	var attestation domain.Attestation
	if err := json.Unmarshal([]byte(row.Payload), &attestation); err != nil {
		return nil, fmt.Errorf("failed to decode attestation %s: %w", row.ID, err)
	}
	return &attestation, nil
}
