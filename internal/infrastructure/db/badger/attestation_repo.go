package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arkade-os/pegd/internal/core/domain"
	dbutil "github.com/arkade-os/pegd/internal/infrastructure/db/dbuitl"
	"github.com/timshannon/badgerhold/v4"
)

const attestationStoreDir = "attestations"

type attestationRepository struct {
	store *badgerhold.Store
}

type attestationDTO struct {
	domain.Attestation
	// InsertedAt orders attestations produced within the same second.
	InsertedAt int64
}

func NewAttestationRepository(config ...interface{}) (domain.AttestationRepository, error) {
	store, err := openStore(attestationStoreDir, config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open attestation store: %s", err)
	}
	return &attestationRepository{store}, nil
}

func (r *attestationRepository) Add(ctx context.Context, attestation domain.Attestation) error {
	dto := attestationDTO{
		Attestation: attestation,
		InsertedAt:  time.Now().UnixNano(),
	}
	return withRetry(func() error {
		return r.store.Insert(attestation.Id, dto)
	})
}

func (r *attestationRepository) GetLatest(ctx context.Context) (*domain.Attestation, error) {
	dtos := make([]attestationDTO, 0)
	query := (&badgerhold.Query{}).SortBy("InsertedAt").Reverse().Limit(1)
	if err := r.store.Find(&dtos, query); err != nil {
		return nil, err
	}
	if len(dtos) == 0 {
		return nil, nil
	}
	return &dtos[0].Attestation, nil
}

func (r *attestationRepository) Get(ctx context.Context, id string) (*domain.Attestation, error) {
	var dto attestationDTO
	if err := r.store.Get(id, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dto.Attestation, nil
}

func (r *attestationRepository) GetAll(
	ctx context.Context, after, before int64,
) ([]domain.Attestation, error) {
	if err := dbutil.ValidateTimeRange(after, before); err != nil {
		return nil, err
	}

	query := badgerhold.Where("ProducedAt").Ge(after)
	if before > 0 {
		query = query.And("ProducedAt").Le(before)
	}
	dtos := make([]attestationDTO, 0)
	if err := r.store.Find(&dtos, query.SortBy("InsertedAt").Reverse()); err != nil {
		return nil, err
	}

	attestations := make([]domain.Attestation, 0, len(dtos))
	for _, dto := range dtos {
		attestations = append(attestations, dto.Attestation)
	}
	return attestations, nil
}

func (r *attestationRepository) Close() {
	// nolint:all
	r.store.Close()
}
