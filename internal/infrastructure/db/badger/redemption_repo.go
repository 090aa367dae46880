package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const redemptionStoreDir = "redemptions"

type redemptionRepository struct {
	store *badgerhold.Store
}

type redeemIntentDTO struct {
	Id                   string
	Requester            string
	TokenAmount          string
	QuotedReserveUnits   string
	ExternalClaimAddress string
	PaymentHash          string
	State                string
	LockRef              domain.LockRef
	BurnEntryId          string
	FailureReason        string
	CreatedAt            int64
	ExpiresAt            int64
	UpdatedAt            int64
}

func NewRedemptionRepository(config ...interface{}) (domain.RedemptionRepository, error) {
	store, err := openStore(redemptionStoreDir, config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open redemption store: %s", err)
	}
	return &redemptionRepository{store}, nil
}

func (r *redemptionRepository) AddOrUpdateIntent(
	ctx context.Context, intent domain.RedeemIntent,
) error {
	dto := toRedeemIntentDTO(intent)
	return withRetry(func() error {
		return r.store.Upsert(intent.Id, dto)
	})
}

func (r *redemptionRepository) GetIntent(
	ctx context.Context, id string,
) (*domain.RedeemIntent, error) {
	var dto redeemIntentDTO
	if err := r.store.Get(id, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dto.toDomain()
}

func (r *redemptionRepository) GetIntentsByState(
	ctx context.Context, states ...domain.RedemptionState,
) ([]domain.RedeemIntent, error) {
	if len(states) == 0 {
		return nil, nil
	}
	values := make([]interface{}, 0, len(states))
	for _, state := range states {
		values = append(values, string(state))
	}
	return r.findIntents(badgerhold.Where("State").In(values...))
}

func (r *redemptionRepository) GetIntentsByRequester(
	ctx context.Context, requester string,
) ([]domain.RedeemIntent, error) {
	return r.findIntents(badgerhold.Where("Requester").Eq(requester))
}

func (r *redemptionRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *redemptionRepository) findIntents(
	query *badgerhold.Query,
) ([]domain.RedeemIntent, error) {
	dtos := make([]redeemIntentDTO, 0)
	if err := r.store.Find(&dtos, query.SortBy("CreatedAt", "Id")); err != nil {
		return nil, err
	}

	intents := make([]domain.RedeemIntent, 0, len(dtos))
	for _, dto := range dtos {
		intent, err := dto.toDomain()
		if err != nil {
			return nil, err
		}
		intents = append(intents, *intent)
	}
	return intents, nil
}

func toRedeemIntentDTO(intent domain.RedeemIntent) redeemIntentDTO {
	return redeemIntentDTO{
		Id:                   intent.Id,
		Requester:            intent.Requester,
		TokenAmount:          intent.TokenAmount.String(),
		QuotedReserveUnits:   intent.QuotedReserveUnits.String(),
		ExternalClaimAddress: intent.ExternalClaimAddress,
		PaymentHash:          intent.PaymentHash,
		State:                string(intent.State),
		LockRef:              intent.LockRef,
		BurnEntryId:          intent.BurnEntryId,
		FailureReason:        intent.FailureReason,
		CreatedAt:            intent.CreatedAt,
		ExpiresAt:            intent.ExpiresAt,
		UpdatedAt:            intent.UpdatedAt,
	}
}

func (d redeemIntentDTO) toDomain() (*domain.RedeemIntent, error) {
	tokenAmount, ok := new(big.Int).SetString(d.TokenAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q for intent %s", d.TokenAmount, d.Id)
	}
	quoted, ok := new(big.Int).SetString(d.QuotedReserveUnits, 10)
	if !ok {
		return nil, fmt.Errorf(
			"invalid quoted amount %q for intent %s", d.QuotedReserveUnits, d.Id,
		)
	}
	return &domain.RedeemIntent{
		Id:                   d.Id,
		Requester:            d.Requester,
		TokenAmount:          tokenAmount,
		QuotedReserveUnits:   quoted,
		ExternalClaimAddress: d.ExternalClaimAddress,
		PaymentHash:          d.PaymentHash,
		State:                domain.RedemptionState(d.State),
		LockRef:              d.LockRef,
		BurnEntryId:          d.BurnEntryId,
		FailureReason:        d.FailureReason,
		CreatedAt:            d.CreatedAt,
		ExpiresAt:            d.ExpiresAt,
		UpdatedAt:            d.UpdatedAt,
	}, nil
}
