package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/infrastructure/db/postgres/sqlc/queries"
)

type redemptionRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewRedemptionRepository(config ...interface{}) (domain.RedemptionRepository, error) {
	db, err := openConfig("redemption", config...)
	if err != nil {
		return nil, err
	}
	return &redemptionRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *redemptionRepository) AddOrUpdateIntent(
	ctx context.Context, intent domain.RedeemIntent,
) error {
	return execTx(ctx, r.db, func(querierWithTx *queries.Queries) error {
		return querierWithTx.UpsertRedeemIntent(ctx, queries.UpsertRedeemIntentParams{
			ID:                 intent.Id,
			Requester:          intent.Requester,
			TokenAmount:        intent.TokenAmount.String(),
			QuotedReserveUnits: intent.QuotedReserveUnits.String(),
			ClaimAddress:       intent.ExternalClaimAddress,
			PaymentHash:        intent.PaymentHash,
			State:              string(intent.State),
			LockID:             intent.LockRef.Id,
			LockAddress:        intent.LockRef.Address,
			LockScript:         intent.LockRef.Script,
			LockPaymentHash:    intent.LockRef.PaymentHash,
			LockAmount:         int64(intent.LockRef.Amount),
			LockExpiresAt:      intent.LockRef.ExpiresAt,
			BurnEntryID:        intent.BurnEntryId,
			FailureReason:      intent.FailureReason,
			CreatedAt:          intent.CreatedAt,
			ExpiresAt:          intent.ExpiresAt,
			UpdatedAt:          intent.UpdatedAt,
		})
	})
}

func (r *redemptionRepository) GetIntent(
	ctx context.Context, id string,
) (*domain.RedeemIntent, error) {
	row, err := r.querier.SelectRedeemIntent(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}
	return toRedeemIntent(row)
}

func (r *redemptionRepository) GetIntentsByState(
	ctx context.Context, states ...domain.RedemptionState,
) ([]domain.RedeemIntent, error) {
	intents := make([]domain.RedeemIntent, 0)
	for _, state := range states {
		rows, err := r.querier.SelectRedeemIntentsByState(ctx, string(state))
		if err != nil {
			return nil, fmt.Errorf("failed to get %s intents: %w", state, err)
		}
		for _, row := range rows {
			intent, err := toRedeemIntent(row)
			if err != nil {
				return nil, err
			}
			intents = append(intents, *intent)
		}
	}
	sort.SliceStable(intents, func(i, j int) bool {
		if intents[i].CreatedAt == intents[j].CreatedAt {
			return intents[i].Id < intents[j].Id
		}
		return intents[i].CreatedAt < intents[j].CreatedAt
	})
	return intents, nil
}

func (r *redemptionRepository) GetIntentsByRequester(
	ctx context.Context, requester string,
) ([]domain.RedeemIntent, error) {
	rows, err := r.querier.SelectRedeemIntentsByRequester(ctx, requester)
	if err != nil {
		return nil, fmt.Errorf("failed to get intents of %s: %w", requester, err)
	}
	intents := make([]domain.RedeemIntent, 0, len(rows))
	for _, row := range rows {
		intent, err := toRedeemIntent(row)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *intent)
	}
	return intents, nil
}

func (r *redemptionRepository) Close() {
	// nolint:all
	r.db.Close()
}

func toRedeemIntent(row queries.RedeemIntent) (*domain.RedeemIntent, error) {
	tokenAmount, ok := new(big.Int).SetString(row.TokenAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q for intent %s", row.TokenAmount, row.ID)
	}
	quoted, ok := new(big.Int).SetString(row.QuotedReserveUnits, 10)
	if !ok {
		return nil, fmt.Errorf(
			"invalid quoted amount %q for intent %s", row.QuotedReserveUnits, row.ID,
		)
	}
	return &domain.RedeemIntent{
		Id:                   row.ID,
		Requester:            row.Requester,
		TokenAmount:          tokenAmount,
		QuotedReserveUnits:   quoted,
		ExternalClaimAddress: row.ClaimAddress,
		PaymentHash:          row.PaymentHash,
		State:                domain.RedemptionState(row.State),
		LockRef: domain.LockRef{
			Id:          row.LockID,
			Address:     row.LockAddress,
			Script:      row.LockScript,
			PaymentHash: row.LockPaymentHash,
			Amount:      uint64(row.LockAmount),
			ExpiresAt:   row.LockExpiresAt,
		},
		BurnEntryId:   row.BurnEntryID,
		FailureReason: row.FailureReason,
		CreatedAt:     row.CreatedAt,
		ExpiresAt:     row.ExpiresAt,
		UpdatedAt:     row.UpdatedAt,
	}, nil
}
