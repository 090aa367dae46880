package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/infrastructure/db/sqlite/sqlc/queries"
)

type supplyRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewSupplyRepository(config ...interface{}) (domain.SupplyRepository, error) {
	db, err := openConfig("supply", config...)
	if err != nil {
		return nil, err
	}
	return &supplyRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *supplyRepository) AddEntry(ctx context.Context, entry domain.SupplyEntry) error {
	txBody := func(querierWithTx *queries.Queries) error {
		if entry.Ref != "" {
			_, err := querierWithTx.SelectSupplyEntryByRef(ctx, entry.Ref)
			if err == nil {
				return domain.ErrDuplicateSupplyRef
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		err := querierWithTx.InsertSupplyEntry(ctx, queries.InsertSupplyEntryParams{
			ID:        entry.Id,
			Seq:       int64(entry.Seq),
			Kind:      entry.Kind.String(),
			Amount:    entry.Amount.String(),
			Reason:    entry.Reason,
			Ref:       entry.Ref,
			CreatedAt: entry.CreatedAt,
		})
		if isUniqueViolation(err) && entry.Ref != "" {
			return domain.ErrDuplicateSupplyRef
		}
		return err
	}

	return execTx(ctx, r.db, txBody)
}

func (r *supplyRepository) GetEntries(
	ctx context.Context, kinds ...domain.SupplyEntryKind,
) ([]domain.SupplyEntry, error) {
	rows, err := r.querier.SelectSupplyEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get supply entries: %w", err)
	}

	filter := make(map[domain.SupplyEntryKind]struct{}, len(kinds))
	for _, kind := range kinds {
		filter[kind] = struct{}{}
	}

	entries := make([]domain.SupplyEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := toSupplyEntry(row)
		if err != nil {
			return nil, err
		}
		if _, ok := filter[entry.Kind]; len(filter) > 0 && !ok {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (r *supplyRepository) GetEntryByRef(
	ctx context.Context, ref string,
) (*domain.SupplyEntry, error) {
	if ref == "" {
		return nil, nil
	}
	row, err := r.querier.SelectSupplyEntryByRef(ctx, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get supply entry: %w", err)
	}
	return toSupplyEntry(row)
}

func (r *supplyRepository) Close() {
	// nolint:all
	r.db.Close()
}

func toSupplyEntry(row queries.SupplyEntry) (*domain.SupplyEntry, error) {
	amount, ok := new(big.Int).SetString(row.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q for supply entry %s", row.Amount, row.ID)
	}
	return &domain.SupplyEntry{
		Id:        row.ID,
		Seq:       uint64(row.Seq),
		Kind:      domain.SupplyEntryKindFromString(row.Kind),
		Amount:    amount,
		Reason:    row.Reason,
		Ref:       row.Ref,
		CreatedAt: row.CreatedAt,
	}, nil
}
