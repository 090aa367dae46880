package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/arkade-os/pegd/internal/infrastructure/db/sqlite/sqlc/queries"
)

type utxoRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewUtxoRepository(config ...interface{}) (domain.UtxoRepository, error) {
	db, err := openConfig("utxo", config...)
	if err != nil {
		return nil, err
	}
	return &utxoRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *utxoRepository) AddUtxos(ctx context.Context, utxos []domain.Utxo) error {
	txBody := func(querierWithTx *queries.Queries) error {
		for _, utxo := range utxos {
			if err := querierWithTx.UpsertUtxo(ctx, queries.UpsertUtxoParams{
				Txid:      utxo.Txid,
				Vout:      int64(utxo.VOut),
				Address:   utxo.Address,
				Amount:    int64(utxo.Amount),
				Confirmed: utxo.Confirmed,
				BlockTime: utxo.BlockTime,
				UpdatedAt: utxo.UpdatedAt,
			}); err != nil {
				return fmt.Errorf("failed to upsert utxo %s: %w", utxo.Outpoint, err)
			}
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *utxoRepository) RemoveUtxos(ctx context.Context, outpoints []domain.Outpoint) error {
	txBody := func(querierWithTx *queries.Queries) error {
		for _, outpoint := range outpoints {
			if err := querierWithTx.DeleteUtxo(ctx, queries.DeleteUtxoParams{
				Txid: outpoint.Txid,
				Vout: int64(outpoint.VOut),
			}); err != nil {
				return fmt.Errorf("failed to delete utxo %s: %w", outpoint, err)
			}
		}
		return nil
	}

	return execTx(ctx, r.db, txBody)
}

func (r *utxoRepository) GetAllUtxos(ctx context.Context) ([]domain.Utxo, error) {
	rows, err := r.querier.SelectAllUtxos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get utxos: %w", err)
	}
	return toUtxos(rows), nil
}

func (r *utxoRepository) GetUtxosByAddress(
	ctx context.Context, address string,
) ([]domain.Utxo, error) {
	rows, err := r.querier.SelectUtxosByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get utxos of %s: %w", address, err)
	}
	return toUtxos(rows), nil
}

func (r *utxoRepository) Close() {
	// nolint:all
	r.db.Close()
}

func toUtxos(rows []queries.Utxo) []domain.Utxo {
	utxos := make([]domain.Utxo, 0, len(rows))
	for _, row := range rows {
		utxos = append(utxos, domain.Utxo{
			Outpoint: domain.Outpoint{
				Txid: row.Txid,
				VOut: uint32(row.Vout),
			},
			Address:   row.Address,
			Amount:    uint64(row.Amount),
			Confirmed: row.Confirmed,
			BlockTime: row.BlockTime,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return utxos
}
