package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const utxoStoreDir = "utxos"

type utxoRepository struct {
	store *badgerhold.Store
}

func NewUtxoRepository(config ...interface{}) (domain.UtxoRepository, error) {
	store, err := openStore(utxoStoreDir, config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open utxo store: %s", err)
	}
	return &utxoRepository{store}, nil
}

func (r *utxoRepository) AddUtxos(ctx context.Context, utxos []domain.Utxo) error {
	return withRetry(func() error {
		tx := r.store.Badger().NewTransaction(true)
		defer tx.Discard()

		for _, utxo := range utxos {
			if err := r.store.TxUpsert(tx, utxo.Outpoint.String(), utxo); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (r *utxoRepository) RemoveUtxos(ctx context.Context, outpoints []domain.Outpoint) error {
	return withRetry(func() error {
		tx := r.store.Badger().NewTransaction(true)
		defer tx.Discard()

		for _, outpoint := range outpoints {
			err := r.store.TxDelete(tx, outpoint.String(), domain.Utxo{})
			if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
				return err
			}
		}
		return tx.Commit()
	})
}

func (r *utxoRepository) GetAllUtxos(ctx context.Context) ([]domain.Utxo, error) {
	return r.findUtxos(nil)
}

func (r *utxoRepository) GetUtxosByAddress(
	ctx context.Context, address string,
) ([]domain.Utxo, error) {
	return r.findUtxos(badgerhold.Where("Address").Eq(address))
}

func (r *utxoRepository) Close() {
	// nolint:all
	r.store.Close()
}

func (r *utxoRepository) findUtxos(query *badgerhold.Query) ([]domain.Utxo, error) {
	utxos := make([]domain.Utxo, 0)
	if err := r.store.Find(&utxos, query); err != nil {
		return nil, err
	}
	sort.SliceStable(utxos, func(i, j int) bool {
		return utxos[i].Outpoint.String() < utxos[j].Outpoint.String()
	})
	return utxos, nil
}
