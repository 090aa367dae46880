package badgerdb

import (
	"context"
	"fmt"
	"math/big"

	"github.com/arkade-os/pegd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const supplyStoreDir = "supply"

type supplyRepository struct {
	store *badgerhold.Store
}

type supplyEntryDTO struct {
	Id        string
	Seq       uint64
	Kind      string
	Amount    string
	Reason    string
	Ref       string
	CreatedAt int64
}

func NewSupplyRepository(config ...interface{}) (domain.SupplyRepository, error) {
	store, err := openStore(supplyStoreDir, config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open supply store: %s", err)
	}
	return &supplyRepository{store}, nil
}

func (r *supplyRepository) AddEntry(ctx context.Context, entry domain.SupplyEntry) error {
	dto := toSupplyEntryDTO(entry)
	return withRetry(func() error {
		tx := r.store.Badger().NewTransaction(true)
		defer tx.Discard()

		if dto.Ref != "" {
			existing := make([]supplyEntryDTO, 0)
			query := badgerhold.Where("Ref").Eq(dto.Ref)
			if err := r.store.TxFind(tx, &existing, query); err != nil {
				return err
			}
			if len(existing) > 0 {
				return domain.ErrDuplicateSupplyRef
			}
		}
		if err := r.store.TxInsert(tx, dto.Id, dto); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (r *supplyRepository) GetEntries(
	ctx context.Context, kinds ...domain.SupplyEntryKind,
) ([]domain.SupplyEntry, error) {
	var query *badgerhold.Query
	if len(kinds) > 0 {
		values := make([]interface{}, 0, len(kinds))
		for _, kind := range kinds {
			values = append(values, kind.String())
		}
		query = badgerhold.Where("Kind").In(values...)
	} else {
		query = &badgerhold.Query{}
	}

	dtos := make([]supplyEntryDTO, 0)
	if err := r.store.Find(&dtos, query.SortBy("Seq")); err != nil {
		return nil, err
	}

	entries := make([]domain.SupplyEntry, 0, len(dtos))
	for _, dto := range dtos {
		entry, err := dto.toDomain()
		if err != nil {
			return nil, err
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
	dtos := make([]supplyEntryDTO, 0)
	if err := r.store.Find(&dtos, badgerhold.Where("Ref").Eq(ref)); err != nil {
		return nil, err
	}
	if len(dtos) == 0 {
		return nil, nil
	}
	return dtos[0].toDomain()
}

func (r *supplyRepository) Close() {
	// nolint:all
	r.store.Close()
}

func toSupplyEntryDTO(entry domain.SupplyEntry) supplyEntryDTO {
	return supplyEntryDTO{
		Id:        entry.Id,
		Seq:       entry.Seq,
		Kind:      entry.Kind.String(),
		Amount:    entry.Amount.String(),
		Reason:    entry.Reason,
		Ref:       entry.Ref,
		CreatedAt: entry.CreatedAt,
	}
}

func (d supplyEntryDTO) toDomain() (*domain.SupplyEntry, error) {
	amount, ok := new(big.Int).SetString(d.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q for supply entry %s", d.Amount, d.Id)
	}
	return &domain.SupplyEntry{
		Id:        d.Id,
		Seq:       d.Seq,
		Kind:      domain.SupplyEntryKindFromString(d.Kind),
		Amount:    amount,
		Reason:    d.Reason,
		Ref:       d.Ref,
		CreatedAt: d.CreatedAt,
	}, nil
}
