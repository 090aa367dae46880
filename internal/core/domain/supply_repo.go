package domain

import (
	"context"
	"errors"
)

var ErrDuplicateSupplyRef = errors.New("supply entry with same ref already exists")

type SupplyRepository interface {
	// AddEntry appends the entry and fails with ErrDuplicateSupplyRef if another one with the
	// same non-empty ref exists.
	AddEntry(ctx context.Context, entry SupplyEntry) error
	// GetEntries returns the entries of the given kinds, or all of them, in append order.
	GetEntries(ctx context.Context, kinds ...SupplyEntryKind) ([]SupplyEntry, error)
	GetEntryByRef(ctx context.Context, ref string) (*SupplyEntry, error)
	Close()
}
