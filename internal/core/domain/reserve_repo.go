package domain

import "context"

type UtxoRepository interface {
	// AddUtxos inserts or replaces the given utxos, keyed by outpoint.
	AddUtxos(ctx context.Context, utxos []Utxo) error
	RemoveUtxos(ctx context.Context, outpoints []Outpoint) error
	GetAllUtxos(ctx context.Context) ([]Utxo, error)
	GetUtxosByAddress(ctx context.Context, address string) ([]Utxo, error)
	Close()
}
