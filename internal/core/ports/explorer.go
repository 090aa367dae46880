package ports

import "context"

type TxStatus struct {
	Confirmed   bool
	BlockHeight int64
	BlockTime   int64
}

type ExplorerUtxo struct {
	Txid   string
	Vout   uint32
	Amount uint64
	Status TxStatus
}

type TxOutput struct {
	Address string
	Amount  uint64
}

type ExplorerTx struct {
	Txid    string
	Outputs []TxOutput
	Status  TxStatus
}

type Outspend struct {
	Spent bool
	Txid  string
	Vin   uint32
	// Witness of the spending input, hex encoded.
	Witness []string
	Status  TxStatus
}

// Explorer is the chain data source shared by the reserve feed and the settlement.
type Explorer interface {
	GetTipHeight(ctx context.Context) (int64, error)
	GetUtxos(ctx context.Context, address string) ([]ExplorerUtxo, error)
	// GetTxs returns the most recent transactions involving the given address.
	GetTxs(ctx context.Context, address string) ([]ExplorerTx, error)
	GetOutspend(ctx context.Context, txid string, vout uint32) (*Outspend, error)
	Broadcast(ctx context.Context, txHex string) (string, error)
}
