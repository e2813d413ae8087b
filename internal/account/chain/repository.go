package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
)

// AddressStore is the storage side of the address registry.
type AddressStore interface {
	AddressByHash(ctx context.Context, address common.Address) (model.Address, bool, error)
	InsertAddress(ctx context.Context, address common.Address, kind model.AddressKind) (int64, error)
}

// LedgerTx is a single storage transaction over the ledger tables.
type LedgerTx interface {
	AddressStore

	// BlocksByHeightAndHash returns every row, forked or not, stored at height with the given hash.
	BlocksByHeightAndHash(ctx context.Context, height *big.Int, hash common.Hash) ([]model.StoredBlock, error)
	// MarkForkedFrom marks every canonical row at height or above as forked.
	MarkForkedFrom(ctx context.Context, height *big.Int) (int64, error)
	// MarkForkedAt marks every canonical row at height as forked.
	MarkForkedAt(ctx context.Context, height *big.Int) (int64, error)
	// MarkCanonical forks every other row at height and makes blockID canonical. It returns the flipped row count.
	MarkCanonical(ctx context.Context, height *big.Int, blockID int64) (int64, error)

	InsertBlock(ctx context.Context, block model.Block, minerID int64) (int64, error)
	InsertUncle(ctx context.Context, blockID int64, uncle model.UncleBlock, minerID int64) error
	InsertTransaction(ctx context.Context, row TransactionRow) error

	// LatestBalanceBefore returns the newest canonical snapshot of addressID strictly below height.
	LatestBalanceBefore(ctx context.Context, addressID int64, height *big.Int) (*big.Int, bool, error)
	InsertBalance(ctx context.Context, snapshot model.BalanceSnapshot) error
}

// TransactionRow is a transaction with its resolved address ids.
type TransactionRow struct {
	BlockID    int64
	Tx         model.Transaction
	GasUsed    *big.Int
	FromID     int64
	ToID       *int64
	ContractID *int64
}
