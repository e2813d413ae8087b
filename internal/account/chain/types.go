// Package chain defines interfaces shared between account-ledger ingestion components.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
)

// Source supplies ledger data from a node.
type Source interface {
	HeadHeight(ctx context.Context) (*big.Int, error)
	IsSyncing(ctx context.Context) (bool, error)
	BlockByHeight(ctx context.Context, height *big.Int) (*model.Block, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*model.Block, error)
	UncleByBlockHashAndIndex(ctx context.Context, hash common.Hash, index int) (*model.UncleBlock, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*model.Receipt, error)
	SubscribeNewBlocks(ctx context.Context, from *big.Int) (Subscription, error)
}

// Subscription is a cancelable feed of newly mined blocks.
// Blocks is closed after Unsubscribe or after an error was delivered on Err.
type Subscription interface {
	Blocks() <-chan *model.Block
	Err() <-chan error
	Unsubscribe()
}
