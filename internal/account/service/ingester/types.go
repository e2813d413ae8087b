package ingester

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE
//go:generate mockgen -destination=ledger_mocks_test.go -package=$GOPACKAGE github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain LedgerTx

type (
	NodeSource interface {
		HeadHeight(ctx context.Context) (*big.Int, error)
		IsSyncing(ctx context.Context) (bool, error)
		BlockByHeight(ctx context.Context, height *big.Int) (*model.Block, error)
		BlockByHash(ctx context.Context, hash common.Hash) (*model.Block, error)
		UncleByBlockHashAndIndex(ctx context.Context, hash common.Hash, index int) (*model.UncleBlock, error)
		TransactionReceipt(ctx context.Context, txHash common.Hash) (*model.Receipt, error)
		SubscribeNewBlocks(ctx context.Context, from *big.Int) (chain.Subscription, error)
	}
	LedgerRepository interface {
		MaxBlockHeight(ctx context.Context) (*big.Int, bool, error)
		WithinTx(ctx context.Context, fn func(ctx context.Context, tx chain.LedgerTx) error) error
	}
	BlockFetcher interface {
		Fetch(ctx context.Context, block *model.Block) (model.InsertBlock, error)
	}
	Reconciler interface {
		Reconcile(ctx context.Context, tx chain.LedgerTx, addresses AddressResolver, height *big.Int, parentHash common.Hash) (ReorgSummary, error)
	}
	BlockInserter interface {
		Insert(ctx context.Context, tx chain.LedgerTx, addresses AddressResolver, bundle model.InsertBlock) (int64, error)
	}
	AddressResolver interface {
		Resolve(ctx context.Context, address common.Address, kind model.AddressKind, strict bool) (int64, error)
		LookupOnly(ctx context.Context, address common.Address) (int64, error)
	}
	// AddressSession is an AddressResolver bound to one storage transaction.
	AddressSession interface {
		AddressResolver
		Commit()
	}
	SyncMetrics interface {
		ObserveBlock(phase string, err error, started time.Time)
		ObserveReorg(flipped int64, backfilled int)
		ObserveDropped()
		ObserveResubscribe()
		SetState(state string)
		SetHeights(current, target *big.Int)
	}
	StateListener interface {
		OnStateChange(state State)
	}
)

// ReorgSummary reports what one reconciliation changed.
type ReorgSummary struct {
	Flipped    int64
	Backfilled int
}
