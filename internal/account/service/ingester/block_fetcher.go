package ingester

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/goodnatureofminers/blockinsight7000-ledger/pkg/workerpool"
)

type blockFetcher struct {
	source      NodeSource
	workerCount int
}

// NewBlockFetcher returns a BlockFetcher that loads uncles and receipts on workerCount goroutines.
func NewBlockFetcher(source NodeSource, workerCount int) BlockFetcher {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	return &blockFetcher{source: source, workerCount: workerCount}
}

// Fetch completes block with its uncle headers and transaction receipts.
// Every piece is fetched before anything is returned so storage work never waits on the node.
func (f *blockFetcher) Fetch(ctx context.Context, block *model.Block) (model.InsertBlock, error) {
	if len(block.UncleHashes) > maxUncles {
		return model.InsertBlock{}, fmt.Errorf("block %s references %d uncles: %w", block.Hash, len(block.UncleHashes), model.ErrIllegalLedgerState)
	}

	indexes := make([]int, len(block.UncleHashes))
	for i := range indexes {
		indexes[i] = i
	}
	uncles, err := workerpool.Map(ctx, f.workerCount, indexes, func(ctx context.Context, i int) (model.UncleBlock, error) {
		uncle, err := f.source.UncleByBlockHashAndIndex(ctx, block.Hash, i)
		if err != nil {
			return model.UncleBlock{}, incomplete(fmt.Sprintf("uncle %d of block %s", i, block.Hash), err)
		}
		if uncle.Hash != block.UncleHashes[i] {
			return model.UncleBlock{}, fmt.Errorf("uncle %d of block %s has hash %s, want %s: %w",
				i, block.Hash, uncle.Hash, block.UncleHashes[i], model.ErrIncompleteLedgerData)
		}
		return *uncle, nil
	})
	if err != nil {
		return model.InsertBlock{}, err
	}

	receipts, err := workerpool.Map(ctx, f.workerCount, block.Transactions, func(ctx context.Context, tx model.Transaction) (model.Receipt, error) {
		receipt, err := f.source.TransactionReceipt(ctx, tx.Hash)
		if err != nil {
			return model.Receipt{}, incomplete(fmt.Sprintf("receipt of transaction %s", tx.Hash), err)
		}
		if receipt.TxHash != tx.Hash {
			return model.Receipt{}, fmt.Errorf("receipt for %s returned for transaction %s: %w",
				receipt.TxHash, tx.Hash, model.ErrIncompleteLedgerData)
		}
		return *receipt, nil
	})
	if err != nil {
		return model.InsertBlock{}, err
	}

	return model.InsertBlock{Block: *block, Uncles: uncles, Receipts: receipts}, nil
}

func incomplete(what string, err error) error {
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", what, model.ErrIncompleteLedgerData, err)
	}
	return fmt.Errorf("fetch %s: %w", what, err)
}
