package ingester

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
)

type blockInserter struct {
	reward  *big.Int
	premine map[common.Address]*big.Int
}

// NewBlockInserter returns a BlockInserter paying reward per block and crediting premine at genesis.
// A nil reward falls back to DefaultBlockReward.
func NewBlockInserter(reward *big.Int, premine map[common.Address]*big.Int) BlockInserter {
	if reward == nil {
		reward = DefaultBlockReward()
	}
	return &blockInserter{
		reward:  new(big.Int).Set(reward),
		premine: premine,
	}
}

// Insert writes bundle as the new canonical tip and records a balance snapshot for every
// address whose balance the block changed. The parent must already be canonical in tx.
func (i *blockInserter) Insert(
	ctx context.Context,
	tx chain.LedgerTx,
	addresses AddressResolver,
	bundle model.InsertBlock,
) (int64, error) {
	block := bundle.Block
	if len(bundle.Uncles) > maxUncles {
		return 0, fmt.Errorf("block %s carries %d uncles: %w", block.Hash, len(bundle.Uncles), model.ErrIllegalLedgerState)
	}
	for n, receipt := range bundle.Receipts {
		if n < len(block.Transactions) && receipt.TxHash != block.Transactions[n].Hash {
			return 0, fmt.Errorf("receipt %d of block %s belongs to %s: %w",
				n, block.Hash, receipt.TxHash, model.ErrIncompleteLedgerData)
		}
	}

	delta, err := blockDeltas(bundle, i.reward, i.premine)
	if err != nil {
		return 0, err
	}

	ids := make(map[common.Address]int64)
	resolve := func(address common.Address, kind model.AddressKind, strict bool) (int64, error) {
		id, err := addresses.Resolve(ctx, address, kind, strict)
		if err != nil {
			return 0, fmt.Errorf("resolve %s address %s: %w", kind, address, err)
		}
		ids[address] = id
		return id, nil
	}

	minerID, err := resolve(block.Miner, model.AddressNormal, false)
	if err != nil {
		return 0, err
	}
	blockID, err := tx.InsertBlock(ctx, block, minerID)
	if err != nil {
		return 0, fmt.Errorf("insert block %s at height %s: %w", block.Hash, block.Height, err)
	}

	for _, uncle := range bundle.Uncles {
		uncleMinerID, err := resolve(uncle.Miner, model.AddressNormal, false)
		if err != nil {
			return 0, err
		}
		if err := tx.InsertUncle(ctx, blockID, uncle, uncleMinerID); err != nil {
			return 0, fmt.Errorf("insert uncle %s of block %s: %w", uncle.Hash, block.Hash, err)
		}
	}

	for n, transaction := range block.Transactions {
		receipt := bundle.Receipts[n]
		fromID, err := addresses.LookupOnly(ctx, transaction.From)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return 0, fmt.Errorf("sender %s of transaction %s was never funded: %w: %w",
					transaction.From, transaction.Hash, model.ErrIllegalLedgerState, err)
			}
			return 0, fmt.Errorf("look up sender %s: %w", transaction.From, err)
		}
		ids[transaction.From] = fromID

		row := chain.TransactionRow{
			BlockID: blockID,
			Tx:      transaction,
			GasUsed: receipt.GasUsed,
			FromID:  fromID,
		}
		if transaction.To != nil {
			toID, err := resolve(*transaction.To, model.AddressNormal, false)
			if err != nil {
				return 0, err
			}
			row.ToID = &toID
		} else {
			contractID, err := resolve(*receipt.ContractAddress, model.AddressContract, true)
			if err != nil {
				return 0, err
			}
			row.ContractID = &contractID
		}
		if err := tx.InsertTransaction(ctx, row); err != nil {
			return 0, fmt.Errorf("insert transaction %s: %w", transaction.Hash, err)
		}
	}

	for _, address := range delta.changed() {
		id, ok := ids[address]
		if !ok {
			// premine recipients are first seen here
			if id, err = resolve(address, model.AddressNormal, false); err != nil {
				return 0, err
			}
		}
		previous, _, err := tx.LatestBalanceBefore(ctx, id, block.Height)
		if err != nil {
			return 0, fmt.Errorf("load balance of %s: %w", address, err)
		}
		balance := new(big.Int).Add(orZero(previous), delta[address])
		if balance.Sign() < 0 {
			return 0, fmt.Errorf("balance of %s would drop to %s at block %s: %w",
				address, balance, block.Hash, model.ErrIllegalLedgerState)
		}
		if err := tx.InsertBalance(ctx, model.BalanceSnapshot{BlockID: blockID, AddressID: id, Balance: balance}); err != nil {
			return 0, fmt.Errorf("insert balance of %s: %w", address, err)
		}
	}

	return blockID, nil
}
