package ingester

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
)

// deltas holds the net balance change of every address touched by one block.
type deltas map[common.Address]*big.Int

func (d deltas) add(address common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		if _, ok := d[address]; !ok {
			d[address] = new(big.Int)
		}
		return
	}
	cur, ok := d[address]
	if !ok {
		d[address] = new(big.Int).Set(amount)
		return
	}
	cur.Add(cur, amount)
}

func (d deltas) sub(address common.Address, amount *big.Int) {
	if amount == nil {
		d.add(address, nil)
		return
	}
	d.add(address, new(big.Int).Neg(amount))
}

// changed returns the addresses with a non-zero delta in byte order.
func (d deltas) changed() []common.Address {
	out := make([]common.Address, 0, len(d))
	for address, delta := range d {
		if delta.Sign() != 0 {
			out = append(out, address)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// total is the sum of all deltas, i.e. the coins the block created.
func (d deltas) total() *big.Int {
	sum := new(big.Int)
	for _, delta := range d {
		sum.Add(sum, delta)
	}
	return sum
}

// blockDeltas computes the balance changes caused by bundle.
// The genesis block credits premine and pays no reward. Any other block pays reward to its
// miner, (u+8-b)*reward/8 to the miner of each uncle at height u and a further reward/32 per
// uncle to its own miner. Every transaction moves its value from sender to target and its fee,
// gas used times gas price, from sender to the block miner.
func blockDeltas(bundle model.InsertBlock, reward *big.Int, premine map[common.Address]*big.Int) (deltas, error) {
	block := bundle.Block
	d := make(deltas)

	if block.IsGenesis() {
		for address, amount := range premine {
			d.add(address, amount)
		}
	} else {
		d.add(block.Miner, reward)
		for _, uncle := range bundle.Uncles {
			share, err := uncleReward(block.Height, uncle.Height, reward)
			if err != nil {
				return nil, fmt.Errorf("uncle %s of block %s: %w", uncle.Hash, block.Hash, err)
			}
			d.add(uncle.Miner, share)
			d.add(block.Miner, new(big.Int).Div(reward, big.NewInt(32)))
		}
	}

	if len(bundle.Receipts) != len(block.Transactions) {
		return nil, fmt.Errorf("block %s has %d transactions and %d receipts: %w",
			block.Hash, len(block.Transactions), len(bundle.Receipts), model.ErrIncompleteLedgerData)
	}
	for i, tx := range block.Transactions {
		receipt := bundle.Receipts[i]
		target, err := transactionTarget(tx, receipt)
		if err != nil {
			return nil, err
		}
		fee := new(big.Int).Mul(orZero(receipt.GasUsed), orZero(tx.GasPrice))
		d.sub(tx.From, new(big.Int).Add(orZero(tx.Value), fee))
		d.add(target, tx.Value)
		d.add(block.Miner, fee)
	}

	return d, nil
}

func uncleReward(blockHeight, uncleHeight, reward *big.Int) (*big.Int, error) {
	factor := new(big.Int).Sub(uncleHeight, blockHeight)
	factor.Add(factor, big.NewInt(uncleDepthLimit))
	if factor.Sign() <= 0 || factor.Cmp(big.NewInt(uncleDepthLimit)) >= 0 {
		return nil, fmt.Errorf("uncle at height %s cannot be included at height %s: %w",
			uncleHeight, blockHeight, model.ErrIllegalLedgerState)
	}
	share := new(big.Int).Mul(factor, reward)
	return share.Div(share, big.NewInt(uncleDepthLimit)), nil
}

// transactionTarget is the recipient of a call or the account created by a contract creation.
func transactionTarget(tx model.Transaction, receipt model.Receipt) (common.Address, error) {
	switch {
	case tx.To != nil:
		return *tx.To, nil
	case receipt.ContractAddress != nil:
		return *receipt.ContractAddress, nil
	default:
		return common.Address{}, fmt.Errorf("transaction %s has neither recipient nor created contract: %w",
			tx.Hash, model.ErrIllegalLedgerState)
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
