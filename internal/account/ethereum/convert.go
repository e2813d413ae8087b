package ethereum

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/goodnatureofminers/blockinsight7000-ledger/pkg/safe"
)

func convertBlock(raw *rpcBlock) (*model.Block, error) {
	if err := validateHeader(raw); err != nil {
		return nil, err
	}
	ts, err := timestamp(raw.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", raw.Hash.Hex(), err)
	}

	block := &model.Block{
		Height:       bigOrZero(raw.Number),
		Hash:         raw.Hash,
		ParentHash:   raw.ParentHash,
		Timestamp:    ts,
		Miner:        raw.Miner,
		Difficulty:   bigOrZero(raw.Difficulty),
		GasLimit:     bigOrZero(raw.GasLimit),
		GasUsed:      bigOrZero(raw.GasUsed),
		ExtraData:    raw.ExtraData,
		Nonce:        raw.Nonce,
		Size:         uint64(raw.Size),
		UncleHashes:  raw.Uncles,
		Transactions: make([]model.Transaction, 0, len(raw.Transactions)),
	}

	for i, tx := range raw.Transactions {
		converted, err := convertTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("block %s transaction %d: %w", raw.Hash.Hex(), i, err)
		}
		index, err := safe.Uint64(i)
		if err != nil {
			return nil, err
		}
		if converted.Index != index {
			return nil, fmt.Errorf("block %s transaction %s: index %d at position %d",
				raw.Hash.Hex(), tx.Hash.Hex(), converted.Index, i)
		}
		block.Transactions = append(block.Transactions, converted)
	}
	return block, nil
}

func convertUncle(raw *rpcBlock, index int) (*model.UncleBlock, error) {
	if err := validateHeader(raw); err != nil {
		return nil, err
	}
	ts, err := timestamp(raw.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("uncle %s: %w", raw.Hash.Hex(), err)
	}
	return &model.UncleBlock{
		Height:     bigOrZero(raw.Number),
		Index:      index,
		Hash:       raw.Hash,
		ParentHash: raw.ParentHash,
		Timestamp:  ts,
		Miner:      raw.Miner,
		Difficulty: bigOrZero(raw.Difficulty),
		GasLimit:   bigOrZero(raw.GasLimit),
		GasUsed:    bigOrZero(raw.GasUsed),
		ExtraData:  raw.ExtraData,
		Nonce:      raw.Nonce,
		Size:       uint64(raw.Size),
	}, nil
}

func convertTransaction(raw rpcTransaction) (model.Transaction, error) {
	if raw.Hash == (common.Hash{}) {
		return model.Transaction{}, errors.New("transaction hash is missing")
	}
	return model.Transaction{
		Index:    uint64(raw.TransactionIndex),
		Hash:     raw.Hash,
		From:     raw.From,
		To:       raw.To,
		Value:    bigOrZero(raw.Value),
		Gas:      bigOrZero(raw.Gas),
		GasPrice: bigOrZero(raw.GasPrice),
		Nonce:    bigOrZero(raw.Nonce),
		Input:    raw.Input,
	}, nil
}

func convertReceipt(raw *rpcReceipt) (*model.Receipt, error) {
	if raw.GasUsed == nil {
		return nil, fmt.Errorf("receipt %s has no gas used", raw.TransactionHash.Hex())
	}
	return &model.Receipt{
		TxHash:          raw.TransactionHash,
		ContractAddress: raw.ContractAddress,
		GasUsed:         raw.GasUsed.ToInt(),
	}, nil
}

func validateHeader(raw *rpcBlock) error {
	if raw.Number == nil {
		return errors.New("block number is missing")
	}
	if raw.Hash == (common.Hash{}) {
		return errors.New("block hash is missing")
	}
	if raw.Number.ToInt().Sign() < 0 {
		return fmt.Errorf("block %s has negative number", raw.Hash.Hex())
	}
	return nil
}

func bigOrZero(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.ToInt())
}

func timestamp(v hexutil.Uint64) (time.Time, error) {
	sec, err := safe.Int64(uint64(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	return time.Unix(sec, 0).UTC(), nil
}
