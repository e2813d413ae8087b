package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/goodnatureofminers/blockinsight7000-ledger/pkg/safe"
)

// InsertUncle stores an uncle header owned by blockID.
func (t *ledgerTx) InsertUncle(ctx context.Context, blockID int64, uncle model.UncleBlock, minerID int64) error {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("insert_uncle", err, start)
	}()

	if uncle.Height.Sign() <= 0 {
		err = fmt.Errorf("%w: uncle %s at height %s", model.ErrIllegalLedgerState, uncle.Hash.Hex(), uncle.Height.String())
		return err
	}
	size, err := safe.Int64(uncle.Size)
	if err != nil {
		return fmt.Errorf("uncle %s size: %w", uncle.Hash.Hex(), err)
	}

	const query = `
INSERT INTO uncle_blocks (block_id, uncle_index, height, hash, parent_height, parent_hash, timestamp, miner_id, difficulty, gas_limit, gas_used, extra_data, nonce, size)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	parentHeight := new(big.Int).Sub(uncle.Height, big.NewInt(1))
	if _, err = t.q.Exec(ctx, query,
		blockID,
		int16(uncle.Index),
		numeric(uncle.Height),
		uncle.Hash.Bytes(),
		numeric(parentHeight),
		uncle.ParentHash.Bytes(),
		uncle.Timestamp,
		minerID,
		numeric(uncle.Difficulty),
		numeric(uncle.GasLimit),
		numeric(uncle.GasUsed),
		nonNil(uncle.ExtraData),
		nonNil(uncle.Nonce),
		size,
	); err != nil {
		return fmt.Errorf("insert uncle %s: %w", uncle.Hash.Hex(), err)
	}
	return nil
}
