package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/jackc/pgx/v5/pgtype"
)

// BlocksByHeightAndHash returns every row stored at height with the given hash, forked rows included.
func (t *ledgerTx) BlocksByHeightAndHash(ctx context.Context, height *big.Int, hash common.Hash) ([]model.StoredBlock, error) {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("blocks_by_height_and_hash", err, start)
	}()

	const query = `
SELECT id, height, hash, parent_hash, forked
FROM blocks
WHERE height = $1 AND hash = $2
ORDER BY id`

	rows, err := t.q.Query(ctx, query, numeric(height), hash.Bytes())
	if err != nil {
		return nil, fmt.Errorf("query blocks at %s: %w", height.String(), err)
	}
	defer rows.Close()

	var blocks []model.StoredBlock
	for rows.Next() {
		var (
			block      model.StoredBlock
			h          pgtype.Numeric
			blockHash  []byte
			parentHash []byte
		)
		if err = rows.Scan(&block.ID, &h, &blockHash, &parentHash, &block.Forked); err != nil {
			return nil, fmt.Errorf("scan block: %w", err)
		}
		if block.Height, err = bigInt(h); err != nil {
			return nil, fmt.Errorf("decode block height: %w", err)
		}
		block.Hash = common.BytesToHash(blockHash)
		block.ParentHash = common.BytesToHash(parentHash)
		blocks = append(blocks, block)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}

	return blocks, nil
}
