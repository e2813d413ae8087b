package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/goodnatureofminers/blockinsight7000-ledger/pkg/safe"
	"github.com/jackc/pgx/v5"
)

const insertGenesisBlockQuery = `
INSERT INTO blocks (height, hash, parent_hash, parent_id, timestamp, miner_id, difficulty, gas_limit, gas_used, extra_data, nonce, size)
SELECT $1::numeric, $2::bytea, $3::bytea, NULL, $4::timestamptz, $5::bigint, $6::numeric, $7::numeric, $8::numeric, $9::bytea, $10::bytea, $11::bigint
WHERE NOT EXISTS (SELECT 1 FROM blocks d WHERE d.height = $1::numeric AND d.hash = $2::bytea)
RETURNING id`

// The parent row is looked up by (height-1, parent hash) among canonical rows, so an orphan inserts nothing.
const insertChildBlockQuery = `
INSERT INTO blocks (height, hash, parent_hash, parent_id, timestamp, miner_id, difficulty, gas_limit, gas_used, extra_data, nonce, size)
SELECT $1::numeric, $2::bytea, $3::bytea, p.id, $4::timestamptz, $5::bigint, $6::numeric, $7::numeric, $8::numeric, $9::bytea, $10::bytea, $11::bigint
FROM blocks p
WHERE p.height = $1::numeric - 1 AND p.hash = $3::bytea AND NOT p.forked
  AND NOT EXISTS (SELECT 1 FROM blocks d WHERE d.height = $1::numeric AND d.hash = $2::bytea)
RETURNING id`

// InsertBlock stores the block row linked to its canonical parent and returns the generated id.
// It fails with model.ErrIllegalLedgerState when the parent is missing or the block is already stored.
func (t *ledgerTx) InsertBlock(ctx context.Context, block model.Block, minerID int64) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("insert_block", err, start)
	}()

	size, err := safe.Int64(block.Size)
	if err != nil {
		return 0, fmt.Errorf("block %s size: %w", block.Hash.Hex(), err)
	}

	query := insertChildBlockQuery
	if block.IsGenesis() {
		query = insertGenesisBlockQuery
	}

	var id int64
	err = t.q.QueryRow(ctx, query,
		numeric(block.Height),
		block.Hash.Bytes(),
		block.ParentHash.Bytes(),
		block.Timestamp,
		minerID,
		numeric(block.Difficulty),
		numeric(block.GasLimit),
		numeric(block.GasUsed),
		nonNil(block.ExtraData),
		nonNil(block.Nonce),
		size,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = fmt.Errorf("%w: block %s at %s has no canonical parent %s or is already stored",
			model.ErrIllegalLedgerState, block.Hash.Hex(), block.Height.String(), block.ParentHash.Hex())
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("insert block %s: %w", block.Hash.Hex(), err)
	}
	return id, nil
}

// nonNil keeps NOT NULL bytea columns from receiving NULL for empty payloads.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
