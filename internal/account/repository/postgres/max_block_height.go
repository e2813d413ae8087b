package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// MaxBlockHeight returns the greatest canonical height stored. The flag is false when storage holds no blocks.
func (r *Repository) MaxBlockHeight(ctx context.Context) (*big.Int, bool, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("max_block_height", err, start)
	}()

	const query = `
SELECT max(height) AS max_height
FROM blocks
WHERE NOT forked`

	var height pgtype.Numeric
	if err = r.pool.QueryRow(ctx, query).Scan(&height); err != nil {
		return nil, false, fmt.Errorf("query max block height: %w", err)
	}
	if !height.Valid {
		return nil, false, nil
	}

	value, err := bigInt(height)
	if err != nil {
		return nil, false, fmt.Errorf("decode max block height: %w", err)
	}
	return value, true, nil
}
