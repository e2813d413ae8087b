package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// LatestBalanceBefore returns the newest canonical snapshot of addressID strictly below height.
// The flag is false when the address has no such snapshot.
func (t *ledgerTx) LatestBalanceBefore(ctx context.Context, addressID int64, height *big.Int) (*big.Int, bool, error) {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("latest_balance_before", err, start)
	}()

	const query = `
SELECT bal.balance
FROM balances bal
JOIN blocks b ON b.id = bal.block_id
WHERE bal.address_id = $1 AND b.height < $2 AND NOT b.forked
ORDER BY b.height DESC
LIMIT 1`

	var balance pgtype.Numeric
	err = t.q.QueryRow(ctx, query, addressID, numeric(height)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query balance of address %d: %w", addressID, err)
	}

	value, err := bigInt(balance)
	if err != nil {
		return nil, false, fmt.Errorf("decode balance of address %d: %w", addressID, err)
	}
	return value, true, nil
}

// InsertBalance writes the absolute balance of an address after a block.
func (t *ledgerTx) InsertBalance(ctx context.Context, snapshot model.BalanceSnapshot) error {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("insert_balance", err, start)
	}()

	if snapshot.Balance == nil || snapshot.Balance.Sign() < 0 {
		err = fmt.Errorf("%w: balance of address %d at block %d is negative",
			model.ErrIllegalLedgerState, snapshot.AddressID, snapshot.BlockID)
		return err
	}

	const query = `
INSERT INTO balances (block_id, address_id, balance)
VALUES ($1, $2, $3)`

	if _, err = t.q.Exec(ctx, query, snapshot.BlockID, snapshot.AddressID, numeric(snapshot.Balance)); err != nil {
		return fmt.Errorf("insert balance of address %d: %w", snapshot.AddressID, err)
	}
	return nil
}
