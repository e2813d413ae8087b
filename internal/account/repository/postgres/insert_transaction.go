package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/goodnatureofminers/blockinsight7000-ledger/pkg/safe"
)

// InsertTransaction stores a transaction with its resolved address ids.
func (t *ledgerTx) InsertTransaction(ctx context.Context, row chain.TransactionRow) error {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("insert_transaction", err, start)
	}()

	if (row.ToID == nil) == (row.ContractID == nil) {
		err = fmt.Errorf("%w: transaction %s must have exactly one of recipient or created contract",
			model.ErrIllegalLedgerState, row.Tx.Hash.Hex())
		return err
	}
	index, err := safe.Int64(row.Tx.Index)
	if err != nil {
		return fmt.Errorf("transaction %s index: %w", row.Tx.Hash.Hex(), err)
	}

	const query = `
INSERT INTO transactions (block_id, tx_index, hash, from_id, to_id, contract_id, value, gas, gas_used, gas_price, nonce, input)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	if _, err = t.q.Exec(ctx, query,
		row.BlockID,
		index,
		row.Tx.Hash.Bytes(),
		row.FromID,
		row.ToID,
		row.ContractID,
		numeric(row.Tx.Value),
		numeric(row.Tx.Gas),
		numeric(row.GasUsed),
		numeric(row.Tx.GasPrice),
		numeric(row.Tx.Nonce),
		nonNil(row.Tx.Input),
	); err != nil {
		return fmt.Errorf("insert transaction %s: %w", row.Tx.Hash.Hex(), err)
	}
	return nil
}
