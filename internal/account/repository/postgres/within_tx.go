package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/jackc/pgx/v5"
)

// ledgerLockKey serialises ledger writers across processes sharing one database.
const ledgerLockKey int64 = 7000

// WithinTx runs fn inside one storage transaction and commits when fn succeeds.
// Any error from fn rolls the whole transaction back.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx chain.LedgerTx) error) (err error) {
	start := time.Now()
	defer func() {
		r.metrics.Observe("within_tx", err, start)
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockKey); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}

	if err = fn(ctx, &ledgerTx{q: tx, metrics: r.metrics}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ledgerTx implements chain.LedgerTx over an open transaction.
type ledgerTx struct {
	q       Querier
	metrics Metrics
}

var _ chain.LedgerTx = (*ledgerTx)(nil)
