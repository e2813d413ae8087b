package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"
)

// MarkForkedFrom forks every canonical row at height or above and returns the number of rows changed.
func (t *ledgerTx) MarkForkedFrom(ctx context.Context, height *big.Int) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("mark_forked_from", err, start)
	}()

	const query = `
UPDATE blocks
SET forked = TRUE
WHERE height >= $1 AND NOT forked`

	tag, err := t.q.Exec(ctx, query, numeric(height))
	if err != nil {
		return 0, fmt.Errorf("mark blocks forked from %s: %w", height.String(), err)
	}
	return tag.RowsAffected(), nil
}

// MarkForkedAt forks every canonical row at height and returns the number of rows changed.
func (t *ledgerTx) MarkForkedAt(ctx context.Context, height *big.Int) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("mark_forked_at", err, start)
	}()

	const query = `
UPDATE blocks
SET forked = TRUE
WHERE height = $1 AND NOT forked`

	tag, err := t.q.Exec(ctx, query, numeric(height))
	if err != nil {
		return 0, fmt.Errorf("mark blocks forked at %s: %w", height.String(), err)
	}
	return tag.RowsAffected(), nil
}

// MarkCanonical forks the siblings of blockID at height, then makes blockID canonical.
// Siblings go first so the canonical height index never sees two live rows.
func (t *ledgerTx) MarkCanonical(ctx context.Context, height *big.Int, blockID int64) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("mark_canonical", err, start)
	}()

	const forkSiblings = `
UPDATE blocks
SET forked = TRUE
WHERE height = $1 AND id <> $2 AND NOT forked`

	const restore = `
UPDATE blocks
SET forked = FALSE
WHERE height = $1 AND id = $2 AND forked`

	forkedTag, err := t.q.Exec(ctx, forkSiblings, numeric(height), blockID)
	if err != nil {
		return 0, fmt.Errorf("fork siblings at %s: %w", height.String(), err)
	}
	restoredTag, err := t.q.Exec(ctx, restore, numeric(height), blockID)
	if err != nil {
		return 0, fmt.Errorf("restore block %d: %w", blockID, err)
	}
	return forkedTag.RowsAffected() + restoredTag.RowsAffected(), nil
}
