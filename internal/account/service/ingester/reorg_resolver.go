package ingester

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"go.uber.org/zap"
)

type ancestorState int

const (
	ancestorMissing ancestorState = iota
	ancestorStored
	ancestorDuplicated
)

func classifyAncestor(rows []model.StoredBlock) ancestorState {
	switch len(rows) {
	case 0:
		return ancestorMissing
	case 1:
		return ancestorStored
	default:
		return ancestorDuplicated
	}
}

type reorgResolver struct {
	source   NodeSource
	fetcher  BlockFetcher
	inserter BlockInserter
	logger   *zap.Logger
}

// NewReorgResolver returns a Reconciler that repairs the canonical chain below an incoming block.
func NewReorgResolver(source NodeSource, fetcher BlockFetcher, inserter BlockInserter, logger *zap.Logger) Reconciler {
	return &reorgResolver{
		source:   source,
		fetcher:  fetcher,
		inserter: inserter,
		logger:   logger.Named("reorg_resolver"),
	}
}

// Reconcile makes the stored chain end in the block with parentHash at height-1, so a block at
// height with that parent can be inserted as canonical. Everything stored at height or above is
// forked first. Ancestors the node knows but storage lacks are fetched by hash and inserted in
// ascending order. Nothing is committed here.
func (r *reorgResolver) Reconcile(
	ctx context.Context,
	tx chain.LedgerTx,
	addresses AddressResolver,
	height *big.Int,
	parentHash common.Hash,
) (ReorgSummary, error) {
	var summary ReorgSummary

	stale, err := tx.MarkForkedFrom(ctx, height)
	if err != nil {
		return summary, fmt.Errorf("fork blocks from height %s: %w", height, err)
	}
	summary.Flipped += stale

	var missing []*model.Block
	expected := parentHash
	for h := prev(height); h.Sign() >= 0; h = prev(h) {
		rows, err := tx.BlocksByHeightAndHash(ctx, h, expected)
		if err != nil {
			return summary, fmt.Errorf("load ancestor %s at height %s: %w", expected, h, err)
		}

		switch classifyAncestor(rows) {
		case ancestorDuplicated:
			return summary, fmt.Errorf("block %s stored %d times at height %s: %w",
				expected, len(rows), h, model.ErrStorageInconsistency)

		case ancestorStored:
			flipped, err := tx.MarkCanonical(ctx, h, rows[0].ID)
			if err != nil {
				return summary, fmt.Errorf("restore block %s at height %s: %w", expected, h, err)
			}
			summary.Flipped += flipped
			if flipped == 0 {
				return r.backfill(ctx, tx, addresses, missing, summary)
			}
			expected = rows[0].ParentHash

		case ancestorMissing:
			block, err := r.source.BlockByHash(ctx, expected)
			if err != nil {
				if errors.Is(err, model.ErrNotFound) {
					return summary, fmt.Errorf("ancestor %s at height %s: %w: %w", expected, h, model.ErrIncompleteLedgerData, err)
				}
				return summary, fmt.Errorf("fetch ancestor %s: %w", expected, err)
			}
			if block.Height.Cmp(h) != 0 {
				return summary, fmt.Errorf("ancestor %s served at height %s, want %s: %w",
					expected, block.Height, h, model.ErrIllegalLedgerState)
			}
			forked, err := tx.MarkForkedAt(ctx, h)
			if err != nil {
				return summary, fmt.Errorf("fork blocks at height %s: %w", h, err)
			}
			summary.Flipped += forked
			missing = append(missing, block)
			expected = block.ParentHash
		}
	}

	return r.backfill(ctx, tx, addresses, missing, summary)
}

// backfill inserts missing ancestors, collected walking down, from the lowest one up.
func (r *reorgResolver) backfill(
	ctx context.Context,
	tx chain.LedgerTx,
	addresses AddressResolver,
	missing []*model.Block,
	summary ReorgSummary,
) (ReorgSummary, error) {
	for i := len(missing) - 1; i >= 0; i-- {
		block := missing[i]
		bundle, err := r.fetcher.Fetch(ctx, block)
		if err != nil {
			return summary, fmt.Errorf("fetch ancestor %s contents: %w", block.Hash, err)
		}
		if _, err := r.inserter.Insert(ctx, tx, addresses, bundle); err != nil {
			return summary, fmt.Errorf("insert ancestor %s at height %s: %w", block.Hash, block.Height, err)
		}
		summary.Backfilled++
	}

	if summary.Flipped > 0 || summary.Backfilled > 0 {
		r.logger.Info("chain reorganized",
			zap.Int64("flipped", summary.Flipped),
			zap.Int("backfilled", summary.Backfilled),
		)
	}
	return summary, nil
}

func prev(height *big.Int) *big.Int {
	return new(big.Int).Sub(height, big.NewInt(1))
}
