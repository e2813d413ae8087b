package ingester

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/registry"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/clock"
	"go.uber.org/zap"
)

// ErrNodeSyncing is returned by Run when the node has not finished its own initial sync.
var ErrNodeSyncing = errors.New("node is still syncing")

// Options tunes a SyncOrchestrator. Zero values select the defaults.
type Options struct {
	BlockReward *big.Int
	Premine     map[common.Address]*big.Int
	WorkerCount int
	// RealTimeRetries is how many times a failing real-time block is retried before it is dropped.
	// A negative value disables retries.
	RealTimeRetries int
	RetryBackoff    clock.Backoff
	Listeners       []StateListener
}

// SyncOrchestrator resumes from storage, catches up to the node head and then follows new blocks.
type SyncOrchestrator struct {
	logger       *zap.Logger
	coin         model.Coin
	network      model.Network
	repo         LedgerRepository
	source       NodeSource
	metrics      SyncMetrics
	beginSession func(chain.AddressStore) AddressSession
	fetcher      BlockFetcher
	reconciler   Reconciler
	inserter     BlockInserter
	listeners    []StateListener
	sleep        func(context.Context, time.Duration) error
	retries      int
	retry        clock.Backoff
	resubscribe  clock.Backoff

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once

	// tipHeight and tipHash are the last block this run made canonical; only the Run goroutine touches them.
	tipHeight *big.Int
	tipHash   common.Hash
}

// NewSyncOrchestrator builds a SyncOrchestrator with dependencies.
func NewSyncOrchestrator(
	repo LedgerRepository,
	source NodeSource,
	addresses *registry.Registry,
	metrics SyncMetrics,
	opts Options,
	coin model.Coin,
	network model.Network,
	logger *zap.Logger,
) (*SyncOrchestrator, error) {
	logger = logger.With(
		zap.String("coin", string(coin)),
		zap.String("network", string(network)),
	)
	if metrics == nil {
		return nil, errors.New("sync orchestrator metrics is required")
	}
	if repo == nil || source == nil || addresses == nil {
		return nil, errors.New("sync orchestrator needs a repository, a node source and an address registry")
	}

	retries := opts.RealTimeRetries
	switch {
	case retries == 0:
		retries = defaultRealTimeRetries
	case retries < 0:
		retries = 0
	}

	retry := clock.Backoff{Initial: retryInitialDelay, Max: retryMaxDelay}
	if opts.RetryBackoff.Initial > 0 {
		retry = opts.RetryBackoff
	}

	fetcher := NewBlockFetcher(source, opts.WorkerCount)
	inserter := NewBlockInserter(opts.BlockReward, opts.Premine)

	o := &SyncOrchestrator{
		logger:  logger.Named("sync_orchestrator"),
		coin:    coin,
		network: network,
		repo:    repo,
		source:  source,
		metrics: metrics,
		beginSession: func(store chain.AddressStore) AddressSession {
			return addresses.Begin(store)
		},
		fetcher:     fetcher,
		inserter:    inserter,
		reconciler:  NewReorgResolver(source, fetcher, inserter, logger),
		listeners:   opts.Listeners,
		sleep:       clock.SleepWithContext,
		retries:     retries,
		retry:       retry,
		resubscribe: clock.Backoff{Initial: resubscribeInitialDelay, Max: resubscribeMaxDelay},
		stop:        make(chan struct{}),
	}
	return o, nil
}

// State returns the current lifecycle state.
func (o *SyncOrchestrator) State() State {
	return State(o.state.Load())
}

// Stop asks Run to finish. A block already inside its storage transaction is completed first.
// Stop is safe to call more than once and from any goroutine.
func (o *SyncOrchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// Run drives the orchestrator until Stop is called, ctx is canceled or a fatal error occurs.
// It returns nil when stopped and the fatal error when aborted.
func (o *SyncOrchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	if o.stopRequested() {
		o.setState(StateStopped)
		return nil
	}

	o.setState(StateResuming)
	from, err := o.resume(ctx)
	if err != nil {
		return o.abort(ctx, err)
	}
	head, err := o.source.HeadHeight(ctx)
	if err != nil {
		return o.abort(ctx, fmt.Errorf("read node head: %w", err))
	}

	if from.Cmp(head) <= 0 {
		o.setState(StateCatchingUp)
		if err := o.catchUp(ctx, from, head); err != nil {
			return o.abort(ctx, err)
		}
	}
	if ctx.Err() != nil {
		o.setState(StateStopped)
		return nil
	}

	o.setState(StateRealTime)
	if err := o.realTime(ctx, new(big.Int).Add(head, big.NewInt(1))); err != nil {
		return o.abort(ctx, err)
	}
	o.setState(StateStopped)
	return nil
}

func (o *SyncOrchestrator) stopRequested() bool {
	select {
	case <-o.stop:
		return true
	default:
		return false
	}
}

func (o *SyncOrchestrator) resume(ctx context.Context) (*big.Int, error) {
	maxHeight, found, err := o.repo.MaxBlockHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stored height: %w", err)
	}
	syncing, err := o.source.IsSyncing(ctx)
	if err != nil {
		return nil, fmt.Errorf("check node sync status: %w", err)
	}
	if syncing {
		return nil, ErrNodeSyncing
	}
	if !found {
		o.logger.Info("storage is empty, starting from genesis")
		return new(big.Int), nil
	}
	from := new(big.Int).Add(maxHeight, big.NewInt(1))
	o.logger.Info("resuming", zap.Stringer("stored_height", maxHeight), zap.Stringer("from", from))
	return from, nil
}

func (o *SyncOrchestrator) catchUp(ctx context.Context, from, head *big.Int) error {
	o.logger.Info("catching up", zap.Stringer("from", from), zap.Stringer("head", head))
	progress := newProgressEstimator(from, head, progressEvery, progressWindow)

	for h := new(big.Int).Set(from); h.Cmp(head) <= 0; h = new(big.Int).Add(h, big.NewInt(1)) {
		if ctx.Err() != nil {
			return nil
		}

		started := time.Now()
		block, err := o.source.BlockByHeight(ctx, h)
		if err != nil {
			err = incomplete(fmt.Sprintf("block at height %s", h), err)
		} else {
			err = o.processBlock(ctx, block)
		}
		o.metrics.ObserveBlock(phaseCatchUp, err, started)
		if err != nil {
			return fmt.Errorf("catch up at height %s: %w", h, err)
		}

		o.metrics.SetHeights(h, head)
		if report, ok := progress.observe(h, time.Now()); ok {
			fields := []zap.Field{
				zap.Int("processed", report.Processed),
				zap.Stringer("height", report.Height),
				zap.Stringer("head", report.Target),
				zap.Float64("percent", report.Percent),
			}
			if report.Known {
				fields = append(fields, zap.Duration("eta", report.ETA))
			}
			o.logger.Info("catch-up progress", fields...)
		}
	}

	o.logger.Info("caught up", zap.Stringer("head", head))
	return nil
}

func (o *SyncOrchestrator) realTime(ctx context.Context, from *big.Int) error {
	next := from
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		sub, err := o.source.SubscribeNewBlocks(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Warn("subscribe to new blocks failed", zap.Error(err), zap.Stringer("from", next))
		} else {
			o.logger.Info("following new blocks", zap.Stringer("from", next))
			received, err := o.consume(ctx, sub)
			sub.Unsubscribe()
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			if received {
				attempt = 0
			}
		}

		delay := o.resubscribe.Delay(attempt)
		o.logger.Warn("new block feed ended, resubscribing", zap.Duration("sleep", delay))
		o.metrics.ObserveResubscribe()
		if err := o.sleep(ctx, delay); err != nil {
			return nil
		}
		attempt++
		if o.tipHeight != nil {
			next = new(big.Int).Add(o.tipHeight, big.NewInt(1))
		}
	}
}

// consume handles blocks from sub until the feed ends or ctx is done. Only fatal errors are returned.
func (o *SyncOrchestrator) consume(ctx context.Context, sub chain.Subscription) (bool, error) {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received, nil
		case err := <-sub.Err():
			o.logger.Warn("new block feed failed", zap.Error(err))
			return received, nil
		case block, ok := <-sub.Blocks():
			if !ok {
				select {
				case err := <-sub.Err():
					o.logger.Warn("new block feed failed", zap.Error(err))
				default:
				}
				return received, nil
			}
			received = true
			if err := o.handleRealTime(ctx, block); err != nil {
				return received, err
			}
		}
	}
}

// handleRealTime processes one announced block, retrying a bounded number of times.
// Storage inconsistencies are fatal; any other failure drops the block after the last retry.
func (o *SyncOrchestrator) handleRealTime(ctx context.Context, block *model.Block) error {
	for attempt := 0; ; attempt++ {
		started := time.Now()
		err := o.processBlock(ctx, block)
		o.metrics.ObserveBlock(phaseRealTime, err, started)
		if err == nil {
			o.metrics.SetHeights(block.Height, nil)
			return nil
		}
		if errors.Is(err, model.ErrStorageInconsistency) {
			return fmt.Errorf("real-time block %s at height %s: %w", block.Hash, block.Height, err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if attempt >= o.retries {
			o.logger.Error("dropping block after retries",
				zap.Error(err),
				zap.Stringer("height", block.Height),
				zap.Stringer("hash", block.Hash),
				zap.Int("attempts", attempt+1),
			)
			o.metrics.ObserveDropped()
			return nil
		}

		delay := o.retry.Delay(attempt)
		o.logger.Warn("block processing failed, retrying",
			zap.Error(err),
			zap.Stringer("height", block.Height),
			zap.Duration("sleep", delay),
		)
		if err := o.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// processBlock fetches the contents of block and applies it in one storage transaction.
// Once the transaction begins it runs to completion even if ctx is canceled.
func (o *SyncOrchestrator) processBlock(ctx context.Context, block *model.Block) error {
	bundle, err := o.fetcher.Fetch(ctx, block)
	if err != nil {
		return fmt.Errorf("fetch block %s: %w", block.Hash, err)
	}

	var (
		session AddressSession
		summary ReorgSummary
		skipped bool
	)
	err = o.repo.WithinTx(context.WithoutCancel(ctx), func(ctx context.Context, tx chain.LedgerTx) error {
		session = o.beginSession(tx)
		summary = ReorgSummary{}
		skipped = false

		stored, err := tx.BlocksByHeightAndHash(ctx, block.Height, block.Hash)
		if err != nil {
			return fmt.Errorf("look up block %s: %w", block.Hash, err)
		}
		if len(stored) > 1 {
			return fmt.Errorf("block %s stored %d times: %w", block.Hash, len(stored), model.ErrStorageInconsistency)
		}
		if len(stored) == 1 && !stored[0].Forked {
			skipped = true
			return nil
		}

		if !o.extendsTip(block) {
			summary, err = o.reconciler.Reconcile(ctx, tx, session, block.Height, block.ParentHash)
			if err != nil {
				return fmt.Errorf("reconcile below block %s: %w", block.Hash, err)
			}
		}

		if len(stored) == 1 {
			flipped, err := tx.MarkCanonical(ctx, block.Height, stored[0].ID)
			if err != nil {
				return fmt.Errorf("restore block %s: %w", block.Hash, err)
			}
			summary.Flipped += flipped
			return nil
		}
		_, err = o.inserter.Insert(ctx, tx, session, bundle)
		return err
	})
	if err != nil {
		return err
	}
	session.Commit()

	if skipped {
		o.logger.Debug("block already stored", zap.Stringer("height", block.Height), zap.Stringer("hash", block.Hash))
		return nil
	}
	if summary.Flipped > 0 || summary.Backfilled > 0 {
		o.metrics.ObserveReorg(summary.Flipped, summary.Backfilled)
	}
	o.tipHeight = new(big.Int).Set(block.Height)
	o.tipHash = block.Hash
	return nil
}

// extendsTip reports whether block is the direct child of the last block this run stored.
func (o *SyncOrchestrator) extendsTip(block *model.Block) bool {
	if o.tipHeight == nil || block.ParentHash != o.tipHash {
		return false
	}
	return new(big.Int).Sub(block.Height, o.tipHeight).Cmp(big.NewInt(1)) == 0
}

func (o *SyncOrchestrator) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		o.setState(StateStopped)
		return nil
	}
	o.logger.Error("sync aborted", zap.Error(err))
	o.setState(StateAborted)
	return err
}

func (o *SyncOrchestrator) setState(state State) {
	previous := State(o.state.Swap(int32(state)))
	if previous != state {
		o.logger.Info("state changed", zap.Stringer("from", previous), zap.Stringer("to", state))
	}
	o.metrics.SetState(state.String())
	for _, listener := range o.listeners {
		listener.OnStateChange(state)
	}
}
