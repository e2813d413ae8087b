package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
)

const headsBuffer = 16

// SubscribeNewBlocks emits every block from height from onwards as the node reports new heads.
// Push-capable transports use a newHeads subscription, HTTP endpoints are polled.
// When the node reports a different head at an already emitted height, that head is emitted again.
func (s *Source) SubscribeNewBlocks(ctx context.Context, from *big.Int) (chain.Subscription, error) {
	if from == nil || from.Sign() < 0 {
		return nil, fmt.Errorf("invalid feed start height %v", from)
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &feed{
		source: s,
		next:   new(big.Int).Set(from),
		blocks: make(chan *model.Block),
		errs:   make(chan error, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if !s.client.SupportsSubscriptions() {
		go f.poll(ctx, s.pollInterval)
		return f, nil
	}

	heads := make(chan *rpcHeader, headsBuffer)
	sub, err := s.client.EthSubscribe(ctx, heads, "newHeads")
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe newHeads: %w", err)
	}
	go f.push(ctx, sub, heads)
	return f, nil
}

type feed struct {
	source   *Source
	next     *big.Int
	lastHash common.Hash

	blocks chan *model.Block
	errs   chan error
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (f *feed) Blocks() <-chan *model.Block { return f.blocks }

func (f *feed) Err() <-chan error { return f.errs }

// Unsubscribe stops the feed and waits for its goroutine to exit.
func (f *feed) Unsubscribe() {
	f.once.Do(f.cancel)
	<-f.done
}

func (f *feed) push(ctx context.Context, sub *rpc.ClientSubscription, heads <-chan *rpcHeader) {
	defer f.finish()
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("newHeads subscription closed by node")
			}
			f.fail(ctx, err)
			return
		case head := <-heads:
			if head == nil || head.Number == nil {
				continue
			}
			if err := f.advance(ctx, head.Number.ToInt(), head.Hash); err != nil {
				f.fail(ctx, err)
				return
			}
		}
	}
}

func (f *feed) poll(ctx context.Context, interval time.Duration) {
	defer f.finish()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		head, err := f.source.HeadHeight(ctx)
		if err == nil {
			err = f.advance(ctx, head, common.Hash{})
		}
		if err != nil {
			f.fail(ctx, err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// advance emits the blocks between the next expected height and head.
// A zero headHash means the head is fetched by height.
func (f *feed) advance(ctx context.Context, head *big.Int, headHash common.Hash) error {
	if head.Cmp(f.next) < 0 {
		return f.replaceHead(ctx, head, headHash)
	}

	for f.next.Cmp(head) <= 0 {
		var (
			block *model.Block
			err   error
		)
		if f.next.Cmp(head) == 0 && headHash != (common.Hash{}) {
			block, err = f.source.BlockByHash(ctx, headHash)
		} else {
			block, err = f.source.BlockByHeight(ctx, f.next)
		}
		if err != nil {
			return err
		}
		if !f.emit(ctx, block) {
			return nil
		}
	}
	return nil
}

// replaceHead re-emits a head at an already emitted height when the node switched to a different block.
func (f *feed) replaceHead(ctx context.Context, head *big.Int, headHash common.Hash) error {
	if headHash != (common.Hash{}) && headHash == f.lastHash {
		return nil
	}

	var (
		block *model.Block
		err   error
	)
	if headHash != (common.Hash{}) {
		block, err = f.source.BlockByHash(ctx, headHash)
	} else {
		block, err = f.source.BlockByHeight(ctx, head)
	}
	if err != nil {
		return err
	}
	if block.Hash == f.lastHash {
		return nil
	}
	f.emit(ctx, block)
	return nil
}

func (f *feed) emit(ctx context.Context, block *model.Block) bool {
	select {
	case <-ctx.Done():
		return false
	case f.blocks <- block:
		f.next = new(big.Int).Add(block.Height, big.NewInt(1))
		f.lastHash = block.Hash
		return true
	}
}

func (f *feed) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	f.errs <- err
}

func (f *feed) finish() {
	close(f.blocks)
	close(f.done)
}
