// Package ethereum reads account-ledger data from an Ethereum-style JSON-RPC node.
package ethereum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/goodnatureofminers/blockinsight7000-ledger/pkg/safe"
)

// DefaultPollInterval is used by polling feeds when no interval is configured.
const DefaultPollInterval = time.Second

type (
	// Client is the JSON-RPC surface the source needs. *rpc.Client and gethrpc.ObservedClient satisfy it.
	Client interface {
		CallContext(ctx context.Context, result any, method string, args ...any) error
		EthSubscribe(ctx context.Context, channel any, args ...any) (*rpc.ClientSubscription, error)
		SupportsSubscriptions() bool
	}
)

// Source implements chain.Source over JSON-RPC.
type Source struct {
	client       Client
	pollInterval time.Duration
}

var _ chain.Source = (*Source)(nil)

func NewSource(client Client, pollInterval time.Duration) *Source {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Source{client: client, pollInterval: pollInterval}
}

func (s *Source) HeadHeight(ctx context.Context) (*big.Int, error) {
	var head hexutil.Big
	if err := s.client.CallContext(ctx, &head, "eth_blockNumber"); err != nil {
		return nil, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return head.ToInt(), nil
}

// IsSyncing reports whether the node is still importing the chain. The node answers false or a progress object.
func (s *Source) IsSyncing(ctx context.Context) (bool, error) {
	var raw json.RawMessage
	if err := s.client.CallContext(ctx, &raw, "eth_syncing"); err != nil {
		return false, fmt.Errorf("eth_syncing: %w", err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("false")) || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}
	return true, nil
}

func (s *Source) BlockByHeight(ctx context.Context, height *big.Int) (*model.Block, error) {
	var raw *rpcBlock
	if err := s.client.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeBig(height), true); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %s: %w", height.String(), err)
	}
	if raw == nil {
		return nil, fmt.Errorf("block at height %s: %w", height.String(), model.ErrNotFound)
	}
	block, err := convertBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("convert block at height %s: %w", height.String(), err)
	}
	if block.Height.Cmp(height) != 0 {
		return nil, fmt.Errorf("node returned height %s for requested height %s", block.Height.String(), height.String())
	}
	return block, nil
}

func (s *Source) BlockByHash(ctx context.Context, hash common.Hash) (*model.Block, error) {
	var raw *rpcBlock
	if err := s.client.CallContext(ctx, &raw, "eth_getBlockByHash", hash, true); err != nil {
		return nil, fmt.Errorf("eth_getBlockByHash %s: %w", hash.Hex(), err)
	}
	if raw == nil {
		return nil, fmt.Errorf("block %s: %w", hash.Hex(), model.ErrNotFound)
	}
	block, err := convertBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("convert block %s: %w", hash.Hex(), err)
	}
	if block.Hash != hash {
		return nil, fmt.Errorf("node returned block %s for requested hash %s", block.Hash.Hex(), hash.Hex())
	}
	return block, nil
}

func (s *Source) UncleByBlockHashAndIndex(ctx context.Context, hash common.Hash, index int) (*model.UncleBlock, error) {
	position, err := safe.Uint64(index)
	if err != nil {
		return nil, fmt.Errorf("uncle index: %w", err)
	}

	var raw *rpcBlock
	if err := s.client.CallContext(ctx, &raw, "eth_getUncleByBlockHashAndIndex", hash, hexutil.Uint64(position)); err != nil {
		return nil, fmt.Errorf("eth_getUncleByBlockHashAndIndex %s/%d: %w", hash.Hex(), index, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("uncle %d of block %s: %w", index, hash.Hex(), model.ErrNotFound)
	}
	uncle, err := convertUncle(raw, index)
	if err != nil {
		return nil, fmt.Errorf("convert uncle %d of block %s: %w", index, hash.Hex(), err)
	}
	return uncle, nil
}

func (s *Source) TransactionReceipt(ctx context.Context, txHash common.Hash) (*model.Receipt, error) {
	var raw *rpcReceipt
	if err := s.client.CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt %s: %w", txHash.Hex(), err)
	}
	if raw == nil {
		return nil, fmt.Errorf("receipt %s: %w", txHash.Hex(), model.ErrNotFound)
	}
	receipt, err := convertReceipt(raw)
	if err != nil {
		return nil, fmt.Errorf("convert receipt %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}
