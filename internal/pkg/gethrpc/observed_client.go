// Package gethrpc wraps the go-ethereum JSON-RPC client with metrics and request throttling.
package gethrpc

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/ratelimit"
)

type (
	RPCMetrics interface {
		Observe(operation string, err error, started time.Time)
	}
)

type ObservedClient struct {
	client     *rpc.Client
	limiter    ratelimit.Limiter
	rpcMetrics RPCMetrics
	timeout    time.Duration
}

// NewObservedClient wraps client. rps limits outgoing calls per second, zero or less disables the limit.
func NewObservedClient(client *rpc.Client, rps int, rpcMetrics RPCMetrics) *ObservedClient {
	limiter := ratelimit.NewUnlimited()
	if rps > 0 {
		limiter = ratelimit.New(rps)
	}
	return &ObservedClient{
		client:     client,
		limiter:    limiter,
		rpcMetrics: rpcMetrics,
	}
}

// WithCallTimeout bounds every CallContext by d. Subscriptions are not affected.
func (r *ObservedClient) WithCallTimeout(d time.Duration) *ObservedClient {
	r.timeout = d
	return r
}

func (r *ObservedClient) CallContext(ctx context.Context, result any, method string, args ...any) (err error) {
	r.limiter.Take()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	started := time.Now()
	defer func() {
		r.rpcMetrics.Observe(method, err, started)
	}()
	return r.client.CallContext(ctx, result, method, args...)
}

func (r *ObservedClient) EthSubscribe(ctx context.Context, channel any, args ...any) (sub *rpc.ClientSubscription, err error) {
	started := time.Now()
	defer func() {
		r.rpcMetrics.Observe("eth_subscribe", err, started)
	}()
	return r.client.EthSubscribe(ctx, channel, args...)
}

// SupportsSubscriptions reports whether the underlying transport can push notifications.
func (r *ObservedClient) SupportsSubscriptions() bool {
	return r.client.SupportsSubscriptions()
}

func (r *ObservedClient) Close() {
	r.client.Close()
}
