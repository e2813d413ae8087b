package metrics

import (
	"time"

	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc_client",
		Name:      "operations_total",
		Help:      "Count of node RPC operations.",
	}, []string{"operation", "coin", "network", "status"})
	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc_client",
		Name:      "operation_duration_seconds",
		Help:      "Duration of node RPC operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "coin", "network", "status"})
)

// RPCClient tracks metrics for RPC calls to the ledger node.
type RPCClient struct {
	coin    string
	network string
}

// NewRPCClient constructs a metrics collector for RPC calls.
func NewRPCClient(coin model.Coin, network model.Network) *RPCClient {
	c, n := chainLabels(coin, network)
	return &RPCClient{coin: c, network: n}
}

// Observe records a single RPC call outcome and duration.
func (m RPCClient) Observe(operation string, err error, started time.Time) {
	s := status(err)
	rpcRequestsTotal.WithLabelValues(operation, m.coin, m.network, s).Inc()
	rpcRequestDuration.WithLabelValues(operation, m.coin, m.network, s).Observe(time.Since(started).Seconds())
}
