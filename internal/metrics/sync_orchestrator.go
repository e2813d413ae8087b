package metrics

import (
	"math/big"
	"time"

	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_orchestrator",
		Name:      "blocks_total",
		Help:      "Count of blocks processed by phase and outcome.",
	}, []string{"coin", "network", "phase", "status"})

	syncBlockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync_orchestrator",
		Name:      "block_duration_seconds",
		Help:      "Duration of processing one block, reorg repair included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"coin", "network", "phase", "status"})

	syncForkedRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_orchestrator",
		Name:      "forked_rows_total",
		Help:      "Count of block rows whose canonical flag was flipped by reorg repair.",
	}, []string{"coin", "network"})

	syncBackfilledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_orchestrator",
		Name:      "backfilled_ancestors_total",
		Help:      "Count of missing ancestors fetched during reorg repair.",
	}, []string{"coin", "network"})

	syncDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_orchestrator",
		Name:      "dropped_blocks_total",
		Help:      "Count of real-time blocks dropped after exhausting retries.",
	}, []string{"coin", "network"})

	syncResubscribeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_orchestrator",
		Name:      "resubscriptions_total",
		Help:      "Count of new-block feed resubscriptions.",
	}, []string{"coin", "network"})

	syncState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync_orchestrator",
		Name:      "state",
		Help:      "Current orchestrator state, 1 for the active state.",
	}, []string{"coin", "network", "state"})

	syncHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync_orchestrator",
		Name:      "height",
		Help:      "Latest inserted height and catch-up target height.",
	}, []string{"coin", "network", "kind"})
)

// SyncOrchestrator tracks progress of the ledger sync.
type SyncOrchestrator struct {
	coin    string
	network string
	states  []string
}

// NewSyncOrchestrator constructs a collector. states lists every state name so the gauge can be reset on change.
func NewSyncOrchestrator(coin model.Coin, network model.Network, states ...string) *SyncOrchestrator {
	c, n := chainLabels(coin, network)
	return &SyncOrchestrator{coin: c, network: n, states: states}
}

// ObserveBlock records one processed block.
func (m SyncOrchestrator) ObserveBlock(phase string, err error, started time.Time) {
	s := status(err)
	syncBlocksTotal.WithLabelValues(m.coin, m.network, phase, s).Inc()
	syncBlockDuration.WithLabelValues(m.coin, m.network, phase, s).Observe(time.Since(started).Seconds())
}

// ObserveReorg records rows flipped and ancestors backfilled by one repair.
func (m SyncOrchestrator) ObserveReorg(flipped int64, backfilled int) {
	syncForkedRowsTotal.WithLabelValues(m.coin, m.network).Add(float64(flipped))
	syncBackfilledTotal.WithLabelValues(m.coin, m.network).Add(float64(backfilled))
}

func (m SyncOrchestrator) ObserveDropped() {
	syncDroppedTotal.WithLabelValues(m.coin, m.network).Inc()
}

func (m SyncOrchestrator) ObserveResubscribe() {
	syncResubscribeTotal.WithLabelValues(m.coin, m.network).Inc()
}

// SetState marks state as the active one.
func (m SyncOrchestrator) SetState(state string) {
	for _, s := range m.states {
		syncState.WithLabelValues(m.coin, m.network, s).Set(0)
	}
	syncState.WithLabelValues(m.coin, m.network, state).Set(1)
}

// SetHeights publishes the latest inserted height and the current target. A nil target leaves it unchanged.
func (m SyncOrchestrator) SetHeights(current, target *big.Int) {
	if current != nil {
		syncHeight.WithLabelValues(m.coin, m.network, "current").Set(toFloat(current))
	}
	if target != nil {
		syncHeight.WithLabelValues(m.coin, m.network, "target").Set(toFloat(target))
	}
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
