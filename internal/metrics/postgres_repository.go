package metrics

import (
	"time"

	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	postgresRepositoryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "postgres_repository",
		Name:      "operations_total",
		Help:      "Count of repository operations.",
	}, []string{"operation", "coin", "network", "status"})
	postgresRepositoryRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "postgres_repository",
		Name:      "operation_duration_seconds",
		Help:      "Duration of repository operations.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"operation", "coin", "network", "status"})
)

// PostgresRepository tracks metrics for PostgreSQL repository operations.
type PostgresRepository struct {
	coin    string
	network string
}

// NewPostgresRepository creates a PostgresRepository metrics collector.
func NewPostgresRepository(coin model.Coin, network model.Network) *PostgresRepository {
	c, n := chainLabels(coin, network)
	return &PostgresRepository{coin: c, network: n}
}

// Observe records duration and status of a repository operation.
func (m PostgresRepository) Observe(operation string, err error, started time.Time) {
	s := status(err)
	postgresRepositoryRequestsTotal.WithLabelValues(operation, m.coin, m.network, s).Inc()
	postgresRepositoryRequestDuration.WithLabelValues(operation, m.coin, m.network, s).Observe(time.Since(started).Seconds())
}
