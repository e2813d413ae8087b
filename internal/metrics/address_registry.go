package metrics

import (
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var addressRegistryLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "address_registry",
	Name:      "lookups_total",
	Help:      "Count of address lookups by outcome.",
}, []string{"coin", "network", "result"})

// AddressRegistry tracks cache efficiency of the address registry.
type AddressRegistry struct {
	coin    string
	network string
}

func NewAddressRegistry(coin model.Coin, network model.Network) *AddressRegistry {
	c, n := chainLabels(coin, network)
	return &AddressRegistry{coin: c, network: n}
}

// ObserveLookup counts one lookup outcome.
func (m AddressRegistry) ObserveLookup(result string) {
	addressRegistryLookupsTotal.WithLabelValues(m.coin, m.network, result).Inc()
}
