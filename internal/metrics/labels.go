// Package metrics holds the prometheus collectors of the ledger ingester.
package metrics

import "github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"

const namespace = "blockinsight7000"

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func chainLabels(coin model.Coin, network model.Network) (string, string) {
	if coin == "" {
		coin = "unknown"
	}
	if network == "" {
		network = "unknown"
	}
	return string(coin), string(network)
}
