package ingester

import (
	"math/big"
	"time"
)

const (
	defaultWorkerCount     = 8
	defaultRealTimeRetries = 2

	maxUncles       = 2
	uncleDepthLimit = 8

	progressEvery  = 100
	progressWindow = 300

	retryInitialDelay       = time.Second
	retryMaxDelay           = 30 * time.Second
	resubscribeInitialDelay = time.Second
	resubscribeMaxDelay     = time.Minute

	phaseCatchUp  = "catch_up"
	phaseRealTime = "real_time"
)

// DefaultBlockReward returns the 7.5 coin reward paid to the miner of every non-genesis block, in wei.
func DefaultBlockReward() *big.Int {
	return new(big.Int).Mul(big.NewInt(75), big.NewInt(100_000_000_000_000_000))
}
