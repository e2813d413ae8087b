package ethereum

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LoadGenesisAlloc reads the premine allocation from the alloc section of a genesis JSON file.
func LoadGenesisAlloc(path string) (map[common.Address]*big.Int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}
	return ParseGenesisAlloc(data)
}

// ParseGenesisAlloc decodes the alloc section of a genesis document.
func ParseGenesisAlloc(data []byte) (map[common.Address]*big.Int, error) {
	var genesis struct {
		Alloc types.GenesisAlloc `json:"alloc"`
	}
	if err := json.Unmarshal(data, &genesis); err != nil {
		return nil, fmt.Errorf("decode genesis alloc: %w", err)
	}

	premine := make(map[common.Address]*big.Int, len(genesis.Alloc))
	for address, account := range genesis.Alloc {
		if account.Balance == nil || account.Balance.Sign() == 0 {
			continue
		}
		if account.Balance.Sign() < 0 {
			return nil, fmt.Errorf("genesis balance of %s is negative", address.Hex())
		}
		premine[address] = new(big.Int).Set(account.Balance)
	}
	return premine, nil
}
