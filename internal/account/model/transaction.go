package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transaction is a transaction included in a block.
type Transaction struct {
	Index    uint64
	Hash     common.Hash
	From     common.Address
	To       *common.Address
	Value    *big.Int
	Gas      *big.Int
	GasPrice *big.Int
	Nonce    *big.Int
	Input    []byte
}

// Receipt carries the execution outcome of a transaction that the ledger needs.
type Receipt struct {
	TxHash          common.Hash
	ContractAddress *common.Address
	GasUsed         *big.Int
}

// BalanceSnapshot is the absolute balance of an address after a block.
type BalanceSnapshot struct {
	BlockID   int64
	AddressID int64
	Balance   *big.Int
}
