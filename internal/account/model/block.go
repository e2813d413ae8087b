package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Block is a ledger block as served by the node, including its transactions.
type Block struct {
	Height       *big.Int
	Hash         common.Hash
	ParentHash   common.Hash
	Timestamp    time.Time
	Miner        common.Address
	Difficulty   *big.Int
	GasLimit     *big.Int
	GasUsed      *big.Int
	ExtraData    []byte
	Nonce        []byte
	Size         uint64
	UncleHashes  []common.Hash
	Transactions []Transaction
}

// IsGenesis reports whether the block sits at height 0.
func (b *Block) IsGenesis() bool {
	return b.Height.Sign() == 0
}

// UncleBlock is an uncle header referenced by an including block.
type UncleBlock struct {
	Height     *big.Int
	Index      int
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  time.Time
	Miner      common.Address
	Difficulty *big.Int
	GasLimit   *big.Int
	GasUsed    *big.Int
	ExtraData  []byte
	Nonce      []byte
	Size       uint64
}

// StoredBlock is the part of a stored block row needed to walk the chain backwards.
type StoredBlock struct {
	ID         int64
	Height     *big.Int
	Hash       common.Hash
	ParentHash common.Hash
	Forked     bool
}
