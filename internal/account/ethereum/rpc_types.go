package ethereum

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// rpcBlock is a block or uncle header as returned by eth_getBlockBy* and eth_getUncleBy*.
type rpcBlock struct {
	Number       *hexutil.Big     `json:"number"`
	Hash         common.Hash      `json:"hash"`
	ParentHash   common.Hash      `json:"parentHash"`
	Timestamp    hexutil.Uint64   `json:"timestamp"`
	Miner        common.Address   `json:"miner"`
	Difficulty   *hexutil.Big     `json:"difficulty"`
	GasLimit     *hexutil.Big     `json:"gasLimit"`
	GasUsed      *hexutil.Big     `json:"gasUsed"`
	ExtraData    hexutil.Bytes    `json:"extraData"`
	Nonce        hexutil.Bytes    `json:"nonce"`
	Size         hexutil.Uint64   `json:"size"`
	Uncles       []common.Hash    `json:"uncles"`
	Transactions []rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	Hash             common.Hash     `json:"hash"`
	TransactionIndex hexutil.Uint64  `json:"transactionIndex"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Value            *hexutil.Big    `json:"value"`
	Gas              *hexutil.Big    `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice"`
	Nonce            *hexutil.Big    `json:"nonce"`
	Input            hexutil.Bytes   `json:"input"`
}

type rpcReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	ContractAddress *common.Address `json:"contractAddress"`
	GasUsed         *hexutil.Big    `json:"gasUsed"`
}

// rpcHeader carries the fields of a newHeads notification the feed needs.
type rpcHeader struct {
	Number *hexutil.Big `json:"number"`
	Hash   common.Hash  `json:"hash"`
}
