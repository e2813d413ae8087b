package model

// InsertBlock groups a block with the uncles and receipts fetched for it, ready for insertion.
// Receipts[i] belongs to Block.Transactions[i].
type InsertBlock struct {
	Block    Block
	Uncles   []UncleBlock
	Receipts []Receipt
}
