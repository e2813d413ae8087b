// Package model defines domain models for account-ledger ingestion.
package model

import "github.com/ethereum/go-ethereum/common"

// AddressKind tells whether an address is an externally owned account or a contract.
type AddressKind string

var (
	// AddressNormal marks an externally owned account.
	AddressNormal AddressKind = "NORMAL"
	// AddressContract marks an address created by a contract-creation transaction.
	AddressContract AddressKind = "CONTRACT"
)

// Valid reports whether k is one of the known kinds.
func (k AddressKind) Valid() bool {
	return k == AddressNormal || k == AddressContract
}

// Address is a stored account identifier with its surrogate id.
type Address struct {
	ID          int64
	Hash        common.Address
	Kind        AddressKind
	Alias       *string
	Description *string
}
