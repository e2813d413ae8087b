package model

import "errors"

var (
	// ErrNotFound is returned when an address or ancestor is absent and a strict lookup was required.
	ErrNotFound = errors.New("not found")
	// ErrKindMismatch is returned when an address kind conflicts with the recorded kind.
	ErrKindMismatch = errors.New("address kind mismatch")
	// ErrIllegalLedgerState is returned for logically impossible ledger data.
	ErrIllegalLedgerState = errors.New("illegal ledger state")
	// ErrStorageInconsistency is returned when storage already violates the canonical uniqueness invariant.
	ErrStorageInconsistency = errors.New("storage inconsistency")
	// ErrIncompleteLedgerData is returned when the node cannot supply data its own block references.
	ErrIncompleteLedgerData = errors.New("incomplete ledger data")
)
