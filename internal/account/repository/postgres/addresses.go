package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	"github.com/jackc/pgx/v5"
)

// AddressByHash returns the stored address row. The flag is false when the address was never recorded.
func (t *ledgerTx) AddressByHash(ctx context.Context, address common.Address) (model.Address, bool, error) {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("address_by_hash", err, start)
	}()

	const query = `
SELECT id, kind, alias, description
FROM addresses
WHERE hash = $1`

	result := model.Address{Hash: address}
	var kind string
	err = t.q.QueryRow(ctx, query, address.Bytes()).Scan(&result.ID, &kind, &result.Alias, &result.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return model.Address{}, false, nil
	}
	if err != nil {
		return model.Address{}, false, fmt.Errorf("query address %s: %w", address.Hex(), err)
	}
	result.Kind = model.AddressKind(kind)
	return result, true, nil
}

// InsertAddress records a new address and returns its generated id.
func (t *ledgerTx) InsertAddress(ctx context.Context, address common.Address, kind model.AddressKind) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		t.metrics.Observe("insert_address", err, start)
	}()

	const query = `
INSERT INTO addresses (hash, kind)
VALUES ($1, $2)
RETURNING id`

	var id int64
	if err = t.q.QueryRow(ctx, query, address.Bytes(), string(kind)).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert address %s: %w", address.Hex(), err)
	}
	return id, nil
}
