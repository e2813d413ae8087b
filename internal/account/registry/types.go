package registry

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE
//go:generate mockgen -destination=store_mocks_test.go -package=$GOPACKAGE github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain AddressStore

type (
	// Metrics records the outcome of address lookups.
	Metrics interface {
		ObserveLookup(result string)
	}
)

const (
	lookupCacheHit     = "cache_hit"
	lookupStoreHit     = "store_hit"
	lookupInserted     = "inserted"
	lookupNotFound     = "not_found"
	lookupKindMismatch = "kind_mismatch"
)
