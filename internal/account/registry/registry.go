// Package registry maps account addresses to their surrogate ids with a bounded LRU cache in front of storage.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/chain"
	"github.com/goodnatureofminers/blockinsight7000-ledger/internal/account/model"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of addresses kept in memory.
const DefaultCacheSize = 1000

type entry struct {
	id   int64
	kind model.AddressKind
}

// Registry caches committed address ids across storage transactions.
type Registry struct {
	cache   *lru.Cache[common.Address, entry]
	metrics Metrics
}

// NewRegistry builds a Registry holding at most size addresses.
func NewRegistry(size int, metrics Metrics) (*Registry, error) {
	if metrics == nil {
		return nil, errors.New("address registry metrics is required")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[common.Address, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create address cache: %w", err)
	}
	return &Registry{cache: cache, metrics: metrics}, nil
}

// Len returns the number of cached addresses.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Begin opens a Session bound to one storage transaction.
func (r *Registry) Begin(store chain.AddressStore) *Session {
	return &Session{
		registry: r,
		store:    store,
		pending:  make(map[common.Address]entry),
	}
}

// Session resolves addresses inside a single storage transaction.
// Addresses inserted through the session reach the shared cache only on Commit,
// so a rolled back transaction never leaves ids in memory that storage does not have.
type Session struct {
	registry *Registry
	store    chain.AddressStore
	pending  map[common.Address]entry
}

// Resolve returns the id of address, inserting it with kind when storage has never seen it.
// When strict is set an already recorded address must carry the same kind.
func (s *Session) Resolve(ctx context.Context, address common.Address, kind model.AddressKind, strict bool) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("resolve address %s: unknown kind %q", address.Hex(), kind)
	}

	if e, ok := s.cached(address); ok {
		if err := s.checkKind(address, e.kind, kind, strict); err != nil {
			return 0, err
		}
		s.registry.metrics.ObserveLookup(lookupCacheHit)
		return e.id, nil
	}

	stored, found, err := s.store.AddressByHash(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("lookup address %s: %w", address.Hex(), err)
	}
	if found {
		if err := s.checkKind(address, stored.Kind, kind, strict); err != nil {
			return 0, err
		}
		s.registry.cache.Add(address, entry{id: stored.ID, kind: stored.Kind})
		s.registry.metrics.ObserveLookup(lookupStoreHit)
		return stored.ID, nil
	}

	id, err := s.store.InsertAddress(ctx, address, kind)
	if err != nil {
		return 0, fmt.Errorf("insert address %s: %w", address.Hex(), err)
	}
	s.pending[address] = entry{id: id, kind: kind}
	s.registry.metrics.ObserveLookup(lookupInserted)
	return id, nil
}

// LookupOnly returns the id of an address that must already exist.
func (s *Session) LookupOnly(ctx context.Context, address common.Address) (int64, error) {
	if e, ok := s.cached(address); ok {
		s.registry.metrics.ObserveLookup(lookupCacheHit)
		return e.id, nil
	}

	stored, found, err := s.store.AddressByHash(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("lookup address %s: %w", address.Hex(), err)
	}
	if !found {
		s.registry.metrics.ObserveLookup(lookupNotFound)
		return 0, fmt.Errorf("address %s: %w", address.Hex(), model.ErrNotFound)
	}
	s.registry.cache.Add(address, entry{id: stored.ID, kind: stored.Kind})
	s.registry.metrics.ObserveLookup(lookupStoreHit)
	return stored.ID, nil
}

// Commit publishes the addresses inserted in this session to the shared cache.
// Call it only after the storage transaction committed.
func (s *Session) Commit() {
	for address, e := range s.pending {
		s.registry.cache.Add(address, e)
	}
	clear(s.pending)
}

func (s *Session) cached(address common.Address) (entry, bool) {
	if e, ok := s.pending[address]; ok {
		return e, true
	}
	return s.registry.cache.Get(address)
}

func (s *Session) checkKind(address common.Address, recorded, requested model.AddressKind, strict bool) error {
	if !strict || recorded == requested {
		return nil
	}
	s.registry.metrics.ObserveLookup(lookupKindMismatch)
	return fmt.Errorf("%w: address %s recorded as %s, requested as %s",
		model.ErrKindMismatch, address.Hex(), recorded, requested)
}
