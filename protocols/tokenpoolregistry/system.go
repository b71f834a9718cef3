package tokenpoolregistry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// TokenPoolSystem provides a concurrency-safe layer over TokenPoolRegistry.
// It uses a sync.RWMutex for writes and an atomic.Pointer for lock-free view reads.
type TokenPoolSystem struct {
	mu         sync.RWMutex
	registry   *TokenPoolRegistry
	cachedView atomic.Pointer[TokenPoolRegistryView]
}

// NewTokenPoolSystem creates an empty, concurrency-safe TokenPoolSystem.
func NewTokenPoolSystem() *TokenPoolSystem {
	s := &TokenPoolSystem{
		registry: NewTokenPoolRegistry(),
	}
	s.cachedView.Store(s.registry.view())
	return s
}

// NewTokenPoolSystemFromView creates a concurrency-safe system from a snapshot view.
func NewTokenPoolSystemFromView(view *TokenPoolRegistryView) *TokenPoolSystem {
	s := &TokenPoolSystem{
		registry: NewTokenPoolRegistryFromView(view),
	}
	s.cachedView.Store(s.registry.view())
	return s
}

// updateCachedView MUST be called from within a write lock (s.mu.Lock).
func (s *TokenPoolSystem) updateCachedView() {
	s.cachedView.Store(s.registry.view())
}

// AddPool registers a pool holding tokens. Adding a known pool again is a no-op.
func (s *TokenPoolSystem) AddPool(tokens []common.Address, pool common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.add(tokens, pool)
	s.updateCachedView()
}

// AddPools adds multiple pools and refreshes the cached view once.
// It panics if the input slices have mismatched lengths, as this is a programmer error.
func (s *TokenPoolSystem) AddPools(pools []common.Address, tokenSets [][]common.Address) {
	if len(pools) != len(tokenSets) {
		panic(fmt.Sprintf("mismatched input lengths: %d pools and %d token sets", len(pools), len(tokenSets)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(pools) == 0 {
		return
	}
	for i, pool := range pools {
		s.registry.add(tokenSets[i], pool)
	}
	s.updateCachedView()
}

// Restore replaces the whole graph with view. It is used to roll back registrations.
func (s *TokenPoolSystem) Restore(view *TokenPoolRegistryView) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry = NewTokenPoolRegistryFromView(view)
	s.updateCachedView()
}

func (s *TokenPoolSystem) HasPool(pool common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.hasPool(pool)
}

// PoolsForPair returns the pools joining a and b in registration order. The order of
// the arguments does not matter.
func (s *TokenPoolSystem) PoolsForPair(a, b common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsForPair(a, b)
}

func (s *TokenPoolSystem) PoolsForToken(token common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.poolsForToken(token)
}

// Neighbours returns the tokens directly tradable against token.
func (s *TokenPoolSystem) Neighbours(token common.Address) []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.neighbours(token)
}

// View returns a deep copy of the cached snapshot without taking the lock.
func (s *TokenPoolSystem) View() *TokenPoolRegistryView {
	cached := s.cachedView.Load()
	if cached == nil {
		return &TokenPoolRegistryView{}
	}
	return deepCopyView(cached)
}
