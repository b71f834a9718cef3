package indexer

import (
	"bytes"

	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedDMM views from pool snapshots.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed DMM system from a raw slice of pools.
func (i *Indexer) Index(pools []dmm.PoolView) IndexedDMM {
	return NewIndexableDMMSystem(pools)
}

type pair struct {
	token0, token1 common.Address
}

func pairKey(a, b common.Address) pair {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return pair{token0: a, token1: b}
}

// IndexableDMMSystem provides fast, indexed access to DMM pool data.
type IndexableDMMSystem struct {
	byID      map[uint64]dmm.PoolView
	byAddress map[common.Address]dmm.PoolView
	byPair    map[pair][]dmm.PoolView
	all       []dmm.PoolView
}

// NewIndexableDMMSystem creates a new indexed DMM system. Pools sharing a pair keep the
// order of the input slice.
func NewIndexableDMMSystem(pools []dmm.PoolView) *IndexableDMMSystem {
	byID := make(map[uint64]dmm.PoolView, len(pools))
	byAddress := make(map[common.Address]dmm.PoolView, len(pools))
	byPair := make(map[pair][]dmm.PoolView)

	for _, p := range pools {
		byID[p.ID] = p
		byAddress[p.Address] = p
		key := pairKey(p.Token0, p.Token1)
		byPair[key] = append(byPair[key], p)
	}

	return &IndexableDMMSystem{
		byID:      byID,
		byAddress: byAddress,
		byPair:    byPair,
		all:       pools,
	}
}

// GetByID retrieves a pool by its index in the factory.
func (ids *IndexableDMMSystem) GetByID(id uint64) (dmm.PoolView, bool) {
	p, ok := ids.byID[id]
	return p, ok
}

// GetByAddress retrieves a pool by its address.
func (ids *IndexableDMMSystem) GetByAddress(address common.Address) (dmm.PoolView, bool) {
	p, ok := ids.byAddress[address]
	return p, ok
}

// GetByPair returns the pools of a pair in either token order.
func (ids *IndexableDMMSystem) GetByPair(tokenA, tokenB common.Address) []dmm.PoolView {
	matches := ids.byPair[pairKey(tokenA, tokenB)]
	out := make([]dmm.PoolView, len(matches))
	copy(out, matches)
	return out
}

// All returns a defensive copy of the slice of all pools.
func (ids *IndexableDMMSystem) All() []dmm.PoolView {
	allCopy := make([]dmm.PoolView, len(ids.all))
	copy(allCopy, ids.all)
	return allCopy
}
