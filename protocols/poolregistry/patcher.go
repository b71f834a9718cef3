package poolregistry

import (
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/engine"
)

// Patcher builds a new registry by applying diff to prevState, which it never mutates.
// The pools of the result are sorted by ID.
func Patcher(prevState PoolRegistry, diff PoolRegistryDiff) (PoolRegistry, error) {
	pools := make(map[uint64]Pool, len(prevState.Pools)+len(diff.PoolAdditions))
	for _, pool := range prevState.Pools {
		pools[pool.ID] = pool
	}
	for _, id := range diff.PoolDeletions {
		if _, ok := pools[id]; !ok {
			return PoolRegistry{}, fmt.Errorf("cannot delete unknown pool %d", id)
		}
		delete(pools, id)
	}
	for _, pool := range diff.PoolAdditions {
		if _, ok := pools[pool.ID]; ok {
			return PoolRegistry{}, fmt.Errorf("cannot add existing pool %d", pool.ID)
		}
		pools[pool.ID] = pool
	}

	finalPools := make([]Pool, 0, len(pools))
	for _, pool := range pools {
		finalPools = append(finalPools, pool)
	}
	sortPools(finalPools)

	protocols := make(map[uint16]engine.ProtocolID, len(prevState.Protocols)+len(diff.ProtocolAdditions))
	for k, v := range prevState.Protocols {
		protocols[k] = v
	}
	for _, id := range diff.ProtocolDeletions {
		delete(protocols, id)
	}
	for id, name := range diff.ProtocolAdditions {
		protocols[id] = name
	}

	return PoolRegistry{
		Pools:     finalPools,
		Protocols: protocols,
	}, nil
}
