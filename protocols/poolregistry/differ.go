package poolregistry

import (
	"slices"

	"github.com/KyberNetwork/dmm-smart-contracts/engine"
)

// PoolRegistryDiff represents the changes required to transition from one registry state to another.
type PoolRegistryDiff struct {
	PoolAdditions     []Pool                       `json:"poolAdditions,omitempty"`
	PoolDeletions     []uint64                     `json:"poolDeletions,omitempty"`
	ProtocolAdditions map[uint16]engine.ProtocolID `json:"protocolAdditions,omitempty"`
	ProtocolDeletions []uint16                     `json:"protocolDeletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d PoolRegistryDiff) IsEmpty() bool {
	return len(d.PoolAdditions) == 0 &&
		len(d.PoolDeletions) == 0 &&
		len(d.ProtocolAdditions) == 0 &&
		len(d.ProtocolDeletions) == 0
}

// Differ calculates the difference between two registries. Pools are keyed by ID and
// never change once registered; a protocol whose name changed is re-added. The result
// is sorted by ID.
func Differ(old, new PoolRegistry) PoolRegistryDiff {
	oldPools := make(map[uint64]struct{}, len(old.Pools))
	for _, pool := range old.Pools {
		oldPools[pool.ID] = struct{}{}
	}
	newPools := make(map[uint64]struct{}, len(new.Pools))

	var diff PoolRegistryDiff
	for _, pool := range new.Pools {
		newPools[pool.ID] = struct{}{}
		if _, exists := oldPools[pool.ID]; !exists {
			diff.PoolAdditions = append(diff.PoolAdditions, pool)
		}
	}
	for _, pool := range old.Pools {
		if _, exists := newPools[pool.ID]; !exists {
			diff.PoolDeletions = append(diff.PoolDeletions, pool.ID)
		}
	}
	sortPools(diff.PoolAdditions)
	slices.Sort(diff.PoolDeletions)

	for id, name := range new.Protocols {
		if oldName, exists := old.Protocols[id]; !exists || oldName != name {
			if diff.ProtocolAdditions == nil {
				diff.ProtocolAdditions = make(map[uint16]engine.ProtocolID)
			}
			diff.ProtocolAdditions[id] = name
		}
	}
	for id := range old.Protocols {
		if _, exists := new.Protocols[id]; !exists {
			diff.ProtocolDeletions = append(diff.ProtocolDeletions, id)
		}
	}
	slices.Sort(diff.ProtocolDeletions)
	return diff
}
