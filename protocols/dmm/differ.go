package dmm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type DMMSystemDiff struct {
	Additions []PoolView       `json:"additions,omitempty"`
	Updates   []PoolView       `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d DMMSystemDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two snapshots of a factory's pools. Pools
// are keyed by address; the diff keeps the order of the new snapshot.
func Differ(old, new []PoolView) DMMSystemDiff {
	oldPools := make(map[common.Address]PoolView, len(old))
	for _, pool := range old {
		oldPools[pool.Address] = pool
	}
	newPools := make(map[common.Address]struct{}, len(new))

	var diff DMMSystemDiff
	for _, pool := range new {
		newPools[pool.Address] = struct{}{}
		prev, exists := oldPools[pool.Address]
		if !exists {
			diff.Additions = append(diff.Additions, pool)
			continue
		}
		if stateChanged(prev, pool) {
			diff.Updates = append(diff.Updates, pool)
		}
	}
	for _, pool := range old {
		if _, exists := newPools[pool.Address]; !exists {
			diff.Deletions = append(diff.Deletions, pool.Address)
		}
	}
	return diff
}

// stateChanged compares the fields a pool mutates; identity fields never change.
func stateChanged(a, b PoolView) bool {
	return !equal(a.Reserve0, b.Reserve0) ||
		!equal(a.Reserve1, b.Reserve1) ||
		!equal(a.VReserve0, b.VReserve0) ||
		!equal(a.VReserve1, b.VReserve1) ||
		!equal(a.TotalSupply, b.TotalSupply) ||
		!equal(a.KLast, b.KLast)
}

func equal(a, b *uint256.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Eq(b)
}
