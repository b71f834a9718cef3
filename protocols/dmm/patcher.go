package dmm

import (
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}

// deepCopyPool gives the view its own copies of every amount so patched states never
// share memory with their inputs.
func deepCopyPool(p PoolView) PoolView {
	out := p
	out.Reserve0 = clone(p.Reserve0)
	out.Reserve1 = clone(p.Reserve1)
	out.VReserve0 = clone(p.VReserve0)
	out.VReserve1 = clone(p.VReserve1)
	out.FeeInPrecision = clone(p.FeeInPrecision)
	out.TotalSupply = clone(p.TotalSupply)
	out.KLast = clone(p.KLast)
	return out
}

// Patcher applies a diff to a previous snapshot. The result is ordered by pool ID, the
// creation order of the factory.
func Patcher(prevState []PoolView, diff DMMSystemDiff) ([]PoolView, error) {
	state := make(map[common.Address]PoolView, len(prevState)+len(diff.Additions))
	for _, pool := range prevState {
		state[pool.Address] = deepCopyPool(pool)
	}
	for _, addr := range diff.Deletions {
		if _, ok := state[addr]; !ok {
			return nil, fmt.Errorf("cannot delete unknown pool %s", addr.Hex())
		}
		delete(state, addr)
	}
	for _, pool := range diff.Updates {
		if _, ok := state[pool.Address]; !ok {
			return nil, fmt.Errorf("cannot update unknown pool %s", pool.Address.Hex())
		}
		state[pool.Address] = deepCopyPool(pool)
	}
	for _, pool := range diff.Additions {
		if _, ok := state[pool.Address]; ok {
			return nil, fmt.Errorf("cannot add existing pool %s", pool.Address.Hex())
		}
		state[pool.Address] = deepCopyPool(pool)
	}

	out := make([]PoolView, 0, len(state))
	for _, pool := range state {
		out = append(out, pool)
	}
	slices.SortFunc(out, func(a, b PoolView) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return a.Address.Cmp(b.Address)
	})
	return out, nil
}
