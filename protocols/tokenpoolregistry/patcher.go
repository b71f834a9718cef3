package tokenpoolregistry

import "github.com/ethereum/go-ethereum/common"

// deepCopyView creates a new TokenPoolRegistryView with its own memory for all its slices.
func deepCopyView(v *TokenPoolRegistryView) *TokenPoolRegistryView {
	if v == nil {
		return nil
	}
	newV := &TokenPoolRegistryView{}
	newV.Tokens = append(make([]common.Address, 0, len(v.Tokens)), v.Tokens...)
	newV.Pools = append(make([]common.Address, 0, len(v.Pools)), v.Pools...)
	newV.EdgeTargets = append(make([]int, 0, len(v.EdgeTargets)), v.EdgeTargets...)

	newV.Adjacency = make([][]int, len(v.Adjacency))
	for i, inner := range v.Adjacency {
		if inner != nil {
			newV.Adjacency[i] = append(make([]int, 0, len(inner)), inner...)
		}
	}
	newV.EdgePools = make([][]int, len(v.EdgePools))
	for i, inner := range v.EdgePools {
		if inner != nil {
			newV.EdgePools[i] = append(make([]int, 0, len(inner)), inner...)
		}
	}
	return newV
}

// TokenPoolRegistryPatcher applies a diff produced by TokenPoolRegistryDiffer. An empty
// diff keeps the previous state; otherwise the diff carries the full new view.
func TokenPoolRegistryPatcher(prevState *TokenPoolRegistryView, diff TokenPoolRegistryDiff) (*TokenPoolRegistryView, error) {
	if diff.IsEmpty() {
		return deepCopyView(prevState), nil
	}
	return deepCopyView(diff.Data), nil
}
