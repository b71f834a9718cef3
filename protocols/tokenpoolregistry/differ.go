package tokenpoolregistry

import "slices"

type TokenPoolRegistryDiff struct {
	Data *TokenPoolRegistryView `json:"data,omitempty"`
}

// IsEmpty returns true if the diff contains no data.
func (d TokenPoolRegistryDiff) IsEmpty() bool {
	return d.Data == nil
}

// TokenPoolRegistryDiffer returns an empty diff when the graph did not change and the
// complete new view otherwise. The graph only grows, so a minimal diff would be the
// tail of each slice plus the touched edge lists.
// TODO: send only the appended tokens, pools and edges once a consumer needs the bandwidth.
func TokenPoolRegistryDiffer(old, new *TokenPoolRegistryView) TokenPoolRegistryDiff {
	if equalViews(old, new) {
		return TokenPoolRegistryDiff{}
	}
	return TokenPoolRegistryDiff{Data: new}
}

func equalViews(a, b *TokenPoolRegistryView) bool {
	if a == nil || b == nil {
		return a == b
	}
	return slices.Equal(a.Tokens, b.Tokens) &&
		slices.Equal(a.Pools, b.Pools) &&
		slices.Equal(a.EdgeTargets, b.EdgeTargets) &&
		slices.EqualFunc(a.Adjacency, b.Adjacency, equalInts) &&
		slices.EqualFunc(a.EdgePools, b.EdgePools, equalInts)
}

func equalInts(a, b []int) bool {
	return slices.Equal(a, b)
}
