package tokenpoolregistry

import (
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/ethereum/go-ethereum/common"
)

const Schema engine.ProtocolSchema = "kyber/tokenpoolregistry/tokenPoolRegistryView@v1"

// TokenPoolRegistryView provides a complete snapshot of the graph's core data
// structures. EdgePools lists keep the order in which pools joined the edge.
type TokenPoolRegistryView struct {
	Tokens      []common.Address `json:"tokens"`
	Pools       []common.Address `json:"pools"`
	Adjacency   [][]int          `json:"adjacency"`
	EdgeTargets []int            `json:"edgeTargets"`
	EdgePools   [][]int          `json:"edgePools"`
}

// TokenPoolRegistry is a simple, non-thread-safe data structure that manages
// the relationship between tokens and pools using a graph representation.
type TokenPoolRegistry struct {
	tokenToIndex map[common.Address]int
	poolToIndex  map[common.Address]int

	tokens      []common.Address
	pools       []common.Address
	adjacency   [][]int
	edgeTargets []int
	edgePools   [][]int
}

// NewTokenPoolRegistry creates an empty registry.
func NewTokenPoolRegistry() *TokenPoolRegistry {
	return &TokenPoolRegistry{
		tokenToIndex: make(map[common.Address]int),
		poolToIndex:  make(map[common.Address]int),
		tokens:       make([]common.Address, 0),
		pools:        make([]common.Address, 0),
		adjacency:    make([][]int, 0),
		edgeTargets:  make([]int, 0),
		edgePools:    make([][]int, 0),
	}
}

// NewTokenPoolRegistryFromView reconstructs a registry from a view snapshot. The
// registry owns a deep copy of the view data.
func NewTokenPoolRegistryFromView(view *TokenPoolRegistryView) *TokenPoolRegistry {
	v := deepCopyView(view)
	if v == nil {
		return NewTokenPoolRegistry()
	}

	tokenToIndex := make(map[common.Address]int, len(v.Tokens))
	for i, token := range v.Tokens {
		tokenToIndex[token] = i
	}
	poolToIndex := make(map[common.Address]int, len(v.Pools))
	for i, pool := range v.Pools {
		poolToIndex[pool] = i
	}

	return &TokenPoolRegistry{
		tokenToIndex: tokenToIndex,
		poolToIndex:  poolToIndex,
		tokens:       v.Tokens,
		pools:        v.Pools,
		adjacency:    v.Adjacency,
		edgeTargets:  v.EdgeTargets,
		edgePools:    v.EdgePools,
	}
}

func (r *TokenPoolRegistry) tokenIndex(token common.Address) int {
	index, exists := r.tokenToIndex[token]
	if !exists {
		index = len(r.tokens)
		r.tokens = append(r.tokens, token)
		r.tokenToIndex[token] = index
		r.adjacency = append(r.adjacency, nil)
	}
	return index
}

// addEdge creates or updates a directed edge from one token to another, appending the
// pool to the edge's pool list.
func (r *TokenPoolRegistry) addEdge(from, to common.Address, poolIndex int) {
	fromIndex := r.tokenIndex(from)
	toIndex := r.tokenIndex(to)

	for _, edgeIndex := range r.adjacency[fromIndex] {
		if r.edgeTargets[edgeIndex] == toIndex {
			for _, existing := range r.edgePools[edgeIndex] {
				if existing == poolIndex {
					return
				}
			}
			r.edgePools[edgeIndex] = append(r.edgePools[edgeIndex], poolIndex)
			return
		}
	}

	newEdgeIndex := len(r.edgeTargets)
	r.edgeTargets = append(r.edgeTargets, toIndex)
	r.edgePools = append(r.edgePools, []int{poolIndex})
	r.adjacency[fromIndex] = append(r.adjacency[fromIndex], newEdgeIndex)
}

// add connects every pair of tokens of the pool in both directions.
func (r *TokenPoolRegistry) add(tokens []common.Address, pool common.Address) {
	poolIndex, exists := r.poolToIndex[pool]
	if !exists {
		poolIndex = len(r.pools)
		r.pools = append(r.pools, pool)
		r.poolToIndex[pool] = poolIndex
	}
	for i := 0; i < len(tokens); i++ {
		for j := i + 1; j < len(tokens); j++ {
			r.addEdge(tokens[i], tokens[j], poolIndex)
			r.addEdge(tokens[j], tokens[i], poolIndex)
		}
	}
}

func (r *TokenPoolRegistry) hasPool(pool common.Address) bool {
	_, ok := r.poolToIndex[pool]
	return ok
}

// poolsForPair returns the pools joining a and b, oldest first.
func (r *TokenPoolRegistry) poolsForPair(a, b common.Address) []common.Address {
	fromIndex, ok := r.tokenToIndex[a]
	if !ok {
		return nil
	}
	toIndex, ok := r.tokenToIndex[b]
	if !ok {
		return nil
	}
	for _, edgeIndex := range r.adjacency[fromIndex] {
		if r.edgeTargets[edgeIndex] != toIndex {
			continue
		}
		poolIndices := r.edgePools[edgeIndex]
		if len(poolIndices) == 0 {
			return nil
		}
		pools := make([]common.Address, len(poolIndices))
		for i, poolIndex := range poolIndices {
			pools[i] = r.pools[poolIndex]
		}
		return pools
	}
	return nil
}

// poolsForToken returns every pool holding token, in the order the edges were created.
func (r *TokenPoolRegistry) poolsForToken(token common.Address) []common.Address {
	tokenIndex, exists := r.tokenToIndex[token]
	if !exists {
		return nil
	}

	seen := make(map[int]struct{})
	var pools []common.Address
	for _, edgeIndex := range r.adjacency[tokenIndex] {
		for _, poolIndex := range r.edgePools[edgeIndex] {
			if _, dup := seen[poolIndex]; dup {
				continue
			}
			seen[poolIndex] = struct{}{}
			pools = append(pools, r.pools[poolIndex])
		}
	}
	return pools
}

// neighbours returns the tokens sharing at least one pool with token.
func (r *TokenPoolRegistry) neighbours(token common.Address) []common.Address {
	tokenIndex, exists := r.tokenToIndex[token]
	if !exists {
		return nil
	}
	var out []common.Address
	for _, edgeIndex := range r.adjacency[tokenIndex] {
		if len(r.edgePools[edgeIndex]) > 0 {
			out = append(out, r.tokens[r.edgeTargets[edgeIndex]])
		}
	}
	return out
}

// view returns a deep copy of the graph's core data structures.
func (r *TokenPoolRegistry) view() *TokenPoolRegistryView {
	return deepCopyView(&TokenPoolRegistryView{
		Tokens:      r.tokens,
		Pools:       r.pools,
		Adjacency:   r.adjacency,
		EdgeTargets: r.edgeTargets,
		EdgePools:   r.edgePools,
	})
}
