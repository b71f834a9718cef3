// Package routing finds the best swap path between two tokens over a state snapshot.
package routing

import (
	"errors"
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm/calculator"
	dmmindexer "github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm/indexer"
	poolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry"
	poolregistryindexer "github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry/indexer"
	tokenpoolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenpoolregistry"
	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	tokenindexer "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry/indexer"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/stateops"
	"github.com/bits-and-blooms/bitset"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultRuns bounds the relaxation rounds of FindBestSwapPath, and so the hop count of
// the paths it finds.
const DefaultRuns = 3

var (
	ErrUnknownToken = errors.New("token not found in the graph")
	ErrNoPath       = errors.New("no swap path between the tokens")
)

// Hop is one swap of a path.
type Hop struct {
	TokenIn  common.Address `json:"tokenIn"`
	TokenOut common.Address `json:"tokenOut"`
	Pool     common.Address `json:"pool"`
}

// Path returns the token path of hops, in the layout the router takes.
func Path(hops []Hop) []common.Address {
	if len(hops) == 0 {
		return nil
	}
	path := make([]common.Address, 0, len(hops)+1)
	path = append(path, hops[0].TokenIn)
	for _, h := range hops {
		path = append(path, h.TokenOut)
	}
	return path
}

// Pools returns the pool of each hop.
func Pools(hops []Hop) []common.Address {
	pools := make([]common.Address, len(hops))
	for i, h := range hops {
		pools[i] = h.Pool
	}
	return pools
}

// GetAmountOutFunc quotes one pool.
type GetAmountOutFunc func(amountIn *uint256.Int, tokenIn, tokenOut common.Address) (*uint256.Int, error)

// findSwapPathsState holds the Bellman-Ford-like search over token indices.
type findSwapPathsState struct {
	current int
	paths   [][]Hop          // vertex index -> path
	costs   []uint256.Int    // vertex index -> best amount reached
	known   []*bitset.BitSet // vertex index -> vertices on its path
	temp    uint256.Int
}

// Graph is a stateless path finder over a single state snapshot.
type Graph struct {
	tokenPool *tokenpoolregistry.TokenPoolRegistryView

	tokenToIndex map[common.Address]int

	// getAmountOutFuncs is indexed like tokenPool.Pools. Pools that cannot be quoted
	// have a nil entry.
	getAmountOutFuncs []GetAmountOutFunc
}

// NewGraph builds the quoting function of every pool of tokenPool. Pools touching a
// fee-on-transfer token are left out, their transfers break the quote. So are pools
// missing from the registry or from dmmPools.
func NewGraph(
	tokenPool *tokenpoolregistry.TokenPoolRegistryView,
	tokens tokenindexer.IndexedTokenSystem,
	pools poolregistryindexer.IndexedPoolRegistry,
	dmmPools dmmindexer.IndexedDMM,
) (*Graph, error) {
	if tokenPool == nil {
		return nil, errors.New("token pool graph is required")
	}
	tokenToIndex := make(map[common.Address]int, len(tokenPool.Tokens))
	for i, token := range tokenPool.Tokens {
		tokenToIndex[token] = i
	}

	getAmountOutFuncs := make([]GetAmountOutFunc, len(tokenPool.Pools))
	for i, address := range tokenPool.Pools {
		if _, ok := pools.GetByAddress(address); !ok {
			continue
		}
		pool, found := dmmPools.GetByAddress(address)
		if !found {
			continue
		}
		t0, ok0 := tokens.GetByAddress(pool.Token0)
		t1, ok1 := tokens.GetByAddress(pool.Token1)
		if (ok0 && t0.FeeOnTransferBps > 0) || (ok1 && t1.FeeOnTransferBps > 0) {
			continue
		}

		getAmountOutFuncs[i] = func(amountIn *uint256.Int, tokenIn, tokenOut common.Address) (*uint256.Int, error) {
			r, err := calculator.Orient(tokenIn, tokenOut, pool)
			if err != nil {
				return nil, err
			}
			return calculator.GetAmountOut(amountIn, r)
		}
	}

	return &Graph{
		tokenPool:         tokenPool,
		tokenToIndex:      tokenToIndex,
		getAmountOutFuncs: getAmountOutFuncs,
	}, nil
}

func protocolData[T any](state *engine.State, id engine.ProtocolID) (T, error) {
	var zero T
	protocol, ok := state.Protocols[id]
	if !ok {
		return zero, fmt.Errorf("protocol %s not found", id)
	}
	data, ok := protocol.Data.(T)
	if !ok {
		return zero, fmt.Errorf("protocol %s: unexpected data type %T", id, protocol.Data)
	}
	return data, nil
}

// FromState builds the graph of an exchange state snapshot, over the pools of every
// factory it holds.
func FromState(state *engine.State) (*Graph, error) {
	if state == nil {
		return nil, errors.New("state is required")
	}
	tokenPool, err := protocolData[*tokenpoolregistry.TokenPoolRegistryView](state, stateops.GraphProtocolID)
	if err != nil {
		return nil, err
	}
	tokens, err := protocolData[[]tokenregistry.Token](state, stateops.TokensProtocolID)
	if err != nil {
		return nil, err
	}
	registry, err := protocolData[poolregistry.PoolRegistry](state, stateops.PoolsProtocolID)
	if err != nil {
		return nil, err
	}
	var views []dmm.PoolView
	for id, protocol := range state.Protocols {
		if protocol.Schema != dmm.Schema {
			continue
		}
		data, ok := protocol.Data.([]dmm.PoolView)
		if !ok {
			return nil, fmt.Errorf("protocol %s: unexpected data type %T", id, protocol.Data)
		}
		views = append(views, data...)
	}
	return NewGraph(
		tokenPool,
		tokenindexer.NewIndexableTokenSystem(tokens),
		poolregistryindexer.NewIndexablePoolRegistry(registry),
		dmmindexer.NewIndexableDMMSystem(views),
	)
}

// FindBestSwapPath searches for the path that turns amountIn of tokenIn into the most
// tokenOut. runs bounds the number of hops; DefaultRuns is used when it is not positive.
// A path visits each token at most once.
func (g *Graph) FindBestSwapPath(
	tokenIn common.Address,
	tokenOut common.Address,
	amountIn *uint256.Int,
	runs int,
) ([]Hop, *uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, nil, fmt.Errorf("%w: amount in must be positive", dmm.ErrInvalidInput)
	}
	startIndex, exists := g.tokenToIndex[tokenIn]
	if !exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownToken, tokenIn.Hex())
	}
	endIndex, exists := g.tokenToIndex[tokenOut]
	if !exists {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownToken, tokenOut.Hex())
	}
	if startIndex == endIndex {
		return nil, nil, fmt.Errorf("%w: identical tokens", dmm.ErrInvalidPath)
	}
	if runs <= 0 {
		runs = DefaultRuns
	}

	numTokens := len(g.tokenPool.Tokens)
	state := &findSwapPathsState{
		paths: make([][]Hop, numTokens),
		costs: make([]uint256.Int, numTokens),
		known: make([]*bitset.BitSet, numTokens),
	}
	for i := range numTokens {
		state.known[i] = bitset.New(uint(numTokens))
	}
	state.costs[startIndex].Set(amountIn)

	for range runs {
		for j := range numTokens {
			if state.costs[j].IsZero() {
				continue
			}
			state.current = j
			if err := g.findSwapPath(state); err != nil {
				return nil, nil, err
			}
		}
	}

	bestPath := state.paths[endIndex]
	if bestPath == nil {
		return nil, nil, ErrNoPath
	}
	return bestPath, new(uint256.Int).Set(&state.costs[endIndex]), nil
}

// findSwapPath relaxes every edge leaving state.current.
func (g *Graph) findSwapPath(state *findSwapPathsState) error {
	currentIndex := state.current
	currentCost := &state.costs[currentIndex]
	currentKnown := state.known[currentIndex]
	currentPath := state.paths[currentIndex]
	currentToken := g.tokenPool.Tokens[currentIndex]

	if currentKnown.Test(uint(currentIndex)) {
		return errors.New("cycle detected in path history")
	}

	maxAmountOut := &state.temp
	for _, edgeIndex := range g.tokenPool.Adjacency[currentIndex] {
		targetIndex := g.tokenPool.EdgeTargets[edgeIndex]
		if currentKnown.Test(uint(targetIndex)) {
			continue
		}

		targetToken := g.tokenPool.Tokens[targetIndex]
		bestPoolIndex := -1
		maxAmountOut.Clear()
		for _, poolIndex := range g.tokenPool.EdgePools[edgeIndex] {
			getAmountOut := g.getAmountOutFuncs[poolIndex]
			if getAmountOut == nil {
				continue
			}
			amountOut, err := getAmountOut(currentCost, currentToken, targetToken)
			if err == nil && amountOut.Gt(maxAmountOut) {
				maxAmountOut.Set(amountOut)
				bestPoolIndex = poolIndex
			}
		}
		if bestPoolIndex == -1 {
			continue
		}

		if maxAmountOut.Gt(&state.costs[targetIndex]) {
			state.costs[targetIndex].Set(maxAmountOut)
			newPath := make([]Hop, len(currentPath)+1)
			copy(newPath, currentPath)
			newPath[len(currentPath)] = Hop{
				TokenIn:  currentToken,
				TokenOut: targetToken,
				Pool:     g.tokenPool.Pools[bestPoolIndex],
			}
			state.paths[targetIndex] = newPath
			currentKnown.Copy(state.known[targetIndex])
			state.known[targetIndex].Set(uint(currentIndex))
		}
	}
	return nil
}
