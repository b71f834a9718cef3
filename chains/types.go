package chains

import (
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	dmmindexer "github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm/indexer"
	poolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry"
	poolregistryindexer "github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry/indexer"
	tokenpoolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenpoolregistry"
	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	tokenregistryindexer "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry/indexer"
	"github.com/KyberNetwork/dmm-smart-contracts/routing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client defines the state source an exchange client depends on.
type Client interface {
	State() <-chan *engine.State
	Err() <-chan error
}

// TokenIndexer defines the interface for any component that can index tokens.
type TokenIndexer interface {
	Index(tokens []tokenregistry.Token) tokenregistryindexer.IndexedTokenSystem
}

// PoolRegistryIndexer defines the interface for any component that can index pool registries.
type PoolRegistryIndexer interface {
	Index(poolregistry.PoolRegistry) poolregistryindexer.IndexedPoolRegistry
}

// DMMIndexer defines the interface for any component that can index DMM pools.
type DMMIndexer interface {
	Index(pools []dmm.PoolView) dmmindexer.IndexedDMM
}

// TokenPoolGraph answers routing queries over one state.
type TokenPoolGraph interface {
	FindBestSwapPath(tokenIn, tokenOut common.Address, amountIn *uint256.Int, runs int) ([]routing.Hop, *uint256.Int, error)
}

type TokenPoolGrapher interface {
	Graph(
		tokenPool *tokenpoolregistry.TokenPoolRegistryView,
		indexedTokenRegistry tokenregistryindexer.IndexedTokenSystem,
		indexedPoolRegistry poolregistryindexer.IndexedPoolRegistry,
		indexedDMM dmmindexer.IndexedDMM,
	) (TokenPoolGraph, error)
}

// GrapherFunc adapts a graph constructor to TokenPoolGrapher.
type GrapherFunc func(
	tokenPool *tokenpoolregistry.TokenPoolRegistryView,
	indexedTokenRegistry tokenregistryindexer.IndexedTokenSystem,
	indexedPoolRegistry poolregistryindexer.IndexedPoolRegistry,
	indexedDMM dmmindexer.IndexedDMM,
) (TokenPoolGraph, error)

func (f GrapherFunc) Graph(
	tokenPool *tokenpoolregistry.TokenPoolRegistryView,
	indexedTokenRegistry tokenregistryindexer.IndexedTokenSystem,
	indexedPoolRegistry poolregistryindexer.IndexedPoolRegistry,
	indexedDMM dmmindexer.IndexedDMM,
) (TokenPoolGraph, error) {
	return f(tokenPool, indexedTokenRegistry, indexedPoolRegistry, indexedDMM)
}

// RoutingGrapher builds routing graphs.
var RoutingGrapher TokenPoolGrapher = GrapherFunc(func(
	tokenPool *tokenpoolregistry.TokenPoolRegistryView,
	indexedTokenRegistry tokenregistryindexer.IndexedTokenSystem,
	indexedPoolRegistry poolregistryindexer.IndexedPoolRegistry,
	indexedDMM dmmindexer.IndexedDMM,
) (TokenPoolGraph, error) {
	graph, err := routing.NewGraph(tokenPool, indexedTokenRegistry, indexedPoolRegistry, indexedDMM)
	if err != nil {
		return nil, err
	}
	return graph, nil
})

// ProtocolResolver handles the resolution of protocol schemas from pool addresses. It
// centralizes the multi-step lookup logic.
type ProtocolResolver struct {
	protocolIDToSchema  map[engine.ProtocolID]engine.ProtocolSchema
	indexedPoolRegistry poolregistryindexer.IndexedPoolRegistry
}

// NewProtocolResolver creates a new resolver instance.
func NewProtocolResolver(
	protocolIDToSchema map[engine.ProtocolID]engine.ProtocolSchema,
	registry poolregistryindexer.IndexedPoolRegistry,
) *ProtocolResolver {
	return &ProtocolResolver{
		protocolIDToSchema:  protocolIDToSchema,
		indexedPoolRegistry: registry,
	}
}

// ResolveProtocol returns the id of the protocol that owns pool.
//
// Lookup Chain:
// 1. Pool address -> registry entry
// 2. entry.Protocol (uint16) -> ProtocolID (string)
func (pr *ProtocolResolver) ResolveProtocol(pool common.Address) (engine.ProtocolID, bool) {
	return pr.indexedPoolRegistry.ProtocolOf(pool)
}

// ResolveSchemaFromPool returns the data schema of the protocol that owns pool.
func (pr *ProtocolResolver) ResolveSchemaFromPool(pool common.Address) (engine.ProtocolSchema, bool) {
	protocolID, ok := pr.ResolveProtocol(pool)
	if !ok {
		return "", false
	}
	return pr.ResolveSchema(protocolID)
}

// ResolveSchema directly maps a known ProtocolID string to its schema.
func (pr *ProtocolResolver) ResolveSchema(protocolID engine.ProtocolID) (engine.ProtocolSchema, bool) {
	schema, exists := pr.protocolIDToSchema[protocolID]
	return schema, exists
}
