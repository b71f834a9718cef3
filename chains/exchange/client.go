// Package exchange follows the state stream of an exchange and turns every state into
// indexed, routable views.
package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/chains"
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	dmmindexer "github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm/indexer"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry"
	poolregistryindexer "github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry/indexer"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenpoolregistry"
	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	tokenregistryindexer "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry/indexer"
	jsonrpcclient "github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/client"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// DefaultStreamBufferSize is the number of raw states the stream client queues.
const DefaultStreamBufferSize = 16

// Client turns every state of a stream into a State. It stops when its context ends
// or the stream fails.
type Client struct {
	stream  chains.Client
	logger  chains.Logger
	stateCh chan *State
	errCh   chan error

	tokenPoolGrapher    chains.TokenPoolGrapher
	tokenIndexer        chains.TokenIndexer
	poolRegistryIndexer chains.PoolRegistryIndexer
	dmmIndexer          chains.DMMIndexer

	ctx context.Context
	wg  sync.WaitGroup
}

// Option replaces one of the default indexers or the grapher of a Client.
type Option func(*Client)

func newClient(stream chains.Client, logger chains.Logger, opts ...Option) *Client {
	c := &Client{
		stream:              stream,
		logger:              logger,
		stateCh:             make(chan *State, 1),
		errCh:               make(chan error, 1),
		tokenIndexer:        tokenregistryindexer.New(),
		poolRegistryIndexer: poolregistryindexer.New(),
		dmmIndexer:          dmmindexer.New(),
		tokenPoolGrapher:    chains.RoutingGrapher,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial follows the state stream served at url. Diffs are patched with stateops and
// their metrics go to reg.
func Dial(ctx context.Context, url string, logger chains.Logger, reg prometheus.Registerer, opts ...Option) (*Client, error) {
	ops, err := stateops.NewStateOps(logger, reg)
	if err != nil {
		return nil, fmt.Errorf("state ops: %w", err)
	}
	stream, err := jsonrpcclient.NewClient(ctx, jsonrpcclient.Config{
		URL:              url,
		Logger:           logger,
		BufferSize:       DefaultStreamBufferSize,
		StatePatcher:     ops.Patch,
		StateDecoder:     ops.DecodeStateJSON,
		StateDiffDecoder: ops.DecodeStateDiffJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	logger.Info("following exchange", "url", url)
	return Follow(ctx, stream, logger, opts...), nil
}

// Follow processes the states of an in-process stream, such as a local exchange.
func Follow(ctx context.Context, stream chains.Client, logger chains.Logger, opts ...Option) *Client {
	c := newClient(stream, logger, opts...)
	c.start(ctx)
	return c
}

func (c *Client) start(ctx context.Context) {
	c.ctx = ctx
	c.wg.Add(1)
	go c.run()
}

// State returns the processed states. A state is dropped when the previous one has
// not been read yet. The channel closes when the client stops.
func (c *Client) State() <-chan *State {
	return c.stateCh
}

// Err returns the stream failure that stopped the client, if any.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// Wait blocks until the client has stopped.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) run() {
	defer c.wg.Done()
	defer close(c.errCh)
	defer close(c.stateCh)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("exchange client stopped")
			return
		case err, ok := <-c.stream.Err():
			if ok {
				c.logger.Error("state stream failed", "error", err)
				c.fail(err)
			} else {
				c.logger.Info("state stream ended")
			}
			return
		case raw, ok := <-c.stream.State():
			if !ok {
				c.logger.Error("upstream state channel closed")
				return
			}
			c.publish(raw)
		}
	}
}

func (c *Client) fail(err error) {
	select {
	case c.errCh <- err:
	case <-c.ctx.Done():
	}
}

// publish indexes raw and offers the result without blocking.
func (c *Client) publish(raw *engine.State) {
	state, err := c.processState(raw)
	if err != nil {
		c.logger.Error("skipping state", "block", raw.Block.Number, "error", err)
		return
	}
	select {
	case c.stateCh <- state:
	default:
		c.logger.Warn("state buffer full, dropping state", "block", raw.Block.Number)
	}
}

// State is an exchange state with its lookups built.
type State struct {
	Graph               chains.TokenPoolGraph
	IndexedTokenSystem  tokenregistryindexer.IndexedTokenSystem
	IndexedPoolRegistry poolregistryindexer.IndexedPoolRegistry
	IndexedDMM          dmmindexer.IndexedDMM
	ProtocolResolver    *chains.ProtocolResolver
	ChainID             uint64
	Block               engine.BlockSummary
	ProcessedAtUnixNs   uint64
}

// sources is the protocol data a State is built from. Pools of every DMM factory
// are merged into one list.
type sources struct {
	graph    *tokenpoolregistry.TokenPoolRegistryView
	tokens   []tokenregistry.Token
	registry *poolregistry.PoolRegistry
	pools    []dmm.PoolView
	schemas  map[engine.ProtocolID]engine.ProtocolSchema
}

func collect(raw *engine.State) (*sources, error) {
	src := &sources{schemas: make(map[engine.ProtocolID]engine.ProtocolSchema, len(raw.Protocols))}
	seen := make(map[engine.ProtocolSchema]engine.ProtocolID)
	single := func(id engine.ProtocolID, schema engine.ProtocolSchema) error {
		if prev, dup := seen[schema]; dup {
			return fmt.Errorf("protocols %s and %s both carry %s", prev, id, schema)
		}
		seen[schema] = id
		return nil
	}

	for id, protocol := range raw.Protocols {
		src.schemas[id] = protocol.Schema
		var err error
		switch protocol.Schema {
		case tokenregistry.Schema:
			if err = single(id, protocol.Schema); err == nil {
				src.tokens, err = dataOf[[]tokenregistry.Token](id, protocol)
			}
		case poolregistry.Schema:
			if err = single(id, protocol.Schema); err == nil {
				var registry poolregistry.PoolRegistry
				registry, err = dataOf[poolregistry.PoolRegistry](id, protocol)
				src.registry = &registry
			}
		case tokenpoolregistry.Schema:
			if err = single(id, protocol.Schema); err == nil {
				src.graph, err = dataOf[*tokenpoolregistry.TokenPoolRegistryView](id, protocol)
			}
		case dmm.Schema:
			var pools []dmm.PoolView
			if pools, err = dataOf[[]dmm.PoolView](id, protocol); err == nil {
				src.pools = append(src.pools, pools...)
			}
		}
		if err != nil {
			return nil, err
		}
	}

	switch {
	case src.graph == nil:
		return nil, fmt.Errorf("block %d: no %s protocol", raw.Block.Number, tokenpoolregistry.Schema)
	case src.tokens == nil:
		return nil, fmt.Errorf("block %d: no %s protocol", raw.Block.Number, tokenregistry.Schema)
	case src.registry == nil:
		return nil, fmt.Errorf("block %d: no %s protocol", raw.Block.Number, poolregistry.Schema)
	}
	return src, nil
}

func dataOf[T any](id engine.ProtocolID, protocol engine.ProtocolState) (T, error) {
	data, ok := protocol.Data.(T)
	if !ok {
		return data, fmt.Errorf("protocol %s: unexpected data type %T", id, protocol.Data)
	}
	return data, nil
}

func (c *Client) processState(raw *engine.State) (*State, error) {
	start := time.Now()
	src, err := collect(raw)
	if err != nil {
		return nil, err
	}

	state := &State{ChainID: raw.ChainID, Block: raw.Block}
	var g errgroup.Group
	g.Go(func() error {
		state.IndexedTokenSystem = c.tokenIndexer.Index(src.tokens)
		return nil
	})
	g.Go(func() error {
		state.IndexedPoolRegistry = c.poolRegistryIndexer.Index(*src.registry)
		return nil
	})
	g.Go(func() error {
		state.IndexedDMM = c.dmmIndexer.Index(src.pools)
		return nil
	})
	_ = g.Wait()
	indexed := time.Now()

	state.ProtocolResolver = chains.NewProtocolResolver(src.schemas, state.IndexedPoolRegistry)
	state.Graph, err = c.tokenPoolGrapher.Graph(src.graph, state.IndexedTokenSystem, state.IndexedPoolRegistry, state.IndexedDMM)
	if err != nil {
		return nil, fmt.Errorf("block %d: graph: %w", raw.Block.Number, err)
	}
	state.ProcessedAtUnixNs = uint64(time.Now().UnixNano())

	c.logger.Debug("state indexed",
		"block", raw.Block.Number,
		"pools", len(src.pools),
		"index_ms", indexed.Sub(start).Milliseconds(),
		"graph_ms", time.Since(indexed).Milliseconds(),
	)
	return state, nil
}

// WithTokenIndexer replaces the token indexer.
func WithTokenIndexer(indexer chains.TokenIndexer) Option {
	return func(c *Client) { c.tokenIndexer = indexer }
}

// WithPoolRegistryIndexer replaces the pool registry indexer.
func WithPoolRegistryIndexer(indexer chains.PoolRegistryIndexer) Option {
	return func(c *Client) { c.poolRegistryIndexer = indexer }
}

// WithDMMIndexer replaces the pool indexer.
func WithDMMIndexer(indexer chains.DMMIndexer) Option {
	return func(c *Client) { c.dmmIndexer = indexer }
}

// WithTokenPoolGrapher replaces the routing graph builder.
func WithTokenPoolGrapher(grapher chains.TokenPoolGrapher) Option {
	return func(c *Client) { c.tokenPoolGrapher = grapher }
}
