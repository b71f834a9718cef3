// Package api serves read-only views of an exchange over JSON-RPC. Register the
// Service returned by New under Namespace on a go-ethereum rpc.Server.
package api

import (
	"errors"
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/periphery/router"
	"github.com/KyberNetwork/dmm-smart-contracts/periphery/zap"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm/calculator"
	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	"github.com/KyberNetwork/dmm-smart-contracts/routing"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc"
	"github.com/KyberNetwork/dmm-smart-contracts/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Namespace is shared with the state stream, so one server exposes both.
const Namespace = jsonrpc.RpcNamespace

// errorCode is the JSON-RPC code of every exchange error.
const errorCode = -32000

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the contracts a Service reads.
type Config struct {
	Chain   *chain.Chain
	Factory *dmm.Factory
	Router  *router.Router
	Zap     *zap.Zap
	Logger  Logger
}

func (c *Config) validate() error {
	if c.Chain == nil {
		return errors.New("chain is required")
	}
	if c.Factory == nil {
		return errors.New("factory is required")
	}
	if c.Router == nil {
		return errors.New("router is required")
	}
	if c.Zap == nil {
		return errors.New("zap is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Service is the dmm_ JSON-RPC namespace. Every exported method is an RPC method.
type Service struct {
	chain   *chain.Chain
	factory *dmm.Factory
	router  *router.Router
	zap     *zap.Zap
	logger  Logger
}

func New(cfg *Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid api configuration: %w", err)
	}
	return &Service{
		chain:   cfg.Chain,
		factory: cfg.Factory,
		router:  cfg.Router,
		zap:     cfg.Zap,
		logger:  cfg.Logger,
	}, nil
}

// Error is an exchange error as seen by RPC clients. Its data is the reason code.
type Error struct {
	err error
}

func (e *Error) Error() string          { return e.err.Error() }
func (e *Error) Unwrap() error          { return e.err }
func (e *Error) ErrorCode() int         { return errorCode }
func (e *Error) ErrorData() interface{} { return dmm.Reason(e.err) }

func (s *Service) fail(method string, err error) error {
	s.logger.Debug("rpc call failed", "method", method, "reason", dmm.Reason(err), "error", err)
	return &Error{err: err}
}

func required(name string, v *uint256.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is required", dmm.ErrInvalidInput, name)
	}
	return nil
}

func (s *Service) pool(addr common.Address) (*dmm.Pool, error) {
	p, ok := s.factory.Pool(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dmm.ErrInvalidPool, addr.Hex())
	}
	return p, nil
}

// TradeInfo returns the pricing data of pool.
func (s *Service) TradeInfo(pool common.Address) (*dmm.TradeInfo, error) {
	p, err := s.pool(pool)
	if err != nil {
		return nil, s.fail("tradeInfo", err)
	}
	info := p.TradeInfo()
	return &info, nil
}

// Pool returns the snapshot of pool.
func (s *Service) Pool(pool common.Address) (*dmm.PoolView, error) {
	p, err := s.pool(pool)
	if err != nil {
		return nil, s.fail("pool", err)
	}
	view := p.View()
	return &view, nil
}

// GetPools lists the pools of the pair, in creation order.
func (s *Service) GetPools(tokenA, tokenB common.Address) []common.Address {
	return s.factory.GetPools(tokenA, tokenB)
}

func (s *Service) GetUnamplifiedPool(tokenA, tokenB common.Address) common.Address {
	return s.factory.GetUnamplifiedPool(tokenA, tokenB)
}

// AllPools lists every pool of the factory, in creation order.
func (s *Service) AllPools() []common.Address {
	return s.factory.AllPools()
}

func (s *Service) FeeConfiguration() dmm.FeeConfiguration {
	return s.factory.FeeConfiguration()
}

func (s *Service) GetAmountsOut(amountIn *uint256.Int, poolsPath, path []common.Address) ([]*uint256.Int, error) {
	if err := required("amountIn", amountIn); err != nil {
		return nil, s.fail("getAmountsOut", err)
	}
	amounts, err := s.router.GetAmountsOut(amountIn, poolsPath, path)
	if err != nil {
		return nil, s.fail("getAmountsOut", err)
	}
	return amounts, nil
}

func (s *Service) GetAmountsIn(amountOut *uint256.Int, poolsPath, path []common.Address) ([]*uint256.Int, error) {
	if err := required("amountOut", amountOut); err != nil {
		return nil, s.fail("getAmountsIn", err)
	}
	amounts, err := s.router.GetAmountsIn(amountOut, poolsPath, path)
	if err != nil {
		return nil, s.fail("getAmountsIn", err)
	}
	return amounts, nil
}

// SwapAmounts is the split of a zap-in.
type SwapAmounts struct {
	SwapIn    *uint256.Int `json:"swapIn"`
	AmountOut *uint256.Int `json:"amountOut"`
}

// CalculateSwapAmounts returns how a zap-in of userIn tokenIn into pool is split.
func (s *Service) CalculateSwapAmounts(tokenIn, tokenOut, pool common.Address, userIn *uint256.Int) (*SwapAmounts, error) {
	if err := required("userIn", userIn); err != nil {
		return nil, s.fail("calculateSwapAmounts", err)
	}
	swapIn, amountOut, err := s.zap.CalculateSwapAmounts(s.factory.Address(), tokenIn, tokenOut, pool, userIn)
	if err != nil {
		return nil, s.fail("calculateSwapAmounts", err)
	}
	return &SwapAmounts{SwapIn: swapIn, AmountOut: amountOut}, nil
}

// ZapInAmounts is the outcome of a zap-in.
type ZapInAmounts struct {
	AmountOut *uint256.Int `json:"amountOut"`
	Liquidity *uint256.Int `json:"liquidity"`
}

func (s *Service) CalculateZapInAmounts(tokenIn, tokenOut, pool common.Address, userIn *uint256.Int) (*ZapInAmounts, error) {
	if err := required("userIn", userIn); err != nil {
		return nil, s.fail("calculateZapInAmounts", err)
	}
	amountOut, liquidity, err := s.zap.CalculateZapInAmounts(s.factory.Address(), tokenIn, tokenOut, pool, userIn)
	if err != nil {
		return nil, s.fail("calculateZapInAmounts", err)
	}
	return &ZapInAmounts{AmountOut: amountOut, Liquidity: liquidity}, nil
}

// CalculateZapOutAmount returns the tokenOut received for zapping liquidity out of pool.
func (s *Service) CalculateZapOutAmount(tokenOut, tokenOther, pool common.Address, liquidity *uint256.Int) (*uint256.Int, error) {
	if err := required("liquidity", liquidity); err != nil {
		return nil, s.fail("calculateZapOutAmount", err)
	}
	out, err := s.zap.CalculateZapOutAmount(s.factory.Address(), tokenOut, tokenOther, pool, liquidity)
	if err != nil {
		return nil, s.fail("calculateZapOutAmount", err)
	}
	return out, nil
}

// Tokens lists the tokens registered on the chain.
func (s *Service) Tokens() []tokenregistry.Token {
	var tokens []tokenregistry.Token
	s.chain.Read(func() { tokens = tokenregistry.FromChain(s.chain) })
	return tokens
}

// State returns a snapshot of the exchange, in the layout of the state stream.
func (s *Service) State() *engine.State {
	return stateops.Snapshot(s.chain, []*dmm.Factory{s.factory})
}

// Route is the best swap path found for a trade. Pools and Path are laid out the way
// the router takes them.
type Route struct {
	Pools   []common.Address `json:"pools"`
	Path    []common.Address `json:"path"`
	Amounts []*uint256.Int   `json:"amounts"`
	Block   uint64           `json:"block"`
}

// BestRoute searches the pools for the path that buys the most tokenOut with amountIn
// tokenIn. maxHops defaults to routing.DefaultRuns.
func (s *Service) BestRoute(tokenIn, tokenOut common.Address, amountIn *uint256.Int, maxHops *int) (*Route, error) {
	if err := required("amountIn", amountIn); err != nil {
		return nil, s.fail("bestRoute", err)
	}
	runs := 0
	if maxHops != nil {
		runs = *maxHops
	}
	state := s.State()
	graph, err := routing.FromState(state)
	if err != nil {
		return nil, s.fail("bestRoute", err)
	}
	hops, _, err := graph.FindBestSwapPath(tokenIn, tokenOut, amountIn, runs)
	if err != nil {
		return nil, s.fail("bestRoute", err)
	}

	views := state.Protocols[stateops.FactoryProtocolID(s.factory.Address())].Data.([]dmm.PoolView)
	byAddress := make(map[common.Address]dmm.PoolView, len(views))
	for _, v := range views {
		byAddress[v.Address] = v
	}
	route := &Route{Pools: routing.Pools(hops), Path: routing.Path(hops), Block: state.Block.Number}
	hopViews := make([]dmm.PoolView, len(route.Pools))
	for i, addr := range route.Pools {
		hopViews[i] = byAddress[addr]
	}
	if route.Amounts, err = calculator.GetAmountsOut(amountIn, hopViews, route.Path); err != nil {
		return nil, s.fail("bestRoute", err)
	}
	return route, nil
}
