package router_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/periphery/router"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deployer  = common.HexToAddress("0x000000000000000000000000000000000000de01")
	feeSetter = common.HexToAddress("0x000000000000000000000000000000000000fee5")
	minter    = common.HexToAddress("0x000000000000000000000000000000000000d00d")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const genesis = 1_700_000_000

func ether(n uint64) *uint256.Int {
	return mathext.Expand(n, 18)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type env struct {
	ctx     context.Context
	chain   *chain.Chain
	factory *dmm.Factory
	weth    *chain.WETH
	router  *router.Router
	tokens  map[common.Address]*chain.ERC20
	now     *atomic.Int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	logger := discard()
	now := new(atomic.Int64)
	now.Store(genesis)
	c, err := chain.New(&chain.Config{
		ChainID: 1337,
		Clock:   func() time.Time { return time.Unix(now.Load(), 0) },
		Logger:  logger,
	})
	require.NoError(t, err)

	factory, err := dmm.NewFactory(ctx, c, &dmm.FactoryConfig{Deployer: deployer, FeeToSetter: feeSetter, Logger: logger})
	require.NoError(t, err)
	weth, err := chain.NewWETH(ctx, c, deployer)
	require.NoError(t, err)
	r, err := router.New(ctx, c, &router.Config{Deployer: deployer, Factory: factory, WETH: weth, Logger: logger})
	require.NoError(t, err)

	require.NoError(t, c.Fund(ctx, alice, ether(1_000)))
	require.NoError(t, weth.Approve(ctx, alice, r.Address(), mathext.MaxUint256))
	return &env{
		ctx:     ctx,
		chain:   c,
		factory: factory,
		weth:    weth,
		router:  r,
		tokens:  map[common.Address]*chain.ERC20{weth.Address(): weth.ERC20},
		now:     now,
	}
}

// advance moves the wall clock forward. The chain only picks it up when the next
// transaction opens a block.
func (e *env) advance(d time.Duration) {
	e.now.Add(int64(d / time.Second))
}

// newToken deploys a token, funds alice and approves the router for her.
func (e *env) newToken(t *testing.T, symbol string, feeBps uint16) *chain.ERC20 {
	t.Helper()
	token, err := chain.NewERC20(e.ctx, e.chain, &chain.TokenConfig{
		Name:             symbol + " Token",
		Symbol:           symbol,
		Decimals:         18,
		Minter:           minter,
		FeeOnTransferBps: feeBps,
	})
	require.NoError(t, err)
	require.NoError(t, token.Mint(e.ctx, minter, alice, ether(1_000_000)))
	require.NoError(t, token.Approve(e.ctx, alice, e.router.Address(), mathext.MaxUint256))
	e.tokens[token.Address()] = token
	return token
}

func (e *env) deadline() uint64 { return genesis + 600 }

// seed creates a pool over a and b and deposits amountA and amountB into it for alice.
func (e *env) seed(t *testing.T, a, b common.Address, ampBps uint32, amountA, amountB *uint256.Int) *dmm.Pool {
	t.Helper()
	pool, err := e.factory.CreatePair(e.ctx, alice, a, b, ampBps)
	require.NoError(t, err)
	_, _, _, err = e.router.AddLiquidity(e.ctx, alice, router.AddLiquidityParams{
		TokenA:         a,
		TokenB:         b,
		Pool:           pool.Address(),
		AmountADesired: amountA,
		AmountBDesired: amountB,
		To:             alice,
		Deadline:       e.deadline(),
	})
	require.NoError(t, err)
	return pool
}

// seedETH creates a pool over token and WETH funded with native currency.
func (e *env) seedETH(t *testing.T, token common.Address, ampBps uint32, amountToken, amountETH *uint256.Int) *dmm.Pool {
	t.Helper()
	pool, err := e.factory.CreatePair(e.ctx, alice, token, e.weth.Address(), ampBps)
	require.NoError(t, err)
	_, _, _, err = e.router.AddLiquidityETH(e.ctx, alice, amountETH, router.AddLiquidityETHParams{
		Token:              token,
		Pool:               pool.Address(),
		AmountTokenDesired: amountToken,
		To:                 alice,
		Deadline:           e.deadline(),
	})
	require.NoError(t, err)
	return pool
}

func (e *env) balance(token, owner common.Address) *uint256.Int {
	return e.tokens[token].BalanceOf(owner)
}

// assertRouterEmpty checks that the router kept nothing from the previous calls.
func (e *env) assertRouterEmpty(t *testing.T) {
	t.Helper()
	addr := e.router.Address()
	assert.True(t, e.chain.NativeBalance(addr).IsZero(), "router native balance")
	for _, token := range e.tokens {
		assert.True(t, token.BalanceOf(addr).IsZero(), "router %s balance", token.Symbol())
	}
	for _, pool := range e.factory.AllPools() {
		p, _ := e.factory.Pool(pool)
		assert.True(t, p.BalanceOf(addr).IsZero(), "router LP balance")
	}
}
