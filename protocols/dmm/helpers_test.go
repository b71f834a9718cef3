package dmm_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	deployer  = common.HexToAddress("0x000000000000000000000000000000000000de01")
	feeSetter = common.HexToAddress("0x000000000000000000000000000000000000fee5")
	feeTo     = common.HexToAddress("0x000000000000000000000000000000000000fee7")
	minter    = common.HexToAddress("0x000000000000000000000000000000000000d00d")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func ether(n uint64) *uint256.Int {
	return mathext.Expand(n, 18)
}

type env struct {
	ctx     context.Context
	chain   *chain.Chain
	factory *dmm.Factory
	tokens  map[common.Address]*chain.ERC20
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := discardLogger()
	c, err := chain.New(&chain.Config{
		ChainID: 1337,
		Clock:   func() time.Time { return time.Unix(1_700_000_000, 0) },
		Logger:  logger,
	})
	require.NoError(t, err)

	factory, err := dmm.NewFactory(context.Background(), c, &dmm.FactoryConfig{
		Deployer:    deployer,
		FeeToSetter: feeSetter,
		Logger:      logger,
	})
	require.NoError(t, err)
	return &env{
		ctx:     context.Background(),
		chain:   c,
		factory: factory,
		tokens:  make(map[common.Address]*chain.ERC20),
	}
}

// newToken deploys a token and gives alice a large balance of it.
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
	e.tokens[token.Address()] = token
	return token
}

// newPool deploys two tokens and an empty pool over them.
func (e *env) newPool(t *testing.T, ampBps uint32) *dmm.Pool {
	t.Helper()
	a := e.newToken(t, "AAA", 0)
	b := e.newToken(t, "BBB", 0)
	pool, err := e.factory.CreatePair(e.ctx, alice, a.Address(), b.Address(), ampBps)
	require.NoError(t, err)
	return pool
}

func (e *env) token0(pool *dmm.Pool) *chain.ERC20 { return e.tokens[pool.Token0()] }
func (e *env) token1(pool *dmm.Pool) *chain.ERC20 { return e.tokens[pool.Token1()] }

// addLiquidity transfers both amounts from alice to the pool and mints to `to`.
func (e *env) addLiquidity(t *testing.T, pool *dmm.Pool, amount0, amount1 *uint256.Int, to common.Address) *uint256.Int {
	t.Helper()
	var liquidity *uint256.Int
	err := e.chain.Transact(e.ctx, func(ctx context.Context) error {
		if _, err := e.token0(pool).Transfer(ctx, alice, pool.Address(), amount0); err != nil {
			return err
		}
		if _, err := e.token1(pool).Transfer(ctx, alice, pool.Address(), amount1); err != nil {
			return err
		}
		var err error
		liquidity, err = pool.Mint(ctx, alice, to)
		return err
	})
	require.NoError(t, err)
	return liquidity
}

// swapExactIn sells amountIn of tokenIn from alice into pool at the quoted price.
func (e *env) swapExactIn(t *testing.T, pool *dmm.Pool, tokenIn common.Address, amountIn *uint256.Int, to common.Address) *uint256.Int {
	t.Helper()
	amountOut, err := e.trySwapExactIn(pool, tokenIn, amountIn, to, uint256.NewInt(0))
	require.NoError(t, err)
	return amountOut
}

// trySwapExactIn asks for extra more than the quoted output.
func (e *env) trySwapExactIn(pool *dmm.Pool, tokenIn common.Address, amountIn *uint256.Int, to common.Address, extra *uint256.Int) (*uint256.Int, error) {
	view := pool.View()
	tokenOut := view.Token1
	if tokenIn == view.Token1 {
		tokenOut = view.Token0
	}
	r, err := calculator.Orient(tokenIn, tokenOut, view)
	if err != nil {
		return nil, err
	}
	amountOut, err := calculator.GetAmountOut(amountIn, r)
	if err != nil {
		return nil, err
	}
	amountOut.Add(amountOut, extra)

	amount0Out, amount1Out := mathext.Zero(), amountOut
	if tokenIn == view.Token1 {
		amount0Out, amount1Out = amountOut, mathext.Zero()
	}
	err = e.chain.Transact(e.ctx, func(ctx context.Context) error {
		if _, err := e.tokens[tokenIn].Transfer(ctx, alice, pool.Address(), amountIn); err != nil {
			return err
		}
		return pool.Swap(ctx, alice, amount0Out, amount1Out, to, nil)
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

// recordEvents collects the events of every committed transaction.
func recordEvents(c *chain.Chain) (events func() []chain.Event, stop func()) {
	var collected []chain.Event
	stop = c.Subscribe(func(r chain.Receipt) {
		collected = append(collected, r.Events...)
	})
	return func() []chain.Event { return collected }, stop
}
