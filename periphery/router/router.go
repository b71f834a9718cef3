package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm/calculator"
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

// Config holds the dependencies of a Router.
type Config struct {
	// Deployer deploys the router; its address is derived from the deployer's nonce.
	Deployer common.Address
	Factory  *dmm.Factory
	WETH     *chain.WETH
	Logger   Logger
}

func (c *Config) validate() error {
	if c.Factory == nil {
		return errors.New("factory is required")
	}
	if c.WETH == nil {
		return errors.New("weth is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Router moves tokens from users into the pools of one factory and back. All of its
// operations are atomic and it holds no token or native balance between calls.
type Router struct {
	chain   *chain.Chain
	address common.Address
	factory *dmm.Factory
	weth    *chain.WETH
	logger  Logger
}

// New deploys a router on c.
func New(ctx context.Context, c *chain.Chain, cfg *Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid router configuration: %w", err)
	}
	r := &Router{
		chain:   c,
		factory: cfg.Factory,
		weth:    cfg.WETH,
		logger:  cfg.Logger,
	}
	err := c.Transact(ctx, func(ctx context.Context) error {
		r.address = c.NextAddress(ctx, cfg.Deployer)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy router: %w", err)
	}
	r.logger.Info("router deployed", "address", r.address.Hex(), "factory", cfg.Factory.Address().Hex())
	return r, nil
}

func (r *Router) Address() common.Address { return r.address }
func (r *Router) Factory() common.Address { return r.factory.Address() }
func (r *Router) WETH() common.Address    { return r.weth.Address() }

// transact runs fn as one transaction. The deadline is compared against the block
// timestamp of that transaction, before fn runs.
func (r *Router) transact(ctx context.Context, deadline uint64, fn func(ctx context.Context) error) error {
	return r.chain.Transact(ctx, func(ctx context.Context) error {
		if now := r.chain.Timestamp(); deadline < now {
			return fmt.Errorf("%w: deadline %d, now %d", dmm.ErrDeadlineExpired, deadline, now)
		}
		return fn(ctx)
	})
}

// present fails when one of the amounts a call moves is missing.
func present(amounts ...*uint256.Int) error {
	for i, a := range amounts {
		if a == nil {
			return fmt.Errorf("%w: amount %d", dmm.ErrMissingAmount, i)
		}
	}
	return nil
}

func (r *Router) token(addr common.Address) (chain.Token, error) {
	t, ok := r.chain.Token(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dmm.ErrUnknownToken, addr.Hex())
	}
	return t, nil
}

// pool returns the pool at addr when it is a pool of the router's factory for the pair.
func (r *Router) pool(addr, tokenA, tokenB common.Address) (*dmm.Pool, error) {
	if !r.factory.IsPool(tokenA, tokenB, addr) {
		return nil, fmt.Errorf("%w: %s is not a pool of %s/%s", dmm.ErrInvalidPool, addr.Hex(), tokenA.Hex(), tokenB.Hex())
	}
	p, ok := r.factory.Pool(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dmm.ErrInvalidPool, addr.Hex())
	}
	return p, nil
}

// route resolves the pools of a swap path.
func (r *Router) route(poolsPath, path []common.Address) ([]*dmm.Pool, []dmm.PoolView, error) {
	if len(path) < 2 {
		return nil, nil, fmt.Errorf("%w: path needs at least two tokens", dmm.ErrInvalidPath)
	}
	if len(poolsPath) != len(path)-1 {
		return nil, nil, fmt.Errorf("%w: %d pools for %d tokens", dmm.ErrInvalidPath, len(poolsPath), len(path))
	}
	pools := make([]*dmm.Pool, len(poolsPath))
	views := make([]dmm.PoolView, len(poolsPath))
	for i, addr := range poolsPath {
		p, err := r.pool(addr, path[i], path[i+1])
		if err != nil {
			return nil, nil, fmt.Errorf("hop %d: %w", i, err)
		}
		pools[i] = p
		views[i] = p.View()
	}
	return pools, views, nil
}

// GetAmountsOut returns the amounts along path when selling amountIn.
func (r *Router) GetAmountsOut(amountIn *uint256.Int, poolsPath, path []common.Address) ([]*uint256.Int, error) {
	_, views, err := r.route(poolsPath, path)
	if err != nil {
		return nil, err
	}
	return calculator.GetAmountsOut(amountIn, views, path)
}

// GetAmountsIn returns the amounts along path needed to buy amountOut.
func (r *Router) GetAmountsIn(amountOut *uint256.Int, poolsPath, path []common.Address) ([]*uint256.Int, error) {
	_, views, err := r.route(poolsPath, path)
	if err != nil {
		return nil, err
	}
	return calculator.GetAmountsIn(amountOut, views, path)
}

// Quote returns the amount of B worth amountA at the reserve ratio.
func (r *Router) Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	return calculator.Quote(amountA, reserveA, reserveB)
}

// wrap pulls value native currency from caller, wraps amount of it and sends the WETH
// to the pool. The rest is refunded.
func (r *Router) wrap(ctx context.Context, caller common.Address, value, amount *uint256.Int, pool common.Address) error {
	if value.Lt(amount) {
		return fmt.Errorf("%w: sent %s, needs %s", dmm.ErrExcessiveInputAmount, value.Dec(), amount.Dec())
	}
	if err := r.chain.TransferNative(ctx, caller, r.address, value); err != nil {
		return err
	}
	if err := r.weth.Deposit(ctx, r.address, amount); err != nil {
		return err
	}
	if _, err := r.weth.Transfer(ctx, r.address, pool, amount); err != nil {
		return fmt.Errorf("transfer weth: %w", err)
	}
	if refund := new(uint256.Int).Sub(value, amount); !refund.IsZero() {
		if err := r.chain.TransferNative(ctx, r.address, caller, refund); err != nil {
			return fmt.Errorf("refund: %w", err)
		}
	}
	return nil
}

// unwrap turns amount WETH held by the router into native currency for to.
func (r *Router) unwrap(ctx context.Context, amount *uint256.Int, to common.Address) error {
	if err := r.weth.Withdraw(ctx, r.address, amount); err != nil {
		return err
	}
	return r.chain.TransferNative(ctx, r.address, to, amount)
}
