package router

import (
	"context"
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SwapParams describes the route of a swap: PoolsPath[i] trades Path[i] for Path[i+1].
type SwapParams struct {
	PoolsPath []common.Address
	Path      []common.Address
	To        common.Address
	Deadline  uint64
}

func (p SwapParams) tokenIn() common.Address {
	if len(p.Path) == 0 {
		return common.Address{}
	}
	return p.Path[0]
}

func (p SwapParams) tokenOut() common.Address {
	if len(p.Path) == 0 {
		return common.Address{}
	}
	return p.Path[len(p.Path)-1]
}

// swap executes a quoted route. Every pool but the last pays straight into the next one.
func (r *Router) swap(ctx context.Context, pools []*dmm.Pool, amounts []*uint256.Int, path []common.Address, to common.Address) error {
	for i, pool := range pools {
		amountOut := amounts[i+1]
		amount0Out, amount1Out := mathext.Zero(), amountOut
		if path[i] != pool.Token0() {
			amount0Out, amount1Out = amountOut, mathext.Zero()
		}
		recipient := to
		if i < len(pools)-1 {
			recipient = pools[i+1].Address()
		}
		if err := pool.Swap(ctx, r.address, amount0Out, amount1Out, recipient, nil); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	r.logger.Debug("swap executed", "hops", len(pools), "amountIn", amounts[0].Dec(), "amountOut", amounts[len(amounts)-1].Dec(), "to", to.Hex())
	return nil
}

// swapSupportingFeeOnTransferTokens executes a route whose hop inputs are measured from
// the balances of the pools instead of quoted up front.
func (r *Router) swapSupportingFeeOnTransferTokens(ctx context.Context, pools []*dmm.Pool, path []common.Address, to common.Address) error {
	for i, pool := range pools {
		reserves, err := calculator.Orient(path[i], path[i+1], pool.View())
		if err != nil {
			return err
		}
		input, err := r.token(path[i])
		if err != nil {
			return err
		}
		amountIn, err := mathext.Sub(input.BalanceOf(pool.Address()), reserves.ReserveIn)
		if err != nil {
			return fmt.Errorf("hop %d: %w", i, dmm.ErrReserveMismatch)
		}
		amountOut, err := calculator.GetAmountOut(amountIn, reserves)
		if err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}

		amount0Out, amount1Out := mathext.Zero(), amountOut
		if path[i] != pool.Token0() {
			amount0Out, amount1Out = amountOut, mathext.Zero()
		}
		recipient := to
		if i < len(pools)-1 {
			recipient = pools[i+1].Address()
		}
		if err := pool.Swap(ctx, r.address, amount0Out, amount1Out, recipient, nil); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return nil
}

func (r *Router) exactIn(amountIn, amountOutMin *uint256.Int, p SwapParams) ([]*dmm.Pool, []*uint256.Int, error) {
	pools, views, err := r.route(p.PoolsPath, p.Path)
	if err != nil {
		return nil, nil, err
	}
	amounts, err := calculator.GetAmountsOut(amountIn, views, p.Path)
	if err != nil {
		return nil, nil, err
	}
	if out := amounts[len(amounts)-1]; below(out, amountOutMin) {
		return nil, nil, fmt.Errorf("%w: %s < %s", dmm.ErrInsufficientOutputAmount, out.Dec(), amountOutMin.Dec())
	}
	return pools, amounts, nil
}

func (r *Router) exactOut(amountOut, amountInMax *uint256.Int, p SwapParams) ([]*dmm.Pool, []*uint256.Int, error) {
	pools, views, err := r.route(p.PoolsPath, p.Path)
	if err != nil {
		return nil, nil, err
	}
	amounts, err := calculator.GetAmountsIn(amountOut, views, p.Path)
	if err != nil {
		return nil, nil, err
	}
	if amountInMax != nil && amounts[0].Gt(amountInMax) {
		return nil, nil, fmt.Errorf("%w: %s > %s", dmm.ErrExcessiveInputAmount, amounts[0].Dec(), amountInMax.Dec())
	}
	return pools, amounts, nil
}

func (r *Router) requireWETH(token common.Address, end string) error {
	if token != r.weth.Address() {
		return fmt.Errorf("%w: path must %s with weth", dmm.ErrInvalidPath, end)
	}
	return nil
}

// SwapExactTokensForTokens sells exactly amountIn of the first path token.
func (r *Router) SwapExactTokensForTokens(ctx context.Context, caller common.Address, amountIn, amountOutMin *uint256.Int, p SwapParams) (amounts []*uint256.Int, err error) {
	if err := present(amountIn); err != nil {
		return nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		pools, quoted, err := r.exactIn(amountIn, amountOutMin, p)
		if err != nil {
			return err
		}
		if err := r.pull(ctx, p.tokenIn(), caller, pools[0].Address(), quoted[0]); err != nil {
			return err
		}
		amounts = quoted
		return r.swap(ctx, pools, quoted, p.Path, p.To)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapTokensForExactTokens buys exactly amountOut of the last path token.
func (r *Router) SwapTokensForExactTokens(ctx context.Context, caller common.Address, amountOut, amountInMax *uint256.Int, p SwapParams) (amounts []*uint256.Int, err error) {
	if err := present(amountOut); err != nil {
		return nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		pools, quoted, err := r.exactOut(amountOut, amountInMax, p)
		if err != nil {
			return err
		}
		if err := r.pull(ctx, p.tokenIn(), caller, pools[0].Address(), quoted[0]); err != nil {
			return err
		}
		amounts = quoted
		return r.swap(ctx, pools, quoted, p.Path, p.To)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapExactETHForTokens sells the native value sent by caller.
func (r *Router) SwapExactETHForTokens(ctx context.Context, caller common.Address, value, amountOutMin *uint256.Int, p SwapParams) (amounts []*uint256.Int, err error) {
	if err := present(value); err != nil {
		return nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if err := r.requireWETH(p.tokenIn(), "start"); err != nil {
			return err
		}
		pools, quoted, err := r.exactIn(value, amountOutMin, p)
		if err != nil {
			return err
		}
		if err := r.wrap(ctx, caller, value, quoted[0], pools[0].Address()); err != nil {
			return err
		}
		amounts = quoted
		return r.swap(ctx, pools, quoted, p.Path, p.To)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapTokensForExactETH buys exactly amountOut native currency.
func (r *Router) SwapTokensForExactETH(ctx context.Context, caller common.Address, amountOut, amountInMax *uint256.Int, p SwapParams) (amounts []*uint256.Int, err error) {
	if err := present(amountOut); err != nil {
		return nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if err := r.requireWETH(p.tokenOut(), "end"); err != nil {
			return err
		}
		pools, quoted, err := r.exactOut(amountOut, amountInMax, p)
		if err != nil {
			return err
		}
		if err := r.pull(ctx, p.tokenIn(), caller, pools[0].Address(), quoted[0]); err != nil {
			return err
		}
		if err := r.swap(ctx, pools, quoted, p.Path, r.address); err != nil {
			return err
		}
		amounts = quoted
		return r.unwrap(ctx, quoted[len(quoted)-1], p.To)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapExactTokensForETH sells exactly amountIn for native currency.
func (r *Router) SwapExactTokensForETH(ctx context.Context, caller common.Address, amountIn, amountOutMin *uint256.Int, p SwapParams) (amounts []*uint256.Int, err error) {
	if err := present(amountIn); err != nil {
		return nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if err := r.requireWETH(p.tokenOut(), "end"); err != nil {
			return err
		}
		pools, quoted, err := r.exactIn(amountIn, amountOutMin, p)
		if err != nil {
			return err
		}
		if err := r.pull(ctx, p.tokenIn(), caller, pools[0].Address(), quoted[0]); err != nil {
			return err
		}
		if err := r.swap(ctx, pools, quoted, p.Path, r.address); err != nil {
			return err
		}
		amounts = quoted
		return r.unwrap(ctx, quoted[len(quoted)-1], p.To)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// SwapETHForExactTokens buys exactly amountOut with native currency and refunds the
// part of value it did not need.
func (r *Router) SwapETHForExactTokens(ctx context.Context, caller common.Address, value, amountOut *uint256.Int, p SwapParams) (amounts []*uint256.Int, err error) {
	if err := present(value, amountOut); err != nil {
		return nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if err := r.requireWETH(p.tokenIn(), "start"); err != nil {
			return err
		}
		pools, quoted, err := r.exactOut(amountOut, value, p)
		if err != nil {
			return err
		}
		if err := r.wrap(ctx, caller, value, quoted[0], pools[0].Address()); err != nil {
			return err
		}
		amounts = quoted
		return r.swap(ctx, pools, quoted, p.Path, p.To)
	})
	if err != nil {
		return nil, err
	}
	return amounts, nil
}

// received runs fn and returns how much the balance of owner in token grew.
func (r *Router) received(token, owner common.Address, fn func() error) (*uint256.Int, error) {
	t, err := r.token(token)
	if err != nil {
		return nil, err
	}
	before := t.BalanceOf(owner)
	if err := fn(); err != nil {
		return nil, err
	}
	return mathext.Sub(t.BalanceOf(owner), before)
}

func checkOutput(amountOut, amountOutMin *uint256.Int) error {
	if below(amountOut, amountOutMin) {
		return fmt.Errorf("%w: %s < %s", dmm.ErrInsufficientOutputAmount, amountOut.Dec(), amountOutMin.Dec())
	}
	return nil
}

// SwapExactTokensForTokensSupportingFeeOnTransferTokens sells amountIn of a token that
// may take a fee on transfer. The output is measured at the recipient.
func (r *Router) SwapExactTokensForTokensSupportingFeeOnTransferTokens(ctx context.Context, caller common.Address, amountIn, amountOutMin *uint256.Int, p SwapParams) error {
	if err := present(amountIn); err != nil {
		return err
	}
	return r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		pools, _, err := r.route(p.PoolsPath, p.Path)
		if err != nil {
			return err
		}
		if err := r.pull(ctx, p.tokenIn(), caller, pools[0].Address(), amountIn); err != nil {
			return err
		}
		amountOut, err := r.received(p.tokenOut(), p.To, func() error {
			return r.swapSupportingFeeOnTransferTokens(ctx, pools, p.Path, p.To)
		})
		if err != nil {
			return err
		}
		return checkOutput(amountOut, amountOutMin)
	})
}

// SwapExactETHForTokensSupportingFeeOnTransferTokens sells the native value sent by
// caller for a token that may take a fee on transfer.
func (r *Router) SwapExactETHForTokensSupportingFeeOnTransferTokens(ctx context.Context, caller common.Address, value, amountOutMin *uint256.Int, p SwapParams) error {
	if err := present(value); err != nil {
		return err
	}
	return r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if err := r.requireWETH(p.tokenIn(), "start"); err != nil {
			return err
		}
		pools, _, err := r.route(p.PoolsPath, p.Path)
		if err != nil {
			return err
		}
		if err := r.wrap(ctx, caller, value, value, pools[0].Address()); err != nil {
			return err
		}
		amountOut, err := r.received(p.tokenOut(), p.To, func() error {
			return r.swapSupportingFeeOnTransferTokens(ctx, pools, p.Path, p.To)
		})
		if err != nil {
			return err
		}
		return checkOutput(amountOut, amountOutMin)
	})
}

// SwapExactTokensForETHSupportingFeeOnTransferTokens sells amountIn of a token that may
// take a fee on transfer for native currency.
func (r *Router) SwapExactTokensForETHSupportingFeeOnTransferTokens(ctx context.Context, caller common.Address, amountIn, amountOutMin *uint256.Int, p SwapParams) error {
	if err := present(amountIn); err != nil {
		return err
	}
	return r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if err := r.requireWETH(p.tokenOut(), "end"); err != nil {
			return err
		}
		pools, _, err := r.route(p.PoolsPath, p.Path)
		if err != nil {
			return err
		}
		if err := r.pull(ctx, p.tokenIn(), caller, pools[0].Address(), amountIn); err != nil {
			return err
		}
		if err := r.swapSupportingFeeOnTransferTokens(ctx, pools, p.Path, r.address); err != nil {
			return err
		}
		amountOut := r.weth.BalanceOf(r.address)
		if err := checkOutput(amountOut, amountOutMin); err != nil {
			return err
		}
		return r.unwrap(ctx, amountOut, p.To)
	})
}
