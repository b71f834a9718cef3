package zap

import (
	"context"
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm/calculator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ZapInParams describes a single-sided deposit of AmountIn TokenIn into Pool.
type ZapInParams struct {
	Factory      common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *uint256.Int
	Pool         common.Address
	To           common.Address
	MinLiquidity *uint256.Int
	Deadline     uint64
}

// ZapInETHParams describes a single-sided deposit of native currency. The amount is the
// value sent with the call.
type ZapInETHParams struct {
	Factory      common.Address
	TokenOut     common.Address
	Pool         common.Address
	To           common.Address
	MinLiquidity *uint256.Int
	Deadline     uint64
}

// ZapOutParams describes the exit of Liquidity shares of Pool into TokenOut only.
type ZapOutParams struct {
	Factory     common.Address
	TokenOut    common.Address
	TokenOther  common.Address
	Liquidity   *uint256.Int
	Pool        common.Address
	To          common.Address
	MinTokenOut *uint256.Int
	Deadline    uint64
}

// ZapOutETHParams describes the exit of Liquidity shares of a WETH pool into native
// currency. Token is the side sold for WETH.
type ZapOutETHParams struct {
	Factory     common.Address
	Token       common.Address
	Liquidity   *uint256.Int
	Pool        common.Address
	To          common.Address
	MinTokenOut *uint256.Int
	Deadline    uint64
}

// Permit is a signed approval of the zap over the caller's LP shares.
type Permit struct {
	ApproveMax bool
	Signature  chain.Signature
}

// CalculateSwapAmounts returns how much of userIn tokenIn to sell so that the rest and
// the output match the reserve ratio of pool after the trade.
func (z *Zap) CalculateSwapAmounts(factory, tokenIn, tokenOut, pool common.Address, userIn *uint256.Int) (swapIn, amountOut *uint256.Int, err error) {
	_, p, err := z.pool(factory, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, nil, err
	}
	r, err := calculator.Orient(tokenIn, tokenOut, p.View())
	if err != nil {
		return nil, nil, err
	}
	if swapIn, err = calculator.SwapInAmount(userIn, r); err != nil {
		return nil, nil, err
	}
	if amountOut, err = calculator.GetAmountOut(swapIn, r); err != nil {
		return nil, nil, err
	}
	return swapIn, amountOut, nil
}

// CalculateZapInAmounts returns the tokenOut bought and the shares minted by a zap-in of
// userIn tokenIn.
func (z *Zap) CalculateZapInAmounts(factory, tokenIn, tokenOut, pool common.Address, userIn *uint256.Int) (tokenOutAmount, liquidity *uint256.Int, err error) {
	f, p, err := z.pool(factory, tokenIn, tokenOut, pool)
	if err != nil {
		return nil, nil, err
	}
	zi, err := calculator.ZapInAmounts(userIn, tokenIn, tokenOut, p.View(), f.FeeConfiguration())
	if err != nil {
		return nil, nil, err
	}
	return zi.AmountOut, zi.Liquidity, nil
}

// CalculateZapOutAmount returns the tokenOut received for burning liquidity shares of pool
// and selling the tokenOther part back into it.
func (z *Zap) CalculateZapOutAmount(factory, tokenOut, tokenOther, pool common.Address, liquidity *uint256.Int) (*uint256.Int, error) {
	f, p, err := z.pool(factory, tokenOut, tokenOther, pool)
	if err != nil {
		return nil, err
	}
	return calculator.ZapOutAmount(liquidity, tokenOut, tokenOther, p.View(), f.FeeConfiguration())
}

// outputs orders amountOut of tokenOut as the (amount0Out, amount1Out) pair of pool.
func outputs(pool *dmm.Pool, tokenOut common.Address, amountOut *uint256.Int) (amount0Out, amount1Out *uint256.Int) {
	if tokenOut == pool.Token0() {
		return amountOut, mathext.Zero()
	}
	return mathext.Zero(), amountOut
}

// zapIn deposits userIn tokenIn already held by the zap.
func (z *Zap) zapIn(ctx context.Context, pool *dmm.Pool, tokenIn, tokenOut common.Address, userIn *uint256.Int, to common.Address, minLiquidity *uint256.Int) (*uint256.Int, error) {
	r, err := calculator.Orient(tokenIn, tokenOut, pool.View())
	if err != nil {
		return nil, err
	}
	swapIn, err := calculator.SwapInAmount(userIn, r)
	if err != nil {
		return nil, err
	}
	amountOut, err := calculator.GetAmountOut(swapIn, r)
	if err != nil {
		return nil, err
	}
	in, err := z.token(tokenIn)
	if err != nil {
		return nil, err
	}
	out, err := z.token(tokenOut)
	if err != nil {
		return nil, err
	}

	if _, err := in.Transfer(ctx, z.address, pool.Address(), swapIn); err != nil {
		return nil, fmt.Errorf("transfer swap input: %w", err)
	}
	amount0Out, amount1Out := outputs(pool, tokenOut, amountOut)
	if err := pool.Swap(ctx, z.address, amount0Out, amount1Out, z.address, nil); err != nil {
		return nil, err
	}

	if _, err := in.Transfer(ctx, z.address, pool.Address(), new(uint256.Int).Sub(userIn, swapIn)); err != nil {
		return nil, fmt.Errorf("transfer deposit: %w", err)
	}
	if _, err := out.Transfer(ctx, z.address, pool.Address(), amountOut); err != nil {
		return nil, fmt.Errorf("transfer deposit: %w", err)
	}
	liquidity, err := pool.Mint(ctx, z.address, to)
	if err != nil {
		return nil, err
	}
	if minLiquidity != nil && liquidity.Lt(minLiquidity) {
		return nil, fmt.Errorf("%w: %s < %s", dmm.ErrInsufficientLiquidityMinted, liquidity.Dec(), minLiquidity.Dec())
	}
	z.logger.Debug("zapped in", "pool", pool.Address().Hex(), "amountIn", userIn.Dec(), "swapIn", swapIn.Dec(), "liquidity", liquidity.Dec())
	return liquidity, nil
}

// ZapIn pulls p.AmountIn of p.TokenIn from caller and mints the resulting liquidity to p.To.
func (z *Zap) ZapIn(ctx context.Context, caller common.Address, p ZapInParams) (liquidity *uint256.Int, err error) {
	if err := requireAmount("amountIn", p.AmountIn); err != nil {
		return nil, err
	}
	err = z.transact(ctx, p.Deadline, func(ctx context.Context) error {
		_, pool, err := z.pool(p.Factory, p.TokenIn, p.TokenOut, p.Pool)
		if err != nil {
			return err
		}
		in, err := z.token(p.TokenIn)
		if err != nil {
			return err
		}
		received, err := in.TransferFrom(ctx, z.address, caller, z.address, p.AmountIn)
		if err != nil {
			return fmt.Errorf("transfer %s: %w", p.TokenIn.Hex(), err)
		}
		liquidity, err = z.zapIn(ctx, pool, p.TokenIn, p.TokenOut, received, p.To, p.MinLiquidity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// ZapInEth wraps the native value sent by caller and zaps it into a WETH pool.
func (z *Zap) ZapInEth(ctx context.Context, caller common.Address, value *uint256.Int, p ZapInETHParams) (liquidity *uint256.Int, err error) {
	if err := requireAmount("value", value); err != nil {
		return nil, err
	}
	err = z.transact(ctx, p.Deadline, func(ctx context.Context) error {
		_, pool, err := z.pool(p.Factory, z.weth.Address(), p.TokenOut, p.Pool)
		if err != nil {
			return err
		}
		if err := z.chain.TransferNative(ctx, caller, z.address, value); err != nil {
			return err
		}
		if err := z.weth.Deposit(ctx, z.address, value); err != nil {
			return err
		}
		liquidity, err = z.zapIn(ctx, pool, z.weth.Address(), p.TokenOut, value, p.To, p.MinLiquidity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// zapOut burns liquidity of caller and leaves the whole proceeds in tokenOut with the zap.
func (z *Zap) zapOut(ctx context.Context, caller common.Address, pool *dmm.Pool, tokenOut, tokenOther common.Address, liquidity, minTokenOut *uint256.Int) (*uint256.Int, error) {
	if _, err := pool.TransferFrom(ctx, z.address, caller, pool.Address(), liquidity); err != nil {
		return nil, fmt.Errorf("transfer shares: %w", err)
	}
	amount0, amount1, err := pool.Burn(ctx, z.address, z.address)
	if err != nil {
		return nil, err
	}
	direct, other := amount0, amount1
	if tokenOut == pool.Token1() {
		direct, other = amount1, amount0
	}

	r, err := calculator.Orient(tokenOther, tokenOut, pool.View())
	if err != nil {
		return nil, err
	}
	swapped, err := calculator.GetAmountOut(other, r)
	if err != nil {
		return nil, err
	}
	sold, err := z.token(tokenOther)
	if err != nil {
		return nil, err
	}
	if _, err := sold.Transfer(ctx, z.address, pool.Address(), other); err != nil {
		return nil, fmt.Errorf("transfer %s: %w", tokenOther.Hex(), err)
	}
	amount0Out, amount1Out := outputs(pool, tokenOut, swapped)
	if err := pool.Swap(ctx, z.address, amount0Out, amount1Out, z.address, nil); err != nil {
		return nil, err
	}

	total, err := mathext.Add(direct, swapped)
	if err != nil {
		return nil, err
	}
	if minTokenOut != nil && total.Lt(minTokenOut) {
		return nil, fmt.Errorf("%w: %s < %s", dmm.ErrInsufficientOutputAmount, total.Dec(), minTokenOut.Dec())
	}
	z.logger.Debug("zapped out", "pool", pool.Address().Hex(), "liquidity", liquidity.Dec(), "amountOut", total.Dec())
	return total, nil
}

func (z *Zap) permit(ctx context.Context, caller common.Address, pool *dmm.Pool, liquidity *uint256.Int, deadline uint64, permit Permit) error {
	value := liquidity
	if permit.ApproveMax {
		value = mathext.MaxUint256
	}
	return pool.Permit(ctx, caller, z.address, value, deadline, permit.Signature)
}

func (z *Zap) zapOutTo(ctx context.Context, caller common.Address, p ZapOutParams, permit *Permit) (amountOut *uint256.Int, err error) {
	if err := requireAmount("liquidity", p.Liquidity); err != nil {
		return nil, err
	}
	err = z.transact(ctx, p.Deadline, func(ctx context.Context) error {
		_, pool, err := z.pool(p.Factory, p.TokenOut, p.TokenOther, p.Pool)
		if err != nil {
			return err
		}
		if permit != nil {
			if err := z.permit(ctx, caller, pool, p.Liquidity, p.Deadline, *permit); err != nil {
				return err
			}
		}
		amountOut, err = z.zapOut(ctx, caller, pool, p.TokenOut, p.TokenOther, p.Liquidity, p.MinTokenOut)
		if err != nil {
			return err
		}
		out, err := z.token(p.TokenOut)
		if err != nil {
			return err
		}
		if _, err := out.Transfer(ctx, z.address, p.To, amountOut); err != nil {
			return fmt.Errorf("transfer %s: %w", p.TokenOut.Hex(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

func (z *Zap) zapOutETH(ctx context.Context, caller common.Address, p ZapOutETHParams, permit *Permit) (amountOut *uint256.Int, err error) {
	if err := requireAmount("liquidity", p.Liquidity); err != nil {
		return nil, err
	}
	err = z.transact(ctx, p.Deadline, func(ctx context.Context) error {
		_, pool, err := z.pool(p.Factory, z.weth.Address(), p.Token, p.Pool)
		if err != nil {
			return err
		}
		if permit != nil {
			if err := z.permit(ctx, caller, pool, p.Liquidity, p.Deadline, *permit); err != nil {
				return err
			}
		}
		amountOut, err = z.zapOut(ctx, caller, pool, z.weth.Address(), p.Token, p.Liquidity, p.MinTokenOut)
		if err != nil {
			return err
		}
		if err := z.weth.Withdraw(ctx, z.address, amountOut); err != nil {
			return err
		}
		return z.chain.TransferNative(ctx, z.address, p.To, amountOut)
	})
	if err != nil {
		return nil, err
	}
	return amountOut, nil
}

// ZapOut burns p.Liquidity shares of caller and pays everything out in p.TokenOut.
func (z *Zap) ZapOut(ctx context.Context, caller common.Address, p ZapOutParams) (*uint256.Int, error) {
	return z.zapOutTo(ctx, caller, p, nil)
}

// ZapOutPermit is ZapOut approved by a signature.
func (z *Zap) ZapOutPermit(ctx context.Context, caller common.Address, p ZapOutParams, permit Permit) (*uint256.Int, error) {
	return z.zapOutTo(ctx, caller, p, &permit)
}

// ZapOutEth burns p.Liquidity shares of a WETH pool and pays everything out in native
// currency.
func (z *Zap) ZapOutEth(ctx context.Context, caller common.Address, p ZapOutETHParams) (*uint256.Int, error) {
	return z.zapOutETH(ctx, caller, p, nil)
}

// ZapOutEthPermit is ZapOutEth approved by a signature.
func (z *Zap) ZapOutEthPermit(ctx context.Context, caller common.Address, p ZapOutETHParams, permit Permit) (*uint256.Int, error) {
	return z.zapOutETH(ctx, caller, p, &permit)
}
