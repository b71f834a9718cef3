package router

import (
	"context"
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RatioBounds limits vReserveB*2^112/vReserveA of an amplified pool at the time of a
// deposit. A nil bound is not checked.
type RatioBounds struct {
	Min *uint256.Int
	Max *uint256.Int
}

// AddLiquidityParams describes a deposit of two tokens into an existing pool.
type AddLiquidityParams struct {
	TokenA         common.Address
	TokenB         common.Address
	Pool           common.Address
	AmountADesired *uint256.Int
	AmountBDesired *uint256.Int
	AmountAMin     *uint256.Int
	AmountBMin     *uint256.Int
	Bounds         RatioBounds
	To             common.Address
	Deadline       uint64
}

// AddLiquidityETHParams describes a deposit of a token and native currency. The native
// amount desired is the value sent with the call.
type AddLiquidityETHParams struct {
	Token              common.Address
	Pool               common.Address
	AmountTokenDesired *uint256.Int
	AmountTokenMin     *uint256.Int
	AmountETHMin       *uint256.Int
	Bounds             RatioBounds
	To                 common.Address
	Deadline           uint64
}

// NewPoolParams describes the pool AddLiquidityNewPool deposits into.
type NewPoolParams struct {
	AmpBps uint32
	// FeeBps of zero selects the factory default.
	FeeBps uint16
}

// RemoveLiquidityParams describes a withdrawal of both tokens of a pool.
type RemoveLiquidityParams struct {
	TokenA     common.Address
	TokenB     common.Address
	Pool       common.Address
	Liquidity  *uint256.Int
	AmountAMin *uint256.Int
	AmountBMin *uint256.Int
	To         common.Address
	Deadline   uint64
}

// RemoveLiquidityETHParams describes a withdrawal from a pool paired with WETH, paid out
// in native currency.
type RemoveLiquidityETHParams struct {
	Token          common.Address
	Pool           common.Address
	Liquidity      *uint256.Int
	AmountTokenMin *uint256.Int
	AmountETHMin   *uint256.Int
	To             common.Address
	Deadline       uint64
}

// Permit is a signed approval of the router over the caller's LP shares. ApproveMax
// signs an unlimited allowance instead of the withdrawn liquidity.
type Permit struct {
	ApproveMax bool
	Signature  chain.Signature
}

// below reports whether amount is under minimum. A nil minimum accepts any amount.
func below(amount, minimum *uint256.Int) bool {
	return minimum != nil && amount.Lt(minimum)
}

// addLiquidity computes the optimal deposit for the current reserves of pool.
func (r *Router) addLiquidity(pool *dmm.Pool, tokenA common.Address, desiredA, desiredB, minA, minB *uint256.Int, bounds RatioBounds) (amountA, amountB *uint256.Int, err error) {
	info := pool.TradeInfo()
	reserveA, reserveB := info.Reserve0, info.Reserve1
	vReserveA, vReserveB := info.VReserve0, info.VReserve1
	if tokenA != pool.Token0() {
		reserveA, reserveB = reserveB, reserveA
		vReserveA, vReserveB = vReserveB, vReserveA
	}
	if reserveA.IsZero() && reserveB.IsZero() {
		return desiredA, desiredB, nil
	}

	optimalB, err := r.Quote(desiredA, reserveA, reserveB)
	if err != nil {
		return nil, nil, err
	}
	if !optimalB.Gt(desiredB) {
		if below(optimalB, minB) {
			return nil, nil, fmt.Errorf("%w: %s < %s", dmm.ErrInsufficientBAmount, optimalB.Dec(), minB.Dec())
		}
		amountA, amountB = desiredA, optimalB
	} else {
		optimalA, err := r.Quote(desiredB, reserveB, reserveA)
		if err != nil {
			return nil, nil, err
		}
		if below(optimalA, minA) {
			return nil, nil, fmt.Errorf("%w: %s < %s", dmm.ErrInsufficientAAmount, optimalA.Dec(), minA.Dec())
		}
		amountA, amountB = optimalA, desiredB
	}

	if pool.IsAmplified() {
		rate, err := mathext.MulDiv(vReserveB, mathext.Q112, vReserveA)
		if err != nil {
			return nil, nil, err
		}
		if (bounds.Min != nil && rate.Lt(bounds.Min)) || (bounds.Max != nil && rate.Gt(bounds.Max)) {
			return nil, nil, fmt.Errorf("%w: rate %s", dmm.ErrOutOfBounds, rate.Dec())
		}
	}
	return amountA, amountB, nil
}

// AddLiquidity deposits both tokens from caller into p.Pool and mints the shares to p.To.
func (r *Router) AddLiquidity(ctx context.Context, caller common.Address, p AddLiquidityParams) (amountA, amountB, liquidity *uint256.Int, err error) {
	if err := present(p.AmountADesired, p.AmountBDesired); err != nil {
		return nil, nil, nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		amountA, amountB, liquidity, err = r.deposit(ctx, caller, p)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, liquidity, nil
}

func (r *Router) deposit(ctx context.Context, caller common.Address, p AddLiquidityParams) (amountA, amountB, liquidity *uint256.Int, err error) {
	pool, err := r.pool(p.Pool, p.TokenA, p.TokenB)
	if err != nil {
		return nil, nil, nil, err
	}
	amountA, amountB, err = r.addLiquidity(pool, p.TokenA, p.AmountADesired, p.AmountBDesired, p.AmountAMin, p.AmountBMin, p.Bounds)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := r.pull(ctx, p.TokenA, caller, pool.Address(), amountA); err != nil {
		return nil, nil, nil, err
	}
	if err := r.pull(ctx, p.TokenB, caller, pool.Address(), amountB); err != nil {
		return nil, nil, nil, err
	}
	if liquidity, err = pool.Mint(ctx, r.address, p.To); err != nil {
		return nil, nil, nil, err
	}
	return amountA, amountB, liquidity, nil
}

// pull moves amount of token from owner to `to` on the router's allowance.
func (r *Router) pull(ctx context.Context, token, owner, to common.Address, amount *uint256.Int) error {
	t, err := r.token(token)
	if err != nil {
		return err
	}
	if _, err := t.TransferFrom(ctx, r.address, owner, to, amount); err != nil {
		return fmt.Errorf("transfer %s: %w", token.Hex(), err)
	}
	return nil
}

// AddLiquidityETH deposits a token and the native value sent by caller into p.Pool,
// refunding the native currency it did not use.
func (r *Router) AddLiquidityETH(ctx context.Context, caller common.Address, value *uint256.Int, p AddLiquidityETHParams) (amountToken, amountETH, liquidity *uint256.Int, err error) {
	if err := present(value, p.AmountTokenDesired); err != nil {
		return nil, nil, nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		amountToken, amountETH, liquidity, err = r.depositETH(ctx, caller, value, p)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return amountToken, amountETH, liquidity, nil
}

func (r *Router) depositETH(ctx context.Context, caller common.Address, value *uint256.Int, p AddLiquidityETHParams) (amountToken, amountETH, liquidity *uint256.Int, err error) {
	pool, err := r.pool(p.Pool, p.Token, r.weth.Address())
	if err != nil {
		return nil, nil, nil, err
	}
	amountToken, amountETH, err = r.addLiquidity(pool, p.Token, p.AmountTokenDesired, value, p.AmountTokenMin, p.AmountETHMin, p.Bounds)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := r.pull(ctx, p.Token, caller, pool.Address(), amountToken); err != nil {
		return nil, nil, nil, err
	}
	if err := r.wrap(ctx, caller, value, amountETH, pool.Address()); err != nil {
		return nil, nil, nil, err
	}
	if liquidity, err = pool.Mint(ctx, r.address, p.To); err != nil {
		return nil, nil, nil, err
	}
	return amountToken, amountETH, liquidity, nil
}

// poolFor returns the unamplified pool of the pair when ampBps asks for one and it
// exists, and creates a new pool otherwise.
func (r *Router) poolFor(ctx context.Context, caller, tokenA, tokenB common.Address, np NewPoolParams) (common.Address, error) {
	if np.AmpBps == dmm.BPS {
		if existing := r.factory.GetUnamplifiedPool(tokenA, tokenB); existing != (common.Address{}) {
			return existing, nil
		}
	}
	feeBps := np.FeeBps
	if feeBps == 0 {
		feeBps = dmm.DefaultFeeBps
	}
	pool, err := r.factory.CreatePool(ctx, caller, tokenA, tokenB, np.AmpBps, feeBps)
	if err != nil {
		return common.Address{}, err
	}
	r.logger.Debug("pool created for deposit", "pool", pool.Address().Hex(), "ampBps", np.AmpBps, "feeBps", feeBps)
	return pool.Address(), nil
}

// AddLiquidityNewPool creates a pool with the given parameters and deposits into it. With
// ampBps equal to BPS an existing unamplified pool of the pair is reused. p.Pool and
// p.Bounds are ignored.
func (r *Router) AddLiquidityNewPool(ctx context.Context, caller common.Address, np NewPoolParams, p AddLiquidityParams) (pool common.Address, amountA, amountB, liquidity *uint256.Int, err error) {
	if err := present(p.AmountADesired, p.AmountBDesired); err != nil {
		return common.Address{}, nil, nil, nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if pool, err = r.poolFor(ctx, caller, p.TokenA, p.TokenB, np); err != nil {
			return err
		}
		p.Pool, p.Bounds = pool, RatioBounds{}
		amountA, amountB, liquidity, err = r.deposit(ctx, caller, p)
		return err
	})
	if err != nil {
		return common.Address{}, nil, nil, nil, err
	}
	return pool, amountA, amountB, liquidity, nil
}

// AddLiquidityNewPoolETH is AddLiquidityNewPool for a token paired with WETH.
func (r *Router) AddLiquidityNewPoolETH(ctx context.Context, caller common.Address, value *uint256.Int, np NewPoolParams, p AddLiquidityETHParams) (pool common.Address, amountToken, amountETH, liquidity *uint256.Int, err error) {
	if err := present(value, p.AmountTokenDesired); err != nil {
		return common.Address{}, nil, nil, nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if pool, err = r.poolFor(ctx, caller, p.Token, r.weth.Address(), np); err != nil {
			return err
		}
		p.Pool, p.Bounds = pool, RatioBounds{}
		amountToken, amountETH, liquidity, err = r.depositETH(ctx, caller, value, p)
		return err
	})
	if err != nil {
		return common.Address{}, nil, nil, nil, err
	}
	return pool, amountToken, amountETH, liquidity, nil
}

// RemoveLiquidity burns p.Liquidity shares of caller and sends both tokens to p.To.
func (r *Router) RemoveLiquidity(ctx context.Context, caller common.Address, p RemoveLiquidityParams) (amountA, amountB *uint256.Int, err error) {
	if err := present(p.Liquidity); err != nil {
		return nil, nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		amountA, amountB, err = r.withdraw(ctx, caller, p)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

func (r *Router) withdraw(ctx context.Context, caller common.Address, p RemoveLiquidityParams) (amountA, amountB *uint256.Int, err error) {
	pool, err := r.pool(p.Pool, p.TokenA, p.TokenB)
	if err != nil {
		return nil, nil, err
	}
	if _, err := pool.TransferFrom(ctx, r.address, caller, pool.Address(), p.Liquidity); err != nil {
		return nil, nil, fmt.Errorf("transfer shares: %w", err)
	}
	amount0, amount1, err := pool.Burn(ctx, r.address, p.To)
	if err != nil {
		return nil, nil, err
	}
	amountA, amountB = amount0, amount1
	if p.TokenA != pool.Token0() {
		amountA, amountB = amount1, amount0
	}
	if below(amountA, p.AmountAMin) {
		return nil, nil, fmt.Errorf("%w: %s < %s", dmm.ErrInsufficientAAmount, amountA.Dec(), p.AmountAMin.Dec())
	}
	if below(amountB, p.AmountBMin) {
		return nil, nil, fmt.Errorf("%w: %s < %s", dmm.ErrInsufficientBAmount, amountB.Dec(), p.AmountBMin.Dec())
	}
	return amountA, amountB, nil
}

// RemoveLiquidityETH withdraws from a pool paired with WETH and pays the WETH side out
// in native currency.
func (r *Router) RemoveLiquidityETH(ctx context.Context, caller common.Address, p RemoveLiquidityETHParams) (amountToken, amountETH *uint256.Int, err error) {
	if err := present(p.Liquidity); err != nil {
		return nil, nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		amountToken, amountETH, err = r.withdrawETH(ctx, caller, p, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return amountToken, amountETH, nil
}

// withdrawETH burns through the router. With supportingFee the router forwards its whole
// token balance, so the amount reported is what the burn paid out before the transfer fee.
func (r *Router) withdrawETH(ctx context.Context, caller common.Address, p RemoveLiquidityETHParams, supportingFee bool) (amountToken, amountETH *uint256.Int, err error) {
	amountToken, amountETH, err = r.withdraw(ctx, caller, RemoveLiquidityParams{
		TokenA:     p.Token,
		TokenB:     r.weth.Address(),
		Pool:       p.Pool,
		Liquidity:  p.Liquidity,
		AmountAMin: p.AmountTokenMin,
		AmountBMin: p.AmountETHMin,
		To:         r.address,
		Deadline:   p.Deadline,
	})
	if err != nil {
		return nil, nil, err
	}
	token, err := r.token(p.Token)
	if err != nil {
		return nil, nil, err
	}
	forward := amountToken
	if supportingFee {
		forward = token.BalanceOf(r.address)
	}
	if _, err := token.Transfer(ctx, r.address, p.To, forward); err != nil {
		return nil, nil, fmt.Errorf("transfer %s: %w", p.Token.Hex(), err)
	}
	if err := r.unwrap(ctx, amountETH, p.To); err != nil {
		return nil, nil, err
	}
	return amountToken, amountETH, nil
}

// permit lets the router spend caller's shares of pool with a signature.
func (r *Router) permit(ctx context.Context, caller, pool common.Address, liquidity *uint256.Int, deadline uint64, permit Permit) error {
	p, ok := r.factory.Pool(pool)
	if !ok {
		return fmt.Errorf("%w: %s", dmm.ErrInvalidPool, pool.Hex())
	}
	value := liquidity
	if permit.ApproveMax {
		value = mathext.MaxUint256
	}
	return p.Permit(ctx, caller, r.address, value, deadline, permit.Signature)
}

// RemoveLiquidityWithPermit is RemoveLiquidity approved by a signature.
func (r *Router) RemoveLiquidityWithPermit(ctx context.Context, caller common.Address, p RemoveLiquidityParams, permit Permit) (amountA, amountB *uint256.Int, err error) {
	if err := present(p.Liquidity); err != nil {
		return nil, nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if err := r.permit(ctx, caller, p.Pool, p.Liquidity, p.Deadline, permit); err != nil {
			return err
		}
		amountA, amountB, err = r.withdraw(ctx, caller, p)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return amountA, amountB, nil
}

// RemoveLiquidityETHWithPermit is RemoveLiquidityETH approved by a signature.
func (r *Router) RemoveLiquidityETHWithPermit(ctx context.Context, caller common.Address, p RemoveLiquidityETHParams, permit Permit) (amountToken, amountETH *uint256.Int, err error) {
	if err := present(p.Liquidity); err != nil {
		return nil, nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if err := r.permit(ctx, caller, p.Pool, p.Liquidity, p.Deadline, permit); err != nil {
			return err
		}
		amountToken, amountETH, err = r.withdrawETH(ctx, caller, p, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return amountToken, amountETH, nil
}

// RemoveLiquidityETHSupportingFeeOnTransferTokens is RemoveLiquidityETH for tokens that
// take a fee on transfer. It returns the native amount paid out.
func (r *Router) RemoveLiquidityETHSupportingFeeOnTransferTokens(ctx context.Context, caller common.Address, p RemoveLiquidityETHParams) (amountETH *uint256.Int, err error) {
	if err := present(p.Liquidity); err != nil {
		return nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		_, amountETH, err = r.withdrawETH(ctx, caller, p, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amountETH, nil
}

// RemoveLiquidityETHWithPermitSupportingFeeOnTransferTokens combines the permit and the
// fee-on-transfer variants of RemoveLiquidityETH.
func (r *Router) RemoveLiquidityETHWithPermitSupportingFeeOnTransferTokens(ctx context.Context, caller common.Address, p RemoveLiquidityETHParams, permit Permit) (amountETH *uint256.Int, err error) {
	if err := present(p.Liquidity); err != nil {
		return nil, err
	}
	err = r.transact(ctx, p.Deadline, func(ctx context.Context) error {
		if err := r.permit(ctx, caller, p.Pool, p.Liquidity, p.Deadline, permit); err != nil {
			return err
		}
		_, amountETH, err = r.withdrawETH(ctx, caller, p, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amountETH, nil
}
