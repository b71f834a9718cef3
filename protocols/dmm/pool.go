package dmm

import (
	"context"
	"fmt"
	"sync"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BPS is 100% in basis points. A pool created with ampBps == BPS is unamplified.
const BPS = 10_000

const (
	lpName   = "KyberDMM LP"
	lpSymbol = "DMM-LP"
)

var maxReserve = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 112), uint256.NewInt(1))

// FeeConfigurer supplies the protocol fee setup a pool mints against.
type FeeConfigurer interface {
	FeeConfiguration() FeeConfiguration
}

// SwapCallback runs inside Swap after the requested outputs were sent to the recipient
// and before the pool measures what it received, which enables flash swaps.
type SwapCallback func(ctx context.Context, sender common.Address, amount0Out, amount1Out *uint256.Int) error

type reserves struct {
	reserve0, reserve1   uint256.Int
	vReserve0, vReserve1 uint256.Int
}

type poolConfig struct {
	ID      uint64
	Address common.Address
	Factory common.Address
	Fees    FeeConfigurer
	Token0  chain.Token
	Token1  chain.Token
	AmpBps  uint32
	FeeBps  uint16
}

// Pool is a two-token constant-product pool priced on virtual reserves. It is also the
// ERC20 (with permit) of its own LP shares.
type Pool struct {
	chain          *chain.Chain
	fees           FeeConfigurer
	id             uint64
	address        common.Address
	factory        common.Address
	token0         chain.Token
	token1         chain.Token
	ampBps         uint32
	feeBps         uint16
	feeInPrecision *uint256.Int
	lp             *chain.ERC20

	mu     sync.RWMutex
	state  reserves
	kLast  uint256.Int
	locked bool
}

func newPool(ctx context.Context, c *chain.Chain, cfg poolConfig) (*Pool, error) {
	feeInPrecision := new(uint256.Int).Mul(uint256.NewInt(uint64(cfg.FeeBps)), mathext.Precision)
	feeInPrecision.Div(feeInPrecision, mathext.BPS)

	lp, err := chain.NewERC20(ctx, c, &chain.TokenConfig{
		Name:     lpName,
		Symbol:   lpSymbol,
		Decimals: 18,
		Minter:   cfg.Address,
		Address:  cfg.Address,
	})
	if err != nil {
		return nil, err
	}
	return &Pool{
		chain:          c,
		fees:           cfg.Fees,
		id:             cfg.ID,
		address:        cfg.Address,
		factory:        cfg.Factory,
		token0:         cfg.Token0,
		token1:         cfg.Token1,
		ampBps:         cfg.AmpBps,
		feeBps:         cfg.FeeBps,
		feeInPrecision: feeInPrecision,
		lp:             lp,
	}, nil
}

func (p *Pool) ID() uint64                   { return p.id }
func (p *Pool) Address() common.Address      { return p.address }
func (p *Pool) Factory() common.Address      { return p.factory }
func (p *Pool) Token0() common.Address       { return p.token0.Address() }
func (p *Pool) Token1() common.Address       { return p.token1.Address() }
func (p *Pool) AmpBps() uint32               { return p.ampBps }
func (p *Pool) FeeBps() uint16               { return p.feeBps }
func (p *Pool) FeeInPrecision() *uint256.Int { return p.feeInPrecision.Clone() }

// IsAmplified reports whether virtual reserves differ from real ones.
func (p *Pool) IsAmplified() bool { return p.ampBps != BPS }

func (p *Pool) snapshot() reserves {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// TradeInfo returns the real and virtual reserves and the fee.
func (p *Pool) TradeInfo() TradeInfo {
	s := p.snapshot()
	return TradeInfo{
		Reserve0:       s.reserve0.Clone(),
		Reserve1:       s.reserve1.Clone(),
		VReserve0:      s.vReserve0.Clone(),
		VReserve1:      s.vReserve1.Clone(),
		FeeInPrecision: p.feeInPrecision.Clone(),
	}
}

// Reserves returns the real reserves.
func (p *Pool) Reserves() (reserve0, reserve1 *uint256.Int) {
	s := p.snapshot()
	return s.reserve0.Clone(), s.reserve1.Clone()
}

func (p *Pool) KLast() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.kLast.Clone()
}

// View snapshots the pool.
func (p *Pool) View() PoolView {
	p.mu.RLock()
	s := p.state
	kLast := p.kLast
	p.mu.RUnlock()
	return PoolView{
		ID:             p.id,
		Address:        p.address,
		Factory:        p.factory,
		Token0:         p.token0.Address(),
		Token1:         p.token1.Address(),
		AmpBps:         p.ampBps,
		FeeBps:         p.feeBps,
		Reserve0:       s.reserve0.Clone(),
		Reserve1:       s.reserve1.Clone(),
		VReserve0:      s.vReserve0.Clone(),
		VReserve1:      s.vReserve1.Clone(),
		FeeInPrecision: p.feeInPrecision.Clone(),
		TotalSupply:    p.lp.TotalSupply(),
		KLast:          kLast.Clone(),
	}
}

// LP share token surface.

func (p *Pool) Name() string                 { return p.lp.Name() }
func (p *Pool) Symbol() string               { return p.lp.Symbol() }
func (p *Pool) Decimals() uint8              { return p.lp.Decimals() }
func (p *Pool) TotalSupply() *uint256.Int    { return p.lp.TotalSupply() }
func (p *Pool) DomainSeparator() common.Hash { return p.lp.DomainSeparator() }

func (p *Pool) BalanceOf(owner common.Address) *uint256.Int {
	return p.lp.BalanceOf(owner)
}

func (p *Pool) Allowance(owner, spender common.Address) *uint256.Int {
	return p.lp.Allowance(owner, spender)
}

func (p *Pool) Nonces(owner common.Address) uint64 {
	return p.lp.Nonces(owner)
}

func (p *Pool) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.lp.Transfer(ctx, from, to, amount)
}

func (p *Pool) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.lp.TransferFrom(ctx, spender, from, to, amount)
}

func (p *Pool) Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error {
	return p.lp.Approve(ctx, owner, spender, amount)
}

func (p *Pool) Permit(ctx context.Context, owner, spender common.Address, value *uint256.Int, deadline uint64, sig chain.Signature) error {
	return p.lp.Permit(ctx, owner, spender, value, deadline, sig)
}

// nonReentrant runs fn in a transaction holding the pool lock. A nested call into any
// locked operation of the same pool fails with ErrLocked.
func (p *Pool) nonReentrant(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.chain.Transact(ctx, func(ctx context.Context) error {
		p.mu.Lock()
		if p.locked {
			p.mu.Unlock()
			return fmt.Errorf("%w: pool %s", ErrLocked, p.address.Hex())
		}
		p.locked = true
		p.mu.Unlock()
		defer func() {
			p.mu.Lock()
			p.locked = false
			p.mu.Unlock()
		}()
		return fn(ctx)
	})
}

func (p *Pool) balances() (balance0, balance1 *uint256.Int) {
	return p.token0.BalanceOf(p.address), p.token1.BalanceOf(p.address)
}

// received returns balance - reserve, failing when the pool holds less than it tracks.
func (p *Pool) received(balance, reserve *uint256.Int) (*uint256.Int, error) {
	if balance.Lt(reserve) {
		return nil, fmt.Errorf("%w: pool %s balance %s below reserve %s", ErrReserveMismatch, p.address.Hex(), balance.Dec(), reserve.Dec())
	}
	return new(uint256.Int).Sub(balance, reserve), nil
}

// synced fails when either balance of the pool is below its tracked reserve.
func (p *Pool) synced(r reserves) error {
	balance0, balance1 := p.balances()
	if _, err := p.received(balance0, &r.reserve0); err != nil {
		return err
	}
	_, err := p.received(balance1, &r.reserve1)
	return err
}

func (p *Pool) update(ctx context.Context, next reserves) error {
	if next.reserve0.Gt(maxReserve) || next.reserve1.Gt(maxReserve) {
		return fmt.Errorf("%w: reserves of pool %s exceed 112 bits", ErrArithmeticOverflow, p.address.Hex())
	}
	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()
	p.chain.Record(ctx, func() {
		p.mu.Lock()
		p.state = prev
		p.mu.Unlock()
	})
	p.chain.Emit(ctx, Sync{
		Pool:      p.address,
		VReserve0: next.vReserve0.Clone(),
		VReserve1: next.vReserve1.Clone(),
		Reserve0:  next.reserve0.Clone(),
		Reserve1:  next.reserve1.Clone(),
	})
	return nil
}

func (p *Pool) setKLast(ctx context.Context, k *uint256.Int) {
	p.mu.Lock()
	prev := p.kLast
	p.kLast = *k
	p.mu.Unlock()
	p.chain.Record(ctx, func() {
		p.mu.Lock()
		p.kLast = prev
		p.mu.Unlock()
	})
}

func (p *Pool) updateKLast(ctx context.Context, next reserves) error {
	k, err := mathext.Mul(&next.reserve0, &next.reserve1)
	if err != nil {
		return err
	}
	p.setKLast(ctx, k)
	return nil
}

// mintFee mints the protocol share accrued since the last checkpoint. It reports whether
// the protocol fee is switched on.
func (p *Pool) mintFee(ctx context.Context, r reserves) (bool, error) {
	cfg := p.fees.FeeConfiguration()
	kLast := p.KLast()
	if !cfg.FeeOn() {
		if !kLast.IsZero() {
			p.setKLast(ctx, mathext.Zero())
		}
		return false, nil
	}
	shares, err := ProtocolFee(p.lp.TotalSupply(), &r.reserve0, &r.reserve1, kLast, cfg.GovernmentFeeUnits)
	if err != nil {
		return false, fmt.Errorf("protocol fee: %w", err)
	}
	if !shares.IsZero() {
		if err := p.lp.MintInternal(ctx, cfg.FeeTo, shares); err != nil {
			return false, err
		}
	}
	return true, nil
}

// scale returns max(v * numerator / denominator, floor).
func scale(v, numerator, denominator, floor *uint256.Int) (*uint256.Int, error) {
	scaled, err := mathext.MulDiv(v, numerator, denominator)
	if err != nil {
		return nil, err
	}
	return mathext.Max(scaled, floor), nil
}

// Mint issues LP shares for the tokens transferred to the pool since the last update.
func (p *Pool) Mint(ctx context.Context, caller, to common.Address) (*uint256.Int, error) {
	var liquidity *uint256.Int
	err := p.nonReentrant(ctx, func(ctx context.Context) error {
		r := p.snapshot()
		balance0, balance1 := p.balances()
		amount0, err := p.received(balance0, &r.reserve0)
		if err != nil {
			return err
		}
		amount1, err := p.received(balance1, &r.reserve1)
		if err != nil {
			return err
		}

		feeOn, err := p.mintFee(ctx, r)
		if err != nil {
			return err
		}
		totalSupply := p.lp.TotalSupply()
		next := reserves{reserve0: *balance0, reserve1: *balance1}

		if totalSupply.IsZero() {
			if p.IsAmplified() {
				amp := uint256.NewInt(uint64(p.ampBps))
				v0, err := mathext.MulDiv(balance0, amp, mathext.BPS)
				if err != nil {
					return err
				}
				v1, err := mathext.MulDiv(balance1, amp, mathext.BPS)
				if err != nil {
					return err
				}
				next.vReserve0, next.vReserve1 = *v0, *v1
			} else {
				next.vReserve0, next.vReserve1 = *balance0, *balance1
			}
			product, err := mathext.Mul(amount0, amount1)
			if err != nil {
				return err
			}
			root := mathext.Sqrt(product)
			if !root.Gt(mathext.MinimumLiquidity) {
				return fmt.Errorf("%w: initial liquidity %s", ErrInsufficientLiquidityMinted, root.Dec())
			}
			liquidity = new(uint256.Int).Sub(root, mathext.MinimumLiquidity)
			// the zero address can never transfer, so these shares stay locked
			if err := p.lp.MintInternal(ctx, common.Address{}, mathext.MinimumLiquidity); err != nil {
				return err
			}
		} else {
			l0, err := mathext.MulDiv(amount0, totalSupply, &r.reserve0)
			if err != nil {
				return err
			}
			l1, err := mathext.MulDiv(amount1, totalSupply, &r.reserve1)
			if err != nil {
				return err
			}
			liquidity = mathext.Min(l0, l1)
			if p.IsAmplified() {
				grown := new(uint256.Int).Add(totalSupply, liquidity)
				v0, err := scale(&r.vReserve0, grown, totalSupply, balance0)
				if err != nil {
					return err
				}
				v1, err := scale(&r.vReserve1, grown, totalSupply, balance1)
				if err != nil {
					return err
				}
				next.vReserve0, next.vReserve1 = *v0, *v1
			} else {
				next.vReserve0, next.vReserve1 = *balance0, *balance1
			}
		}
		if liquidity.IsZero() {
			return ErrInsufficientLiquidityMinted
		}
		if err := p.lp.MintInternal(ctx, to, liquidity); err != nil {
			return err
		}

		p.chain.Emit(ctx, Mint{Pool: p.address, Sender: caller, Amount0: amount0, Amount1: amount1})
		if err := p.update(ctx, next); err != nil {
			return err
		}
		if feeOn {
			return p.updateKLast(ctx, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return liquidity, nil
}

// Burn redeems the LP shares held by the pool itself and sends both tokens to `to`.
func (p *Pool) Burn(ctx context.Context, caller, to common.Address) (amount0, amount1 *uint256.Int, err error) {
	err = p.nonReentrant(ctx, func(ctx context.Context) error {
		r := p.snapshot()
		if err := p.synced(r); err != nil {
			return err
		}
		balance0, balance1 := p.balances()
		liquidity := p.lp.BalanceOf(p.address)

		feeOn, err := p.mintFee(ctx, r)
		if err != nil {
			return err
		}
		totalSupply := p.lp.TotalSupply()
		if totalSupply.IsZero() {
			return ErrInsufficientLiquidityBurned
		}

		if amount0, err = mathext.MulDiv(liquidity, balance0, totalSupply); err != nil {
			return err
		}
		if amount1, err = mathext.MulDiv(liquidity, balance1, totalSupply); err != nil {
			return err
		}
		if amount0.IsZero() || amount1.IsZero() {
			return fmt.Errorf("%w: burning %s shares", ErrInsufficientLiquidityBurned, liquidity.Dec())
		}

		if err := p.lp.BurnInternal(ctx, p.address, liquidity); err != nil {
			return err
		}
		if _, err := p.token0.Transfer(ctx, p.address, to, amount0); err != nil {
			return fmt.Errorf("transfer token0: %w", err)
		}
		if _, err := p.token1.Transfer(ctx, p.address, to, amount1); err != nil {
			return fmt.Errorf("transfer token1: %w", err)
		}

		balance0, balance1 = p.balances()
		next := reserves{reserve0: *balance0, reserve1: *balance1}
		if p.IsAmplified() {
			remaining := new(uint256.Int).Sub(totalSupply, liquidity)
			v0, err := scale(&r.vReserve0, remaining, totalSupply, balance0)
			if err != nil {
				return err
			}
			v1, err := scale(&r.vReserve1, remaining, totalSupply, balance1)
			if err != nil {
				return err
			}
			next.vReserve0, next.vReserve1 = *v0, *v1
		} else {
			next.vReserve0, next.vReserve1 = *balance0, *balance1
		}

		p.chain.Emit(ctx, Burn{Pool: p.address, Sender: caller, Amount0: amount0.Clone(), Amount1: amount1.Clone(), To: to})
		if err := p.update(ctx, next); err != nil {
			return err
		}
		if feeOn {
			return p.updateKLast(ctx, next)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Swap sends the requested outputs to `to`, runs the optional callback, then infers the
// inputs from the new balances and checks the fee-adjusted virtual invariant.
func (p *Pool) Swap(ctx context.Context, caller common.Address, amount0Out, amount1Out *uint256.Int, to common.Address, callback SwapCallback) error {
	if mathext.IsZero(amount0Out) && mathext.IsZero(amount1Out) {
		return ErrInsufficientOutputAmount
	}
	if amount0Out == nil {
		amount0Out = mathext.Zero()
	}
	if amount1Out == nil {
		amount1Out = mathext.Zero()
	}

	return p.nonReentrant(ctx, func(ctx context.Context) error {
		r := p.snapshot()
		if err := p.synced(r); err != nil {
			return err
		}
		if !amount0Out.Lt(&r.reserve0) || !amount1Out.Lt(&r.reserve1) {
			return fmt.Errorf("%w: pool %s", ErrInsufficientLiquidity, p.address.Hex())
		}
		if to == p.token0.Address() || to == p.token1.Address() {
			return ErrInvalidTo
		}

		if !amount0Out.IsZero() {
			if _, err := p.token0.Transfer(ctx, p.address, to, amount0Out); err != nil {
				return fmt.Errorf("transfer token0: %w", err)
			}
		}
		if !amount1Out.IsZero() {
			if _, err := p.token1.Transfer(ctx, p.address, to, amount1Out); err != nil {
				return fmt.Errorf("transfer token1: %w", err)
			}
		}
		if callback != nil {
			if err := callback(ctx, caller, amount0Out.Clone(), amount1Out.Clone()); err != nil {
				return fmt.Errorf("swap callback: %w", err)
			}
		}

		balance0, balance1 := p.balances()
		amount0In := inferredInput(balance0, &r.reserve0, amount0Out)
		amount1In := inferredInput(balance1, &r.reserve1, amount1Out)
		if amount0In.IsZero() && amount1In.IsZero() {
			return ErrInsufficientInputAmount
		}

		next := reserves{reserve0: *balance0, reserve1: *balance1}
		if p.IsAmplified() {
			// virtual reserves move by the same delta as the real ones
			v0, err := shift(&r.vReserve0, balance0, &r.reserve0)
			if err != nil {
				return err
			}
			v1, err := shift(&r.vReserve1, balance1, &r.reserve1)
			if err != nil {
				return err
			}
			next.vReserve0, next.vReserve1 = *v0, *v1
		} else {
			next.vReserve0, next.vReserve1 = *balance0, *balance1
		}

		if err := p.verifyK(&next, &r, amount0In, amount1In); err != nil {
			return err
		}

		p.chain.Emit(ctx, Swap{
			Pool:           p.address,
			Sender:         caller,
			Amount0In:      amount0In,
			Amount1In:      amount1In,
			Amount0Out:     amount0Out.Clone(),
			Amount1Out:     amount1Out.Clone(),
			To:             to,
			FeeInPrecision: p.feeInPrecision.Clone(),
		})
		return p.update(ctx, next)
	})
}

// inferredInput returns balance - (reserve - amountOut) when positive, else zero.
func inferredInput(balance, reserve, amountOut *uint256.Int) *uint256.Int {
	left := new(uint256.Int).Sub(reserve, amountOut)
	if balance.Gt(left) {
		return left.Sub(balance, left)
	}
	return mathext.Zero()
}

// shift returns v + balance - reserve. The result cannot go below zero because
// v >= reserve and balance > reserve - amountOut.
func shift(v, balance, reserve *uint256.Int) (*uint256.Int, error) {
	sum, err := mathext.Add(v, balance)
	if err != nil {
		return nil, err
	}
	return mathext.Sub(sum, reserve)
}

func (p *Pool) verifyK(next, prev *reserves, amount0In, amount1In *uint256.Int) error {
	adjusted0, err := p.feeAdjusted(&next.vReserve0, amount0In)
	if err != nil {
		return err
	}
	adjusted1, err := p.feeAdjusted(&next.vReserve1, amount1In)
	if err != nil {
		return err
	}
	after, err := mathext.Mul(adjusted0, adjusted1)
	if err != nil {
		return err
	}
	before, err := mathext.Mul(&prev.vReserve0, &prev.vReserve1)
	if err != nil {
		return err
	}
	if after.Lt(before) {
		return ErrK
	}
	return nil
}

// feeAdjusted returns (balance*P - amountIn*fee) / P.
func (p *Pool) feeAdjusted(balance, amountIn *uint256.Int) (*uint256.Int, error) {
	scaled, err := mathext.Mul(balance, mathext.Precision)
	if err != nil {
		return nil, err
	}
	fee, err := mathext.Mul(amountIn, p.feeInPrecision)
	if err != nil {
		return nil, err
	}
	net, err := mathext.Sub(scaled, fee)
	if err != nil {
		return nil, err
	}
	return net.Div(net, mathext.Precision), nil
}

// Sync forces the reserves to match the balances. Virtual reserves follow the change
// in the share of the pool each LP share represents.
func (p *Pool) Sync(ctx context.Context, caller common.Address) error {
	return p.nonReentrant(ctx, func(ctx context.Context) error {
		r := p.snapshot()
		feeOn, err := p.mintFee(ctx, r)
		if err != nil {
			return err
		}
		balance0, balance1 := p.balances()
		next := reserves{
			reserve0:  *balance0,
			reserve1:  *balance1,
			vReserve0: *balance0,
			vReserve1: *balance1,
		}

		totalSupply := p.lp.TotalSupply()
		if p.IsAmplified() && !totalSupply.IsZero() && !r.reserve0.IsZero() && !r.reserve1.IsZero() {
			b0, err := mathext.MulDiv(balance0, totalSupply, &r.reserve0)
			if err != nil {
				return err
			}
			b1, err := mathext.MulDiv(balance1, totalSupply, &r.reserve1)
			if err != nil {
				return err
			}
			b := mathext.Min(b0, b1)
			v0, err := scale(&r.vReserve0, b, totalSupply, balance0)
			if err != nil {
				return err
			}
			v1, err := scale(&r.vReserve1, b, totalSupply, balance1)
			if err != nil {
				return err
			}
			next.vReserve0, next.vReserve1 = *v0, *v1
		}

		if err := p.update(ctx, next); err != nil {
			return err
		}
		if feeOn {
			return p.updateKLast(ctx, next)
		}
		return nil
	})
}

// Skim sends any balance above the tracked reserves to `to`.
func (p *Pool) Skim(ctx context.Context, caller, to common.Address) error {
	return p.nonReentrant(ctx, func(ctx context.Context) error {
		r := p.snapshot()
		balance0, balance1 := p.balances()
		excess0, err := p.received(balance0, &r.reserve0)
		if err != nil {
			return err
		}
		excess1, err := p.received(balance1, &r.reserve1)
		if err != nil {
			return err
		}
		if !excess0.IsZero() {
			if _, err := p.token0.Transfer(ctx, p.address, to, excess0); err != nil {
				return fmt.Errorf("transfer token0: %w", err)
			}
		}
		if !excess1.IsZero() {
			if _, err := p.token1.Transfer(ctx, p.address, to, excess1); err != nil {
				return fmt.Errorf("transfer token1: %w", err)
			}
		}
		return nil
	})
}
