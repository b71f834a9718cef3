package calculator

import (
	"fmt"
	"sync"

	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	one = uint256.NewInt(1)

	// ErrTokenMismatch is returned when the requested pair is not the pair of the pool.
	ErrTokenMismatch = fmt.Errorf("%w: token mismatch", dmm.ErrInvalidPath)
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = fmt.Errorf("%w: nil amount", dmm.ErrInvalidInput)
)

// Reserves are the reserves of a pool oriented along a trade direction.
type Reserves struct {
	ReserveIn      *uint256.Int
	ReserveOut     *uint256.Int
	VReserveIn     *uint256.Int
	VReserveOut    *uint256.Int
	FeeInPrecision *uint256.Int
}

// Orient returns the trade info of pool seen from tokenIn to tokenOut.
func Orient(tokenIn, tokenOut common.Address, pool dmm.PoolView) (Reserves, error) {
	info := pool.TradeInfo()
	switch {
	case tokenIn == pool.Token0 && tokenOut == pool.Token1:
		return Reserves{info.Reserve0, info.Reserve1, info.VReserve0, info.VReserve1, info.FeeInPrecision}, nil
	case tokenIn == pool.Token1 && tokenOut == pool.Token0:
		return Reserves{info.Reserve1, info.Reserve0, info.VReserve1, info.VReserve0, info.FeeInPrecision}, nil
	}
	return Reserves{}, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s", ErrTokenMismatch, pool.Address.Hex(), tokenIn.Hex(), tokenOut.Hex())
}

// Calculator holds reusable integers for the swap formulas. Instances are not safe for
// concurrent use; they are handed out by calculatorPool.
type Calculator struct {
	feeMultiplier   uint256.Int
	amountInWithFee uint256.Int
	numerator       uint256.Int
	denominator     uint256.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return new(Calculator)
	},
}

// GetAmountOut returns the output of selling amountIn along r:
//
//	amountInWithFee = amountIn * (P - fee) / P
//	amountOut = amountInWithFee * vReserveOut / (vReserveIn + amountInWithFee)
//
// The output must stay strictly below the real reserve.
func GetAmountOut(amountIn *uint256.Int, r Reserves) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, r)
}

// GetAmountIn returns the input needed to buy amountOut along r, rounded up.
func GetAmountIn(amountOut *uint256.Int, r Reserves) (*uint256.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, r)
}

func checkReserves(r Reserves) error {
	if r.ReserveIn == nil || r.ReserveOut == nil || r.VReserveIn == nil || r.VReserveOut == nil || r.FeeInPrecision == nil {
		return fmt.Errorf("%w: incomplete reserves", dmm.ErrInvalidInput)
	}
	if r.ReserveIn.IsZero() || r.ReserveOut.IsZero() {
		return dmm.ErrInsufficientLiquidity
	}
	if !r.FeeInPrecision.Lt(mathext.Precision) {
		return fmt.Errorf("%w: fee %s", dmm.ErrInvalidFee, r.FeeInPrecision.Dec())
	}
	return nil
}

func (c *Calculator) getAmountOut(amountIn *uint256.Int, r Reserves) (*uint256.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.IsZero() {
		return nil, dmm.ErrInsufficientInputAmount
	}
	if err := checkReserves(r); err != nil {
		return nil, err
	}

	c.feeMultiplier.Sub(mathext.Precision, r.FeeInPrecision)
	if _, overflowed := c.amountInWithFee.MulOverflow(amountIn, &c.feeMultiplier); overflowed {
		return nil, overflow("amountIn * (P - fee)")
	}
	c.amountInWithFee.Div(&c.amountInWithFee, mathext.Precision)
	if _, overflowed := c.numerator.MulOverflow(&c.amountInWithFee, r.VReserveOut); overflowed {
		return nil, overflow("amountInWithFee * vReserveOut")
	}
	if _, overflowed := c.denominator.AddOverflow(r.VReserveIn, &c.amountInWithFee); overflowed {
		return nil, overflow("vReserveIn + amountInWithFee")
	}
	if c.denominator.IsZero() {
		return nil, fmt.Errorf("%w: empty virtual reserves", dmm.ErrInsufficientLiquidity)
	}

	amountOut := new(uint256.Int).Div(&c.numerator, &c.denominator)
	if !amountOut.Lt(r.ReserveOut) {
		return nil, fmt.Errorf("%w: amountOut %s >= reserveOut %s", dmm.ErrInsufficientLiquidity, amountOut.Dec(), r.ReserveOut.Dec())
	}
	return amountOut, nil
}

func (c *Calculator) getAmountIn(amountOut *uint256.Int, r Reserves) (*uint256.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.IsZero() {
		return nil, dmm.ErrInsufficientOutputAmount
	}
	if err := checkReserves(r); err != nil {
		return nil, err
	}
	if !amountOut.Lt(r.ReserveOut) {
		return nil, fmt.Errorf("%w: amountOut %s >= reserveOut %s", dmm.ErrInsufficientLiquidity, amountOut.Dec(), r.ReserveOut.Dec())
	}

	if _, overflowed := c.numerator.MulOverflow(r.VReserveIn, amountOut); overflowed {
		return nil, overflow("vReserveIn * amountOut")
	}
	c.denominator.Sub(r.VReserveOut, amountOut)
	amountIn := new(uint256.Int).Div(&c.numerator, &c.denominator)
	amountIn.Add(amountIn, one)

	// amountIn = ceil(amountIn * P / (P - fee))
	c.feeMultiplier.Sub(mathext.Precision, r.FeeInPrecision)
	return mathext.MulDivRoundingUp(amountIn, mathext.Precision, &c.feeMultiplier)
}

// overflow describes which step of a formula left the 256-bit range.
func overflow(step string) error {
	return fmt.Errorf("%w: %s", dmm.ErrArithmeticOverflow, step)
}

// Quote returns the amount of B worth amountA at the reserve ratio.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if mathext.IsZero(amountA) {
		return nil, dmm.ErrInsufficientAmount
	}
	if mathext.IsZero(reserveA) || mathext.IsZero(reserveB) {
		return nil, dmm.ErrInsufficientLiquidity
	}
	return mathext.MulDiv(amountA, reserveB, reserveA)
}

func checkPath(pools []dmm.PoolView, path []common.Address) error {
	if len(path) < 2 {
		return fmt.Errorf("%w: path needs at least two tokens", dmm.ErrInvalidPath)
	}
	if len(pools) != len(path)-1 {
		return fmt.Errorf("%w: %d pools for %d tokens", dmm.ErrInvalidPath, len(pools), len(path))
	}
	return nil
}

// GetAmountsOut chains GetAmountOut over the hops (pools[i], path[i] -> path[i+1]).
func GetAmountsOut(amountIn *uint256.Int, pools []dmm.PoolView, path []common.Address) ([]*uint256.Int, error) {
	if err := checkPath(pools, path); err != nil {
		return nil, err
	}
	amounts := make([]*uint256.Int, len(path))
	amounts[0] = amountIn
	for i, pool := range pools {
		r, err := Orient(path[i], path[i+1], pool)
		if err != nil {
			return nil, err
		}
		if amounts[i+1], err = GetAmountOut(amounts[i], r); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return amounts, nil
}

// GetAmountsIn chains GetAmountIn backwards over the hops.
func GetAmountsIn(amountOut *uint256.Int, pools []dmm.PoolView, path []common.Address) ([]*uint256.Int, error) {
	if err := checkPath(pools, path); err != nil {
		return nil, err
	}
	amounts := make([]*uint256.Int, len(path))
	amounts[len(amounts)-1] = amountOut
	for i := len(pools) - 1; i >= 0; i-- {
		r, err := Orient(path[i], path[i+1], pools[i])
		if err != nil {
			return nil, err
		}
		if amounts[i], err = GetAmountIn(amounts[i+1], r); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return amounts, nil
}

// SimulateSwap returns the output of selling amountIn into pool and the state of the
// pool after the trade. Real and virtual reserves move by the same amounts.
func SimulateSwap(amountIn *uint256.Int, tokenIn, tokenOut common.Address, pool dmm.PoolView) (*uint256.Int, dmm.PoolView, error) {
	r, err := Orient(tokenIn, tokenOut, pool)
	if err != nil {
		return nil, dmm.PoolView{}, err
	}
	amountOut, err := GetAmountOut(amountIn, r)
	if err != nil {
		return nil, dmm.PoolView{}, err
	}

	next := pool
	if tokenIn == pool.Token0 {
		next.Reserve0, next.VReserve0, err = credit(pool.Reserve0, pool.VReserve0, amountIn)
		if err != nil {
			return nil, dmm.PoolView{}, err
		}
		next.Reserve1 = new(uint256.Int).Sub(pool.Reserve1, amountOut)
		next.VReserve1 = new(uint256.Int).Sub(pool.VReserve1, amountOut)
	} else {
		next.Reserve1, next.VReserve1, err = credit(pool.Reserve1, pool.VReserve1, amountIn)
		if err != nil {
			return nil, dmm.PoolView{}, err
		}
		next.Reserve0 = new(uint256.Int).Sub(pool.Reserve0, amountOut)
		next.VReserve0 = new(uint256.Int).Sub(pool.VReserve0, amountOut)
	}
	return amountOut, next, nil
}

func credit(reserve, vReserve, amount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	r, err := mathext.Add(reserve, amount)
	if err != nil {
		return nil, nil, err
	}
	v, err := mathext.Add(vReserve, amount)
	if err != nil {
		return nil, nil, err
	}
	return r, v, nil
}

// SimulateBurn returns the tokens redeemed for liquidity shares and the state of the pool
// afterwards, including the protocol fee the burn mints first.
func SimulateBurn(liquidity *uint256.Int, pool dmm.PoolView, fees dmm.FeeConfiguration) (amount0, amount1 *uint256.Int, next dmm.PoolView, err error) {
	if liquidity == nil {
		return nil, nil, dmm.PoolView{}, ErrNilAmount
	}
	totalSupply, err := supplyAfterFee(pool, pool.Reserve0, pool.Reserve1, fees)
	if err != nil {
		return nil, nil, dmm.PoolView{}, err
	}
	if totalSupply.IsZero() || liquidity.Gt(totalSupply) {
		return nil, nil, dmm.PoolView{}, dmm.ErrInsufficientLiquidityBurned
	}
	if amount0, err = mathext.MulDiv(liquidity, pool.Reserve0, totalSupply); err != nil {
		return nil, nil, dmm.PoolView{}, err
	}
	if amount1, err = mathext.MulDiv(liquidity, pool.Reserve1, totalSupply); err != nil {
		return nil, nil, dmm.PoolView{}, err
	}
	if amount0.IsZero() || amount1.IsZero() {
		return nil, nil, dmm.PoolView{}, dmm.ErrInsufficientLiquidityBurned
	}

	next = pool
	next.Reserve0 = new(uint256.Int).Sub(pool.Reserve0, amount0)
	next.Reserve1 = new(uint256.Int).Sub(pool.Reserve1, amount1)
	next.TotalSupply = new(uint256.Int).Sub(totalSupply, liquidity)
	next.VReserve0, next.VReserve1 = next.Reserve0, next.Reserve1
	if pool.IsAmplified() {
		if next.VReserve0, err = scaleFloor(pool.VReserve0, next.TotalSupply, totalSupply, next.Reserve0); err != nil {
			return nil, nil, dmm.PoolView{}, err
		}
		if next.VReserve1, err = scaleFloor(pool.VReserve1, next.TotalSupply, totalSupply, next.Reserve1); err != nil {
			return nil, nil, dmm.PoolView{}, err
		}
	}
	return amount0, amount1, next, nil
}

func scaleFloor(v, numerator, denominator, floor *uint256.Int) (*uint256.Int, error) {
	scaled, err := mathext.MulDiv(v, numerator, denominator)
	if err != nil {
		return nil, err
	}
	return mathext.Max(scaled, floor), nil
}

// supplyAfterFee returns the LP supply once the pending protocol fee has been minted.
func supplyAfterFee(pool dmm.PoolView, reserve0, reserve1 *uint256.Int, fees dmm.FeeConfiguration) (*uint256.Int, error) {
	totalSupply := mathext.Zero()
	if pool.TotalSupply != nil {
		totalSupply = pool.TotalSupply.Clone()
	}
	if !fees.FeeOn() || mathext.IsZero(pool.KLast) {
		return totalSupply, nil
	}
	fee, err := dmm.ProtocolFee(totalSupply, reserve0, reserve1, pool.KLast, fees.GovernmentFeeUnits)
	if err != nil {
		return nil, err
	}
	return totalSupply.Add(totalSupply, fee), nil
}
