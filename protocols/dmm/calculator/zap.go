package calculator

import (
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	two  = uint256.NewInt(2)
	four = uint256.NewInt(4)
)

// SwapInAmount returns the part x of userIn to sell along r so that the remaining
// userIn - x and the bought amount are in the ratio of the real reserves after the
// swap. With γ = (P - fee) / P it is the positive root of
//
//	γx² + bx - userIn*vIn = 0,  b = vIn + γ(vOut*rIn + userIn*(vOut - rOut)) / rOut
func SwapInAmount(userIn *uint256.Int, r Reserves) (*uint256.Int, error) {
	if userIn == nil {
		return nil, ErrNilAmount
	}
	if userIn.IsZero() {
		return nil, dmm.ErrInsufficientInputAmount
	}
	if err := checkReserves(r); err != nil {
		return nil, err
	}
	gamma := new(uint256.Int).Sub(mathext.Precision, r.FeeInPrecision)

	// b = (userIn*(vOut - rOut) + vOut*rIn) / rOut * γ + vIn
	spread, err := mathext.Sub(r.VReserveOut, r.ReserveOut)
	if err != nil {
		return nil, err
	}
	tmp, err := mathext.Mul(userIn, spread)
	if err != nil {
		return nil, err
	}
	cross, err := mathext.Mul(r.VReserveOut, r.ReserveIn)
	if err != nil {
		return nil, err
	}
	if tmp, err = mathext.Add(tmp, cross); err != nil {
		return nil, err
	}
	tmp.Div(tmp, r.ReserveOut)
	b, err := mathext.MulDiv(tmp, gamma, mathext.Precision)
	if err != nil {
		return nil, err
	}
	if b, err = mathext.Add(b, r.VReserveIn); err != nil {
		return nil, err
	}

	// numerator = sqrt(b² + 4γ*userIn*vIn) - b
	inverseC, err := mathext.Mul(userIn, r.VReserveIn)
	if err != nil {
		return nil, err
	}
	fourGamma := new(uint256.Int).Mul(four, gamma)
	discriminantTail, err := mathext.MulDiv(inverseC, fourGamma, mathext.Precision)
	if err != nil {
		return nil, err
	}
	bSquared, err := mathext.Mul(b, b)
	if err != nil {
		return nil, err
	}
	discriminant, err := mathext.Add(bSquared, discriminantTail)
	if err != nil {
		return nil, err
	}
	numerator, err := mathext.Sub(mathext.Sqrt(discriminant), b)
	if err != nil {
		return nil, err
	}
	return mathext.MulDiv(numerator, mathext.Precision, new(uint256.Int).Mul(two, gamma))
}

// ZapIn prices a single-sided deposit of userIn tokenIn into pool: swapIn is sold for
// amountOut of tokenOut, then both sides are minted into liquidity shares.
type ZapIn struct {
	SwapIn    *uint256.Int `json:"swapIn"`
	AmountOut *uint256.Int `json:"amountOut"`
	Liquidity *uint256.Int `json:"liquidity"`
}

// ZapInAmounts simulates a zap-in, including the protocol fee minted before the deposit.
func ZapInAmounts(userIn *uint256.Int, tokenIn, tokenOut common.Address, pool dmm.PoolView, fees dmm.FeeConfiguration) (ZapIn, error) {
	r, err := Orient(tokenIn, tokenOut, pool)
	if err != nil {
		return ZapIn{}, err
	}
	swapIn, err := SwapInAmount(userIn, r)
	if err != nil {
		return ZapIn{}, err
	}
	amountOut, next, err := SimulateSwap(swapIn, tokenIn, tokenOut, pool)
	if err != nil {
		return ZapIn{}, fmt.Errorf("swap %s of %s: %w", swapIn.Dec(), userIn.Dec(), err)
	}

	totalSupply, err := supplyAfterFee(next, next.Reserve0, next.Reserve1, fees)
	if err != nil {
		return ZapIn{}, err
	}
	remaining := new(uint256.Int).Sub(userIn, swapIn)
	after, err := Orient(tokenIn, tokenOut, next)
	if err != nil {
		return ZapIn{}, err
	}
	fromIn, err := mathext.MulDiv(remaining, totalSupply, after.ReserveIn)
	if err != nil {
		return ZapIn{}, err
	}
	fromOut, err := mathext.MulDiv(amountOut, totalSupply, after.ReserveOut)
	if err != nil {
		return ZapIn{}, err
	}
	return ZapIn{SwapIn: swapIn, AmountOut: amountOut, Liquidity: mathext.Min(fromIn, fromOut)}, nil
}

// ZapOutAmount returns the amount of tokenOut received for burning liquidity shares and
// selling the tokenOther part into the pool after the burn.
func ZapOutAmount(liquidity *uint256.Int, tokenOut, tokenOther common.Address, pool dmm.PoolView, fees dmm.FeeConfiguration) (*uint256.Int, error) {
	if _, err := Orient(tokenOther, tokenOut, pool); err != nil {
		return nil, err
	}
	amount0, amount1, next, err := SimulateBurn(liquidity, pool, fees)
	if err != nil {
		return nil, err
	}
	direct, other := amount0, amount1
	if tokenOut == pool.Token1 {
		direct, other = amount1, amount0
	}

	r, err := Orient(tokenOther, tokenOut, next)
	if err != nil {
		return nil, err
	}
	swapped, err := GetAmountOut(other, r)
	if err != nil {
		return nil, fmt.Errorf("swap burned %s: %w", other.Dec(), err)
	}
	return mathext.Add(direct, swapped)
}
