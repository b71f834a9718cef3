package calculator

import (
	"testing"

	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB = common.HexToAddress("0x2000000000000000000000000000000000000002")
	tokenC = common.HexToAddress("0x3000000000000000000000000000000000000003")

	fee30 = uint256.NewInt(3_000_000_000_000_000)
)

func ether(n uint64) *uint256.Int {
	return mathext.Expand(n, 18)
}

func reserves(rIn, rOut, vIn, vOut *uint256.Int, fee *uint256.Int) Reserves {
	return Reserves{ReserveIn: rIn, ReserveOut: rOut, VReserveIn: vIn, VReserveOut: vOut, FeeInPrecision: fee}
}

// newPoolView builds a freshly seeded pool: virtual reserves are real*ampBps/BPS.
func newPoolView(addr common.Address, token0, token1 common.Address, reserve0, reserve1 *uint256.Int, ampBps uint32) dmm.PoolView {
	amp := uint256.NewInt(uint64(ampBps))
	v0, _ := mathext.MulDiv(reserve0, amp, mathext.BPS)
	v1, _ := mathext.MulDiv(reserve1, amp, mathext.BPS)
	supply := mathext.Sqrt(new(uint256.Int).Mul(reserve0, reserve1))
	return dmm.PoolView{
		Address:        addr,
		Token0:         token0,
		Token1:         token1,
		AmpBps:         ampBps,
		FeeBps:         30,
		Reserve0:       reserve0,
		Reserve1:       reserve1,
		VReserve0:      v0,
		VReserve1:      v1,
		FeeInPrecision: fee30,
		TotalSupply:    supply,
		KLast:          mathext.Zero(),
	}
}

func TestGetAmountOut(t *testing.T) {
	testCases := []struct {
		name        string
		amountIn    *uint256.Int
		reserves    Reserves
		expected    *uint256.Int
		expectedErr error
	}{
		{
			name:     "unamplified pool",
			amountIn: ether(1),
			reserves: reserves(ether(100), ether(50), ether(100), ether(50), fee30),
			expected: mathext.MustFromDecimal("493579017198530649"),
		},
		{
			name:     "amplified pool prices on virtual reserves",
			amountIn: ether(20),
			reserves: reserves(ether(100), ether(2), ether(1000), ether(20), fee30),
			expected: mathext.MustFromDecimal("391003392356413122"),
		},
		{
			name:        "zero input",
			amountIn:    mathext.Zero(),
			reserves:    reserves(ether(100), ether(50), ether(100), ether(50), fee30),
			expectedErr: dmm.ErrInsufficientInputAmount,
		},
		{
			name:        "nil input",
			amountIn:    nil,
			reserves:    reserves(ether(100), ether(50), ether(100), ether(50), fee30),
			expectedErr: ErrNilAmount,
		},
		{
			name:        "empty reserves",
			amountIn:    ether(1),
			reserves:    reserves(mathext.Zero(), ether(50), ether(100), ether(50), fee30),
			expectedErr: dmm.ErrInsufficientLiquidity,
		},
		{
			name:        "virtual output above the real reserve",
			amountIn:    ether(20),
			reserves:    reserves(ether(2), ether(100), ether(20), ether(1000), fee30),
			expectedErr: dmm.ErrInsufficientLiquidity,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			amountOut, err := GetAmountOut(tc.amountIn, tc.reserves)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.Dec(), amountOut.Dec())
		})
	}
}

func TestAmplificationFlattensPriceImpact(t *testing.T) {
	// 100 A / 2 B with a x10 virtual span
	amplified := reserves(ether(100), ether(2), ether(1000), ether(20), fee30)
	realOnly := reserves(ether(100), ether(2), ether(100), ether(2), fee30)
	amountIn := ether(20)

	withAmp, err := GetAmountOut(amountIn, amplified)
	require.NoError(t, err)
	withoutAmp, err := GetAmountOut(amountIn, realOnly)
	require.NoError(t, err)
	spot, err := Quote(amountIn, ether(100), ether(2))
	require.NoError(t, err)

	assert.True(t, withAmp.Gt(withoutAmp), "amplified output %s should beat %s", withAmp.Dec(), withoutAmp.Dec())
	assert.True(t, withAmp.Lt(spot), "amplified output %s should stay below spot %s", withAmp.Dec(), spot.Dec())
}

func TestFeeMonotonicity(t *testing.T) {
	amountIn := ether(3)
	var previous *uint256.Int
	for _, feeBps := range []uint64{0, 1, 5, 30, 100, 1000} {
		fee := new(uint256.Int).Mul(uint256.NewInt(feeBps), mathext.Precision)
		fee.Div(fee, mathext.BPS)
		amountOut, err := GetAmountOut(amountIn, reserves(ether(100), ether(100), ether(300), ether(300), fee))
		require.NoError(t, err)
		if previous != nil {
			assert.True(t, amountOut.Lt(previous), "fee %d bps: %s should be below %s", feeBps, amountOut.Dec(), previous.Dec())
		}
		previous = amountOut
	}
}

func TestGetAmountIn(t *testing.T) {
	t.Run("unamplified pool", func(t *testing.T) {
		amountIn, err := GetAmountIn(ether(1), reserves(ether(100), ether(50), ether(100), ether(50), fee30))
		require.NoError(t, err)
		assert.Equal(t, "2046957198124987207", amountIn.Dec())
	})

	t.Run("amplified pool", func(t *testing.T) {
		amountIn, err := GetAmountIn(mathext.Expand(1, 17), reserves(ether(100), ether(2), ether(1000), ether(20), fee30))
		require.NoError(t, err)
		assert.Equal(t, "5040246367242430811", amountIn.Dec())
	})

	t.Run("input always buys at least the requested output", func(t *testing.T) {
		r := reserves(ether(70), ether(3), ether(350), ether(15), fee30)
		for _, want := range []*uint256.Int{uint256.NewInt(1), uint256.NewInt(12345), mathext.Expand(1, 15), mathext.Expand(2, 18)} {
			amountIn, err := GetAmountIn(want, r)
			require.NoError(t, err)
			got, err := GetAmountOut(amountIn, r)
			require.NoError(t, err)
			assert.False(t, got.Lt(want), "paying %s should buy %s, got %s", amountIn.Dec(), want.Dec(), got.Dec())
		}
	})

	t.Run("output must stay below the real reserve", func(t *testing.T) {
		_, err := GetAmountIn(ether(2), reserves(ether(100), ether(2), ether(1000), ether(20), fee30))
		require.ErrorIs(t, err, dmm.ErrInsufficientLiquidity)
	})

	t.Run("zero output", func(t *testing.T) {
		_, err := GetAmountIn(mathext.Zero(), reserves(ether(100), ether(2), ether(1000), ether(20), fee30))
		require.ErrorIs(t, err, dmm.ErrInsufficientOutputAmount)
	})
}

func TestQuote(t *testing.T) {
	amount, err := Quote(ether(10), ether(100), ether(50))
	require.NoError(t, err)
	assert.Equal(t, ether(5).Dec(), amount.Dec())

	_, err = Quote(mathext.Zero(), ether(100), ether(50))
	require.ErrorIs(t, err, dmm.ErrInsufficientAmount)
	_, err = Quote(ether(1), mathext.Zero(), ether(50))
	require.ErrorIs(t, err, dmm.ErrInsufficientLiquidity)
}

func TestGetAmountsOutAndIn(t *testing.T) {
	poolAB := newPoolView(common.HexToAddress("0xaa01"), tokenA, tokenB, ether(1000), ether(2000), 20_000)
	poolBC := newPoolView(common.HexToAddress("0xaa02"), tokenB, tokenC, ether(500), ether(500), 10_000)
	pools := []dmm.PoolView{poolAB, poolBC}
	path := []common.Address{tokenA, tokenB, tokenC}

	amounts, err := GetAmountsOut(ether(1), pools, path)
	require.NoError(t, err)
	require.Len(t, amounts, 3)

	r0, err := Orient(tokenA, tokenB, poolAB)
	require.NoError(t, err)
	hop0, err := GetAmountOut(ether(1), r0)
	require.NoError(t, err)
	assert.Equal(t, hop0.Dec(), amounts[1].Dec())

	ins, err := GetAmountsIn(amounts[2], pools, path)
	require.NoError(t, err)
	require.Len(t, ins, 3)
	assert.Equal(t, amounts[2].Dec(), ins[2].Dec())

	roundTrip, err := GetAmountsOut(ins[0], pools, path)
	require.NoError(t, err)
	assert.False(t, roundTrip[2].Lt(amounts[2]), "the quoted input should buy the requested output")

	t.Run("path errors", func(t *testing.T) {
		_, err := GetAmountsOut(ether(1), pools, []common.Address{tokenA})
		require.ErrorIs(t, err, dmm.ErrInvalidPath)

		_, err = GetAmountsOut(ether(1), pools[:1], path)
		require.ErrorIs(t, err, dmm.ErrInvalidPath)

		_, err = GetAmountsIn(ether(1), []dmm.PoolView{poolBC, poolAB}, path)
		require.ErrorIs(t, err, ErrTokenMismatch)
		require.ErrorIs(t, err, dmm.ErrInvalidInput)
	})
}

func TestSimulateSwap(t *testing.T) {
	pool := newPoolView(common.HexToAddress("0xaa01"), tokenA, tokenB, ether(100), ether(2), 100_000)

	amountOut, next, err := SimulateSwap(ether(20), tokenA, tokenB, pool)
	require.NoError(t, err)
	assert.Equal(t, "391003392356413122", amountOut.Dec())

	assert.Equal(t, ether(120).Dec(), next.Reserve0.Dec())
	assert.Equal(t, ether(1020).Dec(), next.VReserve0.Dec())
	assert.Equal(t, new(uint256.Int).Sub(ether(2), amountOut).Dec(), next.Reserve1.Dec())
	assert.Equal(t, new(uint256.Int).Sub(ether(20), amountOut).Dec(), next.VReserve1.Dec())
	assert.Equal(t, ether(100).Dec(), pool.Reserve0.Dec(), "input view must not change")

	_, _, err = SimulateSwap(ether(1), tokenA, tokenC, pool)
	require.ErrorIs(t, err, ErrTokenMismatch)
}

func TestSimulateBurn(t *testing.T) {
	pool := newPoolView(common.HexToAddress("0xaa01"), tokenA, tokenB, ether(100), ether(400), 20_000)
	// supply is sqrt(100e18*400e18) = 200e18
	liquidity := ether(20)

	t.Run("fee off", func(t *testing.T) {
		amount0, amount1, next, err := SimulateBurn(liquidity, pool, dmm.FeeConfiguration{})
		require.NoError(t, err)
		assert.Equal(t, ether(10).Dec(), amount0.Dec())
		assert.Equal(t, ether(40).Dec(), amount1.Dec())
		assert.Equal(t, ether(180).Dec(), next.TotalSupply.Dec())
		assert.Equal(t, ether(90).Dec(), next.Reserve0.Dec())
		assert.Equal(t, ether(180).Dec(), next.VReserve0.Dec(), "virtual reserves scale with the supply")
		assert.Equal(t, ether(720).Dec(), next.VReserve1.Dec())
	})

	t.Run("pending protocol fee dilutes the burn", func(t *testing.T) {
		grown := pool
		// k grew from 100*400 to 121*400 since the checkpoint
		grown.KLast = new(uint256.Int).Mul(ether(100), ether(400))
		grown.Reserve0 = ether(121)
		fees := dmm.FeeConfiguration{FeeTo: common.HexToAddress("0xfee"), GovernmentFeeUnits: 16_666}

		withFee0, _, _, err := SimulateBurn(liquidity, grown, fees)
		require.NoError(t, err)
		withoutFee0, _, _, err := SimulateBurn(liquidity, grown, dmm.FeeConfiguration{})
		require.NoError(t, err)
		assert.True(t, withFee0.Lt(withoutFee0))
	})

	t.Run("more than the supply", func(t *testing.T) {
		_, _, _, err := SimulateBurn(ether(201), pool, dmm.FeeConfiguration{})
		require.ErrorIs(t, err, dmm.ErrInsufficientLiquidityBurned)
	})

	t.Run("dust", func(t *testing.T) {
		_, _, _, err := SimulateBurn(mathext.Zero(), pool, dmm.FeeConfiguration{})
		require.ErrorIs(t, err, dmm.ErrInsufficientLiquidityBurned)
	})
}
