package dmm_test

import (
	"testing"

	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocolFee(t *testing.T) {
	kLast := new(uint256.Int).Mul(ether(100), ether(400))

	testCases := []struct {
		name     string
		reserve0 *uint256.Int
		kLast    *uint256.Int
		units    uint32
		expected string
	}{
		// rootK grows from 200 to 220
		{"sqrt k growth", ether(121), kLast, 16_666, "3174476190476190476"},
		{"no checkpoint", ether(121), mathext.Zero(), 16_666, "0"},
		{"no share", ether(121), kLast, 0, "0"},
		{"k did not grow", ether(100), kLast, 16_666, "0"},
		{"k shrank", ether(81), kLast, 16_666, "0"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fee, err := dmm.ProtocolFee(ether(200), tc.reserve0, ether(400), tc.kLast, tc.units)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, fee.Dec())
		})
	}

	t.Run("share grows with the government units", func(t *testing.T) {
		low, err := dmm.ProtocolFee(ether(200), ether(121), ether(400), kLast, 5_000)
		require.NoError(t, err)
		high, err := dmm.ProtocolFee(ether(200), ether(121), ether(400), kLast, 19_999)
		require.NoError(t, err)
		assert.True(t, low.Lt(high))
	})
}

func TestReason(t *testing.T) {
	testCases := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{dmm.ErrK, "K"},
		{dmm.ErrLocked, "LOCKED"},
		{dmm.ErrForbidden, "FORBIDDEN"},
		{dmm.ErrDeadlineExpired, "EXPIRED"},
		{dmm.ErrReserveMismatch, "RESERVE_MISMATCH"},
		{mathext.ErrArithmeticOverflow, "OVERFLOW"},
		{dmm.ErrInsufficientOutputAmount, "INSUFFICIENT_OUTPUT_AMOUNT"},
		{dmm.ErrInsufficientLiquidityMinted, "INSUFFICIENT_LIQUIDITY_MINTED"},
		{dmm.ErrSlippageExceeded, "SLIPPAGE_EXCEEDED"},
		{assert.AnError, ""},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, dmm.Reason(tc.err), "%v", tc.err)
	}
}
