package zap_test

import (
	"testing"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/periphery/zap"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadlineUsesCurrentBlock(t *testing.T) {
	e := newEnv(t)
	a := e.newToken(t, "AAA").Address()
	b := e.newToken(t, "BBB").Address()
	pool := e.seed(t, a, b, 20_000, ether(100), ether(400))
	ethPool := e.seedETH(t, a, 20_000, ether(100), ether(100))
	defer e.assertZapEmpty(t)

	e.advance(time.Hour)
	deadline := uint64(genesis + 60)
	require.Less(t, e.chain.Timestamp(), deadline)

	testCases := []struct {
		name string
		call func() error
	}{
		{"zap in", func() error {
			_, err := e.zap.ZapIn(e.ctx, alice, zap.ZapInParams{
				Factory:  e.factory.Address(),
				TokenIn:  a,
				TokenOut: b,
				AmountIn: ether(5),
				Pool:     pool.Address(),
				To:       alice,
				Deadline: deadline,
			})
			return err
		}},
		{"zap in eth", func() error {
			_, err := e.zap.ZapInEth(e.ctx, alice, ether(1), zap.ZapInETHParams{
				Factory:  e.factory.Address(),
				TokenOut: a,
				Pool:     ethPool.Address(),
				To:       alice,
				Deadline: deadline,
			})
			return err
		}},
		{"zap out", func() error {
			_, err := e.zap.ZapOut(e.ctx, alice, zap.ZapOutParams{
				Factory:    e.factory.Address(),
				TokenOut:   b,
				TokenOther: a,
				Liquidity:  ether(1),
				Pool:       pool.Address(),
				To:         alice,
				Deadline:   deadline,
			})
			return err
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			block := e.chain.BlockNumber()
			before := pool.TradeInfo()
			shares := pool.BalanceOf(alice)
			balance := e.balance(a, alice)
			native := e.chain.NativeBalance(alice)

			require.ErrorIs(t, tc.call(), dmm.ErrDeadlineExpired)
			assert.Equal(t, block, e.chain.BlockNumber())
			assert.Equal(t, before, pool.TradeInfo())
			assert.Equal(t, shares.Dec(), pool.BalanceOf(alice).Dec())
			assert.Equal(t, balance.Dec(), e.balance(a, alice).Dec())
			assert.Equal(t, native.Dec(), e.chain.NativeBalance(alice).Dec())
		})
	}
}

func TestMissingAmounts(t *testing.T) {
	e := newEnv(t)
	a := e.newToken(t, "AAA").Address()
	b := e.newToken(t, "BBB").Address()
	pool := e.seed(t, a, b, 20_000, ether(100), ether(400))
	ethPool := e.seedETH(t, a, 20_000, ether(100), ether(100))

	testCases := []struct {
		name string
		call func() error
	}{
		{"zap in", func() error {
			_, err := e.zap.ZapIn(e.ctx, alice, zap.ZapInParams{
				Factory:  e.factory.Address(),
				TokenIn:  a,
				TokenOut: b,
				Pool:     pool.Address(),
				To:       alice,
				Deadline: e.deadline(),
			})
			return err
		}},
		{"zap in eth", func() error {
			_, err := e.zap.ZapInEth(e.ctx, alice, nil, zap.ZapInETHParams{
				Factory:  e.factory.Address(),
				TokenOut: a,
				Pool:     ethPool.Address(),
				To:       alice,
				Deadline: e.deadline(),
			})
			return err
		}},
		{"zap out", func() error {
			_, err := e.zap.ZapOut(e.ctx, alice, zap.ZapOutParams{
				Factory:    e.factory.Address(),
				TokenOut:   b,
				TokenOther: a,
				Pool:       pool.Address(),
				To:         alice,
				Deadline:   e.deadline(),
			})
			return err
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.ErrorIs(t, err, dmm.ErrInvalidInput)
			assert.Equal(t, "INVALID_INPUT", dmm.Reason(err))
		})
	}
}
