package dmm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactory_Validation(t *testing.T) {
	e := newEnv(t)
	_, err := dmm.NewFactory(e.ctx, e.chain, &dmm.FactoryConfig{Deployer: deployer, Logger: nil, FeeToSetter: feeSetter})
	require.Error(t, err)
	_, err = dmm.NewFactory(e.ctx, e.chain, &dmm.FactoryConfig{Deployer: deployer, Logger: discardLogger()})
	require.Error(t, err, "fee to setter is required")
	_, err = dmm.NewFactory(e.ctx, e.chain, &dmm.FactoryConfig{Deployer: deployer, FeeToSetter: feeSetter, GovernmentFeeUnits: 20_000, Logger: discardLogger()})
	require.Error(t, err)

	assert.Equal(t, dmm.FeeConfiguration{GovernmentFeeUnits: dmm.DefaultGovernmentFeeUnits}, e.factory.FeeConfiguration())
}

func TestCreatePool(t *testing.T) {
	e := newEnv(t)
	a := e.newToken(t, "AAA", 0)
	b := e.newToken(t, "BBB", 0)
	unknown := common.HexToAddress("0x00000000000000000000000000000000deadbeef")

	events, stop := recordEvents(e.chain)
	defer stop()

	amplified, err := e.factory.CreatePair(e.ctx, alice, a.Address(), b.Address(), 20_000)
	require.NoError(t, err)
	unamplified, err := e.factory.CreatePool(e.ctx, alice, b.Address(), a.Address(), dmm.BPS, 10)
	require.NoError(t, err)

	token0, token1, err := dmm.SortTokens(a.Address(), b.Address())
	require.NoError(t, err)
	assert.Equal(t, token0, amplified.Token0())
	assert.Equal(t, token1, amplified.Token1())
	assert.Equal(t, dmm.PoolAddress(e.factory.Address(), token0, token1, 20_000), amplified.Address())
	assert.Equal(t, uint16(dmm.DefaultFeeBps), amplified.FeeBps())
	assert.Equal(t, uint16(10), unamplified.FeeBps())
	assert.True(t, amplified.IsAmplified())
	assert.False(t, unamplified.IsAmplified())

	t.Run("registry queries", func(t *testing.T) {
		assert.Equal(t, []common.Address{amplified.Address(), unamplified.Address()}, e.factory.GetPools(a.Address(), b.Address()))
		assert.Equal(t, e.factory.GetPools(a.Address(), b.Address()), e.factory.GetPools(b.Address(), a.Address()))
		assert.Equal(t, unamplified.Address(), e.factory.GetUnamplifiedPool(b.Address(), a.Address()))
		assert.True(t, e.factory.IsPool(a.Address(), b.Address(), amplified.Address()))
		assert.False(t, e.factory.IsPool(a.Address(), unknown, amplified.Address()))
		assert.Equal(t, 2, e.factory.AllPoolsLength())
		assert.Equal(t, []common.Address{amplified.Address(), unamplified.Address()}, e.factory.AllPools())

		got, ok := e.factory.Pool(unamplified.Address())
		require.True(t, ok)
		assert.Same(t, unamplified, got)
		views := e.factory.Views()
		require.Len(t, views, 2)
		assert.Equal(t, uint64(1), views[1].ID)
	})

	t.Run("PoolCreated events", func(t *testing.T) {
		var created []dmm.PoolCreated
		for _, ev := range events() {
			if pc, ok := ev.(dmm.PoolCreated); ok {
				created = append(created, pc)
			}
		}
		require.Len(t, created, 2)
		assert.Equal(t, amplified.Address(), created[0].Pool)
		assert.Equal(t, uint64(2), created[1].TotalPool)
		assert.Equal(t, uint32(dmm.BPS), created[1].AmpBps)
	})

	testCases := []struct {
		name        string
		tokenA      common.Address
		tokenB      common.Address
		ampBps      uint32
		feeBps      uint16
		expectedErr error
		category    error
		reason      string
	}{
		{"identical tokens", a.Address(), a.Address(), 20_000, 30, dmm.ErrIdenticalAddresses, dmm.ErrInvalidInput, "IDENTICAL_ADDRESSES"},
		{"zero address", common.Address{}, b.Address(), 20_000, 30, dmm.ErrZeroAddress, dmm.ErrInvalidInput, "ZERO_ADDRESS"},
		{"unknown token", a.Address(), unknown, 20_000, 30, dmm.ErrUnknownToken, dmm.ErrInvalidInput, "UNKNOWN_TOKEN"},
		{"amplification below one", a.Address(), b.Address(), 9_999, 30, dmm.ErrInvalidAmpBps, dmm.ErrInvalidInput, "INVALID_BPS"},
		{"fee of 100%", a.Address(), b.Address(), 30_000, 10_000, dmm.ErrInvalidFee, dmm.ErrInvalidInput, "INVALID_FEE"},
		{"duplicate amplification", b.Address(), a.Address(), 20_000, 30, dmm.ErrPoolExists, dmm.ErrAlreadyExists, "POOL_EXISTS"},
		{"second unamplified pool", a.Address(), b.Address(), dmm.BPS, 30, dmm.ErrUnamplifiedPoolExists, dmm.ErrAlreadyExists, "UNAMPLIFIED_POOL_EXISTS"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.factory.CreatePool(e.ctx, alice, tc.tokenA, tc.tokenB, tc.ampBps, tc.feeBps)
			require.ErrorIs(t, err, tc.expectedErr)
			require.ErrorIs(t, err, tc.category)
			assert.Equal(t, tc.reason, dmm.Reason(err))
			assert.Equal(t, 2, e.factory.AllPoolsLength())
		})
	}
}

func TestCreatePool_RevertedWithTransaction(t *testing.T) {
	e := newEnv(t)
	a := e.newToken(t, "AAA", 0)
	b := e.newToken(t, "BBB", 0)
	before := e.factory.Graph().View()

	boom := errors.New("boom")
	err := e.chain.Transact(e.ctx, func(ctx context.Context) error {
		if _, err := e.factory.CreatePair(ctx, alice, a.Address(), b.Address(), 20_000); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Zero(t, e.factory.AllPoolsLength())
	assert.Empty(t, e.factory.GetPools(a.Address(), b.Address()))
	assert.Equal(t, before, e.factory.Graph().View())
	token0, token1, err := dmm.SortTokens(a.Address(), b.Address())
	require.NoError(t, err)
	_, registered := e.chain.Token(dmm.PoolAddress(e.factory.Address(), token0, token1, 20_000))
	assert.False(t, registered)

	// the same pool can be created afterwards
	_, err = e.factory.CreatePair(e.ctx, alice, a.Address(), b.Address(), 20_000)
	require.NoError(t, err)
}

func TestFeeAdministration(t *testing.T) {
	e := newEnv(t)

	t.Run("only the fee to setter", func(t *testing.T) {
		err := e.factory.SetFeeTo(e.ctx, alice, feeTo)
		require.ErrorIs(t, err, dmm.ErrForbidden)
		assert.Equal(t, "FORBIDDEN", dmm.Reason(err))

		require.ErrorIs(t, e.factory.SetFeeToSetter(e.ctx, alice, alice), dmm.ErrForbidden)
		require.ErrorIs(t, e.factory.SetFeeConfiguration(e.ctx, bob, feeTo, 100), dmm.ErrForbidden)
		assert.False(t, e.factory.FeeConfiguration().FeeOn())
	})

	t.Run("set fee to keeps the share", func(t *testing.T) {
		require.NoError(t, e.factory.SetFeeTo(e.ctx, feeSetter, feeTo))
		assert.Equal(t, dmm.FeeConfiguration{FeeTo: feeTo, GovernmentFeeUnits: dmm.DefaultGovernmentFeeUnits}, e.factory.FeeConfiguration())
	})

	t.Run("government fee units are bounded", func(t *testing.T) {
		err := e.factory.SetFeeConfiguration(e.ctx, feeSetter, feeTo, dmm.MaxGovernmentFeeUnits)
		require.ErrorIs(t, err, dmm.ErrInvalidFee)
		require.NoError(t, e.factory.SetFeeConfiguration(e.ctx, feeSetter, feeTo, 10_000))
		assert.Equal(t, uint32(10_000), e.factory.FeeConfiguration().GovernmentFeeUnits)
	})

	t.Run("hand over", func(t *testing.T) {
		events, stop := recordEvents(e.chain)
		defer stop()

		require.ErrorIs(t, e.factory.SetFeeToSetter(e.ctx, feeSetter, common.Address{}), dmm.ErrZeroAddress)
		require.NoError(t, e.factory.SetFeeToSetter(e.ctx, feeSetter, bob))
		assert.Equal(t, bob, e.factory.FeeToSetter())
		require.ErrorIs(t, e.factory.SetFeeTo(e.ctx, feeSetter, alice), dmm.ErrForbidden)
		require.NoError(t, e.factory.SetFeeTo(e.ctx, bob, common.Address{}))
		assert.False(t, e.factory.FeeConfiguration().FeeOn())

		require.Len(t, events(), 2)
		assert.Equal(t, dmm.FeeToSetterUpdated{Factory: e.factory.Address(), FeeToSetter: bob}, events()[0])
		assert.IsType(t, dmm.FeeConfigurationUpdated{}, events()[1])
	})
}
