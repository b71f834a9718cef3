package indexer

import (
	"testing"

	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexableDMMSystem(t *testing.T) {
	tokenA := common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB := common.HexToAddress("0x2000000000000000000000000000000000000002")
	tokenC := common.HexToAddress("0x3000000000000000000000000000000000000003")
	pool1 := common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	pool2 := common.HexToAddress("0xaaaa000000000000000000000000000000000002")
	pool3 := common.HexToAddress("0xaaaa000000000000000000000000000000000003")

	testPools := []dmm.PoolView{
		{ID: 0, Address: pool1, Token0: tokenA, Token1: tokenB, AmpBps: 10_000, Reserve0: uint256.NewInt(1000)},
		{ID: 1, Address: pool2, Token0: tokenA, Token1: tokenB, AmpBps: 20_000, Reserve0: uint256.NewInt(2000)},
		{ID: 2, Address: pool3, Token0: tokenB, Token1: tokenC, AmpBps: 10_000, Reserve0: uint256.NewInt(3000)},
	}

	indexer := New().Index(testPools)
	require.NotNil(t, indexer)

	t.Run("Successful Lookups", func(t *testing.T) {
		pool, found := indexer.GetByID(1)
		assert.True(t, found)
		assert.Equal(t, pool2, pool.Address)

		pool, found = indexer.GetByAddress(pool3)
		assert.True(t, found)
		assert.Equal(t, uint64(3000), pool.Reserve0.Uint64())
	})

	t.Run("Pair Lookups Ignore Token Order", func(t *testing.T) {
		forward := indexer.GetByPair(tokenA, tokenB)
		backward := indexer.GetByPair(tokenB, tokenA)
		require.Len(t, forward, 2)
		assert.Equal(t, forward, backward)
		assert.Equal(t, pool1, forward[0].Address, "pools keep creation order")
		assert.Equal(t, pool2, forward[1].Address)

		assert.Empty(t, indexer.GetByPair(tokenA, tokenC))
	})

	t.Run("Not Found Lookups", func(t *testing.T) {
		_, found := indexer.GetByID(999)
		assert.False(t, found)
		_, found = indexer.GetByAddress(tokenA)
		assert.False(t, found)
	})

	t.Run("All Method", func(t *testing.T) {
		allPools := indexer.All()
		assert.Len(t, allPools, 3)

		allPools[0].AmpBps = 1
		original, _ := indexer.GetByID(0)
		assert.Equal(t, uint32(10_000), original.AmpBps, "Modifying the returned slice should not affect the internal state")
	})

	t.Run("Edge Case - Nil Slice", func(t *testing.T) {
		nilIndexer := NewIndexableDMMSystem(nil)
		require.NotNil(t, nilIndexer)

		_, found := nilIndexer.GetByID(0)
		assert.False(t, found)
		assert.NotNil(t, nilIndexer.All(), "All() should return an empty slice, not nil")
		assert.Len(t, nilIndexer.All(), 0)
	})
}
