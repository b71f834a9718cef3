package tokenpoolregistry

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

var (
	tokenA = addr(1)
	tokenB = addr(2)
	tokenC = addr(3)
	pool1  = addr(101)
	pool2  = addr(102)
	pool3  = addr(103)
)

func TestTokenPoolRegistry(t *testing.T) {
	t.Run("NewTokenPoolRegistry", func(t *testing.T) {
		r := NewTokenPoolRegistry()
		require.NotNil(t, r)
		assert.Len(t, r.view().Tokens, 0)
		assert.Nil(t, r.poolsForPair(tokenA, tokenB))
	})

	t.Run("AddPool", func(t *testing.T) {
		t.Run("WithTwoTokens", func(t *testing.T) {
			r := NewTokenPoolRegistry()
			r.add([]common.Address{tokenA, tokenB}, pool1)

			view := r.view()
			require.Len(t, view.Tokens, 2)
			require.Len(t, view.Pools, 1)
			require.Len(t, view.EdgeTargets, 2, "one edge per direction")
			assert.Equal(t, []common.Address{pool1}, r.poolsForPair(tokenA, tokenB))
			assert.Equal(t, []common.Address{pool1}, r.poolsForPair(tokenB, tokenA))
			assert.True(t, r.hasPool(pool1))
		})

		t.Run("KeepsInsertionOrderOnSameEdge", func(t *testing.T) {
			r := NewTokenPoolRegistry()
			r.add([]common.Address{tokenB, tokenA}, pool3)
			r.add([]common.Address{tokenA, tokenB}, pool1)
			r.add([]common.Address{tokenA, tokenB}, pool2)

			assert.Equal(t, []common.Address{pool3, pool1, pool2}, r.poolsForPair(tokenA, tokenB))
			assert.Equal(t, []common.Address{pool3, pool1, pool2}, r.poolsForPair(tokenB, tokenA))
			assert.Len(t, r.view().EdgeTargets, 2, "pools on the same pair share the edge")
		})

		t.Run("IsIdempotent", func(t *testing.T) {
			r := NewTokenPoolRegistry()
			r.add([]common.Address{tokenA, tokenB}, pool1)
			r.add([]common.Address{tokenA, tokenB}, pool1)

			assert.Equal(t, []common.Address{pool1}, r.poolsForPair(tokenA, tokenB))
			assert.Len(t, r.view().Pools, 1)
		})
	})

	t.Run("poolsForToken", func(t *testing.T) {
		r := NewTokenPoolRegistry()
		r.add([]common.Address{tokenA, tokenB}, pool1)
		r.add([]common.Address{tokenA, tokenC}, pool2)
		r.add([]common.Address{tokenA, tokenB}, pool3)

		assert.Equal(t, []common.Address{pool1, pool3, pool2}, r.poolsForToken(tokenA))
		assert.Equal(t, []common.Address{pool1, pool3}, r.poolsForToken(tokenB))
		assert.Nil(t, r.poolsForToken(addr(99)))
		assert.Nil(t, r.poolsForPair(tokenB, tokenC), "no pool joins B and C")
		assert.ElementsMatch(t, []common.Address{tokenB, tokenC}, r.neighbours(tokenA))
	})

	t.Run("View_ReturnsDeepCopy", func(t *testing.T) {
		r := NewTokenPoolRegistry()
		r.add([]common.Address{tokenA, tokenB}, pool1)

		view := r.view()
		view.Tokens[0] = addr(77)
		view.EdgePools[0][0] = 42

		fresh := r.view()
		assert.Equal(t, tokenA, fresh.Tokens[0])
		assert.Equal(t, 0, fresh.EdgePools[0][0])
	})
}

func TestNewTokenPoolRegistryFromView(t *testing.T) {
	t.Run("SuccessWithValidView", func(t *testing.T) {
		original := NewTokenPoolRegistry()
		original.add([]common.Address{tokenA, tokenB}, pool1)
		original.add([]common.Address{tokenB, tokenC}, pool2)

		restored := NewTokenPoolRegistryFromView(original.view())
		assert.Equal(t, original.view(), restored.view())
		assert.Equal(t, []common.Address{pool2}, restored.poolsForPair(tokenC, tokenB))

		// the restored registry keeps growing correctly
		restored.add([]common.Address{tokenA, tokenB}, pool3)
		assert.Equal(t, []common.Address{pool1, pool3}, restored.poolsForPair(tokenA, tokenB))
		assert.Equal(t, []common.Address{pool1}, original.poolsForPair(tokenA, tokenB))
	})

	t.Run("DeepCopyVerification", func(t *testing.T) {
		original := NewTokenPoolRegistry()
		original.add([]common.Address{tokenA, tokenB}, pool1)
		view := original.view()

		restored := NewTokenPoolRegistryFromView(view)
		view.Pools[0] = addr(66)
		assert.Equal(t, []common.Address{pool1}, restored.poolsForPair(tokenA, tokenB))
	})

	t.Run("SuccessWithNilView", func(t *testing.T) {
		restored := NewTokenPoolRegistryFromView(nil)
		require.NotNil(t, restored)
		assert.Empty(t, restored.view().Tokens)
	})
}
