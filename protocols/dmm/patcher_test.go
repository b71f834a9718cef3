package dmm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatcher(t *testing.T) {
	pool1 := testView(0, 1000, 2000)
	pool2 := testView(1, 3000, 4000)
	pool3 := testView(2, 5000, 6000)

	t.Run("applies a mixed diff", func(t *testing.T) {
		pool1Updated := testView(0, 1001, 2000)
		pool4 := testView(3, 7000, 8000)
		diff := DMMSystemDiff{
			Additions: []PoolView{pool4},
			Updates:   []PoolView{pool1Updated},
			Deletions: []common.Address{pool3.Address},
		}

		next, err := Patcher([]PoolView{pool1, pool2, pool3}, diff)
		require.NoError(t, err)
		assert.Equal(t, []PoolView{pool1Updated, pool2, pool4}, next)
	})

	t.Run("round trips a diff", func(t *testing.T) {
		old := []PoolView{pool1, pool2}
		updated := testView(1, 2500, 4800)
		updated.KLast = uint256.NewInt(12_000_000)
		newState := []PoolView{pool1, updated, pool3}

		next, err := Patcher(old, Differ(old, newState))
		require.NoError(t, err)
		assert.Equal(t, newState, next)
	})

	t.Run("orders the result by pool id", func(t *testing.T) {
		next, err := Patcher(nil, DMMSystemDiff{Additions: []PoolView{pool3, pool1, pool2}})
		require.NoError(t, err)
		require.Len(t, next, 3)
		for i, pool := range next {
			assert.Equal(t, uint64(i), pool.ID)
		}
	})

	t.Run("does not share memory with its inputs", func(t *testing.T) {
		prev := []PoolView{deepCopyPool(pool1)}
		next, err := Patcher(prev, DMMSystemDiff{})
		require.NoError(t, err)

		next[0].Reserve0.SetUint64(1)
		assert.Equal(t, "1000", prev[0].Reserve0.Dec())
	})

	t.Run("rejects inconsistent diffs", func(t *testing.T) {
		testCases := []struct {
			name string
			diff DMMSystemDiff
		}{
			{"delete unknown", DMMSystemDiff{Deletions: []common.Address{pool3.Address}}},
			{"update unknown", DMMSystemDiff{Updates: []PoolView{pool3}}},
			{"add existing", DMMSystemDiff{Additions: []PoolView{pool1}}},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := Patcher([]PoolView{pool1, pool2}, tc.diff)
				require.Error(t, err)
			})
		}
	})
}
