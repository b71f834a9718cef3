package dmm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testView(id uint64, reserve0, reserve1 uint64) PoolView {
	return PoolView{
		ID:             id,
		Address:        common.BigToAddress(new(uint256.Int).SetUint64(0x1000 + id).ToBig()),
		AmpBps:         20_000,
		FeeBps:         30,
		Reserve0:       uint256.NewInt(reserve0),
		Reserve1:       uint256.NewInt(reserve1),
		VReserve0:      uint256.NewInt(reserve0 * 2),
		VReserve1:      uint256.NewInt(reserve1 * 2),
		FeeInPrecision: uint256.NewInt(3_000_000_000_000_000),
		TotalSupply:    uint256.NewInt(reserve0 + reserve1),
		KLast:          uint256.NewInt(0),
	}
}

func TestDiffer(t *testing.T) {
	pool1Old := testView(0, 1000, 2000)
	pool2Old := testView(1, 3000, 4000)
	pool3Old := testView(2, 5000, 6000)

	t.Run("should identify additions correctly", func(t *testing.T) {
		diff := Differ([]PoolView{pool1Old}, []PoolView{pool1Old, pool2Old})

		assert.Len(t, diff.Additions, 1, "Should have one addition")
		assert.Equal(t, pool2Old.Address, diff.Additions[0].Address)
		assert.Empty(t, diff.Updates)
		assert.Empty(t, diff.Deletions)
	})

	t.Run("should identify deletions correctly", func(t *testing.T) {
		diff := Differ([]PoolView{pool1Old, pool2Old}, []PoolView{pool1Old})

		assert.Empty(t, diff.Additions)
		assert.Empty(t, diff.Updates)
		assert.Equal(t, []common.Address{pool2Old.Address}, diff.Deletions)
	})

	t.Run("should detect changes in every mutable field", func(t *testing.T) {
		mutations := map[string]func(p *PoolView){
			"reserve0":     func(p *PoolView) { p.Reserve0 = uint256.NewInt(1001) },
			"reserve1":     func(p *PoolView) { p.Reserve1 = uint256.NewInt(1999) },
			"vReserve0":    func(p *PoolView) { p.VReserve0 = uint256.NewInt(1) },
			"vReserve1":    func(p *PoolView) { p.VReserve1 = uint256.NewInt(1) },
			"total supply": func(p *PoolView) { p.TotalSupply = uint256.NewInt(1) },
			"kLast":        func(p *PoolView) { p.KLast = uint256.NewInt(1) },
			"kLast unset":  func(p *PoolView) { p.KLast = nil },
		}
		for name, mutate := range mutations {
			t.Run(name, func(t *testing.T) {
				updated := deepCopyPool(pool1Old)
				mutate(&updated)

				diff := Differ([]PoolView{pool1Old}, []PoolView{updated})
				require.Len(t, diff.Updates, 1)
				assert.Equal(t, updated, diff.Updates[0])
			})
		}
	})

	t.Run("should handle a mix of additions, updates, and deletions", func(t *testing.T) {
		pool1Updated := testView(0, 1001, 2000)
		pool4New := testView(3, 7000, 8000)

		diff := Differ([]PoolView{pool1Old, pool2Old, pool3Old}, []PoolView{pool1Updated, pool2Old, pool4New})

		require.Len(t, diff.Additions, 1)
		assert.Equal(t, pool4New.Address, diff.Additions[0].Address)
		require.Len(t, diff.Updates, 1)
		assert.Equal(t, pool1Updated.Address, diff.Updates[0].Address)
		assert.Equal(t, []common.Address{pool3Old.Address}, diff.Deletions)
	})

	t.Run("should produce an empty diff when there are no changes", func(t *testing.T) {
		diff := Differ([]PoolView{pool1Old, pool2Old}, []PoolView{deepCopyPool(pool1Old), deepCopyPool(pool2Old)})
		assert.True(t, diff.IsEmpty())
	})

	t.Run("should handle empty states", func(t *testing.T) {
		assert.True(t, Differ(nil, nil).IsEmpty())
		assert.Len(t, Differ(nil, []PoolView{pool1Old}).Additions, 1)
		assert.Len(t, Differ([]PoolView{pool1Old}, nil).Deletions, 1)
	})
}
