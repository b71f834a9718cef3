package dmm

import (
	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/holiman/uint256"
)

// MaxGovernmentFeeUnits bounds the protocol share of the swap fees (20%).
const MaxGovernmentFeeUnits = 20_000

var feeDenominatorUnits = uint256.NewInt(50_000)

// ProtocolFee returns the LP shares owed to the fee recipient for the growth of
// sqrt(reserve0*reserve1) over sqrt(kLast):
//
//	totalSupply * (rootK - rootKLast) * governmentFeeUnits / ((rootK + rootKLast) * 50000)
//
// which is governmentFeeUnits/100000 of the value accrued to liquidity providers.
func ProtocolFee(totalSupply, reserve0, reserve1, kLast *uint256.Int, governmentFeeUnits uint32) (*uint256.Int, error) {
	if mathext.IsZero(kLast) || governmentFeeUnits == 0 {
		return mathext.Zero(), nil
	}
	k, err := mathext.Mul(reserve0, reserve1)
	if err != nil {
		return nil, err
	}
	rootK := mathext.Sqrt(k)
	rootKLast := mathext.Sqrt(kLast)
	if !rootK.Gt(rootKLast) {
		return mathext.Zero(), nil
	}

	growth := new(uint256.Int).Sub(rootK, rootKLast)
	numerator, err := mathext.Mul(totalSupply, growth)
	if err != nil {
		return nil, err
	}
	numerator, err = mathext.Mul(numerator, uint256.NewInt(uint64(governmentFeeUnits)))
	if err != nil {
		return nil, err
	}
	rootSum, err := mathext.Add(rootK, rootKLast)
	if err != nil {
		return nil, err
	}
	denominator, err := mathext.Mul(rootSum, feeDenominatorUnits)
	if err != nil {
		return nil, err
	}
	return mathext.Div(numerator, denominator)
}
