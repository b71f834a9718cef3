package dmm

import (
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Schema is the decode contract of a factory's []PoolView.
const Schema engine.ProtocolSchema = "kyber/dmm/poolView@v1"

// TradeInfo is everything needed to price a trade against a pool.
type TradeInfo struct {
	Reserve0       *uint256.Int `json:"reserve0"`
	Reserve1       *uint256.Int `json:"reserve1"`
	VReserve0      *uint256.Int `json:"vReserve0"`
	VReserve1      *uint256.Int `json:"vReserve1"`
	FeeInPrecision *uint256.Int `json:"feeInPrecision"`
}

// PoolView is a point-in-time snapshot of a pool, safe to share across goroutines as
// long as nobody mutates it.
type PoolView struct {
	// ID is the index of the pool in its factory's pool list.
	ID             uint64         `json:"id"`
	Address        common.Address `json:"address"`
	Factory        common.Address `json:"factory"`
	Token0         common.Address `json:"token0"`
	Token1         common.Address `json:"token1"`
	AmpBps         uint32         `json:"ampBps"`
	FeeBps         uint16         `json:"feeBps"`
	Reserve0       *uint256.Int   `json:"reserve0"`
	Reserve1       *uint256.Int   `json:"reserve1"`
	VReserve0      *uint256.Int   `json:"vReserve0"`
	VReserve1      *uint256.Int   `json:"vReserve1"`
	FeeInPrecision *uint256.Int   `json:"feeInPrecision"`
	TotalSupply    *uint256.Int   `json:"totalSupply"`
	KLast          *uint256.Int   `json:"kLast"`
}

// TradeInfo extracts the pricing data of the snapshot.
func (v PoolView) TradeInfo() TradeInfo {
	return TradeInfo{
		Reserve0:       v.Reserve0,
		Reserve1:       v.Reserve1,
		VReserve0:      v.VReserve0,
		VReserve1:      v.VReserve1,
		FeeInPrecision: v.FeeInPrecision,
	}
}

// IsAmplified reports whether the pool prices on virtual reserves.
func (v PoolView) IsAmplified() bool {
	return v.AmpBps != BPS
}

// FeeConfiguration is the protocol fee setup shared by every pool of a factory.
type FeeConfiguration struct {
	FeeTo common.Address `json:"feeTo"`
	// GovernmentFeeUnits is the protocol share of the swap fees, in units of 100000.
	GovernmentFeeUnits uint32 `json:"governmentFeeUnits"`
}

// FeeOn reports whether the protocol fee is collected.
func (c FeeConfiguration) FeeOn() bool {
	return c.FeeTo != (common.Address{})
}
