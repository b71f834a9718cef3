package indexer

import (
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedDMM defines the methods for accessing indexed DMM pool data.
type IndexedDMM interface {
	GetByID(id uint64) (dmm.PoolView, bool)
	GetByAddress(address common.Address) (dmm.PoolView, bool)
	GetByPair(tokenA, tokenB common.Address) []dmm.PoolView
	All() []dmm.PoolView
}
