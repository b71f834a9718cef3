package indexer

import (
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	poolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedPoolRegistry defines the methods for accessing indexed pool registry data.
type IndexedPoolRegistry interface {
	GetByID(id uint64) (poolregistry.Pool, bool)
	GetByAddress(address common.Address) (poolregistry.Pool, bool)
	GetByPoolKey(key poolregistry.PoolKey) (poolregistry.Pool, bool)
	ProtocolOf(address common.Address) (engine.ProtocolID, bool)
	All() []poolregistry.Pool
	GetProtocols() map[uint16]engine.ProtocolID
}
