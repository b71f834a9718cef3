package poolregistry

import (
	"slices"

	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/ethereum/go-ethereum/common"
)

const Schema engine.ProtocolSchema = "kyber/poolregistry/poolRegistry@v1"

// PoolKey identifies a pool independently of the protocol it belongs to.
type PoolKey = common.Hash

// AddressToPoolKey left-pads a pool address into its key.
func AddressToPoolKey(addr common.Address) PoolKey {
	return common.BytesToHash(addr.Bytes())
}

// Pool is one pool of the chain-wide registry.
type Pool struct {
	// ID is the chain-wide index of the pool, in registration order.
	ID       uint64  `json:"id"`
	Key      PoolKey `json:"key"`
	Protocol uint16  `json:"protocol"`
}

// PoolRegistry maps every pool to the protocol that owns it. Protocol holds compact ids
// resolved through Protocols.
type PoolRegistry struct {
	Pools     []Pool                       `json:"pools"`
	Protocols map[uint16]engine.ProtocolID `json:"protocols"`
}

// ProtocolPools lists the pools of one protocol, in creation order.
type ProtocolPools struct {
	Protocol engine.ProtocolID
	Pools    []common.Address
}

// Build assigns chain-wide ids to the pools of each protocol. Protocols get compact ids
// in the order given, and so do their pools.
func Build(protocols []ProtocolPools) PoolRegistry {
	registry := PoolRegistry{
		Pools:     []Pool{},
		Protocols: make(map[uint16]engine.ProtocolID, len(protocols)),
	}
	for i, p := range protocols {
		registry.Protocols[uint16(i)] = p.Protocol
		for _, addr := range p.Pools {
			registry.Pools = append(registry.Pools, Pool{
				ID:       uint64(len(registry.Pools)),
				Key:      AddressToPoolKey(addr),
				Protocol: uint16(i),
			})
		}
	}
	return registry
}

func sortPools(pools []Pool) {
	slices.SortFunc(pools, func(a, b Pool) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
