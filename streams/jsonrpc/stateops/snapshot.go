package stateops

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/engine"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	poolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/poolregistry"
	tokenpoolregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenpoolregistry"
	tokenregistry "github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Protocol ids of the chain-wide protocols of a state.
const (
	TokensProtocolID engine.ProtocolID = "tokens"
	PoolsProtocolID  engine.ProtocolID = "pools"
	GraphProtocolID  engine.ProtocolID = "token-pool-graph"
)

// FactoryProtocolID is the protocol id of the pools of factory.
func FactoryProtocolID(factory common.Address) engine.ProtocolID {
	return engine.ProtocolID("dmm-" + strings.ToLower(factory.Hex()))
}

// BlockHash derives a stable identifier for block number of chainID.
func BlockHash(chainID, number, timestamp uint64) common.Hash {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:], chainID)
	binary.BigEndian.PutUint64(buf[8:], number)
	binary.BigEndian.PutUint64(buf[16:], timestamp)
	return crypto.Keccak256Hash(buf[:])
}

// Snapshot captures the tokens of c and the pools of every factory as of the last
// committed block. The token-pool graph and the pool registry span all factories.
// It must not be called from inside a transaction.
func Snapshot(c *chain.Chain, factories []*dmm.Factory) *engine.State {
	var state *engine.State
	c.Read(func() { state = snapshot(c, factories) })
	return state
}

func snapshot(c *chain.Chain, factories []*dmm.Factory) *engine.State {
	receivedAt := time.Now().UnixNano()
	block := c.BlockNumber()
	synced := block

	state := &engine.State{
		ChainID: c.ChainID(),
		Block: engine.BlockSummary{
			Number:     block,
			Hash:       BlockHash(c.ChainID(), block, c.Timestamp()),
			Timestamp:  c.Timestamp(),
			ReceivedAt: receivedAt,
		},
		Protocols: make(map[engine.ProtocolID]engine.ProtocolState, len(factories)+3),
	}

	graph := tokenpoolregistry.NewTokenPoolSystem()
	owners := make([]poolregistry.ProtocolPools, 0, len(factories))
	for _, f := range factories {
		id := FactoryProtocolID(f.Address())
		views := f.Views()
		addrs := make([]common.Address, len(views))
		pairs := make([][]common.Address, len(views))
		for i, v := range views {
			addrs[i] = v.Address
			pairs[i] = []common.Address{v.Token0, v.Token1}
		}
		graph.AddPools(addrs, pairs)
		owners = append(owners, poolregistry.ProtocolPools{Protocol: id, Pools: addrs})

		state.Protocols[id] = engine.ProtocolState{
			Meta:              engine.ProtocolMeta{Name: "KyberSwap DMM", Tags: []string{"dex", "amplified"}},
			SyncedBlockNumber: &synced,
			Schema:            dmm.Schema,
			Data:              views,
		}
	}

	state.Protocols[TokensProtocolID] = engine.ProtocolState{
		Meta:              engine.ProtocolMeta{Name: "Tokens"},
		SyncedBlockNumber: &synced,
		Schema:            tokenregistry.Schema,
		Data:              tokenregistry.FromChain(c),
	}
	state.Protocols[PoolsProtocolID] = engine.ProtocolState{
		Meta:              engine.ProtocolMeta{Name: "Pools"},
		SyncedBlockNumber: &synced,
		Schema:            poolregistry.Schema,
		Data:              poolregistry.Build(owners),
	}
	state.Protocols[GraphProtocolID] = engine.ProtocolState{
		Meta:              engine.ProtocolMeta{Name: "Token-pool graph"},
		SyncedBlockNumber: &synced,
		Schema:            tokenpoolregistry.Schema,
		Data:              graph.View(),
	}
	state.Timestamp = uint64(time.Now().UnixNano())
	return state
}
