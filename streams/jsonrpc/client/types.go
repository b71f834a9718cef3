package client

import (
	"encoding/json"

	"github.com/KyberNetwork/dmm-smart-contracts/engine"
)

// wireState is an engine.State as it arrives: protocol data stays raw until its schema
// picks a decoder.
type wireState struct {
	ChainID   uint64                            `json:"chainId"`
	Timestamp uint64                            `json:"timestamp"`
	Block     engine.BlockSummary               `json:"block"`
	Protocols map[engine.ProtocolID]rawProtocol `json:"protocols"`
}

// wireStateDiff is a differ.StateDiff as it arrives.
type wireStateDiff struct {
	FromBlock uint64                            `json:"fromBlock"`
	ToBlock   engine.BlockSummary               `json:"toBlock"`
	Timestamp uint64                            `json:"timestamp"`
	Protocols map[engine.ProtocolID]rawProtocol `json:"protocols"`
}

// rawProtocol carries one protocol of a state or of a diff. Both share the envelope.
type rawProtocol struct {
	Meta              engine.ProtocolMeta   `json:"meta"`
	SyncedBlockNumber *uint64               `json:"syncedBlockNumber,omitempty"`
	Schema            engine.ProtocolSchema `json:"schema"`
	Error             string                `json:"error,omitempty"`
	Data              json.RawMessage       `json:"data,omitempty"`
}
