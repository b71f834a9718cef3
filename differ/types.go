package differ

import "github.com/KyberNetwork/dmm-smart-contracts/engine"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type ProtocolDiff struct {
	Meta engine.ProtocolMeta `json:"meta"`

	// what is the current block of the protocol's data?
	SyncedBlockNumber *uint64 `json:"syncedBlockNumber,omitempty"`

	// Schema is the decode contract for Data.
	// Examples:
	// "kyber/dmm/poolView@v1"
	// "kyber/tokenregistry/token@v1"
	Schema engine.ProtocolSchema `json:"schema"`

	// Data is the protocol diff, shaped by Schema.
	Data any `json:"data,omitempty"`

	// Error is populated if this protocol is out-of-sync or failed for this block.
	Error string `json:"error,omitempty"`
}

// StateDiff summarizes the changes from FromBlock to ToBlock. Protocols that did not
// change are left out.
type StateDiff struct {
	Timestamp uint64                             `json:"timestamp"`
	FromBlock uint64                             `json:"fromBlock"`
	ToBlock   engine.BlockSummary                `json:"toBlock"`
	Protocols map[engine.ProtocolID]ProtocolDiff `json:"protocols"`
}

// IsEmpty reports whether no protocol changed.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Protocols) == 0
}
