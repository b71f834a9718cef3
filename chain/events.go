package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event is a log record emitted by a contract while a transaction runs.
type Event interface {
	// Emitter is the address of the contract that emitted the event.
	Emitter() common.Address
	// Name is the event name, e.g. "Transfer".
	Name() string
}

// Receipt carries the events of one committed transaction.
type Receipt struct {
	BlockNumber uint64
	Timestamp   uint64
	Events      []Event
}

// EventHandler receives receipts after their transaction commits.
type EventHandler func(Receipt)

type Transfer struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *uint256.Int
}

func (e Transfer) Emitter() common.Address { return e.Token }
func (e Transfer) Name() string            { return "Transfer" }

type Approval struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Value   *uint256.Int
}

func (e Approval) Emitter() common.Address { return e.Token }
func (e Approval) Name() string            { return "Approval" }

// Deposit is emitted when native currency is wrapped.
type Deposit struct {
	Token common.Address
	Dst   common.Address
	Value *uint256.Int
}

func (e Deposit) Emitter() common.Address { return e.Token }
func (e Deposit) Name() string            { return "Deposit" }

// Withdrawal is emitted when wrapped native currency is unwrapped.
type Withdrawal struct {
	Token common.Address
	Src   common.Address
	Value *uint256.Int
}

func (e Withdrawal) Emitter() common.Address { return e.Token }
func (e Withdrawal) Name() string            { return "Withdrawal" }

// NativeTransfer records a movement of native currency.
type NativeTransfer struct {
	From  common.Address
	To    common.Address
	Value *uint256.Int
}

func (e NativeTransfer) Emitter() common.Address { return e.From }
func (e NativeTransfer) Name() string            { return "NativeTransfer" }
