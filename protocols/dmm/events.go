package dmm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Swap is emitted by a pool for every successful swap.
type Swap struct {
	Pool           common.Address
	Sender         common.Address
	Amount0In      *uint256.Int
	Amount1In      *uint256.Int
	Amount0Out     *uint256.Int
	Amount1Out     *uint256.Int
	To             common.Address
	FeeInPrecision *uint256.Int
}

func (e Swap) Emitter() common.Address { return e.Pool }
func (e Swap) Name() string            { return "Swap" }

type Mint struct {
	Pool    common.Address
	Sender  common.Address
	Amount0 *uint256.Int
	Amount1 *uint256.Int
}

func (e Mint) Emitter() common.Address { return e.Pool }
func (e Mint) Name() string            { return "Mint" }

type Burn struct {
	Pool    common.Address
	Sender  common.Address
	Amount0 *uint256.Int
	Amount1 *uint256.Int
	To      common.Address
}

func (e Burn) Emitter() common.Address { return e.Pool }
func (e Burn) Name() string            { return "Burn" }

// Sync is emitted whenever the tracked reserves change.
type Sync struct {
	Pool      common.Address
	VReserve0 *uint256.Int
	VReserve1 *uint256.Int
	Reserve0  *uint256.Int
	Reserve1  *uint256.Int
}

func (e Sync) Emitter() common.Address { return e.Pool }
func (e Sync) Name() string            { return "Sync" }

type PoolCreated struct {
	Factory   common.Address
	Token0    common.Address
	Token1    common.Address
	Pool      common.Address
	AmpBps    uint32
	FeeBps    uint16
	TotalPool uint64
}

func (e PoolCreated) Emitter() common.Address { return e.Factory }
func (e PoolCreated) Name() string            { return "PoolCreated" }

type FeeConfigurationUpdated struct {
	Factory            common.Address
	FeeTo              common.Address
	GovernmentFeeUnits uint32
}

func (e FeeConfigurationUpdated) Emitter() common.Address { return e.Factory }
func (e FeeConfigurationUpdated) Name() string            { return "FeeConfigurationUpdated" }

type FeeToSetterUpdated struct {
	Factory     common.Address
	FeeToSetter common.Address
}

func (e FeeToSetterUpdated) Emitter() common.Address { return e.Factory }
func (e FeeToSetterUpdated) Name() string            { return "FeeToSetterUpdated" }
