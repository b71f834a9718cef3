package zap

import "github.com/ethereum/go-ethereum/common"

type FactoryAdded struct {
	Zap     common.Address
	Factory common.Address
}

func (e FactoryAdded) Emitter() common.Address { return e.Zap }
func (e FactoryAdded) Name() string            { return "FactoryAdded" }

type FactoryRemoved struct {
	Zap     common.Address
	Factory common.Address
}

func (e FactoryRemoved) Emitter() common.Address { return e.Zap }
func (e FactoryRemoved) Name() string            { return "FactoryRemoved" }

type ConfigMasterUpdated struct {
	Zap          common.Address
	ConfigMaster common.Address
}

func (e ConfigMasterUpdated) Emitter() common.Address { return e.Zap }
func (e ConfigMasterUpdated) Name() string            { return "ConfigMasterUpdated" }
