package dmm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/tokenpoolregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const (
	// DefaultFeeBps is the swap fee of pools created through CreatePair.
	DefaultFeeBps = 30
	// DefaultGovernmentFeeUnits is the protocol share used until SetFeeConfiguration is called.
	DefaultGovernmentFeeUnits = 16_666
)

// poolCodeHash stands in for the init code hash in CREATE2 pool address derivation.
var poolCodeHash = crypto.Keccak256([]byte("DMMPool"))

// FactoryConfig holds the parameters used to deploy a Factory.
type FactoryConfig struct {
	// Deployer deploys the factory; its address is derived from the deployer's nonce.
	Deployer           common.Address
	FeeToSetter        common.Address
	DefaultFeeBps      uint16
	GovernmentFeeUnits uint32
	Logger             Logger
}

func (c *FactoryConfig) validate() error {
	if c.FeeToSetter == (common.Address{}) {
		return errors.New("fee to setter cannot be the zero address")
	}
	if c.DefaultFeeBps >= BPS {
		return fmt.Errorf("default fee %d bps must be below %d", c.DefaultFeeBps, BPS)
	}
	if c.GovernmentFeeUnits >= MaxGovernmentFeeUnits {
		return fmt.Errorf("government fee units %d must be below %d", c.GovernmentFeeUnits, MaxGovernmentFeeUnits)
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Factory creates pools and is the registry Router and Zap validate pools against.
type Factory struct {
	chain         *chain.Chain
	address       common.Address
	logger        Logger
	defaultFeeBps uint16
	graph         *tokenpoolregistry.TokenPoolSystem

	mu          sync.RWMutex
	feeTo       common.Address
	feeToSetter common.Address
	govFeeUnits uint32
	pools       map[common.Address]*Pool
	allPools    []*Pool
}

// NewFactory deploys a factory on c.
func NewFactory(ctx context.Context, c *chain.Chain, cfg *FactoryConfig) (*Factory, error) {
	if cfg.DefaultFeeBps == 0 {
		cfg.DefaultFeeBps = DefaultFeeBps
	}
	if cfg.GovernmentFeeUnits == 0 {
		cfg.GovernmentFeeUnits = DefaultGovernmentFeeUnits
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid factory configuration: %w", err)
	}
	f := &Factory{
		chain:         c,
		logger:        cfg.Logger,
		defaultFeeBps: cfg.DefaultFeeBps,
		graph:         tokenpoolregistry.NewTokenPoolSystem(),
		feeToSetter:   cfg.FeeToSetter,
		govFeeUnits:   cfg.GovernmentFeeUnits,
		pools:         make(map[common.Address]*Pool),
	}
	err := c.Transact(ctx, func(ctx context.Context) error {
		f.address = c.NextAddress(ctx, cfg.Deployer)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy factory: %w", err)
	}
	f.logger.Info("factory deployed", "address", f.address.Hex(), "feeToSetter", cfg.FeeToSetter.Hex())
	return f, nil
}

func (f *Factory) Address() common.Address { return f.address }

// SortTokens orders two token addresses the way pools store them.
func SortTokens(tokenA, tokenB common.Address) (token0, token1 common.Address, err error) {
	if tokenA == tokenB {
		return common.Address{}, common.Address{}, fmt.Errorf("%w: %s", ErrIdenticalAddresses, tokenA.Hex())
	}
	token0, token1 = tokenA, tokenB
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) > 0 {
		token0, token1 = tokenB, tokenA
	}
	if token0 == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroAddress
	}
	return token0, token1, nil
}

// PoolAddress derives the address of the pool for (token0, token1, ampBps) created by
// factory. It does not check that the pool exists.
func PoolAddress(factory, token0, token1 common.Address, ampBps uint32) common.Address {
	amp := common.LeftPadBytes(new(big.Int).SetUint64(uint64(ampBps)).Bytes(), 32)
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes(), amp)
	return chain.Create2Address(factory, salt, poolCodeHash)
}

// CreatePair creates a pool with the factory's default fee.
func (f *Factory) CreatePair(ctx context.Context, caller, tokenA, tokenB common.Address, ampBps uint32) (*Pool, error) {
	return f.CreatePool(ctx, caller, tokenA, tokenB, ampBps, f.defaultFeeBps)
}

// CreatePool creates the pool for (tokenA, tokenB, ampBps). There is at most one pool per
// pair and amplification, and at most one unamplified pool per pair.
func (f *Factory) CreatePool(ctx context.Context, caller, tokenA, tokenB common.Address, ampBps uint32, feeBps uint16) (*Pool, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if ampBps < BPS {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmpBps, ampBps)
	}
	if feeBps >= BPS {
		return nil, fmt.Errorf("%w: %d bps", ErrInvalidFee, feeBps)
	}
	t0, ok := f.chain.Token(token0)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token0.Hex())
	}
	t1, ok := f.chain.Token(token1)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token1.Hex())
	}

	var pool *Pool
	err = f.chain.Transact(ctx, func(ctx context.Context) error {
		for _, existing := range f.poolsFor(token0, token1) {
			if ampBps == BPS && !existing.IsAmplified() {
				return fmt.Errorf("%w: %s", ErrUnamplifiedPoolExists, existing.address.Hex())
			}
			if existing.ampBps == ampBps {
				return fmt.Errorf("%w: %s", ErrPoolExists, existing.address.Hex())
			}
		}

		f.mu.RLock()
		id := uint64(len(f.allPools))
		f.mu.RUnlock()

		deployed, err := newPool(ctx, f.chain, poolConfig{
			ID:      id,
			Address: PoolAddress(f.address, token0, token1, ampBps),
			Factory: f.address,
			Fees:    f,
			Token0:  t0,
			Token1:  t1,
			AmpBps:  ampBps,
			FeeBps:  feeBps,
		})
		if err != nil {
			return fmt.Errorf("deploy pool: %w", err)
		}
		pool = deployed
		f.register(ctx, pool)

		f.chain.Emit(ctx, PoolCreated{
			Factory:   f.address,
			Token0:    token0,
			Token1:    token1,
			Pool:      pool.address,
			AmpBps:    ampBps,
			FeeBps:    feeBps,
			TotalPool: id + 1,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("pool created",
		"pool", pool.address.Hex(),
		"token0", token0.Hex(),
		"token1", token1.Hex(),
		"ampBps", ampBps,
		"feeBps", feeBps,
		"creator", caller.Hex(),
	)
	return pool, nil
}

func (f *Factory) register(ctx context.Context, pool *Pool) {
	checkpoint := f.graph.View()

	f.mu.Lock()
	f.pools[pool.address] = pool
	f.allPools = append(f.allPools, pool)
	f.mu.Unlock()
	f.graph.AddPool([]common.Address{pool.Token0(), pool.Token1()}, pool.address)

	f.chain.Record(ctx, func() {
		f.graph.Restore(checkpoint)
		f.mu.Lock()
		delete(f.pools, pool.address)
		f.allPools = f.allPools[:len(f.allPools)-1]
		f.mu.Unlock()
	})
}

func (f *Factory) poolsFor(tokenA, tokenB common.Address) []*Pool {
	addrs := f.graph.PoolsForPair(tokenA, tokenB)
	f.mu.RLock()
	defer f.mu.RUnlock()
	pools := make([]*Pool, 0, len(addrs))
	for _, addr := range addrs {
		pools = append(pools, f.pools[addr])
	}
	return pools
}

// GetPools returns the pools of a pair in creation order.
func (f *Factory) GetPools(tokenA, tokenB common.Address) []common.Address {
	return f.graph.PoolsForPair(tokenA, tokenB)
}

// GetUnamplifiedPool returns the unamplified pool of a pair, or the zero address.
func (f *Factory) GetUnamplifiedPool(tokenA, tokenB common.Address) common.Address {
	for _, pool := range f.poolsFor(tokenA, tokenB) {
		if !pool.IsAmplified() {
			return pool.address
		}
	}
	return common.Address{}
}

// IsPool reports whether pool is a pool of this factory for the pair (tokenA, tokenB).
func (f *Factory) IsPool(tokenA, tokenB, pool common.Address) bool {
	for _, addr := range f.graph.PoolsForPair(tokenA, tokenB) {
		if addr == pool {
			return true
		}
	}
	return false
}

// Pool returns the pool deployed at addr by this factory.
func (f *Factory) Pool(addr common.Address) (*Pool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.pools[addr]
	return p, ok
}

// AllPools returns every pool address in creation order.
func (f *Factory) AllPools() []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]common.Address, len(f.allPools))
	for i, p := range f.allPools {
		out[i] = p.address
	}
	return out
}

func (f *Factory) AllPoolsLength() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.allPools)
}

// Views snapshots every pool in creation order.
func (f *Factory) Views() []PoolView {
	f.mu.RLock()
	pools := make([]*Pool, len(f.allPools))
	copy(pools, f.allPools)
	f.mu.RUnlock()

	views := make([]PoolView, len(pools))
	for i, p := range pools {
		views[i] = p.View()
	}
	return views
}

// Graph exposes the token/pool graph of the factory.
func (f *Factory) Graph() *tokenpoolregistry.TokenPoolSystem {
	return f.graph
}

// FeeConfiguration returns the protocol fee setup shared by all pools.
func (f *Factory) FeeConfiguration() FeeConfiguration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FeeConfiguration{FeeTo: f.feeTo, GovernmentFeeUnits: f.govFeeUnits}
}

func (f *Factory) FeeToSetter() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.feeToSetter
}

func (f *Factory) checkFeeToSetter(caller common.Address) error {
	if caller != f.FeeToSetter() {
		return fmt.Errorf("%w: %s is not the fee to setter", ErrForbidden, caller.Hex())
	}
	return nil
}

// SetFeeTo changes the protocol fee recipient, keeping the government fee units.
func (f *Factory) SetFeeTo(ctx context.Context, caller, feeTo common.Address) error {
	return f.SetFeeConfiguration(ctx, caller, feeTo, f.FeeConfiguration().GovernmentFeeUnits)
}

// SetFeeConfiguration changes the protocol fee recipient and share. A zero feeTo turns the
// protocol fee off.
func (f *Factory) SetFeeConfiguration(ctx context.Context, caller, feeTo common.Address, governmentFeeUnits uint32) error {
	if err := f.checkFeeToSetter(caller); err != nil {
		return err
	}
	if governmentFeeUnits >= MaxGovernmentFeeUnits {
		return fmt.Errorf("%w: government fee units %d", ErrInvalidFee, governmentFeeUnits)
	}
	return f.chain.Transact(ctx, func(ctx context.Context) error {
		f.mu.Lock()
		prevFeeTo, prevUnits := f.feeTo, f.govFeeUnits
		f.feeTo, f.govFeeUnits = feeTo, governmentFeeUnits
		f.mu.Unlock()
		f.chain.Record(ctx, func() {
			f.mu.Lock()
			f.feeTo, f.govFeeUnits = prevFeeTo, prevUnits
			f.mu.Unlock()
		})
		f.chain.Emit(ctx, FeeConfigurationUpdated{Factory: f.address, FeeTo: feeTo, GovernmentFeeUnits: governmentFeeUnits})
		return nil
	})
}

// SetFeeToSetter hands the fee administration over to another account.
func (f *Factory) SetFeeToSetter(ctx context.Context, caller, feeToSetter common.Address) error {
	if err := f.checkFeeToSetter(caller); err != nil {
		return err
	}
	if feeToSetter == (common.Address{}) {
		return ErrZeroAddress
	}
	return f.chain.Transact(ctx, func(ctx context.Context) error {
		f.mu.Lock()
		prev := f.feeToSetter
		f.feeToSetter = feeToSetter
		f.mu.Unlock()
		f.chain.Record(ctx, func() {
			f.mu.Lock()
			f.feeToSetter = prev
			f.mu.Unlock()
		})
		f.chain.Emit(ctx, FeeToSetterUpdated{Factory: f.address, FeeToSetter: feeToSetter})
		return nil
	})
}
