package zap

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the parameters used to deploy a Zap.
type Config struct {
	// Deployer deploys the zap and becomes its config master unless ConfigMaster is set.
	Deployer     common.Address
	ConfigMaster common.Address
	WETH         *chain.WETH
	// Factories are whitelisted at deployment.
	Factories []*dmm.Factory
	Logger    Logger
}

func (c *Config) validate() error {
	if c.WETH == nil {
		return errors.New("weth is required")
	}
	for i, f := range c.Factories {
		if f == nil {
			return fmt.Errorf("factory %d is nil", i)
		}
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Zap turns a single asset into liquidity of a pool and back. It only works with pools
// of whitelisted factories.
type Zap struct {
	chain   *chain.Chain
	address common.Address
	weth    *chain.WETH
	logger  Logger

	mu           sync.RWMutex
	configMaster common.Address
	factories    map[common.Address]*dmm.Factory
}

// New deploys a zap on c.
func New(ctx context.Context, c *chain.Chain, cfg *Config) (*Zap, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid zap configuration: %w", err)
	}
	z := &Zap{
		chain:        c,
		weth:         cfg.WETH,
		logger:       cfg.Logger,
		configMaster: cfg.ConfigMaster,
		factories:    make(map[common.Address]*dmm.Factory, len(cfg.Factories)),
	}
	if z.configMaster == (common.Address{}) {
		z.configMaster = cfg.Deployer
	}
	for _, f := range cfg.Factories {
		z.factories[f.Address()] = f
	}
	err := c.Transact(ctx, func(ctx context.Context) error {
		z.address = c.NextAddress(ctx, cfg.Deployer)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy zap: %w", err)
	}
	z.logger.Info("zap deployed", "address", z.address.Hex(), "configMaster", z.configMaster.Hex(), "factories", len(z.factories))
	return z, nil
}

func (z *Zap) Address() common.Address { return z.address }

func (z *Zap) ConfigMaster() common.Address {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.configMaster
}

// IsWhitelisted reports whether the zap accepts pools of factory.
func (z *Zap) IsWhitelisted(factory common.Address) bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	_, ok := z.factories[factory]
	return ok
}

// Factories returns the whitelisted factory addresses in ascending order.
func (z *Zap) Factories() []common.Address {
	z.mu.RLock()
	defer z.mu.RUnlock()
	out := make([]common.Address, 0, len(z.factories))
	for addr := range z.factories {
		out = append(out, addr)
	}
	slices.SortFunc(out, func(a, b common.Address) int { return a.Cmp(b) })
	return out
}

func (z *Zap) checkConfigMaster(caller common.Address) error {
	if caller != z.ConfigMaster() {
		return fmt.Errorf("%w: %s is not the config master", dmm.ErrForbidden, caller.Hex())
	}
	return nil
}

// setFactory whitelists or removes a factory as part of the transaction of ctx.
func (z *Zap) setFactory(ctx context.Context, addr common.Address, f *dmm.Factory) {
	z.mu.Lock()
	prev, existed := z.factories[addr]
	if f == nil {
		delete(z.factories, addr)
	} else {
		z.factories[addr] = f
	}
	z.mu.Unlock()
	z.chain.Record(ctx, func() {
		z.mu.Lock()
		defer z.mu.Unlock()
		if existed {
			z.factories[addr] = prev
		} else {
			delete(z.factories, addr)
		}
	})
}

// AddFactory whitelists factory.
func (z *Zap) AddFactory(ctx context.Context, caller common.Address, factory *dmm.Factory) error {
	if err := z.checkConfigMaster(caller); err != nil {
		return err
	}
	if factory == nil {
		return fmt.Errorf("%w: nil factory", dmm.ErrInvalidInput)
	}
	return z.chain.Transact(ctx, func(ctx context.Context) error {
		z.setFactory(ctx, factory.Address(), factory)
		z.chain.Emit(ctx, FactoryAdded{Zap: z.address, Factory: factory.Address()})
		return nil
	})
}

// RemoveFactory drops factory from the whitelist.
func (z *Zap) RemoveFactory(ctx context.Context, caller, factory common.Address) error {
	if err := z.checkConfigMaster(caller); err != nil {
		return err
	}
	return z.chain.Transact(ctx, func(ctx context.Context) error {
		z.setFactory(ctx, factory, nil)
		z.chain.Emit(ctx, FactoryRemoved{Zap: z.address, Factory: factory})
		return nil
	})
}

// UpdateConfigMaster hands the whitelist administration over to configMaster.
func (z *Zap) UpdateConfigMaster(ctx context.Context, caller, configMaster common.Address) error {
	if err := z.checkConfigMaster(caller); err != nil {
		return err
	}
	return z.chain.Transact(ctx, func(ctx context.Context) error {
		z.mu.Lock()
		prev := z.configMaster
		z.configMaster = configMaster
		z.mu.Unlock()
		z.chain.Record(ctx, func() {
			z.mu.Lock()
			z.configMaster = prev
			z.mu.Unlock()
		})
		z.chain.Emit(ctx, ConfigMasterUpdated{Zap: z.address, ConfigMaster: configMaster})
		return nil
	})
}

// pool resolves pool through a whitelisted factory and checks it trades the pair.
func (z *Zap) pool(factory, tokenA, tokenB, pool common.Address) (*dmm.Factory, *dmm.Pool, error) {
	z.mu.RLock()
	f, ok := z.factories[factory]
	z.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: factory %s is not whitelisted", dmm.ErrForbidden, factory.Hex())
	}
	if !f.IsPool(tokenA, tokenB, pool) {
		return nil, nil, fmt.Errorf("%w: %s is not a pool of %s/%s", dmm.ErrInvalidPool, pool.Hex(), tokenA.Hex(), tokenB.Hex())
	}
	p, ok := f.Pool(pool)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", dmm.ErrInvalidPool, pool.Hex())
	}
	return f, p, nil
}

// transact runs fn in a transaction whose block timestamp is at most deadline.
func (z *Zap) transact(ctx context.Context, deadline uint64, fn func(ctx context.Context) error) error {
	return z.chain.Transact(ctx, func(ctx context.Context) error {
		if now := z.chain.Timestamp(); deadline < now {
			return fmt.Errorf("%w: deadline %d, now %d", dmm.ErrDeadlineExpired, deadline, now)
		}
		return fn(ctx)
	})
}

func requireAmount(name string, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: %s", dmm.ErrMissingAmount, name)
	}
	return nil
}

func (z *Zap) token(addr common.Address) (chain.Token, error) {
	t, ok := z.chain.Token(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dmm.ErrUnknownToken, addr.Hex())
	}
	return t, nil
}
