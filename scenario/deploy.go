package scenario

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/KyberNetwork/dmm-smart-contracts/periphery/router"
	"github.com/KyberNetwork/dmm-smart-contracts/periphery/zap"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const defaultDeadlineSeconds = 600

// Deployment is an exchange built from a Config.
type Deployment struct {
	Chain   *chain.Chain
	Factory *dmm.Factory
	WETH    *chain.WETH
	Router  *router.Router
	Zap     *zap.Zap

	// Tokens by symbol, WETH included.
	Tokens   map[string]*chain.ERC20
	Accounts map[string]common.Address
	Pools    map[string]*dmm.Pool

	cfg    *Config
	logger Logger
}

// AccountAddress derives the address of an account declared without one.
func AccountAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("account:" + name)))
}

func amount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}

// Deploy builds the chain, contracts, tokens, accounts and seeded pools of cfg. Every
// account approves the router and the zap for all tokens and LP shares.
func Deploy(ctx context.Context, cfg *Config, logger Logger) (*Deployment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chainCfg := &chain.Config{ChainID: cfg.ChainID, Logger: logger}
	if cfg.Genesis != 0 {
		genesis := time.Unix(cfg.Genesis, 0)
		chainCfg.Clock = func() time.Time { return genesis }
	}
	c, err := chain.New(chainCfg)
	if err != nil {
		return nil, err
	}

	deployer := common.HexToAddress(cfg.Deployer)
	feeToSetter := common.HexToAddress(cfg.FeeToSetter)
	factory, err := dmm.NewFactory(ctx, c, &dmm.FactoryConfig{
		Deployer:    deployer,
		FeeToSetter: feeToSetter,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Fee != nil {
		err := factory.SetFeeConfiguration(ctx, feeToSetter, common.HexToAddress(cfg.Fee.To), cfg.Fee.GovernmentFeeUnits)
		if err != nil {
			return nil, fmt.Errorf("configure protocol fee: %w", err)
		}
	}
	weth, err := chain.NewWETH(ctx, c, deployer)
	if err != nil {
		return nil, err
	}
	r, err := router.New(ctx, c, &router.Config{Deployer: deployer, Factory: factory, WETH: weth, Logger: logger})
	if err != nil {
		return nil, err
	}
	z, err := zap.New(ctx, c, &zap.Config{Deployer: deployer, WETH: weth, Factories: []*dmm.Factory{factory}, Logger: logger})
	if err != nil {
		return nil, err
	}

	d := &Deployment{
		Chain:    c,
		Factory:  factory,
		WETH:     weth,
		Router:   r,
		Zap:      z,
		Tokens:   map[string]*chain.ERC20{WETHSymbol: weth.ERC20},
		Accounts: make(map[string]common.Address, len(cfg.Accounts)),
		Pools:    make(map[string]*dmm.Pool, len(cfg.Pools)),
		cfg:      cfg,
		logger:   logger,
	}
	for _, t := range cfg.Tokens {
		if err := d.deployToken(ctx, deployer, t); err != nil {
			return nil, err
		}
	}
	for _, a := range cfg.Accounts {
		if err := d.createAccount(ctx, deployer, a); err != nil {
			return nil, err
		}
	}
	for _, p := range cfg.Pools {
		if err := d.createPool(ctx, p); err != nil {
			return nil, err
		}
	}
	logger.Info("scenario deployed",
		"chainId", cfg.ChainID,
		"tokens", len(d.Tokens),
		"accounts", len(d.Accounts),
		"pools", len(d.Pools),
		"block", c.BlockNumber(),
	)
	return d, nil
}

func (d *Deployment) deployToken(ctx context.Context, minter common.Address, t TokenConfig) error {
	decimals := t.Decimals
	if decimals == 0 {
		decimals = 18
	}
	name := t.Name
	if name == "" {
		name = t.Symbol + " Token"
	}
	token, err := chain.NewERC20(ctx, d.Chain, &chain.TokenConfig{
		Name:             name,
		Symbol:           t.Symbol,
		Decimals:         decimals,
		Minter:           minter,
		FeeOnTransferBps: t.FeeOnTransferBps,
	})
	if err != nil {
		return err
	}
	d.Tokens[t.Symbol] = token
	return nil
}

func (d *Deployment) createAccount(ctx context.Context, minter common.Address, a AccountConfig) error {
	addr := AccountAddress(a.Name)
	if a.Address != "" {
		addr = common.HexToAddress(a.Address)
	}
	d.Accounts[a.Name] = addr

	native, err := amount(a.Native)
	if err != nil {
		return err
	}
	if native != nil {
		if err := d.Chain.Fund(ctx, addr, native); err != nil {
			return fmt.Errorf("fund %s: %w", a.Name, err)
		}
	}
	for _, symbol := range slices.Sorted(maps.Keys(a.Balances)) {
		v, err := amount(a.Balances[symbol])
		if err != nil {
			return err
		}
		if symbol == WETHSymbol {
			if err := d.Chain.Fund(ctx, addr, v); err != nil {
				return fmt.Errorf("fund %s: %w", a.Name, err)
			}
			err = d.WETH.Deposit(ctx, addr, v)
		} else {
			err = d.Tokens[symbol].Mint(ctx, minter, addr, v)
		}
		if err != nil {
			return fmt.Errorf("credit %s %s: %w", a.Name, symbol, err)
		}
	}
	for _, symbol := range slices.Sorted(maps.Keys(d.Tokens)) {
		if err := d.approve(ctx, d.Tokens[symbol], addr); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployment) approve(ctx context.Context, token chain.Token, owner common.Address) error {
	for _, spender := range []common.Address{d.Router.Address(), d.Zap.Address()} {
		if err := token.Approve(ctx, owner, spender, mathext.MaxUint256); err != nil {
			return fmt.Errorf("approve %s: %w", spender.Hex(), err)
		}
	}
	return nil
}

func (d *Deployment) createPool(ctx context.Context, p PoolConfig) error {
	provider := d.Accounts[p.Provider]
	tokenA, tokenB := d.Tokens[p.TokenA].Address(), d.Tokens[p.TokenB].Address()
	var (
		pool *dmm.Pool
		err  error
	)
	if p.FeeBps == 0 {
		pool, err = d.Factory.CreatePair(ctx, provider, tokenA, tokenB, p.AmpBps)
	} else {
		pool, err = d.Factory.CreatePool(ctx, provider, tokenA, tokenB, p.AmpBps, p.FeeBps)
	}
	if err != nil {
		return fmt.Errorf("create pool %s: %w", p.Name, err)
	}
	d.Pools[p.Name] = pool

	amountA, err := amount(p.AmountA)
	if err != nil {
		return err
	}
	amountB, err := amount(p.AmountB)
	if err != nil {
		return err
	}
	_, _, _, err = d.Router.AddLiquidity(ctx, provider, router.AddLiquidityParams{
		TokenA:         tokenA,
		TokenB:         tokenB,
		Pool:           pool.Address(),
		AmountADesired: amountA,
		AmountBDesired: amountB,
		To:             provider,
		Deadline:       d.deadline(),
	})
	if err != nil {
		return fmt.Errorf("seed pool %s: %w", p.Name, err)
	}
	for _, a := range d.cfg.Accounts {
		if err := d.approve(ctx, pool, d.Accounts[a.Name]); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployment) deadline() uint64 {
	seconds := d.cfg.DeadlineSeconds
	if seconds == 0 {
		seconds = defaultDeadlineSeconds
	}
	return d.Chain.Timestamp() + seconds
}

// Token returns the address of the token with symbol.
func (d *Deployment) Token(symbol string) common.Address {
	if t, ok := d.Tokens[symbol]; ok {
		return t.Address()
	}
	return common.Address{}
}
