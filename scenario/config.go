// Package scenario deploys an exchange from a declarative description and replays
// actions against it.
package scenario

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// WETHSymbol names the wrapped native token, which every deployment has.
const WETHSymbol = "WETH"

// Actions a step can perform.
const (
	ActionWrap            = "wrap"
	ActionSwap            = "swap"
	ActionAddLiquidity    = "addLiquidity"
	ActionRemoveLiquidity = "removeLiquidity"
	ActionZapIn           = "zapIn"
	ActionZapOut          = "zapOut"
)

// Config describes a deployment and the steps run against it. Amounts are decimal
// strings in the smallest unit of their token.
type Config struct {
	ChainID uint64 `yaml:"chainId" validate:"required"`
	// Genesis pins the block clock to a unix timestamp. Zero follows the wall clock.
	Genesis     int64  `yaml:"genesis" validate:"gte=0"`
	Deployer    string `yaml:"deployer" validate:"required,eth_addr"`
	FeeToSetter string `yaml:"feeToSetter" validate:"required,eth_addr"`
	// DeadlineSeconds is added to the block timestamp to build the deadline of each step.
	DeadlineSeconds uint64 `yaml:"deadlineSeconds"`

	Fee      *FeeConfig      `yaml:"fee"`
	Tokens   []TokenConfig   `yaml:"tokens" validate:"unique=Symbol,dive"`
	Accounts []AccountConfig `yaml:"accounts" validate:"required,unique=Name,dive"`
	Pools    []PoolConfig    `yaml:"pools" validate:"unique=Name,dive"`
	Steps    []Step          `yaml:"steps" validate:"dive"`
}

// FeeConfig turns the protocol fee on.
type FeeConfig struct {
	To                 string `yaml:"to" validate:"required,eth_addr"`
	GovernmentFeeUnits uint32 `yaml:"governmentFeeUnits" validate:"gt=0,lt=20000"`
}

type TokenConfig struct {
	Symbol string `yaml:"symbol" validate:"required,alphanum,ne=WETH"`
	Name   string `yaml:"name"`
	// Decimals of zero default to 18.
	Decimals         uint8  `yaml:"decimals" validate:"lte=36"`
	FeeOnTransferBps uint16 `yaml:"feeOnTransferBps" validate:"lt=10000"`
}

type AccountConfig struct {
	Name string `yaml:"name" validate:"required,alphanum"`
	// Address defaults to one derived from Name.
	Address  string            `yaml:"address" validate:"omitempty,eth_addr"`
	Native   string            `yaml:"native" validate:"omitempty,numeric"`
	Balances map[string]string `yaml:"balances" validate:"dive,keys,required,endkeys,numeric"`
}

// PoolConfig creates a pool and seeds it with the provider's tokens.
type PoolConfig struct {
	Name   string `yaml:"name" validate:"required,alphanum"`
	TokenA string `yaml:"tokenA" validate:"required"`
	TokenB string `yaml:"tokenB" validate:"required,nefield=TokenA"`
	AmpBps uint32 `yaml:"ampBps" validate:"gte=10000"`
	// FeeBps of zero selects the factory default.
	FeeBps   uint16 `yaml:"feeBps" validate:"lt=10000"`
	Provider string `yaml:"provider" validate:"required"`
	AmountA  string `yaml:"amountA" validate:"required,numeric"`
	AmountB  string `yaml:"amountB" validate:"required,numeric"`
}

// Step is one action of an account.
//
//	wrap:            Amount of native currency into WETH
//	swap:            Amount of Path[0] along Path through Pools, at least MinOut out
//	addLiquidity:    Amount of the pool's tokenA and AmountB of its tokenB
//	removeLiquidity: Amount of LP shares of Pool
//	zapIn:           Amount of TokenIn into Pool
//	zapOut:          Amount of LP shares of Pool out as TokenOut
type Step struct {
	Action   string   `yaml:"action" validate:"required,oneof=wrap swap addLiquidity removeLiquidity zapIn zapOut"`
	Account  string   `yaml:"account" validate:"required"`
	Pool     string   `yaml:"pool"`
	Pools    []string `yaml:"pools"`
	Path     []string `yaml:"path"`
	TokenIn  string   `yaml:"tokenIn"`
	TokenOut string   `yaml:"tokenOut"`
	Amount   string   `yaml:"amount" validate:"required,numeric"`
	AmountB  string   `yaml:"amountB" validate:"omitempty,numeric"`
	MinOut   string   `yaml:"minOut" validate:"omitempty,numeric"`
	// Expect is the reason code the step must fail with. Empty means it must succeed.
	Expect string `yaml:"expect"`
}

// LoadConfig reads and validates a YAML scenario.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a YAML scenario.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields of cfg and that every symbol, account and pool a pool or
// step refers to is declared.
func (cfg *Config) Validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}

	tokens := map[string]bool{WETHSymbol: true}
	for _, t := range cfg.Tokens {
		tokens[t.Symbol] = true
	}
	accounts := make(map[string]bool, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		accounts[a.Name] = true
		for symbol := range a.Balances {
			if !tokens[symbol] {
				return fmt.Errorf("invalid scenario: account %s holds unknown token %s", a.Name, symbol)
			}
		}
	}
	pools := make(map[string]bool, len(cfg.Pools))
	for _, p := range cfg.Pools {
		if !tokens[p.TokenA] || !tokens[p.TokenB] {
			return fmt.Errorf("invalid scenario: pool %s uses an unknown token", p.Name)
		}
		if !accounts[p.Provider] {
			return fmt.Errorf("invalid scenario: pool %s has unknown provider %s", p.Name, p.Provider)
		}
		pools[p.Name] = true
	}

	for i, s := range cfg.Steps {
		if err := s.check(tokens, accounts, pools); err != nil {
			return fmt.Errorf("invalid scenario: step %d (%s): %w", i, s.Action, err)
		}
	}
	return nil
}

func (s *Step) check(tokens, accounts, pools map[string]bool) error {
	if !accounts[s.Account] {
		return fmt.Errorf("unknown account %s", s.Account)
	}
	needPool := func() error {
		if !pools[s.Pool] {
			return fmt.Errorf("unknown pool %q", s.Pool)
		}
		return nil
	}
	switch s.Action {
	case ActionWrap:
		return nil
	case ActionSwap:
		if len(s.Path) < 2 || len(s.Pools) != len(s.Path)-1 {
			return fmt.Errorf("path of %d tokens needs %d pools, got %d", len(s.Path), max(len(s.Path)-1, 1), len(s.Pools))
		}
		for _, symbol := range s.Path {
			if !tokens[symbol] {
				return fmt.Errorf("unknown token %s", symbol)
			}
		}
		for _, name := range s.Pools {
			if !pools[name] {
				return fmt.Errorf("unknown pool %q", name)
			}
		}
		return nil
	case ActionAddLiquidity:
		if s.AmountB == "" {
			return fmt.Errorf("amountB is required")
		}
		return needPool()
	case ActionZapIn:
		if !tokens[s.TokenIn] {
			return fmt.Errorf("unknown token %q", s.TokenIn)
		}
		return needPool()
	case ActionZapOut:
		if !tokens[s.TokenOut] {
			return fmt.Errorf("unknown token %q", s.TokenOut)
		}
		return needPool()
	default:
		return needPool()
	}
}
