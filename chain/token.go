package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	bps       = uint256.NewInt(10_000)
	maxAmount = new(uint256.Int).SetAllOne()
)

// Token is the ERC20 surface the exchange contracts rely on. Transfer and TransferFrom
// return the amount the recipient actually received, which is less than the amount sent
// for fee-on-transfer tokens.
type Token interface {
	Address() common.Address
	Symbol() string
	Decimals() uint8
	TotalSupply() *uint256.Int
	BalanceOf(owner common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (*uint256.Int, error)
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (*uint256.Int, error)
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error
}

// PermitToken is a Token that accepts EIP-2612 signed approvals.
type PermitToken interface {
	Token
	Name() string
	Nonces(owner common.Address) uint64
	DomainSeparator() common.Hash
	Permit(ctx context.Context, owner, spender common.Address, value *uint256.Int, deadline uint64, sig Signature) error
}

// TransferHook runs after balances have moved and before the transfer returns. It lets a
// token call back into other contracts, as ERC777-style tokens do.
type TransferHook func(ctx context.Context, from, to common.Address, amount *uint256.Int) error

// TokenConfig describes an ERC20 to deploy.
type TokenConfig struct {
	Name     string
	Symbol   string
	Decimals uint8
	// Minter is the only account allowed to call Mint and Burn. It also deploys the token.
	Minter common.Address
	// Address pins the token address. When zero, it is derived from Minter's deployment nonce.
	Address common.Address
	// FeeOnTransferBps is burned from every transfer, in basis points.
	FeeOnTransferBps uint16
}

func (c *TokenConfig) validate() error {
	if c.Symbol == "" {
		return errors.New("symbol cannot be empty")
	}
	if c.FeeOnTransferBps >= 10_000 {
		return fmt.Errorf("fee on transfer %d bps must be below 10000", c.FeeOnTransferBps)
	}
	return nil
}

// ERC20 is an in-memory token whose writes are journaled on its chain.
type ERC20 struct {
	chain    *Chain
	address  common.Address
	name     string
	symbol   string
	decimals uint8
	minter   common.Address
	feeBps   *uint256.Int
	domain   common.Hash

	hookMu sync.RWMutex
	hook   TransferHook

	mu          sync.RWMutex
	totalSupply uint256.Int
	balances    map[common.Address]uint256.Int
	allowances  map[common.Address]map[common.Address]uint256.Int
	nonces      map[common.Address]uint64
}

// NewERC20 deploys a token and registers it on the chain.
func NewERC20(ctx context.Context, c *Chain, cfg *TokenConfig) (*ERC20, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid token configuration: %w", err)
	}
	t := &ERC20{
		chain:      c,
		name:       cfg.Name,
		symbol:     cfg.Symbol,
		decimals:   cfg.Decimals,
		minter:     cfg.Minter,
		feeBps:     uint256.NewInt(uint64(cfg.FeeOnTransferBps)),
		balances:   make(map[common.Address]uint256.Int),
		allowances: make(map[common.Address]map[common.Address]uint256.Int),
		nonces:     make(map[common.Address]uint64),
	}
	err := c.Transact(ctx, func(ctx context.Context) error {
		t.address = cfg.Address
		if t.address == (common.Address{}) {
			t.address = c.NextAddress(ctx, cfg.Minter)
		}
		t.domain = DomainSeparator(t.name, c.ChainID(), t.address)
		return c.RegisterToken(ctx, t)
	})
	if err != nil {
		return nil, fmt.Errorf("deploy token %s: %w", cfg.Symbol, err)
	}
	return t, nil
}

func (t *ERC20) Address() common.Address { return t.address }
func (t *ERC20) Name() string            { return t.name }
func (t *ERC20) Symbol() string          { return t.symbol }
func (t *ERC20) Decimals() uint8         { return t.decimals }

// FeeOnTransferBps returns the share of every transfer that is burned.
func (t *ERC20) FeeOnTransferBps() uint16 { return uint16(t.feeBps.Uint64()) }

// DomainSeparator returns the EIP-712 domain separator used by Permit.
func (t *ERC20) DomainSeparator() common.Hash { return t.domain }

// SetTransferHook installs h, replacing any previous hook. A nil h removes it.
func (t *ERC20) SetTransferHook(h TransferHook) {
	t.hookMu.Lock()
	t.hook = h
	t.hookMu.Unlock()
}

func (t *ERC20) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalSupply.Clone()
}

func (t *ERC20) BalanceOf(owner common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b := t.balances[owner]
	return b.Clone()
}

func (t *ERC20) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a := t.allowances[owner][spender]
	return a.Clone()
}

func (t *ERC20) Nonces(owner common.Address) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nonces[owner]
}

func (t *ERC20) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var received *uint256.Int
	err := t.chain.Transact(ctx, func(ctx context.Context) error {
		var err error
		received, err = t.move(ctx, from, to, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return received, nil
}

func (t *ERC20) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var received *uint256.Int
	if amount == nil {
		return nil, fmt.Errorf("%w: %s transferFrom", ErrNilAmount, t.symbol)
	}
	err := t.chain.Transact(ctx, func(ctx context.Context) error {
		if spender != from {
			allowance := t.Allowance(from, spender)
			if allowance.Lt(amount) {
				return fmt.Errorf("%w: %s allows %s, needs %s", ErrInsufficientAllowance, t.symbol, allowance.Dec(), amount.Dec())
			}
			if !allowance.Eq(maxAmount) {
				t.setAllowance(ctx, from, spender, new(uint256.Int).Sub(allowance, amount))
			}
		}
		var err error
		received, err = t.move(ctx, from, to, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return received, nil
}

func (t *ERC20) Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error {
	return t.chain.Transact(ctx, func(ctx context.Context) error {
		return t.approve(ctx, owner, spender, amount)
	})
}

// Mint creates amount new tokens for to. Only the minter may call it.
func (t *ERC20) Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error {
	if caller != t.minter {
		return fmt.Errorf("%w: %s", ErrNotMinter, caller.Hex())
	}
	return t.chain.Transact(ctx, func(ctx context.Context) error {
		return t.MintInternal(ctx, to, amount)
	})
}

// Burn destroys amount tokens held by from. Only the minter may call it.
func (t *ERC20) Burn(ctx context.Context, caller, from common.Address, amount *uint256.Int) error {
	if caller != t.minter {
		return fmt.Errorf("%w: %s", ErrNotMinter, caller.Hex())
	}
	return t.chain.Transact(ctx, func(ctx context.Context) error {
		return t.BurnInternal(ctx, from, amount)
	})
}

// MintInternal mints without the minter check. It is meant for the contract that owns
// the token and must run inside a transaction.
func (t *ERC20) MintInternal(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: %s mint", ErrNilAmount, t.symbol)
	}
	supply := t.TotalSupply()
	next, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return fmt.Errorf("mint %s: total supply overflow", t.symbol)
	}
	t.setTotalSupply(ctx, next)
	t.setBalance(ctx, to, new(uint256.Int).Add(t.BalanceOf(to), amount))
	t.chain.Emit(ctx, Transfer{Token: t.address, From: common.Address{}, To: to, Value: amount.Clone()})
	return nil
}

// BurnInternal burns without the minter check. It must run inside a transaction.
func (t *ERC20) BurnInternal(ctx context.Context, from common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: %s burn", ErrNilAmount, t.symbol)
	}
	balance := t.BalanceOf(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s balance %s, burn %s", ErrInsufficientBalance, t.symbol, balance.Dec(), amount.Dec())
	}
	t.setBalance(ctx, from, new(uint256.Int).Sub(balance, amount))
	t.setTotalSupply(ctx, new(uint256.Int).Sub(t.TotalSupply(), amount))
	t.chain.Emit(ctx, Transfer{Token: t.address, From: from, To: common.Address{}, Value: amount.Clone()})
	return nil
}

func (t *ERC20) move(ctx context.Context, from, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil {
		return nil, fmt.Errorf("%w: %s transfer", ErrNilAmount, t.symbol)
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s transfer %s -> %s", ErrZeroAddress, t.symbol, from.Hex(), to.Hex())
	}
	balance := t.BalanceOf(from)
	if balance.Lt(amount) {
		return nil, fmt.Errorf("%w: %s balance of %s is %s, needs %s", ErrInsufficientBalance, t.symbol, from.Hex(), balance.Dec(), amount.Dec())
	}

	fee, err := t.transferFee(amount)
	if err != nil {
		return nil, fmt.Errorf("%s transfer fee: %w", t.symbol, err)
	}
	received := new(uint256.Int).Sub(amount, fee)

	t.setBalance(ctx, from, new(uint256.Int).Sub(balance, amount))
	t.setBalance(ctx, to, new(uint256.Int).Add(t.BalanceOf(to), received))
	t.chain.Emit(ctx, Transfer{Token: t.address, From: from, To: to, Value: received.Clone()})
	if !fee.IsZero() {
		t.setTotalSupply(ctx, new(uint256.Int).Sub(t.TotalSupply(), fee))
		t.chain.Emit(ctx, Transfer{Token: t.address, From: from, To: common.Address{}, Value: fee})
	}

	t.hookMu.RLock()
	hook := t.hook
	t.hookMu.RUnlock()
	if hook != nil {
		if err := hook(ctx, from, to, received); err != nil {
			return nil, fmt.Errorf("%s transfer hook: %w", t.symbol, err)
		}
	}
	return received, nil
}

// transferFee returns floor(amount * feeBps / 10000). The amount is split at 10000 so
// the product stays within 256 bits for every amount.
func (t *ERC20) transferFee(amount *uint256.Int) (*uint256.Int, error) {
	if t.feeBps.IsZero() {
		return new(uint256.Int), nil
	}
	q, r := new(uint256.Int).DivMod(amount, bps, new(uint256.Int))
	whole, err := mathext.Mul(q, t.feeBps)
	if err != nil {
		return nil, err
	}
	part, err := mathext.MulDiv(r, t.feeBps, bps)
	if err != nil {
		return nil, err
	}
	return mathext.Add(whole, part)
}

func (t *ERC20) approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: %s approve", ErrNilAmount, t.symbol)
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return fmt.Errorf("%w: %s approve %s -> %s", ErrZeroAddress, t.symbol, owner.Hex(), spender.Hex())
	}
	t.setAllowance(ctx, owner, spender, amount.Clone())
	t.chain.Emit(ctx, Approval{Token: t.address, Owner: owner, Spender: spender, Value: amount.Clone()})
	return nil
}

func (t *ERC20) setBalance(ctx context.Context, owner common.Address, v *uint256.Int) {
	t.mu.Lock()
	prev, existed := t.balances[owner]
	t.balances[owner] = *v
	t.mu.Unlock()
	t.chain.Record(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if existed {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
}

func (t *ERC20) setTotalSupply(ctx context.Context, v *uint256.Int) {
	t.mu.Lock()
	prev := t.totalSupply
	t.totalSupply = *v
	t.mu.Unlock()
	t.chain.Record(ctx, func() {
		t.mu.Lock()
		t.totalSupply = prev
		t.mu.Unlock()
	})
}

func (t *ERC20) setAllowance(ctx context.Context, owner, spender common.Address, v *uint256.Int) {
	t.mu.Lock()
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[common.Address]uint256.Int)
		t.allowances[owner] = byOwner
	}
	prev, existed := byOwner[spender]
	byOwner[spender] = *v
	t.mu.Unlock()
	t.chain.Record(ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if existed {
			t.allowances[owner][spender] = prev
		} else {
			delete(t.allowances[owner], spender)
		}
	})
}

func (t *ERC20) setNonce(ctx context.Context, owner common.Address, n uint64) {
	t.mu.Lock()
	prev := t.nonces[owner]
	t.nonces[owner] = n
	t.mu.Unlock()
	t.chain.Record(ctx, func() {
		t.mu.Lock()
		t.nonces[owner] = prev
		t.mu.Unlock()
	})
}
