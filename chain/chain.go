// Package chain is the execution environment the pools run in: serialized,
// all-or-nothing transactions over in-memory contract state, a block clock,
// a native-currency ledger and an event bus that only sees committed work.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Logger defines a standard interface for structured, leveled logging.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	ErrInsufficientNativeBalance = errors.New("insufficient native balance")
	ErrInsufficientBalance       = errors.New("insufficient balance")
	ErrInsufficientAllowance     = errors.New("insufficient allowance")
	ErrZeroAddress               = errors.New("zero address")
	ErrNotMinter                 = errors.New("caller is not the minter")
	ErrPermitExpired             = errors.New("permit expired")
	ErrInvalidSignature          = errors.New("invalid signature")
	ErrTokenExists               = errors.New("token already registered")
	ErrNilAmount                 = errors.New("nil amount")
)

// Config holds the parameters used to build a Chain.
type Config struct {
	ChainID uint64
	// Clock returns the wall time used as the block timestamp. Defaults to time.Now.
	Clock  func() time.Time
	Logger Logger
}

func (c *Config) validate() error {
	if c.ChainID == 0 {
		return errors.New("chain id cannot be zero")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

type txKey struct{}

// Chain is the shared execution environment. All state mutations of every contract
// built on it must happen inside Transact.
type Chain struct {
	chainID uint64
	clock   func() time.Time
	logger  Logger

	// txMu serializes transactions. journal and pending are only used while it is held.
	txMu    sync.Mutex
	journal journal
	pending []Event

	blockNumber    atomic.Uint64
	blockTimestamp atomic.Uint64

	mu     sync.RWMutex
	native map[common.Address]uint256.Int
	nonces map[common.Address]uint64
	tokens map[common.Address]Token
	order  []common.Address

	handlersMu    sync.RWMutex
	handlers      map[int]EventHandler
	nextHandlerID int
}

// New creates an empty chain.
func New(cfg *Config) (*Chain, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	c := &Chain{
		chainID:  cfg.ChainID,
		clock:    clock,
		logger:   cfg.Logger,
		native:   make(map[common.Address]uint256.Int),
		nonces:   make(map[common.Address]uint64),
		tokens:   make(map[common.Address]Token),
		handlers: make(map[int]EventHandler),
	}
	c.blockTimestamp.Store(uint64(clock().Unix()))
	return c, nil
}

func (c *Chain) ChainID() uint64 {
	return c.chainID
}

// BlockNumber returns the number of the last committed block.
func (c *Chain) BlockNumber() uint64 {
	return c.blockNumber.Load()
}

// Timestamp returns the current block timestamp in unix seconds. Inside a transaction
// it is fixed for the whole transaction.
func (c *Chain) Timestamp() uint64 {
	return c.blockTimestamp.Load()
}

// InTransaction reports whether ctx belongs to a running transaction of this chain.
func (c *Chain) InTransaction(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Chain)
	return owner == c
}

// Transact runs fn atomically. Called with a context that already belongs to a
// transaction it opens a nested call frame: an error from fn reverts only the writes
// made by fn and is returned to the caller, who may handle it or fail in turn.
// Events are delivered to subscribers once the outermost frame commits.
func (c *Chain) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.InTransaction(ctx) {
		return c.frame(ctx, fn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.txMu.Lock()
	c.blockTimestamp.Store(uint64(c.clock().Unix()))
	txCtx := context.WithValue(ctx, txKey{}, c)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.journal.revertTo(0)
				c.pending = nil
				c.txMu.Unlock()
				panic(r)
			}
		}()
		err = c.frame(txCtx, fn)
	}()

	events := c.pending
	c.pending = nil
	c.journal.reset()
	if err != nil {
		c.txMu.Unlock()
		return err
	}
	receipt := Receipt{
		BlockNumber: c.blockNumber.Add(1),
		Timestamp:   c.blockTimestamp.Load(),
		Events:      events,
	}
	c.txMu.Unlock()

	c.dispatch(receipt)
	return nil
}

func (c *Chain) frame(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := c.journal.snapshot()
	mark := len(c.pending)
	if err := fn(ctx); err != nil {
		c.journal.revertTo(snapshot)
		c.pending = c.pending[:mark]
		return err
	}
	return nil
}

// Read runs fn while no transaction is in progress, so every read fn makes sees the
// state of the same block. It must not be called from inside a transaction.
func (c *Chain) Read(fn func()) {
	c.txMu.Lock()
	defer c.txMu.Unlock()
	fn()
}

// Record registers an undo closure for a write made inside the transaction of ctx.
func (c *Chain) Record(ctx context.Context, undo func()) {
	c.mustInTransaction(ctx)
	c.journal.append(undo)
}

// Emit queues an event for delivery when the transaction commits.
func (c *Chain) Emit(ctx context.Context, event Event) {
	c.mustInTransaction(ctx)
	c.pending = append(c.pending, event)
}

func (c *Chain) mustInTransaction(ctx context.Context) {
	if !c.InTransaction(ctx) {
		panic("chain: state write outside of a transaction")
	}
}

// Subscribe registers a handler for committed receipts. Handlers run synchronously on the
// committing goroutine after the transaction lock is released.
func (c *Chain) Subscribe(handler EventHandler) (unsubscribe func()) {
	c.handlersMu.Lock()
	id := c.nextHandlerID
	c.nextHandlerID++
	c.handlers[id] = handler
	c.handlersMu.Unlock()

	return func() {
		c.handlersMu.Lock()
		delete(c.handlers, id)
		c.handlersMu.Unlock()
	}
}

func (c *Chain) dispatch(receipt Receipt) {
	c.handlersMu.RLock()
	handlers := make([]EventHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		c.deliver(h, receipt)
	}
}

func (c *Chain) deliver(h EventHandler, receipt Receipt) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "block", receipt.BlockNumber, "panic", r)
		}
	}()
	h(receipt)
}

// NativeBalance returns the native-currency balance of addr.
func (c *Chain) NativeBalance(addr common.Address) *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b := c.native[addr]
	return b.Clone()
}

// Fund credits addr with amount of native currency out of thin air (genesis allocation).
func (c *Chain) Fund(ctx context.Context, addr common.Address, amount *uint256.Int) error {
	return c.Transact(ctx, func(ctx context.Context) error {
		c.mu.RLock()
		b := c.native[addr]
		c.mu.RUnlock()
		next, overflow := new(uint256.Int).AddOverflow(&b, amount)
		if overflow {
			return fmt.Errorf("fund %s: balance overflow", addr.Hex())
		}
		c.setNative(ctx, addr, next)
		return nil
	})
}

// TransferNative moves native currency between two accounts.
func (c *Chain) TransferNative(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: native transfer", ErrNilAmount)
	}
	return c.Transact(ctx, func(ctx context.Context) error {
		c.mu.RLock()
		fromBal := c.native[from]
		c.mu.RUnlock()
		if fromBal.Lt(amount) {
			return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientNativeBalance, from.Hex(), fromBal.Dec(), amount.Dec())
		}
		if from == to {
			return nil
		}
		c.setNative(ctx, from, new(uint256.Int).Sub(&fromBal, amount))
		c.mu.RLock()
		toBal := c.native[to]
		c.mu.RUnlock()
		c.setNative(ctx, to, new(uint256.Int).Add(&toBal, amount))
		c.Emit(ctx, NativeTransfer{From: from, To: to, Value: amount.Clone()})
		return nil
	})
}

func (c *Chain) setNative(ctx context.Context, addr common.Address, v *uint256.Int) {
	c.mu.Lock()
	prev, existed := c.native[addr]
	c.native[addr] = *v
	c.mu.Unlock()
	c.Record(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if existed {
			c.native[addr] = prev
		} else {
			delete(c.native, addr)
		}
	})
}

// NextAddress derives the address of the next contract deployed by deployer, the way
// CREATE does: keccak(rlp(deployer, nonce)).
func (c *Chain) NextAddress(ctx context.Context, deployer common.Address) common.Address {
	c.mu.Lock()
	nonce := c.nonces[deployer]
	c.nonces[deployer] = nonce + 1
	c.mu.Unlock()
	c.Record(ctx, func() {
		c.mu.Lock()
		c.nonces[deployer] = nonce
		c.mu.Unlock()
	})
	return crypto.CreateAddress(deployer, nonce)
}

// Create2Address derives a deterministic contract address from the deployer, a salt
// and the hash of the deployed code identity.
func Create2Address(deployer common.Address, salt [32]byte, codeHash []byte) common.Address {
	return crypto.CreateAddress2(deployer, salt, codeHash)
}

// RegisterToken makes t reachable by address. Registration is part of the transaction of ctx.
func (c *Chain) RegisterToken(ctx context.Context, t Token) error {
	return c.Transact(ctx, func(ctx context.Context) error {
		addr := t.Address()
		c.mu.Lock()
		if _, exists := c.tokens[addr]; exists {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrTokenExists, addr.Hex())
		}
		c.tokens[addr] = t
		c.order = append(c.order, addr)
		c.mu.Unlock()
		c.Record(ctx, func() {
			c.mu.Lock()
			delete(c.tokens, addr)
			c.order = c.order[:len(c.order)-1]
			c.mu.Unlock()
		})
		return nil
	})
}

// Token looks up a registered token.
func (c *Chain) Token(addr common.Address) (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[addr]
	return t, ok
}

// Tokens returns every registered token in registration order.
func (c *Chain) Tokens() []Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Token, 0, len(c.order))
	for _, addr := range c.order {
		out = append(out, c.tokens[addr])
	}
	return out
}
