package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// WETH wraps native currency 1:1 into an ERC20.
type WETH struct {
	*ERC20
}

// NewWETH deploys the wrapped native token.
func NewWETH(ctx context.Context, c *Chain, deployer common.Address) (*WETH, error) {
	token, err := NewERC20(ctx, c, &TokenConfig{
		Name:     "Wrapped Ether",
		Symbol:   "WETH",
		Decimals: 18,
		Minter:   deployer,
	})
	if err != nil {
		return nil, err
	}
	return &WETH{ERC20: token}, nil
}

// Deposit moves value native currency from `from` into the contract and mints the same
// amount of WETH to `from`.
func (w *WETH) Deposit(ctx context.Context, from common.Address, value *uint256.Int) error {
	return w.chain.Transact(ctx, func(ctx context.Context) error {
		if err := w.chain.TransferNative(ctx, from, w.address, value); err != nil {
			return fmt.Errorf("weth deposit: %w", err)
		}
		if err := w.MintInternal(ctx, from, value); err != nil {
			return err
		}
		w.chain.Emit(ctx, Deposit{Token: w.address, Dst: from, Value: value.Clone()})
		return nil
	})
}

// Withdraw burns amount WETH held by `from` and pays the native currency back.
func (w *WETH) Withdraw(ctx context.Context, from common.Address, amount *uint256.Int) error {
	return w.chain.Transact(ctx, func(ctx context.Context) error {
		if err := w.BurnInternal(ctx, from, amount); err != nil {
			return fmt.Errorf("weth withdraw: %w", err)
		}
		if err := w.chain.TransferNative(ctx, w.address, from, amount); err != nil {
			return fmt.Errorf("weth withdraw: %w", err)
		}
		w.chain.Emit(ctx, Withdrawal{Token: w.address, Src: from, Value: amount.Clone()})
		return nil
	})
}
