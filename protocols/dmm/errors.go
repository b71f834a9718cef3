package dmm

import (
	"errors"
	"fmt"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
)

// Error categories. Every error returned by the exchange contracts matches exactly one
// of them with errors.Is.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrSlippageExceeded   = errors.New("slippage exceeded")
	ErrDeadlineExpired    = errors.New("deadline expired")
	ErrArithmeticOverflow = mathext.ErrArithmeticOverflow
	ErrReserveMismatch    = errors.New("reserves do not match balances")
	ErrLocked             = errors.New("locked")
)

// Specific errors. They wrap their category.
var (
	ErrZeroAddress             = fmt.Errorf("%w: zero address", ErrInvalidInput)
	ErrIdenticalAddresses      = fmt.Errorf("%w: identical addresses", ErrInvalidInput)
	ErrUnknownToken            = fmt.Errorf("%w: unknown token", ErrInvalidInput)
	ErrInvalidAmpBps           = fmt.Errorf("%w: invalid amplification bps", ErrInvalidInput)
	ErrInvalidFee              = fmt.Errorf("%w: invalid fee", ErrInvalidInput)
	ErrInvalidTo               = fmt.Errorf("%w: invalid to", ErrInvalidInput)
	ErrInvalidPool             = fmt.Errorf("%w: invalid pool", ErrInvalidInput)
	ErrInvalidPath             = fmt.Errorf("%w: invalid path", ErrInvalidInput)
	ErrInsufficientAmount      = fmt.Errorf("%w: insufficient amount", ErrInvalidInput)
	ErrInsufficientLiquidity   = fmt.Errorf("%w: insufficient liquidity", ErrInvalidInput)
	ErrInsufficientInputAmount = fmt.Errorf("%w: insufficient input amount", ErrInvalidInput)
	ErrMissingAmount           = fmt.Errorf("%w: missing amount", ErrInvalidInput)

	ErrPoolExists            = fmt.Errorf("%w: pool exists", ErrAlreadyExists)
	ErrUnamplifiedPoolExists = fmt.Errorf("%w: unamplified pool exists", ErrAlreadyExists)

	ErrK = fmt.Errorf("%w: K", ErrInvariantViolation)

	ErrInsufficientOutputAmount    = fmt.Errorf("%w: insufficient output amount", ErrSlippageExceeded)
	ErrExcessiveInputAmount        = fmt.Errorf("%w: excessive input amount", ErrSlippageExceeded)
	ErrInsufficientAAmount         = fmt.Errorf("%w: insufficient A amount", ErrSlippageExceeded)
	ErrInsufficientBAmount         = fmt.Errorf("%w: insufficient B amount", ErrSlippageExceeded)
	ErrOutOfBounds                 = fmt.Errorf("%w: virtual reserve ratio out of bounds", ErrSlippageExceeded)
	ErrInsufficientLiquidityMinted = fmt.Errorf("%w: insufficient liquidity minted", ErrSlippageExceeded)
	ErrInsufficientLiquidityBurned = fmt.Errorf("%w: insufficient liquidity burned", ErrSlippageExceeded)
)

// reasons is ordered from the most to the least specific error.
var reasons = []struct {
	err  error
	code string
}{
	{ErrZeroAddress, "ZERO_ADDRESS"},
	{ErrIdenticalAddresses, "IDENTICAL_ADDRESSES"},
	{ErrUnknownToken, "UNKNOWN_TOKEN"},
	{ErrInvalidAmpBps, "INVALID_BPS"},
	{ErrInvalidFee, "INVALID_FEE"},
	{ErrInvalidTo, "INVALID_TO"},
	{ErrInvalidPool, "INVALID_POOL"},
	{ErrInvalidPath, "INVALID_PATH"},
	{ErrInsufficientAmount, "INSUFFICIENT_AMOUNT"},
	{ErrInsufficientLiquidity, "INSUFFICIENT_LIQUIDITY"},
	{ErrInsufficientInputAmount, "INSUFFICIENT_INPUT_AMOUNT"},
	{ErrPoolExists, "POOL_EXISTS"},
	{ErrUnamplifiedPoolExists, "UNAMPLIFIED_POOL_EXISTS"},
	{ErrK, "K"},
	{ErrInsufficientOutputAmount, "INSUFFICIENT_OUTPUT_AMOUNT"},
	{ErrExcessiveInputAmount, "EXCESSIVE_INPUT_AMOUNT"},
	{ErrInsufficientAAmount, "INSUFFICIENT_A_AMOUNT"},
	{ErrInsufficientBAmount, "INSUFFICIENT_B_AMOUNT"},
	{ErrOutOfBounds, "OUT_OF_BOUNDS"},
	{ErrInsufficientLiquidityMinted, "INSUFFICIENT_LIQUIDITY_MINTED"},
	{ErrInsufficientLiquidityBurned, "INSUFFICIENT_LIQUIDITY_BURNED"},
	{chain.ErrPermitExpired, "PERMIT_EXPIRED"},
	{chain.ErrInvalidSignature, "INVALID_SIGNATURE"},
	{chain.ErrInsufficientBalance, "TRANSFER_FAILED"},
	{chain.ErrInsufficientAllowance, "TRANSFER_FAILED"},
	{chain.ErrInsufficientNativeBalance, "ETH_TRANSFER_FAILED"},
	{chain.ErrNilAmount, "INVALID_INPUT"},
	{ErrInvalidInput, "INVALID_INPUT"},
	{ErrForbidden, "FORBIDDEN"},
	{ErrAlreadyExists, "ALREADY_EXISTS"},
	{ErrInvariantViolation, "INVARIANT_VIOLATION"},
	{ErrSlippageExceeded, "SLIPPAGE_EXCEEDED"},
	{ErrDeadlineExpired, "EXPIRED"},
	{ErrArithmeticOverflow, "OVERFLOW"},
	{mathext.ErrDivisionByZero, "OVERFLOW"},
	{ErrReserveMismatch, "RESERVE_MISMATCH"},
	{ErrLocked, "LOCKED"},
}

// Reason returns the machine-checkable reason code of err, or "" for nil and for
// errors that do not come from the exchange.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return ""
}

