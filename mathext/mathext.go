// Package mathext provides the 256-bit checked fixed-point primitives shared by
// the pool, router and zap math. Every function returns a freshly allocated
// result and never mutates its arguments.
package mathext

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// Precision is the fixed-point unit used for fee rates (1e18 == 100%).
	Precision = uint256.NewInt(1_000_000_000_000_000_000)
	// BPS is 100% expressed in basis points.
	BPS = uint256.NewInt(10_000)
	// FeeUnits is 100% expressed in government fee units.
	FeeUnits = uint256.NewInt(100_000)
	// MinimumLiquidity is the amount of LP shares locked forever on the first mint.
	MinimumLiquidity = uint256.NewInt(1_000)
	// Q112 is 2^112, used to express reserve ratios.
	Q112 = new(uint256.Int).Lsh(uint256.NewInt(1), 112)
	// MaxUint256 is 2^256 - 1.
	MaxUint256 = new(uint256.Int).SetAllOne()

	zero = uint256.NewInt(0)
	one  = uint256.NewInt(1)
	two  = uint256.NewInt(2)

	// ErrArithmeticOverflow is returned when an intermediate or final value does not fit in 256 bits,
	// or when a subtraction would go below zero.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrDivisionByZero is returned when a denominator is zero.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNilOperand is returned when a nil pointer is passed as an operand.
	ErrNilOperand = errors.New("nil operand")
)

func checkOperands(xs ...*uint256.Int) error {
	for _, x := range xs {
		if x == nil {
			return ErrNilOperand
		}
	}
	return nil
}

// Add returns a + b.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

// Sub returns a - b. An underflow is reported as ErrArithmeticOverflow.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return nil, err
	}
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

// Mul returns a * b.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return nil, err
	}
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, a.Dec(), b.Dec())
	}
	return z, nil
}

// Div returns floor(a / b).
func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return nil, err
	}
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns floor(a * b / denominator). The product is checked first, so a
// product wider than 256 bits fails even if the quotient would fit.
func MulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(a, b, denominator); err != nil {
		return nil, err
	}
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return product.Div(product, denominator), nil
}

// MulDivRoundingUp returns ceil(a * b / denominator) with the same overflow rules as MulDiv.
func MulDivRoundingUp(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	if err := checkOperands(a, b, denominator); err != nil {
		return nil, err
	}
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	quotient := new(uint256.Int).Div(product, denominator)
	if new(uint256.Int).Mod(product, denominator).Sign() > 0 {
		// quotient < 2^256-1 here because denominator > 1
		quotient.Add(quotient, one)
	}
	return quotient, nil
}

// DivRoundingUp returns ceil(a / b).
func DivRoundingUp(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDivRoundingUp(a, one, b)
}

// Sqrt returns floor(sqrt(x)) using Newton's iteration. It is monotonic in x.
func Sqrt(x *uint256.Int) *uint256.Int {
	if x == nil || x.IsZero() {
		return new(uint256.Int)
	}
	if x.Cmp(uint256.NewInt(4)) < 0 {
		return uint256.NewInt(1)
	}

	// start from 2^(ceil(bits/2)) which is always >= sqrt(x)
	z := new(uint256.Int).Lsh(one, uint((x.BitLen()+1)/2))
	next := new(uint256.Int)
	for {
		// next = (x/z + z) / 2; x/z + z cannot overflow since z <= 2^128
		next.Div(x, z)
		next.Add(next, z)
		next.Div(next, two)
		if next.Cmp(z) >= 0 {
			return z
		}
		z.Set(next)
	}
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return a.Clone()
	}
	return b.Clone()
}

// Max returns a copy of the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) >= 0 {
		return a.Clone()
	}
	return b.Clone()
}

// IsZero reports whether x is nil or zero.
func IsZero(x *uint256.Int) bool {
	return x == nil || x.IsZero()
}

// Zero returns a new zero value.
func Zero() *uint256.Int {
	return new(uint256.Int).Set(zero)
}

// MustFromDecimal parses a base-10 string and panics on malformed input. It is meant for
// constants and tests.
func MustFromDecimal(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

// Expand returns amount * 10^decimals, e.g. Expand(100, 18) == 100e18.
func Expand(amount uint64, decimals uint8) *uint256.Int {
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	return new(uint256.Int).Mul(uint256.NewInt(amount), scale)
}
