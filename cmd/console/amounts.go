package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KyberNetwork/dmm-smart-contracts/mathext"
	"github.com/holiman/uint256"
)

// shownDecimals is the number of fractional digits formatAmount prints.
const shownDecimals = 4

var errInvalidAmount = errors.New("invalid amount")

// parseAmount reads a decimal amount such as "1.5" into token units. Digits beyond the
// token decimals are rejected rather than rounded.
func parseAmount(input string, decimals uint8) (*uint256.Int, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(input), ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %s has more than %d decimals", errInvalidAmount, input, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	if strings.ContainsFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) {
		return nil, fmt.Errorf("%w: %q", errInvalidAmount, input)
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return nil, fmt.Errorf("%w: zero", errInvalidAmount)
	}
	amount, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errInvalidAmount, err)
	}
	return amount, nil
}

// formatAmount prints amount in whole tokens, truncated to shownDecimals digits.
func formatAmount(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "-"
	}
	scale := mathext.Expand(1, decimals)
	whole, rem := new(uint256.Int).DivMod(amount, scale, new(uint256.Int))
	shown := min(decimals, shownDecimals)
	if shown == 0 {
		return whole.Dec()
	}
	frac := new(uint256.Int).Div(rem, mathext.Expand(1, decimals-shown))
	return fmt.Sprintf("%s.%0*d", whole.Dec(), int(shown), frac.Uint64())
}

func amp(ampBps uint32) string {
	return fmt.Sprintf("%.2fx", float64(ampBps)/10_000)
}
