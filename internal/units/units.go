// Package units converts between human-readable token amounts and integer
// base units. A token with d decimals represents 1 whole token as 10^d base
// units. Floating point is never involved.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/relaytaker/internal/domain"
)

// ToBaseUnits returns amount × 10^decimals, truncated toward zero when amount
// carries more fractional digits than the token supports.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("units: %w: negative decimals %d", domain.ErrInvalidAmount, decimals)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("units: %w: negative amount %s", domain.ErrInvalidAmount, amount)
	}
	return amount.Shift(decimals).Truncate(0).BigInt(), nil
}

// ToDecimal is the inverse of ToBaseUnits: amount / 10^decimals, exact.
func ToDecimal(amount *big.Int, decimals int32) (decimal.Decimal, error) {
	if decimals < 0 {
		return decimal.Zero, fmt.Errorf("units: %w: negative decimals %d", domain.ErrInvalidAmount, decimals)
	}
	if amount == nil || amount.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("units: %w: amount must be a non-negative integer", domain.ErrInvalidAmount)
	}
	return decimal.NewFromBigInt(amount, -decimals), nil
}

// Parse reads a non-negative decimal amount.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("units: %w: empty amount", domain.ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("units: %w: %q", domain.ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("units: %w: negative amount %q", domain.ErrInvalidAmount, s)
	}
	return d, nil
}

// ParseInteger is Parse restricted to whole numbers.
func ParseInteger(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsInteger() {
		return decimal.Zero, fmt.Errorf("units: %w: %q is not an integer", domain.ErrInvalidAmount, s)
	}
	return d, nil
}

// Integer converts an integer-valued decimal (salt, expiration) to a big.Int
// without scaling. Fractional values are rejected rather than truncated.
func Integer(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("units: %w: negative value %s", domain.ErrInvalidAmount, d)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("units: %w: %s is not an integer", domain.ErrInvalidAmount, d)
	}
	return d.BigInt(), nil
}
