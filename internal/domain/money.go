package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an exact base-10 quantity of the single ledger currency.
type Amount = decimal.Decimal

// Zero is the zero amount.
var Zero = decimal.Zero

var ErrInvalidAmount = errors.New("amount must be a positive finite number")

// NewAmount builds an Amount from whole units.
func NewAmount(units int64) Amount {
	return decimal.NewFromInt(units)
}

// MustAmount parses s and panics on failure. Meant for constants and tests.
func MustAmount(s string) Amount {
	return decimal.RequireFromString(s)
}

const (
	// MaxAmountScale is the number of fractional digits an input amount may carry.
	MaxAmountScale = 2
	// MaxAmountIntegerDigits bounds the integer part of an input amount.
	MaxAmountIntegerDigits = 15

	maxAmountLiteral = 64
)

var amountCeiling = decimal.New(1, MaxAmountIntegerDigits)

// ParseAmount accepts a decimal literal ("150", "12.5", "1e2") and rejects
// anything that is not strictly positive, carries more than MaxAmountScale
// fractional digits or has more than MaxAmountIntegerDigits integer digits.
func ParseAmount(raw string) (Amount, error) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > maxAmountLiteral {
		return Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	// The exponent is bounded before any comparison rescales the coefficient.
	if exp := d.Exponent(); exp > MaxAmountIntegerDigits || exp < -maxAmountLiteral {
		return Zero, ErrInvalidAmount
	}
	if !d.IsPositive() || d.Cmp(amountCeiling) >= 0 {
		return Zero, ErrInvalidAmount
	}
	if !d.Truncate(MaxAmountScale).Equal(d) {
		return Zero, ErrInvalidAmount
	}
	return d, nil
}
