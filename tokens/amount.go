package tokens

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrTooManyDecimals = errors.New("amount has more decimals than the token")
	ErrAmountOverflow  = errors.New("amount exceeds u64")
)

// ToUI converts base units to a decimal amount.
func ToUI(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

// FromUI converts a decimal amount to base units. The amount must be positive
// and representable with decimals places.
func FromUI(ui decimal.Decimal, decimals uint8) (uint64, error) {
	if !ui.IsPositive() {
		return 0, ErrInvalidAmount
	}
	shifted := ui.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s with %d decimals", ErrTooManyDecimals, ui, decimals)
	}
	if shifted.GreaterThan(decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)) {
		return 0, ErrAmountOverflow
	}
	return shifted.BigInt().Uint64(), nil
}

// ParseUI parses a user entered amount such as "1.5".
func ParseUI(s string, decimals uint8) (uint64, error) {
	ui, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromUI(ui, decimals)
}
