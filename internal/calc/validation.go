package calc

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ToDecimal renders a fixed-point integer with the given number of decimals.
func ToDecimal(x *uint256.Int, decimals uint8) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), -int32(decimals))
}

// FromDecimal parses a human amount ("12.5") into native units with the given decimals.
func FromDecimal(d decimal.Decimal, decimals uint8) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	if decimals > MaxDecimals {
		return nil, ErrUnsupportedDecimals
	}
	if d.IsZero() {
		return new(uint256.Int), nil
	}

	// Bound the scale before shifting; shopspring materialises 10^scale.
	scale := int64(d.Exponent()) + int64(decimals)
	if scale > MaxDecimals {
		return nil, ErrOverflow
	}
	if scale < 0 && int64(len(d.Coefficient().Text(10))) <= -scale {
		return nil, ErrExcessPrecision
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, ErrExcessPrecision
	}
	v, overflow := uint256.FromBig(shifted.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

// ParseAmount parses a decimal string into native units.
func ParseAmount(s string, decimals uint8) (*uint256.Int, error) {
	if len(s) > MaxAmountLength {
		return nil, fmt.Errorf("%w: %d characters", ErrAmountTooLong, len(s))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d, decimals)
}

// FormatHealthFactor renders a health factor as a decimal ratio, or "inf" for the no-debt
// sentinel.
func FormatHealthFactor(hf *uint256.Int) string {
	if IsMaxHealthFactor(hf) {
		return "inf"
	}
	return ToDecimal(hf, PrecisionDecimals).String()
}
