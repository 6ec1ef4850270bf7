package calc

import (
	"errors"

	"github.com/holiman/uint256"
)

const (
	// PrecisionDecimals is the scale of every USD amount and of the health factor.
	PrecisionDecimals = 18
	// MaxDecimals is the largest power of ten representable in 256 bits.
	MaxDecimals = 77
	// MaxAmountLength bounds the decimal strings ParseAmount accepts.
	MaxAmountLength = 2 * (MaxDecimals + 1)

	// LiquidationThreshold requires 150% over-collateralization.
	LiquidationThreshold = 150
	// LiquidationPrecision is the denominator of LiquidationThreshold and LiquidationBonus.
	LiquidationPrecision = 100
	// LiquidationBonus is the 10% collateral premium paid to liquidators.
	LiquidationBonus = 10
)

var (
	ErrOverflow            = errors.New("fixed-point overflow")
	ErrDivisionByZero      = errors.New("division by zero")
	ErrUnsupportedDecimals = errors.New("unsupported decimal precision")
	ErrNegativeAmount      = errors.New("amount cannot be negative")
	ErrExcessPrecision     = errors.New("amount has more fractional digits than the asset supports")
	ErrAmountTooLong       = errors.New("amount string too long")
)

// pow10[i] == 10^i for i in [0, MaxDecimals].
var pow10 [MaxDecimals + 1]*uint256.Int

func init() {
	pow10[0] = uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := 1; i <= MaxDecimals; i++ {
		pow10[i] = new(uint256.Int).Mul(pow10[i-1], ten)
	}
}

// Pow10 returns a fresh copy of 10^n.
func Pow10(n int) (*uint256.Int, error) {
	if n < 0 || n > MaxDecimals {
		return nil, ErrUnsupportedDecimals
	}
	return new(uint256.Int).Set(pow10[n]), nil
}

// Precision is 1e18.
func Precision() *uint256.Int {
	return new(uint256.Int).Set(pow10[PrecisionDecimals])
}

// MinHealthFactor is the solvency boundary (1e18).
func MinHealthFactor() *uint256.Int {
	return Precision()
}

// MaxHealthFactor is the sentinel reported for positions without debt.
func MaxHealthFactor() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}

// IsMaxHealthFactor reports whether hf is the no-debt sentinel.
func IsMaxHealthFactor(hf *uint256.Int) bool {
	return hf != nil && hf.Eq(MaxHealthFactor())
}

// mul returns a*b or ErrOverflow.
func mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDiv returns floor(a*b/d), failing on overflow of the product.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	p, err := mul(a, b)
	if err != nil {
		return nil, err
	}
	return p.Div(p, d), nil
}

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}
