package calc

import (
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDecimal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		decimals uint8
		expected string
		err      error
	}{
		{name: "whole units", input: "10", decimals: 18, expected: "10000000000000000000"},
		{name: "fractional", input: "1.5", decimals: 6, expected: "1500000"},
		{name: "excess precision", input: "0.0000001", decimals: 6, err: ErrExcessPrecision},
		{name: "negative", input: "-1", decimals: 18, err: ErrNegativeAmount},
		{name: "exponent notation", input: "1.5e3", decimals: 6, expected: "1500000000"},
		{name: "zero with huge exponent", input: "0e5000000", decimals: 18, expected: "0"},
		{name: "huge positive exponent", input: "1e5000000", decimals: 18, err: ErrOverflow},
		{name: "just past uint256", input: "1e60", decimals: 18, err: ErrOverflow},
		{name: "huge negative exponent", input: "1e-5000000", decimals: 18, err: ErrExcessPrecision},
		{name: "trailing zeros cancel negative exponent", input: "1000e-21", decimals: 18, expected: "1"},
		{name: "too long", input: "1" + strings.Repeat("0", MaxAmountLength), decimals: 0, err: ErrAmountTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseAmount(tt.input, tt.decimals)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Dec())
		})
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	_, err := ParseAmount("ten", 18)
	assert.Error(t, err)
}

func TestToDecimal(t *testing.T) {
	d := ToDecimal(uint256.MustFromDecimal("1500000"), 6)
	assert.True(t, decimal.NewFromFloat(1.5).Equal(d), "got %s", d)
	assert.True(t, ToDecimal(nil, 18).IsZero())
}

func TestParseAmountBoundsExponentWork(t *testing.T) {
	start := time.Now()
	for _, in := range []string{"1e5000000", "1e-5000000", "9e2147483647", "9e-2147483648"} {
		_, err := ParseAmount(in, 18)
		assert.Error(t, err, in)
	}
	assert.Less(t, time.Since(start), time.Second)
}
