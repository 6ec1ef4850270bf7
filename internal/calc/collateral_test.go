package calc

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

func TestUsdValue(t *testing.T) {
	tests := []struct {
		name          string
		price         *uint256.Int
		priceDecimals uint8
		amount        *uint256.Int
		assetDecimals uint8
		expected      *uint256.Int
	}{
		{
			name:          "18 decimal asset, 8 decimal feed",
			price:         u("200000000000"), // $2000
			priceDecimals: 8,
			amount:        u("10000000000000000000"), // 10 units
			assetDecimals: 18,
			expected:      u("20000000000000000000000"), // $20000
		},
		{
			name:          "6 decimal asset",
			price:         u("100000000"), // $1
			priceDecimals: 8,
			amount:        u("5000000"), // 5 units
			assetDecimals: 6,
			expected:      u("5000000000000000000"),
		},
		{
			name:          "8 decimal asset",
			price:         u("3000000000000"), // $30000
			priceDecimals: 8,
			amount:        u("100000000"), // 1 unit
			assetDecimals: 8,
			expected:      u("30000000000000000000000"),
		},
		{
			name:          "18 decimal feed",
			price:         u("2000000000000000000000"),
			priceDecimals: 18,
			amount:        u("1000000000000000000"),
			assetDecimals: 18,
			expected:      u("2000000000000000000000"),
		},
		{
			name:          "zero amount",
			price:         u("200000000000"),
			priceDecimals: 8,
			amount:        uint256.NewInt(0),
			assetDecimals: 18,
			expected:      uint256.NewInt(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := UsdValue(tt.price, tt.priceDecimals, tt.amount, tt.assetDecimals)
			require.NoError(t, err)
			assert.True(t, tt.expected.Eq(result), "expected %s, got %s", tt.expected.Dec(), result.Dec())
		})
	}
}

func TestUsdValueRejectsFeedAbove18Decimals(t *testing.T) {
	_, err := UsdValue(u("1"), 19, u("1"), 18)
	assert.ErrorIs(t, err, ErrUnsupportedDecimals)
}

func TestUsdValueOverflow(t *testing.T) {
	huge := new(uint256.Int).SetAllOne()
	_, err := UsdValue(huge, 8, u("2"), 18)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestAssetAmountForUsd(t *testing.T) {
	// $100 at $2000 per unit = 0.05 units
	amount, err := AssetAmountForUsd(u("200000000000"), 8, u("100000000000000000000"), 18)
	require.NoError(t, err)
	assert.Equal(t, "50000000000000000", amount.Dec())

	// rounds down to zero for dust
	amount, err = AssetAmountForUsd(u("200000000000"), 8, u("1"), 18)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())

	_, err = AssetAmountForUsd(uint256.NewInt(0), 8, u("1"), 18)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestRoundTripNeverExceedsInput(t *testing.T) {
	amounts := []string{"1", "7", "999999999999999999", "1234567890123456789012", "10000000000000000000"}
	prices := []struct {
		price    string
		decimals uint8
	}{
		{"200000000000", 8},
		{"133700000000", 8},
		{"99999999", 8},
		{"1000000000000000000", 18},
	}

	for _, p := range prices {
		for _, a := range amounts {
			amount := u(a)
			usd, err := UsdValue(u(p.price), p.decimals, amount, 18)
			require.NoError(t, err)
			back, err := AssetAmountForUsd(u(p.price), p.decimals, usd, 18)
			require.NoError(t, err)
			assert.False(t, back.Gt(amount), "round trip of %s at %s gave %s", a, p.price, back.Dec())
		}
	}
}

func TestHealthFactor(t *testing.T) {
	collateral := u("20000000000000000000000") // $20000

	hf, err := HealthFactor(collateral, u("13333000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "1000025000625015625", hf.Dec())
	assert.True(t, IsSolvent(hf))

	hf, err = HealthFactor(collateral, u("13334000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "999950002499875006", hf.Dec())
	assert.False(t, IsSolvent(hf))
}

func TestHealthFactorZeroDebtIsSentinel(t *testing.T) {
	hf, err := HealthFactor(u("5"), uint256.NewInt(0))
	require.NoError(t, err)
	assert.True(t, IsMaxHealthFactor(hf))
	assert.True(t, IsSolvent(hf))
	assert.Equal(t, "inf", FormatHealthFactor(hf))
}

func TestHealthFactorZeroCollateral(t *testing.T) {
	hf, err := HealthFactor(uint256.NewInt(0), u("1"))
	require.NoError(t, err)
	assert.True(t, hf.IsZero())
}

func TestLiquidationSeizeUsd(t *testing.T) {
	total, bonus, err := LiquidationSeizeUsd(u("1000000000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000000", bonus.Dec())
	assert.Equal(t, "1100000000000000000000", total.Dec())
}

func TestCapSeizure(t *testing.T) {
	assert.Equal(t, "5", CapSeizure(u("5"), u("9")).Dec())
	assert.Equal(t, "9", CapSeizure(u("12"), u("9")).Dec())
}
