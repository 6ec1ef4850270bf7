package calc

import (
	"github.com/holiman/uint256"
)

// UsdValue converts a native asset amount to 18-decimal USD:
//
//	price * 10^(18-priceDecimals) * amount / 10^assetDecimals
//
// Both multiplications happen before the single division.
func UsdValue(price *uint256.Int, priceDecimals uint8, amount *uint256.Int, assetDecimals uint8) (*uint256.Int, error) {
	if priceDecimals > PrecisionDecimals || assetDecimals > MaxDecimals {
		return nil, ErrUnsupportedDecimals
	}
	if amount.IsZero() {
		return new(uint256.Int), nil
	}

	scaled, err := mul(price, pow10[PrecisionDecimals-int(priceDecimals)])
	if err != nil {
		return nil, err
	}
	value, err := mul(scaled, amount)
	if err != nil {
		return nil, err
	}
	return value.Div(value, pow10[assetDecimals]), nil
}

// AssetAmountForUsd is the floor inverse of UsdValue:
//
//	usd * 10^(assetDecimals+priceDecimals) / (price * 10^18)
func AssetAmountForUsd(price *uint256.Int, priceDecimals uint8, usd *uint256.Int, assetDecimals uint8) (*uint256.Int, error) {
	if priceDecimals > PrecisionDecimals {
		return nil, ErrUnsupportedDecimals
	}
	exp := int(assetDecimals) + int(priceDecimals)
	if exp > MaxDecimals {
		return nil, ErrUnsupportedDecimals
	}
	if price.IsZero() {
		return nil, ErrDivisionByZero
	}

	num, err := mul(usd, pow10[exp])
	if err != nil {
		return nil, err
	}
	den, err := mul(price, pow10[PrecisionDecimals])
	if err != nil {
		return nil, err
	}
	return num.Div(num, den), nil
}

// AdjustedCollateral discounts a USD collateral value by the liquidation threshold.
func AdjustedCollateral(collateralUsd *uint256.Int) (*uint256.Int, error) {
	return MulDiv(collateralUsd, uint256.NewInt(LiquidationPrecision), uint256.NewInt(LiquidationThreshold))
}

// HealthFactor computes (collateralUsd * 100 / 150) * 1e18 / debt. A zero debt yields
// MaxHealthFactor.
func HealthFactor(collateralUsd, debt *uint256.Int) (*uint256.Int, error) {
	if debt.IsZero() {
		return MaxHealthFactor(), nil
	}
	adjusted, err := AdjustedCollateral(collateralUsd)
	if err != nil {
		return nil, err
	}
	return MulDiv(adjusted, pow10[PrecisionDecimals], debt)
}

// IsSolvent reports hf >= 1e18.
func IsSolvent(hf *uint256.Int) bool {
	return !hf.Lt(pow10[PrecisionDecimals])
}

// LiquidationSeizeUsd returns debtToCover plus the liquidation bonus, in USD.
func LiquidationSeizeUsd(debtToCover *uint256.Int) (total, bonus *uint256.Int, err error) {
	bonus, err = MulDiv(debtToCover, uint256.NewInt(LiquidationBonus), uint256.NewInt(LiquidationPrecision))
	if err != nil {
		return nil, nil, err
	}
	total, err = Add(debtToCover, bonus)
	if err != nil {
		return nil, nil, err
	}
	return total, bonus, nil
}

// CapSeizure limits a computed seizure to what the position actually holds.
func CapSeizure(computed, available *uint256.Int) *uint256.Int {
	if computed.Gt(available) {
		return new(uint256.Int).Set(available)
	}
	return new(uint256.Int).Set(computed)
}
