package engine

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

// Params are the fixed risk parameters.
type Params struct {
	LiquidationThreshold uint64
	LiquidationPrecision uint64
	LiquidationBonus     uint64
	Precision            *uint256.Int
	MinHealthFactor      *uint256.Int
}

func (e *Engine) Params() Params {
	return Params{
		LiquidationThreshold: calc.LiquidationThreshold,
		LiquidationPrecision: calc.LiquidationPrecision,
		LiquidationBonus:     calc.LiquidationBonus,
		Precision:            calc.Precision(),
		MinHealthFactor:      calc.MinHealthFactor(),
	}
}

// CollateralBalanceOf returns the user's ledger balance of asset, zero when unknown.
func (e *Engine) CollateralBalanceOf(ctx context.Context, user domain.Address, asset string) *uint256.Int {
	_, done := e.view(ctx)
	defer done()
	return e.collateral.BalanceOf(user, asset)
}

// DebtOf returns the user's outstanding debt, zero when unknown.
func (e *Engine) DebtOf(ctx context.Context, user domain.Address) *uint256.Int {
	_, done := e.view(ctx)
	defer done()
	return e.debt.DebtOf(user)
}

// HealthFactorOf returns the user's current health factor, or calc.MaxHealthFactor when the
// user has no debt.
func (e *Engine) HealthFactorOf(ctx context.Context, user domain.Address) (*uint256.Int, error) {
	ctx, done := e.view(ctx)
	defer done()
	return e.healthFactor(ctx, user, e.debt.DebtOf(user))
}

// TotalCollateralValueUsd values all of the user's collateral at current prices.
func (e *Engine) TotalCollateralValueUsd(ctx context.Context, user domain.Address) (*uint256.Int, error) {
	ctx, done := e.view(ctx)
	defer done()
	return e.collateralValue(ctx, user)
}

// AccountInformation returns the user's debt and collateral value from one consistent
// snapshot.
func (e *Engine) AccountInformation(ctx context.Context, user domain.Address) (debt, collateralUsd *uint256.Int, err error) {
	ctx, done := e.view(ctx)
	defer done()

	collateralUsd, err = e.collateralValue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return e.debt.DebtOf(user), collateralUsd, nil
}

func (e *Engine) GetUsdValue(ctx context.Context, asset string, amount *uint256.Int) (*uint256.Int, error) {
	if _, err := e.requireAsset(asset); err != nil {
		return nil, err
	}
	return e.oracle.GetUsdValue(ctx, asset, amount)
}

func (e *Engine) GetAssetAmountForUsd(ctx context.Context, asset string, usd *uint256.Int) (*uint256.Int, error) {
	if _, err := e.requireAsset(asset); err != nil {
		return nil, err
	}
	return e.oracle.GetAssetAmountForUsd(ctx, asset, usd)
}

// CollateralAssets lists the admitted assets in admission order.
func (e *Engine) CollateralAssets() []domain.Asset {
	return e.registry.All()
}

// AssetFeed returns the price feed identifier of asset.
func (e *Engine) AssetFeed(asset string) (string, bool) {
	info, ok := e.registry.Get(asset)
	return info.Feed, ok
}

// Issuer returns the identifier of the issuance authority.
func (e *Engine) Issuer() string {
	return e.issuerID
}

// Debtors lists users with outstanding debt.
func (e *Engine) Debtors(ctx context.Context) []domain.Address {
	_, done := e.view(ctx)
	defer done()
	return e.debt.Debtors()
}

// TotalDebt is the sum of all outstanding debt.
func (e *Engine) TotalDebt(ctx context.Context) *uint256.Int {
	_, done := e.view(ctx)
	defer done()
	return e.debt.Total()
}

// TotalCollateral is the ledger total of asset across all users.
func (e *Engine) TotalCollateral(ctx context.Context, asset string) *uint256.Int {
	_, done := e.view(ctx)
	defer done()
	return e.collateral.Total(asset)
}
