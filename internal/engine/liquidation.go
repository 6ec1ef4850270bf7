package engine

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

// LiquidationResult reports what a liquidation actually moved.
type LiquidationResult struct {
	DebtCovered *uint256.Int
	// SeizeUsd is debt covered plus bonus.
	SeizeUsd *uint256.Int
	// Computed is the seizure before capping at the user's balance.
	Computed           *uint256.Int
	CollateralSeized   *uint256.Int
	HealthFactorBefore *uint256.Int
}

// Capped reports whether the user held less than the bonus-adjusted seizure.
func (r LiquidationResult) Capped() bool {
	return r.CollateralSeized.Lt(r.Computed)
}

// Liquidate repays debtToCover of user's debt with the liquidator's tokens and moves
// the equivalent collateral plus a 10% bonus to the liquidator's ledger balance. The
// seizure is capped at what the user holds of asset. Only positions below the minimum
// health factor can be liquidated.
func (e *Engine) Liquidate(ctx context.Context, liquidator, user domain.Address, asset string, debtToCover *uint256.Int) (res LiquidationResult, err error) {
	if _, err := e.requireAsset(asset); err != nil {
		return res, err
	}
	if debtToCover == nil || debtToCover.IsZero() {
		return res, ErrInvalidDebtAmount
	}
	if err := requireAddress(liquidator, user); err != nil {
		return res, err
	}

	ctx, end, err := e.begin(ctx, opLiquidate)
	if err != nil {
		return res, err
	}
	defer end(&err)

	held, err := e.issuer.BalanceOf(ctx, liquidator)
	if err != nil {
		return res, fmt.Errorf("%w: balance of %s: %w", ErrIssuerUnavailable, liquidator, err)
	}
	if held.Lt(debtToCover) {
		return res, ErrInsufficientIssuanceBalance
	}

	debt := e.debt.DebtOf(user)
	if debt.Lt(debtToCover) {
		return res, fmt.Errorf("%w: covers %s of %s", ErrInvalidDebtAmount, debtToCover.Dec(), debt.Dec())
	}

	startHF, err := e.healthFactor(ctx, user, debt)
	if err != nil {
		return res, err
	}
	if calc.IsSolvent(startHF) {
		return res, &HealthFactorError{Err: ErrHealthFactorOk, HealthFactor: startHF}
	}

	// Price the seizure before any side effect so an oracle failure aborts cleanly.
	seizeUsd, _, err := calc.LiquidationSeizeUsd(debtToCover)
	if err != nil {
		return res, err
	}
	computed, err := e.oracle.GetAssetAmountForUsd(ctx, asset, seizeUsd)
	if err != nil {
		return res, err
	}
	seized := calc.CapSeizure(computed, e.collateral.BalanceOf(user, asset))

	if e.requireHealthImprovement {
		if err := e.requireImprovement(ctx, user, asset, debt, debtToCover, seized, startHF); err != nil {
			return res, err
		}
	}

	// The ledger writes below must not fail once tokens are burned.
	if _, err := calc.Add(e.collateral.BalanceOf(liquidator, asset), seized); err != nil {
		return res, err
	}

	if err := e.pullAndBurn(ctx, liquidator, debtToCover); err != nil {
		return res, err
	}
	if err := e.debt.Decrease(user, debtToCover); err != nil {
		e.logger.Errorw("Liquidation burned without debt reduction", "user", user, "liquidator", liquidator,
			"debt_covered", debtToCover.Dec(), "error", err)
		return res, err
	}
	if err := e.collateral.Move(user, liquidator, asset, seized); err != nil {
		e.logger.Errorw("Liquidation burned without seizure", "user", user, "liquidator", liquidator,
			"asset", asset, "seized", seized.Dec(), "error", err)
		return res, err
	}

	res = LiquidationResult{
		DebtCovered:        new(uint256.Int).Set(debtToCover),
		SeizeUsd:           seizeUsd,
		Computed:           computed,
		CollateralSeized:   seized,
		HealthFactorBefore: startHF,
	}

	info, _ := e.registry.Get(asset)
	e.logger.Infow("Position liquidated",
		"user", user,
		"liquidator", liquidator,
		"asset", asset,
		"debt_covered", debtToCover.Dec(),
		"collateral_seized", seized.Dec(),
		"capped", res.Capped(),
		"health_factor_before", calc.FormatHealthFactor(startHF),
	)
	e.recorder.RecordLiquidation(ctx, asset,
		calc.ToDecimal(debtToCover, calc.PrecisionDecimals).InexactFloat64(),
		calc.ToDecimal(seized, info.Decimals).InexactFloat64())
	e.emit(ctx, domain.Event{
		Type:   domain.EventLiquidated,
		User:   user,
		Actor:  liquidator,
		Asset:  asset,
		Amount: seized.Dec(),
		Debt:   debtToCover.Dec(),
	})
	return res, nil
}

func (e *Engine) requireImprovement(ctx context.Context, user domain.Address, asset string, debt, debtToCover, seized, startHF *uint256.Int) error {
	remainingDebt := new(uint256.Int).Sub(debt, debtToCover)
	bal := e.collateral.BalanceOf(user, asset)
	endHF, err := e.healthFactor(ctx, user, remainingDebt, balanceOverride{asset: asset, amount: bal.Sub(bal, seized)})
	if err != nil {
		return err
	}
	if !endHF.Gt(startHF) {
		return &HealthFactorError{Err: ErrHealthFactorNotImproved, HealthFactor: endHF}
	}
	return nil
}
