package engine

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

// balanceOverride substitutes a prospective balance for one asset during valuation.
type balanceOverride struct {
	asset  string
	amount *uint256.Int
}

// collateralValue sums the USD value of every admitted asset the user could hold, in
// admission order. Every feed is consulted, so one bad feed fails the whole valuation.
// Caller holds the lock.
func (e *Engine) collateralValue(ctx context.Context, user domain.Address, overrides ...balanceOverride) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, a := range e.registry.All() {
		bal := e.collateral.BalanceOf(user, a.ID)
		for _, o := range overrides {
			if o.asset == a.ID {
				bal = o.amount
			}
		}

		usd, err := e.oracle.GetUsdValue(ctx, a.ID, bal)
		if err != nil {
			return nil, err
		}
		if total, err = calc.Add(total, usd); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// healthFactor values the user's position against debt. Caller holds the lock.
func (e *Engine) healthFactor(ctx context.Context, user domain.Address, debt *uint256.Int, overrides ...balanceOverride) (*uint256.Int, error) {
	if debt.IsZero() {
		return calc.MaxHealthFactor(), nil
	}
	coll, err := e.collateralValue(ctx, user, overrides...)
	if err != nil {
		return nil, err
	}
	return calc.HealthFactor(coll, debt)
}

// requireSolvent fails with ErrHealthFactorTooLow when the prospective position would be
// liquidatable.
func (e *Engine) requireSolvent(ctx context.Context, user domain.Address, debt *uint256.Int, overrides ...balanceOverride) error {
	hf, err := e.healthFactor(ctx, user, debt, overrides...)
	if err != nil {
		return err
	}
	if !calc.IsSolvent(hf) {
		return &HealthFactorError{Err: ErrHealthFactorTooLow, HealthFactor: hf}
	}
	return nil
}
