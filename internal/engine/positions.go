package engine

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

// DepositAndMint deposits collateral and mints debt against it in one operation. The
// combined position is checked before any token moves. If the mint fails the deposit is
// returned to the user; should that refund also fail the collateral stays credited, so the
// ledger keeps matching custody.
func (e *Engine) DepositAndMint(ctx context.Context, user domain.Address, asset string, collateral, debt *uint256.Int) (err error) {
	if err := requireAmount(collateral); err != nil {
		return err
	}
	if err := requireAmount(debt); err != nil {
		return err
	}
	if _, err := e.requireAsset(asset); err != nil {
		return err
	}
	if err := requireAddress(user); err != nil {
		return err
	}

	ctx, end, err := e.begin(ctx, opDepositAndMint)
	if err != nil {
		return err
	}
	defer end(&err)

	nextColl, err := calc.Add(e.collateral.BalanceOf(user, asset), collateral)
	if err != nil {
		return err
	}
	nextDebt, err := calc.Add(e.debt.DebtOf(user), debt)
	if err != nil {
		return err
	}
	if err := e.requireSolvent(ctx, user, nextDebt, balanceOverride{asset: asset, amount: nextColl}); err != nil {
		return err
	}

	if err := e.deposit(ctx, user, asset, collateral); err != nil {
		return err
	}
	mintErr := e.mint(ctx, user, debt)
	if mintErr == nil {
		return nil
	}

	if refundErr := e.withdraw(ctx, user, asset, collateral); refundErr != nil {
		e.logger.Errorw("Deposit kept after failed mint", "user", user, "asset", asset,
			"amount", collateral.Dec(), "error", refundErr)
		return errors.Join(mintErr, refundErr)
	}
	return mintErr
}

// RedeemForBurn repays debt and withdraws collateral in one operation. Solvency is checked
// on the final position before any token moves. The burn is committed first; if the
// collateral transfer then fails the burned amount is minted back to the user and the debt
// restored. Should that re-issue also fail the repayment stands.
func (e *Engine) RedeemForBurn(ctx context.Context, user domain.Address, asset string, collateral, debt *uint256.Int) (err error) {
	if err := requireAmount(collateral); err != nil {
		return err
	}
	if err := requireAmount(debt); err != nil {
		return err
	}
	if _, err := e.requireAsset(asset); err != nil {
		return err
	}
	if err := requireAddress(user); err != nil {
		return err
	}

	ctx, end, err := e.begin(ctx, opRedeemForBurn)
	if err != nil {
		return err
	}
	defer end(&err)

	current := e.debt.DebtOf(user)
	if current.Lt(debt) {
		return ErrBurnExceedsDebt
	}
	remaining, err := e.remainingAfterRedeem(user, asset, collateral)
	if err != nil {
		return err
	}
	if err := e.requireSolvent(ctx, user, current.Sub(current, debt), balanceOverride{asset: asset, amount: remaining}); err != nil {
		return err
	}

	if err := e.burn(ctx, user, user, debt); err != nil {
		return err
	}
	withdrawErr := e.withdraw(ctx, user, asset, collateral)
	if withdrawErr == nil {
		return nil
	}

	if reissueErr := e.mint(ctx, user, debt); reissueErr != nil {
		e.logger.Errorw("Repayment kept after failed withdrawal", "user", user, "asset", asset,
			"debt", debt.Dec(), "error", reissueErr)
		return errors.Join(withdrawErr, reissueErr)
	}
	return withdrawErr
}
