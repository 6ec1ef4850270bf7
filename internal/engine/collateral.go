package engine

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

const (
	opDeposit        = "deposit"
	opRedeem         = "redeem"
	opMint           = "mint"
	opBurn           = "burn"
	opLiquidate      = "liquidate"
	opDepositAndMint = "deposit_and_mint"
	opRedeemForBurn  = "redeem_for_burn"
)

// Deposit credits amount of asset to the user and pulls the tokens into custody. The
// credit is rolled back if the custodian does not confirm the transfer.
func (e *Engine) Deposit(ctx context.Context, user domain.Address, asset string, amount *uint256.Int) (err error) {
	if err := requireAmount(amount); err != nil {
		return err
	}
	if _, err := e.requireAsset(asset); err != nil {
		return err
	}
	if err := requireAddress(user); err != nil {
		return err
	}

	ctx, end, err := e.begin(ctx, opDeposit)
	if err != nil {
		return err
	}
	defer end(&err)

	return e.deposit(ctx, user, asset, amount)
}

// Redeem releases amount of asset from custody back to the user. A user with debt must
// stay at or above the minimum health factor afterwards.
func (e *Engine) Redeem(ctx context.Context, user domain.Address, asset string, amount *uint256.Int) (err error) {
	if err := requireAmount(amount); err != nil {
		return err
	}
	if _, err := e.requireAsset(asset); err != nil {
		return err
	}
	if err := requireAddress(user); err != nil {
		return err
	}

	ctx, end, err := e.begin(ctx, opRedeem)
	if err != nil {
		return err
	}
	defer end(&err)

	remaining, err := e.remainingAfterRedeem(user, asset, amount)
	if err != nil {
		return err
	}
	if err := e.requireSolvent(ctx, user, e.debt.DebtOf(user), balanceOverride{asset: asset, amount: remaining}); err != nil {
		return err
	}
	return e.withdraw(ctx, user, asset, amount)
}

func (e *Engine) deposit(ctx context.Context, user domain.Address, asset string, amount *uint256.Int) error {
	before := e.collateral.BalanceOf(user, asset)
	if err := e.collateral.Credit(user, asset, amount); err != nil {
		return err
	}

	ok, err := e.custodian.TransferIn(ctx, asset, user, amount)
	if err := collaboratorFailure(ErrTransferFailed, "transfer in", ok, err); err != nil {
		e.collateral.Set(user, asset, before)
		return err
	}

	e.logger.Debugw("Collateral deposited", "user", user, "asset", asset, "amount", amount.Dec())
	e.emit(ctx, domain.Event{Type: domain.EventDeposited, User: user, Actor: user, Asset: asset, Amount: amount.Dec()})
	return nil
}

func (e *Engine) remainingAfterRedeem(user domain.Address, asset string, amount *uint256.Int) (*uint256.Int, error) {
	bal := e.collateral.BalanceOf(user, asset)
	if bal.Lt(amount) {
		return nil, ErrInsufficientCollateral
	}
	return bal.Sub(bal, amount), nil
}

// withdraw debits the ledger and releases the tokens. Solvency is the caller's concern.
func (e *Engine) withdraw(ctx context.Context, user domain.Address, asset string, amount *uint256.Int) error {
	before := e.collateral.BalanceOf(user, asset)
	if err := e.collateral.Debit(user, asset, amount); err != nil {
		return err
	}

	ok, err := e.custodian.TransferOut(ctx, asset, user, amount)
	if err := collaboratorFailure(ErrTransferFailed, "transfer out", ok, err); err != nil {
		e.collateral.Set(user, asset, before)
		return err
	}

	e.logger.Debugw("Collateral redeemed", "user", user, "asset", asset, "amount", amount.Dec())
	e.emit(ctx, domain.Event{Type: domain.EventRedeemed, User: user, Actor: user, Asset: asset, Amount: amount.Dec()})
	return nil
}
