package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

// Mint issues amount of stablecoin to the user. The health factor is checked against the
// prospective debt before anything is committed.
func (e *Engine) Mint(ctx context.Context, user domain.Address, amount *uint256.Int) (err error) {
	if err := requireAmount(amount); err != nil {
		return err
	}
	if err := requireAddress(user); err != nil {
		return err
	}

	ctx, end, err := e.begin(ctx, opMint)
	if err != nil {
		return err
	}
	defer end(&err)

	next, err := calc.Add(e.debt.DebtOf(user), amount)
	if err != nil {
		return err
	}
	if err := e.requireSolvent(ctx, user, next); err != nil {
		return err
	}
	return e.mint(ctx, user, amount)
}

// Burn repays amount of the user's debt with the user's own tokens.
func (e *Engine) Burn(ctx context.Context, user domain.Address, amount *uint256.Int) (err error) {
	if err := requireAmount(amount); err != nil {
		return err
	}
	if err := requireAddress(user); err != nil {
		return err
	}

	ctx, end, err := e.begin(ctx, opBurn)
	if err != nil {
		return err
	}
	defer end(&err)

	return e.burn(ctx, user, user, amount)
}

func (e *Engine) mint(ctx context.Context, user domain.Address, amount *uint256.Int) error {
	before := e.debt.DebtOf(user)
	if err := e.debt.Increase(user, amount); err != nil {
		return err
	}

	ok, err := e.issuer.Mint(ctx, user, amount)
	if err := collaboratorFailure(ErrMintFailed, "mint", ok, err); err != nil {
		e.debt.Set(user, before)
		return err
	}

	e.logger.Debugw("Debt minted", "user", user, "amount", amount.Dec())
	e.emit(ctx, domain.Event{Type: domain.EventMinted, User: user, Actor: user, Debt: amount.Dec()})
	return nil
}

// burn reduces onBehalfOf's debt by amount, paid with payer's tokens. Nothing reaches the
// issuance authority when amount exceeds the recorded debt.
func (e *Engine) burn(ctx context.Context, onBehalfOf, payer domain.Address, amount *uint256.Int) error {
	if e.debt.DebtOf(onBehalfOf).Lt(amount) {
		return ErrBurnExceedsDebt
	}
	if err := e.pullAndBurn(ctx, payer, amount); err != nil {
		return err
	}
	if err := e.debt.Decrease(onBehalfOf, amount); err != nil {
		return err
	}

	e.logger.Debugw("Debt burned", "user", onBehalfOf, "payer", payer, "amount", amount.Dec())
	e.emit(ctx, domain.Event{Type: domain.EventBurned, User: onBehalfOf, Actor: payer, Debt: amount.Dec()})
	return nil
}

// pullAndBurn moves amount from payer to the engine and destroys it. A failed burn hands
// the pulled tokens back to payer.
func (e *Engine) pullAndBurn(ctx context.Context, payer domain.Address, amount *uint256.Int) error {
	ok, err := e.issuer.Pull(ctx, payer, amount)
	if err := collaboratorFailure(ErrTransferFailed, "pull", ok, err); err != nil {
		return err
	}

	burnErr := e.issuer.Burn(ctx, amount)
	if burnErr == nil {
		return nil
	}

	burnErr = fmt.Errorf("%w: %w", ErrBurnFailed, burnErr)
	ok, err = e.issuer.Transfer(ctx, payer, amount)
	if refundErr := collaboratorFailure(ErrTransferFailed, "refund", ok, err); refundErr != nil {
		e.logger.Errorw("Failed to refund pulled tokens after burn failure",
			"payer", payer, "amount", amount.Dec(), "error", refundErr)
		return errors.Join(burnErr, refundErr)
	}
	return burnErr
}
