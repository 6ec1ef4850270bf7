// Package ledger holds the engine's authoritative balances. The ledgers are not safe for
// concurrent use; the engine serialises access to them.
package ledger

import (
	"errors"
	"sort"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

var (
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrBurnExceedsDebt        = errors.New("amount exceeds recorded debt")
)

// CollateralLedger records collateral[user][asset] in native units. Missing entries read
// as zero and entries are never removed.
type CollateralLedger struct {
	balances map[domain.Address]map[string]*uint256.Int
}

func NewCollateralLedger() *CollateralLedger {
	return &CollateralLedger{balances: make(map[domain.Address]map[string]*uint256.Int)}
}

// BalanceOf returns a copy of the user's balance of asset.
func (l *CollateralLedger) BalanceOf(user domain.Address, asset string) *uint256.Int {
	if b, ok := l.balances[user][asset]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Credit adds amount to the user's balance.
func (l *CollateralLedger) Credit(user domain.Address, asset string, amount *uint256.Int) error {
	next, err := calc.Add(l.BalanceOf(user, asset), amount)
	if err != nil {
		return err
	}
	l.set(user, asset, next)
	return nil
}

// Debit removes amount from the user's balance.
func (l *CollateralLedger) Debit(user domain.Address, asset string, amount *uint256.Int) error {
	cur := l.BalanceOf(user, asset)
	if cur.Lt(amount) {
		return ErrInsufficientCollateral
	}
	l.set(user, asset, cur.Sub(cur, amount))
	return nil
}

// Set overwrites the user's balance. Used to restore a snapshot after a failed operation.
func (l *CollateralLedger) Set(user domain.Address, asset string, amount *uint256.Int) {
	l.set(user, asset, new(uint256.Int).Set(amount))
}

// Move transfers amount between two users without leaving the ledger. Both balances
// are computed before either is written, so a failed move changes nothing.
func (l *CollateralLedger) Move(from, to domain.Address, asset string, amount *uint256.Int) error {
	src := l.BalanceOf(from, asset)
	if src.Lt(amount) {
		return ErrInsufficientCollateral
	}
	if from == to {
		return nil
	}
	dst, err := calc.Add(l.BalanceOf(to, asset), amount)
	if err != nil {
		return err
	}
	l.set(from, asset, src.Sub(src, amount))
	l.set(to, asset, dst)
	return nil
}

// Assets returns the assets the user has ever held, sorted by ID.
func (l *CollateralLedger) Assets(user domain.Address) []string {
	out := make([]string, 0, len(l.balances[user]))
	for a := range l.balances[user] {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Total sums every user's balance of asset.
func (l *CollateralLedger) Total(asset string) *uint256.Int {
	total := new(uint256.Int)
	for _, per := range l.balances {
		if b, ok := per[asset]; ok {
			total.Add(total, b)
		}
	}
	return total
}

func (l *CollateralLedger) set(user domain.Address, asset string, v *uint256.Int) {
	per, ok := l.balances[user]
	if !ok {
		per = make(map[string]*uint256.Int)
		l.balances[user] = per
	}
	per[asset] = v
}
