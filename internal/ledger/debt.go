package ledger

import (
	"sort"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

// DebtLedger records the 18-decimal stablecoin debt of each user.
type DebtLedger struct {
	debts map[domain.Address]*uint256.Int
}

func NewDebtLedger() *DebtLedger {
	return &DebtLedger{debts: make(map[domain.Address]*uint256.Int)}
}

func (l *DebtLedger) DebtOf(user domain.Address) *uint256.Int {
	if d, ok := l.debts[user]; ok {
		return new(uint256.Int).Set(d)
	}
	return new(uint256.Int)
}

func (l *DebtLedger) Increase(user domain.Address, amount *uint256.Int) error {
	next, err := calc.Add(l.DebtOf(user), amount)
	if err != nil {
		return err
	}
	l.debts[user] = next
	return nil
}

func (l *DebtLedger) Decrease(user domain.Address, amount *uint256.Int) error {
	cur := l.DebtOf(user)
	if cur.Lt(amount) {
		return ErrBurnExceedsDebt
	}
	l.debts[user] = cur.Sub(cur, amount)
	return nil
}

// Set overwrites the user's debt.
func (l *DebtLedger) Set(user domain.Address, amount *uint256.Int) {
	l.debts[user] = new(uint256.Int).Set(amount)
}

// Debtors lists users with non-zero debt in lexical order.
func (l *DebtLedger) Debtors() []domain.Address {
	out := make([]domain.Address, 0, len(l.debts))
	for u, d := range l.debts {
		if !d.IsZero() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Total is the sum of all recorded debt.
func (l *DebtLedger) Total() *uint256.Int {
	total := new(uint256.Int)
	for _, d := range l.debts {
		total.Add(total, d)
	}
	return total
}
