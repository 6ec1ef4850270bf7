package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice domain.Address = "alice"
	bob   domain.Address = "bob"
)

func TestCollateralMissingEntryIsZero(t *testing.T) {
	l := NewCollateralLedger()
	assert.True(t, l.BalanceOf(alice, "WETH").IsZero())
	assert.Empty(t, l.Assets(alice))
}

func TestCollateralCreditDebit(t *testing.T) {
	l := NewCollateralLedger()
	require.NoError(t, l.Credit(alice, "WETH", uint256.NewInt(10)))
	require.NoError(t, l.Credit(alice, "WETH", uint256.NewInt(5)))
	assert.Equal(t, uint64(15), l.BalanceOf(alice, "WETH").Uint64())

	require.NoError(t, l.Debit(alice, "WETH", uint256.NewInt(15)))
	assert.True(t, l.BalanceOf(alice, "WETH").IsZero())
	// zero balance entries survive
	assert.Equal(t, []string{"WETH"}, l.Assets(alice))

	err := l.Debit(alice, "WETH", uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientCollateral)
}

func TestCollateralBalanceOfReturnsCopy(t *testing.T) {
	l := NewCollateralLedger()
	require.NoError(t, l.Credit(alice, "WETH", uint256.NewInt(10)))

	b := l.BalanceOf(alice, "WETH")
	b.SetUint64(999)
	assert.Equal(t, uint64(10), l.BalanceOf(alice, "WETH").Uint64())
}

func TestCollateralCreditOverflow(t *testing.T) {
	l := NewCollateralLedger()
	l.Set(alice, "WETH", calc.MaxHealthFactor())
	err := l.Credit(alice, "WETH", uint256.NewInt(1))
	assert.ErrorIs(t, err, calc.ErrOverflow)
	assert.True(t, l.BalanceOf(alice, "WETH").Eq(calc.MaxHealthFactor()))
}

func TestCollateralMoveConservesTotal(t *testing.T) {
	l := NewCollateralLedger()
	require.NoError(t, l.Credit(alice, "WETH", uint256.NewInt(100)))
	require.NoError(t, l.Credit(bob, "WETH", uint256.NewInt(7)))

	require.NoError(t, l.Move(alice, bob, "WETH", uint256.NewInt(40)))
	assert.Equal(t, uint64(60), l.BalanceOf(alice, "WETH").Uint64())
	assert.Equal(t, uint64(47), l.BalanceOf(bob, "WETH").Uint64())
	assert.Equal(t, uint64(107), l.Total("WETH").Uint64())

	err := l.Move(alice, bob, "WETH", uint256.NewInt(61))
	assert.ErrorIs(t, err, ErrInsufficientCollateral)
	assert.Equal(t, uint64(60), l.BalanceOf(alice, "WETH").Uint64())
}

func TestCollateralMoveOverflowChangesNothing(t *testing.T) {
	l := NewCollateralLedger()
	require.NoError(t, l.Credit(alice, "WETH", uint256.NewInt(100)))
	l.Set(bob, "WETH", calc.MaxHealthFactor())

	err := l.Move(alice, bob, "WETH", uint256.NewInt(1))
	assert.ErrorIs(t, err, calc.ErrOverflow)
	assert.Equal(t, uint64(100), l.BalanceOf(alice, "WETH").Uint64())
	assert.True(t, l.BalanceOf(bob, "WETH").Eq(calc.MaxHealthFactor()))
}

func TestCollateralMoveToSelf(t *testing.T) {
	l := NewCollateralLedger()
	require.NoError(t, l.Credit(alice, "WETH", uint256.NewInt(100)))
	require.NoError(t, l.Move(alice, alice, "WETH", uint256.NewInt(40)))
	assert.Equal(t, uint64(100), l.BalanceOf(alice, "WETH").Uint64())
}

func TestDebtIncreaseDecrease(t *testing.T) {
	l := NewDebtLedger()
	assert.True(t, l.DebtOf(alice).IsZero())

	require.NoError(t, l.Increase(alice, uint256.NewInt(100)))
	require.NoError(t, l.Decrease(alice, uint256.NewInt(30)))
	assert.Equal(t, uint64(70), l.DebtOf(alice).Uint64())

	err := l.Decrease(alice, uint256.NewInt(71))
	assert.ErrorIs(t, err, ErrBurnExceedsDebt)
	assert.Equal(t, uint64(70), l.DebtOf(alice).Uint64())
}

func TestDebtors(t *testing.T) {
	l := NewDebtLedger()
	require.NoError(t, l.Increase(bob, uint256.NewInt(1)))
	require.NoError(t, l.Increase(alice, uint256.NewInt(2)))
	require.NoError(t, l.Increase("carol", uint256.NewInt(3)))
	require.NoError(t, l.Decrease("carol", uint256.NewInt(3)))

	assert.Equal(t, []domain.Address{alice, bob}, l.Debtors())
	assert.Equal(t, uint64(3), l.Total().Uint64())
}
