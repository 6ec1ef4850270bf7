package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDepositAndMint(t *testing.T) {
	f := newFixture(t)
	f.allowAll()
	ctx := context.Background()

	require.NoError(t, f.engine.DepositAndMint(ctx, alice, weth, ether(10), ether(13333)))
	assert.True(t, f.engine.CollateralBalanceOf(ctx, alice, weth).Eq(ether(10)))
	assert.True(t, f.engine.DebtOf(ctx, alice).Eq(ether(13333)))
	assert.Equal(t, []domain.EventType{domain.EventDeposited, domain.EventMinted}, f.sink.types())
}

func TestDepositAndMintChecksCombinedPositionFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.DepositAndMint(ctx, alice, weth, ether(10), ether(13334))
	assert.ErrorIs(t, err, ErrHealthFactorTooLow)
	f.custodian.AssertNumberOfCalls(t, "TransferIn", 0)
	f.issuer.AssertNumberOfCalls(t, "Mint", 0)
}

func TestDepositAndMintRefundsOnMintFailure(t *testing.T) {
	f := newFixture(t)
	f.issuer.On("Mint", mock.Anything, alice, mock.Anything).Return(false, nil).Once()
	f.allowAll()
	ctx := context.Background()

	err := f.engine.DepositAndMint(ctx, alice, weth, ether(10), ether(100))
	assert.ErrorIs(t, err, ErrMintFailed)
	assert.True(t, f.engine.CollateralBalanceOf(ctx, alice, weth).IsZero())
	assert.True(t, f.engine.DebtOf(ctx, alice).IsZero())
	f.custodian.AssertCalled(t, "TransferOut", mock.Anything, weth, alice, ether(10))
}

func TestDepositAndMintKeepsDepositWhenRefundFails(t *testing.T) {
	f := newFixture(t)
	f.issuer.On("Mint", mock.Anything, alice, mock.Anything).Return(false, nil).Once()
	f.custodian.On("TransferOut", mock.Anything, weth, alice, mock.Anything).Return(false, errors.New("vault frozen")).Once()
	f.allowAll()
	ctx := context.Background()

	err := f.engine.DepositAndMint(ctx, alice, weth, ether(10), ether(100))
	assert.ErrorIs(t, err, ErrMintFailed)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.True(t, f.engine.CollateralBalanceOf(ctx, alice, weth).Eq(ether(10)))
	assert.True(t, f.engine.DebtOf(ctx, alice).IsZero())
}

func TestRedeemForBurn(t *testing.T) {
	f := newFixture(t)
	f.allowAll()
	ctx := context.Background()
	f.open(t, alice, ether(10), ether(13000))

	// redeeming half alone would break the position; repaying alongside keeps it safe
	err := f.engine.Redeem(ctx, alice, weth, ether(5))
	assert.ErrorIs(t, err, ErrHealthFactorTooLow)

	require.NoError(t, f.engine.RedeemForBurn(ctx, alice, weth, ether(5), ether(7000)))
	assert.True(t, f.engine.CollateralBalanceOf(ctx, alice, weth).Eq(ether(5)))
	assert.True(t, f.engine.DebtOf(ctx, alice).Eq(ether(6000)))

	hf, err := f.engine.HealthFactorOf(ctx, alice)
	require.NoError(t, err)
	assert.True(t, calc.IsSolvent(hf))
}

func TestRedeemForBurnValidation(t *testing.T) {
	f := newFixture(t)
	f.allowAll()
	ctx := context.Background()
	f.open(t, alice, ether(10), ether(1000))

	err := f.engine.RedeemForBurn(ctx, alice, weth, ether(1), ether(1001))
	assert.ErrorIs(t, err, ErrBurnExceedsDebt)

	err = f.engine.RedeemForBurn(ctx, alice, weth, ether(11), ether(1))
	assert.ErrorIs(t, err, ErrInsufficientCollateral)

	err = f.engine.RedeemForBurn(ctx, alice, weth, ether(10), ether(1))
	assert.ErrorIs(t, err, ErrHealthFactorTooLow)

	err = f.engine.RedeemForBurn(ctx, alice, weth, uint256.NewInt(0), ether(1))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	f.issuer.AssertNumberOfCalls(t, "Pull", 0)
	f.custodian.AssertNumberOfCalls(t, "TransferOut", 0)
}

func TestRedeemForBurnClosesPosition(t *testing.T) {
	f := newFixture(t)
	f.allowAll()
	ctx := context.Background()
	f.open(t, alice, ether(3), ether(1000))

	require.NoError(t, f.engine.RedeemForBurn(ctx, alice, weth, ether(3), ether(1000)))
	assert.True(t, f.engine.CollateralBalanceOf(ctx, alice, weth).IsZero())
	assert.True(t, f.engine.DebtOf(ctx, alice).IsZero())
}

func TestRedeemForBurnReissuesDebtOnWithdrawFailure(t *testing.T) {
	f := newFixture(t)
	f.custodian.On("TransferOut", mock.Anything, weth, alice, mock.Anything).Return(false, nil).Once()
	f.allowAll()
	ctx := context.Background()
	f.open(t, alice, ether(10), ether(1000))

	err := f.engine.RedeemForBurn(ctx, alice, weth, ether(1), ether(500))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.True(t, f.engine.DebtOf(ctx, alice).Eq(ether(1000)), f.engine.DebtOf(ctx, alice).Dec())
	assert.True(t, f.engine.CollateralBalanceOf(ctx, alice, weth).Eq(ether(10)))

	f.issuer.AssertCalled(t, "Burn", mock.Anything, ether(500))
	f.issuer.AssertCalled(t, "Mint", mock.Anything, alice, ether(500))
	assert.Equal(t,
		[]domain.EventType{domain.EventDeposited, domain.EventMinted, domain.EventBurned, domain.EventMinted},
		f.sink.types())
}

func TestRedeemForBurnKeepsRepaymentWhenReissueFails(t *testing.T) {
	f := newFixture(t)
	f.custodian.On("TransferOut", mock.Anything, weth, alice, mock.Anything).Return(false, nil).Once()
	f.issuer.On("Mint", mock.Anything, alice, ether(500)).Return(false, errors.New("issuer paused")).Once()
	f.allowAll()
	ctx := context.Background()
	f.open(t, alice, ether(10), ether(1000))

	err := f.engine.RedeemForBurn(ctx, alice, weth, ether(1), ether(500))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, ErrMintFailed)
	assert.True(t, f.engine.DebtOf(ctx, alice).Eq(ether(500)))
	assert.True(t, f.engine.CollateralBalanceOf(ctx, alice, weth).Eq(ether(10)))
}
