package engine

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/assets"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/ledger"
	"github.com/leafsii/dsc-ledger/internal/oracle"
)

// Input validation.
var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInvalidDebtAmount = errors.New("invalid debt amount")
	ErrUnsupportedAsset  = errors.New("unsupported collateral asset")
	ErrZeroAddress       = errors.New("address must not be empty")
	ErrZeroIdentifier    = assets.ErrZeroIdentifier
)

// State insufficiency.
var (
	ErrInsufficientCollateral      = ledger.ErrInsufficientCollateral
	ErrBurnExceedsDebt             = ledger.ErrBurnExceedsDebt
	ErrInsufficientIssuanceBalance = errors.New("insufficient issuance token balance")
)

// Solvency.
var (
	ErrHealthFactorTooLow      = errors.New("health factor below minimum")
	ErrHealthFactorOk          = errors.New("health factor is ok, position cannot be liquidated")
	ErrHealthFactorNotImproved = errors.New("liquidation does not improve health factor")
)

// Oracle.
var (
	ErrInvalidPrice = oracle.ErrInvalidPrice
	ErrStalePrice   = oracle.ErrStalePrice
)

// Collaborator failures.
var (
	ErrTransferFailed    = errors.New("token transfer failed")
	ErrMintFailed        = errors.New("mint failed")
	ErrBurnFailed        = errors.New("burn failed")
	ErrIssuerUnavailable = errors.New("issuance authority query failed")
)

var ErrReentrantCall = errors.New("reentrant call rejected")

// Kind groups errors by who has to act on them.
type Kind string

const (
	KindNone         Kind = ""
	KindInput        Kind = "input"
	KindState        Kind = "state"
	KindSolvency     Kind = "solvency"
	KindOracle       Kind = "oracle"
	KindCollaborator Kind = "collaborator"
	KindReentrancy   Kind = "reentrancy"
	KindInternal     Kind = "internal"
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindReentrancy, []error{ErrReentrantCall}},
	{KindCollaborator, []error{ErrTransferFailed, ErrMintFailed, ErrBurnFailed, ErrIssuerUnavailable}},
	{KindOracle, []error{oracle.ErrInvalidPrice, oracle.ErrStalePrice, oracle.ErrUnsupportedPriceDecimals, oracle.ErrSourceUnavailable, oracle.ErrUnknownAsset}},
	{KindSolvency, []error{ErrHealthFactorTooLow, ErrHealthFactorOk, ErrHealthFactorNotImproved}},
	{KindState, []error{ErrInsufficientCollateral, ErrBurnExceedsDebt, ErrInsufficientIssuanceBalance}},
	{KindInput, []error{ErrInvalidAmount, ErrInvalidDebtAmount, ErrUnsupportedAsset, ErrZeroAddress, ErrZeroIdentifier}},
}

// KindOf classifies err. Anything unrecognised, arithmetic overflow included, is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}

// HealthFactorError carries the health factor that failed a solvency check.
type HealthFactorError struct {
	Err          error
	HealthFactor *uint256.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, calc.FormatHealthFactor(e.HealthFactor))
}

func (e *HealthFactorError) Unwrap() error {
	return e.Err
}
