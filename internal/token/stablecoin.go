package token

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

// Stablecoin is the issuance authority. Only its owner account mints, and burns destroy
// tokens the owner holds.
type Stablecoin struct {
	token *Token
	owner domain.Address
}

func NewStablecoin(symbol string, owner domain.Address) *Stablecoin {
	return &Stablecoin{token: NewToken(symbol, 18), owner: owner}
}

// Token exposes the underlying balances, e.g. for wallet transfers between users.
func (s *Stablecoin) Token() *Token {
	return s.token
}

func (s *Stablecoin) Owner() domain.Address {
	return s.owner
}

func (s *Stablecoin) Mint(_ context.Context, to domain.Address, amount *uint256.Int) (bool, error) {
	if err := s.token.Mint(to, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Stablecoin) Burn(_ context.Context, amount *uint256.Int) error {
	return s.token.Burn(s.owner, amount)
}

func (s *Stablecoin) BalanceOf(_ context.Context, holder domain.Address) (*uint256.Int, error) {
	return s.token.BalanceOf(holder), nil
}

// Pull moves amount from holder into the owner account.
func (s *Stablecoin) Pull(_ context.Context, from domain.Address, amount *uint256.Int) (bool, error) {
	if err := s.token.Transfer(from, s.owner, amount); err != nil {
		return false, err
	}
	return true, nil
}

// Transfer pays amount out of the owner account.
func (s *Stablecoin) Transfer(_ context.Context, to domain.Address, amount *uint256.Int) (bool, error) {
	if err := s.token.Transfer(s.owner, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Stablecoin) TotalIssued(context.Context) (*uint256.Int, error) {
	return s.token.TotalSupply(), nil
}
