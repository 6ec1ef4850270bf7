package token

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

// Vault custodies collateral tokens in its own account.
type Vault struct {
	account domain.Address
	tokens  map[string]*Token
}

// NewVault creates a vault holding the given tokens, keyed by asset ID.
func NewVault(account domain.Address, tokens map[string]*Token) *Vault {
	cp := make(map[string]*Token, len(tokens))
	for id, t := range tokens {
		cp[id] = t
	}
	return &Vault{account: account, tokens: cp}
}

func (v *Vault) Account() domain.Address {
	return v.account
}

func (v *Vault) Token(asset string) (*Token, bool) {
	t, ok := v.tokens[asset]
	return t, ok
}

func (v *Vault) TransferIn(_ context.Context, asset string, from domain.Address, amount *uint256.Int) (bool, error) {
	t, err := v.token(asset)
	if err != nil {
		return false, err
	}
	if err := t.Transfer(from, v.account, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (v *Vault) TransferOut(_ context.Context, asset string, to domain.Address, amount *uint256.Int) (bool, error) {
	t, err := v.token(asset)
	if err != nil {
		return false, err
	}
	if err := t.Transfer(v.account, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (v *Vault) BalanceOf(_ context.Context, asset string, holder domain.Address) (*uint256.Int, error) {
	t, err := v.token(asset)
	if err != nil {
		return nil, err
	}
	return t.BalanceOf(holder), nil
}

func (v *Vault) token(asset string) (*Token, error) {
	t, ok := v.tokens[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, asset)
	}
	return t, nil
}

// Credit mints amount of asset straight into a wallet. Development faucet only.
func (v *Vault) Credit(_ context.Context, asset string, to domain.Address, amount *uint256.Int) error {
	t, err := v.token(asset)
	if err != nil {
		return err
	}
	return t.Mint(to, amount)
}
