// Package token provides in-memory fungible tokens and the custodian and issuance
// authority built on them. They back the service in development and tests.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
)

var (
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrPaused              = errors.New("token is paused")
	ErrUnknownToken        = errors.New("unknown token")
)

// Token is an ERC20-like balance table. Safe for concurrent use.
type Token struct {
	mu       sync.RWMutex
	symbol   string
	decimals uint8
	balances map[domain.Address]*uint256.Int
	supply   *uint256.Int
	paused   bool
}

func NewToken(symbol string, decimals uint8) *Token {
	return &Token{
		symbol:   symbol,
		decimals: decimals,
		balances: make(map[domain.Address]*uint256.Int),
		supply:   new(uint256.Int),
	}
}

func (t *Token) Symbol() string  { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }

func (t *Token) BalanceOf(holder domain.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceOf(holder)
}

func (t *Token) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Set(t.supply)
}

// SetPaused makes every mutation fail with ErrPaused.
func (t *Token) SetPaused(paused bool) {
	t.mu.Lock()
	t.paused = paused
	t.mu.Unlock()
}

func (t *Token) Mint(to domain.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return ErrPaused
	}

	supply, err := calc.Add(t.supply, amount)
	if err != nil {
		return fmt.Errorf("mint %s: %w", t.symbol, err)
	}
	bal, err := calc.Add(t.balanceOf(to), amount)
	if err != nil {
		return fmt.Errorf("mint %s: %w", t.symbol, err)
	}
	t.supply = supply
	t.balances[to] = bal
	return nil
}

func (t *Token) Burn(from domain.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return ErrPaused
	}

	bal := t.balanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s", ErrInsufficientBalance, from, bal.Dec(), t.symbol)
	}
	t.balances[from] = bal.Sub(bal, amount)
	t.supply = new(uint256.Int).Sub(t.supply, amount)
	return nil
}

func (t *Token) Transfer(from, to domain.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return ErrPaused
	}

	src := t.balanceOf(from)
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s", ErrInsufficientBalance, from, src.Dec(), t.symbol)
	}
	t.balances[from] = src.Sub(src, amount)
	// cannot overflow: the sum of balances is the supply
	dst := t.balanceOf(to)
	t.balances[to] = dst.Add(dst, amount)
	return nil
}

func (t *Token) balanceOf(holder domain.Address) *uint256.Int {
	if b, ok := t.balances[holder]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}
