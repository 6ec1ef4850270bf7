package engine

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/assets"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/oracle"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	weth = "WETH"
	wbtc = "WBTC"

	alice      domain.Address = "alice"
	liquidator domain.Address = "liquidator"
)

// MockCustodian is a testify mock of Custodian.
type MockCustodian struct {
	mock.Mock
}

func (m *MockCustodian) TransferIn(ctx context.Context, asset string, from domain.Address, amount *uint256.Int) (bool, error) {
	args := m.Called(ctx, asset, from, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockCustodian) TransferOut(ctx context.Context, asset string, to domain.Address, amount *uint256.Int) (bool, error) {
	args := m.Called(ctx, asset, to, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockCustodian) BalanceOf(ctx context.Context, asset string, holder domain.Address) (*uint256.Int, error) {
	args := m.Called(ctx, asset, holder)
	return args.Get(0).(*uint256.Int), args.Error(1)
}

// MockIssuer is a testify mock of IssuanceAuthority.
type MockIssuer struct {
	mock.Mock
}

func (m *MockIssuer) Mint(ctx context.Context, to domain.Address, amount *uint256.Int) (bool, error) {
	args := m.Called(ctx, to, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockIssuer) Burn(ctx context.Context, amount *uint256.Int) error {
	args := m.Called(ctx, amount)
	return args.Error(0)
}

func (m *MockIssuer) BalanceOf(ctx context.Context, holder domain.Address) (*uint256.Int, error) {
	args := m.Called(ctx, holder)
	return args.Get(0).(*uint256.Int), args.Error(1)
}

func (m *MockIssuer) Pull(ctx context.Context, from domain.Address, amount *uint256.Int) (bool, error) {
	args := m.Called(ctx, from, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockIssuer) Transfer(ctx context.Context, to domain.Address, amount *uint256.Int) (bool, error) {
	args := m.Called(ctx, to, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockIssuer) TotalIssued(ctx context.Context) (*uint256.Int, error) {
	args := m.Called(ctx)
	return args.Get(0).(*uint256.Int), args.Error(1)
}

// stubPrices serves 8-decimal USD prices per feed.
type stubPrices struct {
	mu     sync.Mutex
	quotes map[string]oracle.Quote
	calls  int
}

func newStubPrices() *stubPrices {
	return &stubPrices{quotes: make(map[string]oracle.Quote)}
}

func (s *stubPrices) set(feed string, usd int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[feed] = oracle.Quote{Price: big.NewInt(usd * 100_000_000), Decimals: 8, UpdatedAt: time.Now()}
}

func (s *stubPrices) LatestPrice(_ context.Context, feed string) (oracle.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	q, ok := s.quotes[feed]
	if !ok {
		return oracle.Quote{}, errors.New("no quote for " + feed)
	}
	return q, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Emit(_ context.Context, ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	engine    *Engine
	custodian *MockCustodian
	issuer    *MockIssuer
	prices    *stubPrices
	sink      *recordingSink
}

func newFixture(t *testing.T, opts ...func(*Options)) *fixture {
	t.Helper()

	registry, err := assets.FromPairs([]string{weth, wbtc}, []string{"ETH/USD", "BTC/USD"}, []uint8{18, 8})
	require.NoError(t, err)

	f := &fixture{
		custodian: new(MockCustodian),
		issuer:    new(MockIssuer),
		prices:    newStubPrices(),
		sink:      &recordingSink{},
	}
	f.prices.set("ETH/USD", 2000)
	f.prices.set("BTC/USD", 30000)

	o := Options{Events: f.sink}
	for _, fn := range opts {
		fn(&o)
	}

	f.engine, err = New(Config{
		Assets:    registry,
		Prices:    f.prices,
		Custodian: f.custodian,
		Issuer:    f.issuer,
		IssuerID:  "dsc",
	}, o)
	require.NoError(t, err)
	return f
}

// allowAll accepts every collaborator call. Expectations registered earlier take
// precedence.
func (f *fixture) allowAll() {
	f.custodian.On("TransferIn", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	f.custodian.On("TransferOut", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	f.issuer.On("Mint", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	f.issuer.On("Pull", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	f.issuer.On("Burn", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.issuer.On("Transfer", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
}

// open deposits collateral and mints debt for user through the public API.
func (f *fixture) open(t *testing.T, user domain.Address, collateral, debt *uint256.Int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.engine.Deposit(ctx, user, weth, collateral))
	if !debt.IsZero() {
		require.NoError(t, f.engine.Mint(ctx, user, debt))
	}
}

// ether returns n whole units of an 18-decimal token.
func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), calc.Precision())
}

func amount(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}
