// Package accounts builds the read model of a single position.
package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/holiman/uint256"
	"github.com/leafsii/dsc-ledger/internal/calc"
	"github.com/leafsii/dsc-ledger/internal/domain"
	"github.com/leafsii/dsc-ledger/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Reader is the part of the engine an account view needs.
type Reader interface {
	CollateralAssets() []domain.Asset
	CollateralBalanceOf(ctx context.Context, user domain.Address, asset string) *uint256.Int
	GetUsdValue(ctx context.Context, asset string, amount *uint256.Int) (*uint256.Int, error)
	AccountInformation(ctx context.Context, user domain.Address) (debt, collateralUsd *uint256.Int, err error)
}

type Balance struct {
	Asset    string `json:"asset"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Amount   string `json:"amount"`
	Raw      string `json:"raw"`
	ValueUsd string `json:"valueUsd"`
}

// Account is a point-in-time view of a position. Amounts are human decimals, Raw
// fields are native integer units.
type Account struct {
	Address            domain.Address `json:"address"`
	Balances           []Balance      `json:"balances"`
	Debt               string         `json:"debt"`
	DebtRaw            string         `json:"debtRaw"`
	CollateralValueUsd string         `json:"collateralValueUsd"`
	HealthFactor       string         `json:"healthFactor"`
	Liquidatable       bool           `json:"liquidatable"`
	// MaxMintable is how much more debt the position supports at current prices.
	MaxMintable string    `json:"maxMintable"`
	AsOf        time.Time `json:"asOf"`
}

type Service struct {
	reader Reader
	cache  *store.Cache
	logger *zap.SugaredLogger
	group  singleflight.Group
	now    func() time.Time
}

// NewService creates the view builder. cache may be nil.
func NewService(reader Reader, cache *store.Cache, logger *zap.SugaredLogger) *Service {
	return &Service{
		reader: reader,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the account view of user. Concurrent calls for the same user share one
// evaluation.
func (s *Service) Get(ctx context.Context, user domain.Address) (*Account, error) {
	if s.cache != nil {
		var cached Account
		if err := s.cache.GetAccount(ctx, string(user), &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, store.ErrCacheMiss) {
			s.logger.Warnw("Account cache read failed", "user", user, "error", err)
		}
	}

	v, err, _ := s.group.Do(string(user), func() (interface{}, error) {
		account, err := s.build(ctx, user)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetAccount(ctx, string(user), account); err != nil {
				s.logger.Warnw("Account cache write failed", "user", user, "error", err)
			}
		}
		return account, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Account), nil
}

func (s *Service) build(ctx context.Context, user domain.Address) (*Account, error) {
	debt, collateralUsd, err := s.reader.AccountInformation(ctx, user)
	if err != nil {
		return nil, err
	}
	hf, err := calc.HealthFactor(collateralUsd, debt)
	if err != nil {
		return nil, err
	}

	assets := s.reader.CollateralAssets()
	balances := make([]Balance, 0, len(assets))
	for _, a := range assets {
		amount := s.reader.CollateralBalanceOf(ctx, user, a.ID)
		if amount.IsZero() {
			continue
		}
		value, err := s.reader.GetUsdValue(ctx, a.ID, amount)
		if err != nil {
			return nil, err
		}
		balances = append(balances, Balance{
			Asset:    a.ID,
			Symbol:   a.Symbol,
			Decimals: a.Decimals,
			Amount:   calc.ToDecimal(amount, a.Decimals).String(),
			Raw:      amount.Dec(),
			ValueUsd: calc.ToDecimal(value, calc.PrecisionDecimals).String(),
		})
	}

	return &Account{
		Address:            user,
		Balances:           balances,
		Debt:               calc.ToDecimal(debt, calc.PrecisionDecimals).String(),
		DebtRaw:            debt.Dec(),
		CollateralValueUsd: calc.ToDecimal(collateralUsd, calc.PrecisionDecimals).String(),
		HealthFactor:       calc.FormatHealthFactor(hf),
		Liquidatable:       !calc.IsSolvent(hf),
		MaxMintable:        calc.ToDecimal(maxMintable(collateralUsd, debt), calc.PrecisionDecimals).String(),
		AsOf:               s.now().UTC(),
	}, nil
}

// maxMintable is threshold-adjusted collateral minus debt, floored at zero.
func maxMintable(collateralUsd, debt *uint256.Int) *uint256.Int {
	adjusted, err := calc.AdjustedCollateral(collateralUsd)
	if err != nil || !adjusted.Gt(debt) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(adjusted, debt)
}
