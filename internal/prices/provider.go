package prices

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a single price update in USD.
type Tick struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	TsMs   int64           `json:"ts"` // milliseconds since epoch
}

// Time returns the tick timestamp.
func (t Tick) Time() time.Time {
	return time.UnixMilli(t.TsMs)
}

// Provider is a live source of USD prices.
type Provider interface {
	// LatestPrice fetches the current price of a provider symbol (e.g. "ETHUSDT").
	LatestPrice(ctx context.Context, symbol string) (Tick, error)

	// SubscribeLive streams ticks for symbol into out until ctx is done or the
	// connection fails.
	SubscribeLive(ctx context.Context, symbol string, out chan<- Tick) error

	Name() string

	Health() ProviderHealth
}

// ProviderHealth represents the current status of a provider
type ProviderHealth struct {
	Healthy     bool      `json:"healthy"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
	Reconnects  int       `json:"reconnects"`
}
