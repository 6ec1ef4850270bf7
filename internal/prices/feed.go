package prices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leafsii/dsc-ledger/internal/oracle"
	"github.com/shopspring/decimal"
)

// FeedDecimals is the precision of quotes served by Feed, matching common USD feeds.
const FeedDecimals = 8

var ErrNoPrice = errors.New("no price received yet")

// Feed keeps the latest price per feed identifier and serves it as an oracle.PriceSource.
// Prices older than maxAge are reported as stale.
type Feed struct {
	mu     sync.RWMutex
	latest map[string]Tick
	maxAge time.Duration
	now    func() time.Time
}

func NewFeed(maxAge time.Duration) *Feed {
	return &Feed{
		latest: make(map[string]Tick),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Update records a price for feed. Older ticks never replace newer ones.
func (f *Feed) Update(feed string, tick Tick) {
	feed = strings.ToUpper(feed)

	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.latest[feed]; ok && cur.TsMs > tick.TsMs {
		return
	}
	f.latest[feed] = tick
}

// Latest returns the last tick of feed.
func (f *Feed) Latest(feed string) (Tick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.latest[strings.ToUpper(feed)]
	return t, ok
}

func (f *Feed) LatestPrice(_ context.Context, feed string) (oracle.Quote, error) {
	tick, ok := f.Latest(feed)
	if !ok {
		return oracle.Quote{}, fmt.Errorf("%w: %s", ErrNoPrice, feed)
	}

	updated := tick.Time()
	return oracle.Quote{
		Price:     tick.Price.Shift(FeedDecimals).Truncate(0).BigInt(),
		Decimals:  FeedDecimals,
		Stale:     f.maxAge > 0 && f.now().Sub(updated) > f.maxAge,
		UpdatedAt: updated,
	}, nil
}

// SetUSD records a human USD price for feed at the current time.
func (f *Feed) SetUSD(feed, usd string) error {
	price, err := decimal.NewFromString(usd)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", usd, err)
	}
	f.Update(feed, Tick{Symbol: feed, Price: price, TsMs: f.now().UnixMilli()})
	return nil
}
