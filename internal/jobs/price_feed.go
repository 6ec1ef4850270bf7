package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/leafsii/dsc-ledger/internal/prices"
	"github.com/leafsii/dsc-ledger/internal/store"
	"go.uber.org/zap"
)

type PriceFeedConfig struct {
	RetryInterval time.Duration // How long to wait before retrying a failed provider
	CacheTTL      time.Duration // Cache TTL for the latest price
}

func DefaultPriceFeedConfig() PriceFeedConfig {
	return PriceFeedConfig{
		RetryInterval: 5 * time.Second,
		CacheTTL:      time.Minute,
	}
}

// PriceSnapshot is the cached form of the latest price of a feed.
type PriceSnapshot struct {
	Feed   string `json:"feed"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	TsMs   int64  `json:"ts"`
	Source string `json:"source"`
}

// basePricer is implemented by providers that can restart from a known price.
type basePricer interface {
	SetBasePrice(symbol string, price float64)
}

// PriceFeed streams provider ticks into the engine's price feed. When the primary
// provider fails it switches to the fallback, seeded with the last real price, and
// switches back once the primary answers again.
type PriceFeed struct {
	primary  prices.Provider
	fallback prices.Provider
	registry *prices.Registry
	feed     *prices.Feed
	cache    *store.Cache
	logger   *zap.SugaredLogger
	config   PriceFeedConfig

	mu            sync.RWMutex
	usingFallback bool
}

// NewPriceFeed wires the job. fallback and cache may be nil.
func NewPriceFeed(primary, fallback prices.Provider, registry *prices.Registry, feed *prices.Feed, cache *store.Cache, logger *zap.SugaredLogger, config PriceFeedConfig) *PriceFeed {
	def := DefaultPriceFeedConfig()
	if config.RetryInterval <= 0 {
		config.RetryInterval = def.RetryInterval
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = def.CacheTTL
	}
	return &PriceFeed{
		primary:  primary,
		fallback: fallback,
		registry: registry,
		feed:     feed,
		cache:    cache,
		logger:   logger,
		config:   config,
	}
}

// Run seeds every feed with a polled price, then follows live ticks until ctx is done.
func (p *PriceFeed) Run(ctx context.Context) error {
	symbols := p.registry.ProviderSymbols()
	p.logger.Infow("Starting price feed", "provider", p.primary.Name(), "symbols", symbols)

	for _, symbol := range symbols {
		p.seed(ctx, symbol)
	}

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			p.follow(ctx, symbol)
		}(symbol)
	}

	if p.fallback != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.watchPrimary(ctx, symbols)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	p.logger.Infow("Price feed stopped")
	return ctx.Err()
}

func (p *PriceFeed) seed(ctx context.Context, symbol string) {
	tick, err := p.primary.LatestPrice(ctx, symbol)
	if err == nil {
		p.processTick(ctx, p.primary.Name(), tick)
		return
	}
	p.logger.Warnw("Initial price fetch failed", "symbol", symbol, "provider", p.primary.Name(), "error", err)
	if p.fallback == nil {
		return
	}
	p.switchToFallback(symbol, "initial price fetch failed")
	if tick, err := p.fallback.LatestPrice(ctx, symbol); err == nil {
		p.processTick(ctx, p.fallback.Name(), tick)
	}
}

// follow keeps one live subscription for symbol open on the current provider.
func (p *PriceFeed) follow(ctx context.Context, symbol string) {
	for ctx.Err() == nil {
		provider := p.current()
		subCtx, cancel := context.WithCancel(ctx)
		ticks := make(chan prices.Tick, 100)
		errc := make(chan error, 1)

		go func() {
			errc <- provider.SubscribeLive(subCtx, symbol, ticks)
		}()

		err := p.consume(subCtx, provider, ticks, errc)
		cancel()
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			p.logger.Warnw("Live subscription failed", "symbol", symbol, "provider", provider.Name(), "error", err)
			if provider == p.primary && p.fallback != nil {
				p.switchToFallback(symbol, "live subscription failed")
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.config.RetryInterval):
		}
	}
}

// consume processes ticks until the subscription ends or the active provider changes.
func (p *PriceFeed) consume(ctx context.Context, provider prices.Provider, ticks <-chan prices.Tick, errc <-chan error) error {
	check := time.NewTicker(p.config.RetryInterval)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case tick := <-ticks:
			p.processTick(ctx, provider.Name(), tick)
		case <-check.C:
			if p.current() != provider {
				p.logger.Infow("Provider changed, resubscribing", "from", provider.Name(), "to", p.current().Name())
				return nil
			}
		}
	}
}

// watchPrimary polls the primary provider while the fallback is active.
func (p *PriceFeed) watchPrimary(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	ticker := time.NewTicker(p.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.UsingFallback() {
				continue
			}
			tick, err := p.primary.LatestPrice(ctx, symbols[0])
			if err != nil {
				continue
			}
			p.processTick(ctx, p.primary.Name(), tick)

			p.mu.Lock()
			p.usingFallback = false
			p.mu.Unlock()
			p.logger.Infow("Primary provider recovered, switching back", "provider", p.primary.Name())
		}
	}
}

func (p *PriceFeed) current() prices.Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.usingFallback {
		return p.fallback
	}
	return p.primary
}

// UsingFallback reports whether ticks currently come from the fallback provider.
func (p *PriceFeed) UsingFallback() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.usingFallback
}

func (p *PriceFeed) switchToFallback(symbol, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.usingFallback || p.fallback == nil {
		return
	}
	p.usingFallback = true
	p.logger.Warnw("Switching to fallback provider",
		"symbol", symbol,
		"reason", reason,
		"provider", p.primary.Name(),
		"fallback", p.fallback.Name(),
	)

	// Continue the walk from the last real prices
	seeder, ok := p.fallback.(basePricer)
	if !ok {
		return
	}
	for _, sym := range p.registry.ProviderSymbols() {
		for _, feed := range p.registry.Feeds(sym) {
			if last, ok := p.feed.Latest(feed); ok {
				seeder.SetBasePrice(sym, last.Price.InexactFloat64())
				break
			}
		}
	}
}

func (p *PriceFeed) processTick(ctx context.Context, source string, tick prices.Tick) {
	for _, feed := range p.registry.Feeds(tick.Symbol) {
		p.feed.Update(feed, prices.Tick{Symbol: feed, Price: tick.Price, TsMs: tick.TsMs})

		if p.cache == nil {
			continue
		}
		snapshot := PriceSnapshot{
			Feed:   feed,
			Symbol: tick.Symbol,
			Price:  tick.Price.String(),
			TsMs:   tick.TsMs,
			Source: source,
		}
		if err := p.cache.SetPrice(ctx, feed, snapshot, p.config.CacheTTL); err != nil {
			p.logger.Warnw("Failed to cache price", "feed", feed, "error", err)
		}
		if err := p.cache.Publish(ctx, store.PriceKey(feed), snapshot); err != nil {
			p.logger.Warnw("Failed to publish price", "feed", feed, "error", err)
		}
	}
	p.logger.Debugw("Processed tick", "symbol", tick.Symbol, "price", tick.Price, "source", source)
}
