package mock

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/leafsii/dsc-ledger/internal/prices"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Generator produces random-walk prices around a base price per symbol. It is the
// development provider and the fallback when a live provider fails.
type Generator struct {
	logger     *zap.SugaredLogger
	mu         sync.RWMutex
	basePrices map[string]float64
	current    map[string]float64
	volatility float64
	interval   time.Duration
	health     prices.ProviderHealth
	rng        *rand.Rand
}

// NewGenerator creates a new mock data generator
func NewGenerator(logger *zap.SugaredLogger, basePrices map[string]float64, volatility float64) *Generator {
	if volatility <= 0 {
		volatility = 0.002 // 0.2% volatility
	}

	g := &Generator{
		logger:     logger,
		basePrices: make(map[string]float64, len(basePrices)),
		current:    make(map[string]float64, len(basePrices)),
		volatility: volatility,
		interval:   1500 * time.Millisecond,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		health: prices.ProviderHealth{
			Healthy:     true,
			LastSuccess: time.Now(),
		},
	}
	for sym, p := range basePrices {
		g.SetBasePrice(sym, p)
	}
	return g
}

// Name returns the provider identifier
func (g *Generator) Name() string {
	return "mock"
}

// Health returns current provider health status
func (g *Generator) Health() prices.ProviderHealth {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.health
}

// LatestPrice returns the current walk price of symbol.
func (g *Generator) LatestPrice(_ context.Context, symbol string) (prices.Tick, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sym := strings.ToUpper(symbol)
	p, ok := g.current[sym]
	if !ok {
		return prices.Tick{}, fmt.Errorf("mock: no base price for %s", symbol)
	}
	g.health.LastSuccess = time.Now()
	return prices.Tick{Symbol: sym, Price: decimal.NewFromFloat(p), TsMs: time.Now().UnixMilli()}, nil
}

// SubscribeLive generates mock real-time price updates
func (g *Generator) SubscribeLive(ctx context.Context, symbol string, out chan<- prices.Tick) error {
	sym := strings.ToUpper(symbol)

	g.mu.RLock()
	base, ok := g.basePrices[sym]
	interval := g.interval
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("mock: no base price for %s", symbol)
	}

	g.logger.Infow("Starting mock live price feed", "symbol", sym, "basePrice", base)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick := g.step(sym)

			// Send tick (non-blocking)
			select {
			case out <- tick:
			case <-ctx.Done():
				return ctx.Err()
			default:
				// Channel full, skip this tick
			}
		}
	}
}

// step advances the walk of sym by one tick, keeping it within ±50% of the base.
func (g *Generator) step(sym string) prices.Tick {
	g.mu.Lock()
	defer g.mu.Unlock()

	base := g.basePrices[sym]
	p := g.current[sym] * (1 + g.generatePriceChange())
	if p < base*0.5 {
		p = base * 0.5
	} else if p > base*1.5 {
		p = base * 1.5
	}
	g.current[sym] = p
	g.health.LastSuccess = time.Now()

	return prices.Tick{Symbol: sym, Price: decimal.NewFromFloat(p), TsMs: time.Now().UnixMilli()}
}

// generatePriceChange creates a realistic price movement. Caller holds g.mu.
func (g *Generator) generatePriceChange() float64 {
	baseChange := g.rng.NormFloat64() * g.volatility

	// Add some trending behavior occasionally
	if g.rng.Float64() < 0.1 { // 10% chance of trend
		trend := (g.rng.Float64() - 0.5) * g.volatility * 2 // ±volatility trend
		baseChange += trend
	}

	// Clamp extreme movements
	maxChange := g.volatility * 5
	if baseChange > maxChange {
		baseChange = maxChange
	} else if baseChange < -maxChange {
		baseChange = -maxChange
	}

	return baseChange
}

// SetBasePrice resets the walk of symbol to price.
func (g *Generator) SetBasePrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	sym := strings.ToUpper(symbol)
	g.basePrices[sym] = price
	g.current[sym] = price
}

// SetInterval changes the tick period of subsequent subscriptions.
func (g *Generator) SetInterval(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d > 0 {
		g.interval = d
	}
}
