package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leafsii/dsc-ledger/internal/prices"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	BinanceRestAPI = "https://api.binance.com"
	BinanceWS      = "wss://stream.binance.com:9443/ws"
)

// Provider implements the prices.Provider interface for Binance
type Provider struct {
	logger  *zap.SugaredLogger
	client  *http.Client
	restURL string
	wsURL   string

	mu     sync.RWMutex
	health prices.ProviderHealth
}

// NewProvider creates a new Binance provider
func NewProvider(logger *zap.SugaredLogger) *Provider {
	return NewProviderWithEndpoints(logger, BinanceRestAPI, BinanceWS)
}

// NewProviderWithEndpoints points the provider at alternative REST and WebSocket roots.
func NewProviderWithEndpoints(logger *zap.SugaredLogger, restURL, wsURL string) *Provider {
	return &Provider{
		logger:  logger,
		restURL: strings.TrimRight(restURL, "/"),
		wsURL:   strings.TrimRight(wsURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		health: prices.ProviderHealth{
			Healthy:     true,
			LastSuccess: time.Now(),
		},
	}
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "binance"
}

// Health returns current provider health status
func (p *Provider) Health() prices.ProviderHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

// updateHealth updates the provider health status
func (p *Provider) updateHealth(healthy bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.health.Healthy = healthy
	if healthy {
		p.health.LastSuccess = time.Now()
		p.health.LastError = ""
	} else if err != nil {
		p.health.LastError = err.Error()
	}
}

// tickerPrice is the /api/v3/ticker/price response.
type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// LatestPrice fetches the last traded price of symbol over REST.
func (p *Provider) LatestPrice(ctx context.Context, symbol string) (prices.Tick, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	requestURL := fmt.Sprintf("%s/api/v3/ticker/price?%s", p.restURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		p.updateHealth(false, err)
		return prices.Tick{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.updateHealth(false, err)
		return prices.Tick{}, fmt.Errorf("failed to fetch from Binance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("binance API error: %d", resp.StatusCode)
		p.updateHealth(false, err)
		return prices.Tick{}, err
	}

	var tp tickerPrice
	if err := json.NewDecoder(resp.Body).Decode(&tp); err != nil {
		p.updateHealth(false, err)
		return prices.Tick{}, fmt.Errorf("failed to decode response: %w", err)
	}
	price, err := decimal.NewFromString(tp.Price)
	if err != nil {
		p.updateHealth(false, err)
		return prices.Tick{}, fmt.Errorf("invalid price %q: %w", tp.Price, err)
	}

	p.updateHealth(true, nil)
	p.logger.Debugw("Fetched latest price from Binance", "symbol", symbol, "price", price)

	return prices.Tick{Symbol: strings.ToUpper(symbol), Price: price, TsMs: time.Now().UnixMilli()}, nil
}

// SubscribeLive subscribes to real-time trade data via WebSocket
func (p *Provider) SubscribeLive(ctx context.Context, symbol string, out chan<- prices.Tick) error {
	wsURL := fmt.Sprintf("%s/%s@trade", p.wsURL, strings.ToLower(symbol))

	p.logger.Infow("Connecting to Binance WebSocket", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		p.updateHealth(false, err)
		return fmt.Errorf("failed to connect to Binance WebSocket: %w", err)
	}
	defer conn.Close()

	// unblock ReadMessage when the subscription is cancelled
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	p.updateHealth(true, nil)
	p.logger.Infow("Connected to Binance WebSocket", "symbol", symbol)

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.updateHealth(false, err)
			p.mu.Lock()
			p.health.Reconnects++
			p.mu.Unlock()
			return fmt.Errorf("WebSocket read error: %w", err)
		}

		var trade BinanceTrade
		if err := json.Unmarshal(message, &trade); err != nil {
			p.logger.Warnw("Failed to parse trade message", "error", err, "message", string(message))
			continue
		}

		price, err := decimal.NewFromString(trade.Price)
		if err != nil {
			p.logger.Warnw("Failed to parse trade price", "error", err, "price", trade.Price)
			continue
		}

		tick := prices.Tick{
			Symbol: strings.ToUpper(symbol),
			Price:  price,
			TsMs:   trade.EventTime,
		}

		// Send tick (non-blocking)
		select {
		case out <- tick:
		case <-ctx.Done():
			return ctx.Err()
		default:
			p.logger.Debugw("Tick channel full, skipping", "symbol", symbol)
		}

		p.updateHealth(true, nil)
	}
}

// BinanceTrade represents a trade message from Binance WebSocket
type BinanceTrade struct {
	EventType     string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	TradeID       int64  `json:"t"`
	Price         string `json:"p"`
	Quantity      string `json:"q"`
	BuyerOrderID  int64  `json:"b"`
	SellerOrderID int64  `json:"a"`
	TradeTime     int64  `json:"T"`
	IsBuyerMaker  bool   `json:"m"`
}
