package prices

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps price feed identifiers ("ETH/USD") to provider symbols ("ETHUSDT").
type Registry struct {
	mappings map[string]string // feed -> provider symbol
}

func NewRegistry() *Registry {
	return &Registry{mappings: make(map[string]string)}
}

// NewRegistryForFeeds maps every feed to its DefaultSymbol.
func NewRegistryForFeeds(feeds []string) *Registry {
	r := NewRegistry()
	for _, f := range feeds {
		r.AddMapping(f, DefaultSymbol(f))
	}
	return r
}

// DefaultSymbol turns "ETH/USD" into the USDT-quoted exchange symbol "ETHUSDT".
func DefaultSymbol(feed string) string {
	base, _, _ := strings.Cut(strings.ToUpper(strings.TrimSpace(feed)), "/")
	return base + "USDT"
}

// AddMapping adds a feed to provider symbol mapping
func (r *Registry) AddMapping(feed, providerSymbol string) {
	r.mappings[strings.ToUpper(feed)] = strings.ToUpper(providerSymbol)
}

// ProviderSymbol returns the provider symbol for a feed
func (r *Registry) ProviderSymbol(feed string) (string, error) {
	symbol, exists := r.mappings[strings.ToUpper(feed)]
	if !exists {
		return "", fmt.Errorf("no mapping found for feed: %s", feed)
	}
	return symbol, nil
}

// Feeds returns the feeds that map to symbol, sorted.
func (r *Registry) Feeds(symbol string) []string {
	symbol = strings.ToUpper(symbol)
	var feeds []string
	for f, s := range r.mappings {
		if s == symbol {
			feeds = append(feeds, f)
		}
	}
	sort.Strings(feeds)
	return feeds
}

// ProviderSymbols returns the unique provider symbols we need to subscribe to, sorted.
func (r *Registry) ProviderSymbols() []string {
	seen := make(map[string]struct{})
	symbols := make([]string, 0, len(r.mappings))

	for _, sym := range r.mappings {
		if _, exists := seen[sym]; exists {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
	}

	sort.Strings(symbols)
	return symbols
}
