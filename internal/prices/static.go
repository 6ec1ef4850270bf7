package prices

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/leafsii/dsc-ledger/internal/oracle"
)

// Static serves fixed quotes. It backs the "static" provider and tests.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]oracle.Quote
}

func NewStatic() *Static {
	return &Static{quotes: make(map[string]oracle.Quote)}
}

// Set stores a raw quote for feed.
func (s *Static) Set(feed string, price *big.Int, decimals uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[strings.ToUpper(feed)] = oracle.Quote{Price: new(big.Int).Set(price), Decimals: decimals, UpdatedAt: time.Now()}
}

// SetStale flags the quote of feed as stale or fresh.
func (s *Static) SetStale(feed string, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.quotes[strings.ToUpper(feed)]
	q.Stale = stale
	s.quotes[strings.ToUpper(feed)] = q
}

func (s *Static) LatestPrice(_ context.Context, feed string) (oracle.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[strings.ToUpper(feed)]
	if !ok || q.Price == nil {
		return oracle.Quote{}, fmt.Errorf("%w: %s", ErrNoPrice, feed)
	}
	q.Price = new(big.Int).Set(q.Price)
	return q, nil
}
