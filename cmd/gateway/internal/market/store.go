package market

import (
	"sort"
	"sync"

	"github.com/naphucco/fintech-trading-platform/cmd/gateway/internal/protocol"
)

// Store holds the current quote for every tradable symbol. Instruments are
// seeded once at startup; the only writer afterwards is Tick.
type Store struct {
	mu     sync.RWMutex
	quotes map[string]protocol.Quote
	rand   Rand
}

// NewStore seeds the store from symbol -> base price.
func NewStore(seed map[string]float64, rnd Rand) *Store {
	quotes := make(map[string]protocol.Quote, len(seed))
	for sym, price := range seed {
		quotes[sym] = protocol.Quote{Price: price}
	}
	return &Store{quotes: quotes, rand: rnd}
}

// Has reports whether the symbol is tradable.
func (s *Store) Has(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.quotes[symbol]
	return ok
}

// Quote returns the current quote for one symbol.
func (s *Store) Quote(symbol string) (protocol.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// Price returns the current price for one symbol.
func (s *Store) Price(symbol string) (float64, bool) {
	q, ok := s.Quote(symbol)
	return q.Price, ok
}

// Symbols returns all seeded symbols, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.quotes))
	for sym := range s.quotes {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Tick applies one bounded random walk step (±5%) to every instrument and
// returns a snapshot of the post-walk quotes. The multiplicative step keeps
// prices strictly positive.
func (s *Store) Tick() map[string]protocol.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]protocol.Quote, len(s.quotes))
	for sym, q := range s.quotes {
		step := (s.rand.Float64() - 0.5) * 0.1
		q.Price *= 1 + step
		q.Change = step * 100
		s.quotes[sym] = q
		snapshot[sym] = q
	}
	return snapshot
}

// Filter returns the intersection of the requested set with existing
// instruments, with current quotes.
func (s *Store) Filter(symbols map[string]struct{}) map[string]protocol.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]protocol.Quote)
	for sym := range symbols {
		if q, ok := s.quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out
}
