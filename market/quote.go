package market

import (
	"math"
	"sync"
	"time"
)

// Quote is a point-in-time price snapshot for one instrument. Gateways report
// NaN for fields they have not ticked yet, so readiness must be checked
// before acting on a quote.
type Quote struct {
	Instrument string
	Bid        float64
	Ask        float64
	Last       float64
	Time       time.Time
}

func (q Quote) Mid() float64 {
	if !valid(q.Bid) || !valid(q.Ask) {
		return math.NaN()
	}
	return (q.Bid + q.Ask) / 2
}

// Premium is the price used for stop-loss evaluation: last trade when the
// gateway has one, midpoint otherwise.
func (q Quote) Premium() float64 {
	if valid(q.Last) {
		return q.Last
	}
	return q.Mid()
}

// Ready reports whether the snapshot carries a usable premium.
func (q Quote) Ready() bool {
	return valid(q.Premium())
}

func valid(x float64) bool {
	return !math.IsNaN(x) && x > 0
}

// Bar is one OHLC candle from the gateway's historical data service.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

type QuoteStore struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewQuoteStore() *QuoteStore {
	return &QuoteStore{quotes: make(map[string]Quote)}
}

func (s *QuoteStore) Set(q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Instrument] = q
}

func (s *QuoteStore) Get(instrument string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[instrument]
	return q, ok
}
