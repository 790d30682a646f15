package engine

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/broker/sim"
	"github.com/tradekit/optrader/market"
)

// fakeClock advances instantly on Sleep and records every suspension, so the
// retry/poll loops run deterministically inside tests.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	// Let concurrently running goroutines (cancellers) get scheduled.
	runtime.Gosched()
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func newConnectedSession(t *testing.T, g *sim.Gateway, clock Clock) *Session {
	t.Helper()
	s := NewSession(g, SessionConfig{Host: "localhost", Port: 4001, ClientID: 7}, clock)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func spxCall(strike float64) market.Instrument {
	return market.Option("SPX", "20260320", strike, market.RightCall, "SMART")
}

func spxPut(strike float64) market.Instrument {
	return market.Option("SPX", "20260320", strike, market.RightPut, "SMART")
}

func waitDone(t *testing.T, m *Monitor) {
	t.Helper()
	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not terminate")
	}
}

func quote(bid, ask, last float64) market.Quote {
	return market.Quote{Bid: bid, Ask: ask, Last: last}
}

var _ broker.Gateway = (*sim.Gateway)(nil)
