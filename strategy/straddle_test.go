package strategy

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/broker/sim"
	"github.com/tradekit/optrader/engine"
	"github.com/tradekit/optrader/market"
)

// testClock advances instantly on Sleep so the monitor loops spin without
// real delays.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	runtime.Gosched()
	return nil
}

func newRig(t *testing.T) (*sim.Gateway, *engine.Session, *testClock) {
	t.Helper()
	g := sim.New()
	clock := newTestClock()
	s := engine.NewSession(g, engine.SessionConfig{Host: "localhost", Port: 4001, ClientID: 7}, clock)
	require.NoError(t, s.Connect(context.Background()))
	return g, s, clock
}

func spx() market.Instrument { return market.Index("SPX", "CBOE") }

func opt(strike float64, right market.Right) market.Instrument {
	return market.Option("SPX", "20260320", strike, right, "CBOE")
}

func seedChain(g *sim.Gateway) {
	g.SetQuote(spx(), market.Quote{Bid: 5003, Ask: 5005, Last: 5004})
	g.SetStrikes("SPX", []float64{4900, 4990, 5000, 5010, 5100})

	g.SetQuote(opt(5000, market.RightCall), market.Quote{Bid: 12.40, Ask: 12.60, Last: 12.50})
	g.SetQuote(opt(5000, market.RightPut), market.Quote{Bid: 11.90, Ask: 12.10, Last: 12.00})
	g.SetQuote(opt(5100, market.RightCall), market.Quote{Bid: 1.00, Ask: 1.20, Last: 1.10})
	g.SetQuote(opt(4900, market.RightPut), market.Quote{Bid: 1.30, Ask: 1.50, Last: 1.40})
}

func monitoredConfig() Config {
	return Config{
		Underlying:  spx(),
		Expiry:      "20260320",
		Quantity:    1,
		HedgeOffset: 100,
		Monitor:     engine.MonitorConfig{Fraction: 0.15},
	}
}

func TestEnterMonitoredStraddle(t *testing.T) {
	t.Parallel()

	g, s, clock := newRig(t)
	seedChain(g)

	st := New(s, nil, monitoredConfig(), clock)
	require.NoError(t, st.Enter(context.Background()))

	// Two hedge wings bought, two ATM legs sold.
	placed := g.Placed()
	require.Len(t, placed, 4)
	assert.Equal(t, broker.Buy, placed[0].Spec.Side)
	assert.Equal(t, opt(5100, market.RightCall).Key(), placed[0].Instrument.Key())
	assert.Equal(t, broker.Buy, placed[1].Spec.Side)
	assert.Equal(t, opt(4900, market.RightPut).Key(), placed[1].Instrument.Key())
	assert.Equal(t, broker.Sell, placed[2].Spec.Side)
	assert.Equal(t, opt(5000, market.RightCall).Key(), placed[2].Instrument.Key())
	assert.Equal(t, broker.Sell, placed[3].Spec.Side)
	assert.Equal(t, opt(5000, market.RightPut).Key(), placed[3].Instrument.Key())

	assert.Len(t, st.Monitors(), 2)
	assert.Empty(t, st.Groups())

	confs, err := st.CloseAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, confs, 4)

	pos, err := g.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pos, "close-all must flatten the book")
}

func TestStopTriggerUnwindsHedge(t *testing.T) {
	t.Parallel()

	g, s, clock := newRig(t)
	seedChain(g)
	// The short call fills off the first quote, then the next monitor tick
	// sees a premium beyond fill*1.15 and fires.
	g.QueueQuotes(opt(5000, market.RightCall),
		market.Quote{Bid: 12.40, Ask: 12.60, Last: 12.50},
		market.Quote{Bid: 14.30, Ask: 14.50, Last: 14.40},
	)

	st := New(s, nil, monitoredConfig(), clock)
	require.NoError(t, st.Enter(context.Background()))

	monitors := st.Monitors()
	require.Len(t, monitors, 2)
	callMon := monitors[0]

	select {
	case <-callMon.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("call monitor did not terminate")
	}
	require.NoError(t, callMon.Err())
	assert.Equal(t, engine.StateClosed, callMon.State())

	// Compensating buy on the short call, then the call wing sold.
	placed := g.Placed()
	require.Len(t, placed, 6)
	assert.Equal(t, broker.Buy, placed[4].Spec.Side)
	assert.Equal(t, opt(5000, market.RightCall).Key(), placed[4].Instrument.Key())
	assert.Equal(t, broker.Sell, placed[5].Spec.Side)
	assert.Equal(t, opt(5100, market.RightCall).Key(), placed[5].Instrument.Key())

	// The put leg stays armed and untouched.
	assert.Equal(t, engine.StateArmed, monitors[1].State())
	monitors[1].Cancel()
	<-monitors[1].Done()
}

func TestEnterTrailingStraddle(t *testing.T) {
	t.Parallel()

	g, s, clock := newRig(t)
	seedChain(g)
	// Bracket entries are transmit-gated, so their fills are scripted by
	// order ID: parents take IDs 1 and 3.
	g.FillAfterPolls(1, 1, 12.40)
	g.FillAfterPolls(3, 1, 11.90)

	cfg := monitoredConfig()
	cfg.HedgeOffset = 0
	cfg.TrailingPercent = 14
	cfg.Monitor = engine.MonitorConfig{}

	st := New(s, nil, cfg, clock)
	require.NoError(t, st.Enter(context.Background()))

	assert.Empty(t, st.Monitors())
	groups := st.Groups()
	require.Len(t, groups, 2)

	assert.InDelta(t, 12.40, groups[0].FillPrice, 1e-9)
	assert.InDelta(t, 11.90, groups[1].FillPrice, 1e-9)
	for _, grp := range groups {
		assert.Equal(t, broker.TrailingStop, grp.Exit.Spec.Kind)
		assert.InDelta(t, 14.0, grp.Exit.Spec.TrailingPercent, 1e-9)
	}

	oldExits := []int{groups[0].Exit.OrderID, groups[1].Exit.OrderID}
	require.NoError(t, st.Retarget(context.Background(), 10))

	groups = st.Groups()
	for i, grp := range groups {
		assert.Contains(t, g.Cancelled(), oldExits[i])
		assert.InDelta(t, 10.0, grp.Exit.Spec.TrailingPercent, 1e-9)
	}

	confs, err := st.CloseAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, confs, 2)

	pos, err := g.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pos)
}

func TestEnterValidatesConfig(t *testing.T) {
	t.Parallel()

	_, s, clock := newRig(t)

	cfg := monitoredConfig()
	cfg.Monitor.Fraction = 0 // no protection at all

	st := New(s, nil, cfg, clock)
	assert.Error(t, st.Enter(context.Background()))
}
