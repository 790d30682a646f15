package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/broker/sim"
	"github.com/tradekit/optrader/market"
)

func TestCloseAllFlattensEveryPosition(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	s := newConnectedSession(t, g, clock)
	closer := NewCloser(s, NewSubmitter(s, nil))

	aapl := market.Stock("AAPL", "SMART")
	spxc := spxCall(5000)
	g.SetPosition(aapl, 5, 231.10)
	g.SetPosition(spxc, -1, 12.50)

	confs, err := closer.CloseAll(context.Background())
	require.NoError(t, err)
	require.Len(t, confs, 2)

	// Long 5 AAPL flattens with SELL 5; short 1 SPX call with BUY 1.
	assert.Equal(t, broker.Sell, confs[0].Side)
	assert.Equal(t, 5, confs[0].Quantity)
	assert.Equal(t, aapl.Key(), confs[0].Handle.Instrument.Key())

	assert.Equal(t, broker.Buy, confs[1].Side)
	assert.Equal(t, 1, confs[1].Quantity)
	assert.Equal(t, spxc.Key(), confs[1].Handle.Instrument.Key())

	for _, h := range g.Placed() {
		assert.Equal(t, broker.Market, h.Spec.Kind)
		assert.True(t, h.Spec.Transmit)
	}
}

func TestCloseAllEmptyBook(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	s := newConnectedSession(t, g, clock)
	closer := NewCloser(s, NewSubmitter(s, nil))

	confs, err := closer.CloseAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, confs)
	assert.Empty(t, g.Placed())
}

func TestCloseLeg(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	s := newConnectedSession(t, g, clock)
	closer := NewCloser(s, NewSubmitter(s, nil))

	opt := spxPut(4990)
	g.SetQuote(opt, quote(9.80, 10.00, 9.90))

	conf, err := closer.CloseLeg(context.Background(), opt, broker.Sell, 1)
	require.NoError(t, err)
	assert.Equal(t, broker.Sell, conf.Side)

	// Fire-and-forget: the fill price comes from a separate wait.
	w := NewFillWaiter(s, clock)
	st, err := w.Await(context.Background(), conf.Handle, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 9.80, st.AvgFillPrice, 1e-9)
}
