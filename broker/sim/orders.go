package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/market"
)

// broker.Gateway implementation. Every method checks connectivity the way
// the real gateway does: calls against a dead session fail fast.

func (g *Gateway) Connect(ctx context.Context, opts broker.ConnectOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connectAttempts++
	if g.connectFailures > 0 {
		g.connectFailures--
		return fmt.Errorf("handshake with %s:%d refused", opts.Host, opts.Port)
	}
	g.connected = true
	return nil
}

func (g *Gateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
	return nil
}

func (g *Gateway) SetMarketDataType(ctx context.Context, t broker.MarketDataType) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return broker.ErrNotConnected
	}
	g.dataTypes = append(g.dataTypes, t)
	return nil
}

func (g *Gateway) Qualify(ctx context.Context, inst market.Instrument) (market.Instrument, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return inst, broker.ErrNotConnected
	}
	if err := inst.Validate(); err != nil {
		return inst, err
	}
	if inst.ConID == 0 {
		g.nextID++
		inst.ConID = 100000 + g.nextID
	}
	return inst, nil
}

func (g *Gateway) Strikes(ctx context.Context, underlying market.Instrument) ([]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, broker.ErrNotConnected
	}
	s, ok := g.strikes[underlying.Symbol]
	if !ok {
		return nil, fmt.Errorf("no strike grid for %s", underlying.Symbol)
	}
	return append([]float64(nil), s...), nil
}

// Snapshot pops the next scripted quote for the instrument; the final
// scripted quote repeats. Unscripted instruments report a not-ready quote
// (all NaN), matching a live subscription before its first tick.
func (g *Gateway) Snapshot(ctx context.Context, inst market.Instrument) (market.Quote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return market.Quote{}, broker.ErrNotConnected
	}
	key := inst.Key()
	script := g.quotes[key]
	if len(script) == 0 {
		nan := math.NaN()
		return market.Quote{Instrument: key, Bid: nan, Ask: nan, Last: nan}, nil
	}
	q := script[0]
	if len(script) > 1 {
		g.quotes[key] = script[1:]
	}
	return q, nil
}

func (g *Gateway) HistoricalBars(ctx context.Context, inst market.Instrument, duration, barSize string) ([]market.Bar, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, broker.ErrNotConnected
	}
	return append([]market.Bar(nil), g.bars[inst.Key()]...), nil
}

func (g *Gateway) NextOrderID(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return 0, broker.ErrNotConnected
	}
	g.nextID++
	return g.nextID, nil
}

func (g *Gateway) PlaceOrder(ctx context.Context, inst market.Instrument, spec broker.OrderSpec) (broker.OrderHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return broker.OrderHandle{}, broker.ErrNotConnected
	}
	if err := g.failNextPlace; err != nil {
		g.failNextPlace = nil
		return broker.OrderHandle{}, err
	}

	if spec.OrderID == 0 {
		g.nextID++
		spec.OrderID = g.nextID
	}

	g.seq++
	o := &simOrder{
		seq:        g.seq,
		handle:     broker.OrderHandle{OrderID: spec.OrderID, Instrument: inst, Spec: spec},
		transmit:   spec.Transmit,
		fillAfter:  -1,
		instrument: inst,
	}
	o.status = broker.OrderStatus{State: broker.StatePendingSubmit, RemainingQty: spec.Quantity}

	if spec.Transmit {
		o.status.State = broker.StateSubmitted
		// Releasing a transmitted child releases its gated parent too.
		if spec.ParentID != 0 {
			if parent, ok := g.orders[spec.ParentID]; ok && parent.status.State == broker.StatePendingSubmit {
				parent.status.State = broker.StateSubmitted
			}
		}
	}

	if p, ok := g.pending[spec.OrderID]; ok {
		o.fillAfter = p.polls
		o.fillState = p.state
		o.fillPrice = p.price
		delete(g.pending, spec.OrderID)
	}

	g.orders[spec.OrderID] = o
	g.placed = append(g.placed, o)

	if g.autoFill && spec.Transmit && spec.Kind == broker.Market {
		g.fillLocked(o, g.marketPriceLocked(inst, spec.Side))
	}

	return o.handle, nil
}

// marketPriceLocked picks the taking side of the scripted quote, falling
// back to last/mid when the book is one-sided.
func (g *Gateway) marketPriceLocked(inst market.Instrument, side broker.Side) float64 {
	script := g.quotes[inst.Key()]
	if len(script) == 0 {
		return 0
	}
	q := script[0]
	px := q.Ask
	if side == broker.Sell {
		px = q.Bid
	}
	if math.IsNaN(px) || px <= 0 {
		px = q.Premium()
	}
	if math.IsNaN(px) {
		return 0
	}
	return px
}

func (g *Gateway) fillLocked(o *simOrder, price float64) {
	o.status = broker.OrderStatus{
		State:        broker.StateFilled,
		FilledQty:    o.handle.Spec.Quantity,
		AvgFillPrice: price,
	}
	g.applyFillLocked(o)
}

// applyFillLocked books the fill into the holdings ledger.
func (g *Gateway) applyFillLocked(o *simOrder) {
	key := o.instrument.Key()
	p, ok := g.positions[key]
	if !ok {
		p = &broker.Position{Instrument: o.instrument}
		g.positions[key] = p
		g.posOrder = append(g.posOrder, key)
	}
	delta := o.handle.Spec.Quantity
	if o.handle.Spec.Side == broker.Sell {
		delta = -delta
	}
	p.Quantity += delta
	p.AvgCost = o.status.AvgFillPrice
	if p.Quantity == 0 {
		delete(g.positions, key)
	}
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return broker.ErrNotConnected
	}
	o, ok := g.orders[orderID]
	if !ok {
		return broker.ErrUnknownOrder
	}
	g.cancels = append(g.cancels, orderID)
	if !o.status.State.Terminal() {
		o.status.State = broker.StateCancelled
	}
	return nil
}

func (g *Gateway) OrderStatus(ctx context.Context, orderID int) (broker.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return broker.OrderStatus{}, broker.ErrNotConnected
	}
	o, ok := g.orders[orderID]
	if !ok {
		return broker.OrderStatus{}, broker.ErrUnknownOrder
	}
	if o.fillAfter > 0 {
		o.fillAfter--
		if o.fillAfter == 0 {
			if o.fillState == broker.StateFilled {
				g.fillLocked(o, o.fillPrice)
			} else {
				o.status.State = o.fillState
			}
		}
	}
	return o.status, nil
}

func (g *Gateway) OpenOrders(ctx context.Context) ([]broker.OrderHandle, error) {
	return g.ordersWhere(func(o *simOrder) bool { return !o.status.State.Terminal() })
}

func (g *Gateway) CompletedOrders(ctx context.Context) ([]broker.OrderHandle, error) {
	return g.ordersWhere(func(o *simOrder) bool { return o.status.State.Terminal() })
}

func (g *Gateway) ordersWhere(keep func(*simOrder) bool) ([]broker.OrderHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, broker.ErrNotConnected
	}
	var out []broker.OrderHandle
	for _, o := range g.placed {
		if keep(o) {
			out = append(out, o.handle)
		}
	}
	return out, nil
}

func (g *Gateway) Positions(ctx context.Context) ([]broker.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, broker.ErrNotConnected
	}
	out := make([]broker.Position, 0, len(g.positions))
	for _, key := range g.posOrder {
		if p, ok := g.positions[key]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (g *Gateway) AccountValues(ctx context.Context) ([]broker.AccountValue, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, broker.ErrNotConnected
	}
	if g.values == nil {
		return nil, errors.New("no account values scripted")
	}
	return append([]broker.AccountValue(nil), g.values...), nil
}
