// Package sim is an in-memory broker.Gateway double. It backs the engine
// tests and the demo command: scripted quotes, scripted connect failures,
// deterministic fills, and a transmit-gated order book that mirrors the real
// gateway's bracket semantics.
package sim

import (
	"sync"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/market"
)

type simOrder struct {
	seq        int
	handle     broker.OrderHandle
	status     broker.OrderStatus
	transmit   bool
	fillAfter  int               // polls remaining before the scripted transition, -1 = inactive
	fillState  broker.OrderState // terminal state applied when fillAfter reaches zero
	fillPrice  float64
	instrument market.Instrument
}

type scriptedTransition struct {
	polls int
	state broker.OrderState
	price float64
}

type Gateway struct {
	mu sync.Mutex

	connected       bool
	connectFailures int // scripted: fail this many handshakes first
	connectAttempts int
	dataTypes       []broker.MarketDataType

	quotes  map[string][]market.Quote // FIFO per instrument, last entry sticks
	strikes map[string][]float64
	bars    map[string][]market.Bar
	values  []broker.AccountValue

	nextID    int
	seq       int
	orders    map[int]*simOrder
	placed    []*simOrder // submission sequence
	cancels   []int
	positions map[string]*broker.Position
	posOrder  []string // ledger keys in first-touch order

	autoFill      bool
	failNextPlace error
	pending       map[int]scriptedTransition // transitions scripted ahead of placement
}

func New() *Gateway {
	return &Gateway{
		quotes:    make(map[string][]market.Quote),
		strikes:   make(map[string][]float64),
		bars:      make(map[string][]market.Bar),
		orders:    make(map[int]*simOrder),
		positions: make(map[string]*broker.Position),
		autoFill:  true,
		pending:   make(map[int]scriptedTransition),
	}
}

// ---- scripting surface (test/paper setup, not part of broker.Gateway) ----

// FailConnects makes the next n handshakes fail before one succeeds.
func (g *Gateway) FailConnects(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connectFailures = n
}

func (g *Gateway) ConnectAttempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectAttempts
}

// DataTypes returns every market-data-type application, in order.
func (g *Gateway) DataTypes() []broker.MarketDataType {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]broker.MarketDataType(nil), g.dataTypes...)
}

// SetQuote replaces the quote script for an instrument with one sticky quote.
func (g *Gateway) SetQuote(inst market.Instrument, q market.Quote) {
	g.mu.Lock()
	defer g.mu.Unlock()
	q.Instrument = inst.Key()
	g.quotes[inst.Key()] = []market.Quote{q}
}

// QueueQuotes scripts successive snapshots for an instrument; each Snapshot
// call consumes one until a single quote remains, which then sticks.
func (g *Gateway) QueueQuotes(inst market.Instrument, qs ...market.Quote) {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := make([]market.Quote, 0, len(qs))
	for _, q := range qs {
		q.Instrument = inst.Key()
		list = append(list, q)
	}
	g.quotes[inst.Key()] = list
}

func (g *Gateway) SetStrikes(symbol string, strikes []float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.strikes[symbol] = strikes
}

func (g *Gateway) SetBars(inst market.Instrument, bars []market.Bar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bars[inst.Key()] = bars
}

func (g *Gateway) SetAccountValues(vals []broker.AccountValue) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values = vals
}

// SetPosition seeds the holdings ledger directly.
func (g *Gateway) SetPosition(inst market.Instrument, quantity int, avgCost float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := inst.Key()
	if _, ok := g.positions[key]; !ok {
		g.posOrder = append(g.posOrder, key)
	}
	g.positions[key] = &broker.Position{Instrument: inst, Quantity: quantity, AvgCost: avgCost}
}

// SetAutoFill toggles immediate fills for transmitted market orders.
func (g *Gateway) SetAutoFill(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autoFill = on
}

// FillAfterPolls fills an order at price once its status has been polled n
// more times. The order ID may belong to an order not placed yet, which lets
// tests script a bracket entry before Place allocates it.
func (g *Gateway) FillAfterPolls(orderID, n int, price float64) {
	g.scriptTransition(orderID, n, broker.StateFilled, price)
}

// RejectAfterPolls moves an order to Rejected after n more status polls.
func (g *Gateway) RejectAfterPolls(orderID, n int) {
	g.scriptTransition(orderID, n, broker.StateRejected, 0)
}

// CancelAfterPolls moves an order to Cancelled after n more status polls.
func (g *Gateway) CancelAfterPolls(orderID, n int) {
	g.scriptTransition(orderID, n, broker.StateCancelled, 0)
}

func (g *Gateway) scriptTransition(orderID, n int, state broker.OrderState, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.orders[orderID]; ok {
		o.fillAfter = n
		o.fillPrice = price
		o.fillState = state
		return
	}
	g.pending[orderID] = scriptedTransition{polls: n, state: state, price: price}
}

// SetOrderState scripts an immediate status transition, e.g. a rejection.
func (g *Gateway) SetOrderState(orderID int, state broker.OrderState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if o, ok := g.orders[orderID]; ok {
		o.status.State = state
	}
}

// FailNextPlace makes the next PlaceOrder return err.
func (g *Gateway) FailNextPlace(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNextPlace = err
}

// Placed returns the handles of every submitted order, in submission order.
func (g *Gateway) Placed() []broker.OrderHandle {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]broker.OrderHandle, 0, len(g.placed))
	for _, o := range g.placed {
		out = append(out, o.handle)
	}
	return out
}

// Cancelled returns the order IDs passed to CancelOrder, in call order.
func (g *Gateway) Cancelled() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.cancels...)
}

// DropConnection simulates a transport loss.
func (g *Gateway) DropConnection() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected = false
}
