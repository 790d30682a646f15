package broker

import (
	"context"
	"time"

	"github.com/tradekit/optrader/market"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type OrderKind string

const (
	Market       OrderKind = "MKT"
	Limit        OrderKind = "LMT"
	Stop         OrderKind = "STP"
	TrailingStop OrderKind = "TRAIL"
)

// OrderState mirrors the gateway's order status values. Status is owned by
// the gateway and only ever refreshed by polling it, never inferred locally.
type OrderState string

const (
	StatePendingSubmit   OrderState = "PendingSubmit"
	StateSubmitted       OrderState = "Submitted"
	StatePartiallyFilled OrderState = "PartiallyFilled"
	StateFilled          OrderState = "Filled"
	StateCancelled       OrderState = "Cancelled"
	StateRejected        OrderState = "Rejected"
)

func (s OrderState) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateRejected:
		return true
	}
	return false
}

// OrderSpec is a single order as the gateway sees it. OrderID zero lets the
// gateway assign one. Transmit=false prepares the order at the gateway
// without releasing it; a later child with Transmit=true releases the group.
type OrderSpec struct {
	OrderID  int
	ParentID int

	Side     Side
	Quantity int
	Kind     OrderKind

	LimitPrice      float64
	StopPrice       float64
	TrailingPercent float64

	Transmit bool
	OCAGroup string

	// Reference is a client-side tag carried into journal records.
	Reference string
}

func (s OrderSpec) Validate() error {
	if s.Quantity <= 0 {
		return errQuantity
	}
	if s.Side != Buy && s.Side != Sell {
		return errSide
	}
	switch s.Kind {
	case Market:
	case Limit:
		if s.LimitPrice < 0 {
			return errPrice
		}
	case Stop:
		if s.StopPrice < 0 {
			return errPrice
		}
	case TrailingStop:
		if s.TrailingPercent <= 0 || s.TrailingPercent >= 100 {
			return errTrailing
		}
	default:
		return errKind
	}
	return nil
}

// OrderHandle is the opaque reference returned by the gateway for a submitted
// order. Poll OrderStatus with its ID to observe state transitions.
type OrderHandle struct {
	OrderID    int
	Instrument market.Instrument
	Spec       OrderSpec
}

type OrderStatus struct {
	State        OrderState
	FilledQty    int
	RemainingQty int
	AvgFillPrice float64
}

// Position is a holdings row as reported by the gateway. Quantity is signed:
// positive long, negative short.
type Position struct {
	Instrument market.Instrument
	Quantity   int
	AvgCost    float64
}

type AccountValue struct {
	Tag      string
	Value    string
	Currency string
}

type MarketDataType int

const (
	DataRealtime      MarketDataType = 1
	DataFrozen        MarketDataType = 2
	DataDelayed       MarketDataType = 3
	DataDelayedFrozen MarketDataType = 4
)

type ConnectOptions struct {
	Host     string
	Port     int
	ClientID int
	Timeout  time.Duration
}

// Gateway is the brokerage boundary. Implementations: broker/ibkr (the real
// Client Portal gateway) and broker/sim (in-memory double). All sequencing,
// retry and polling discipline lives above this interface, in engine.
type Gateway interface {
	Connect(ctx context.Context, opts ConnectOptions) error
	IsConnected() bool
	Disconnect() error
	SetMarketDataType(ctx context.Context, t MarketDataType) error

	Qualify(ctx context.Context, inst market.Instrument) (market.Instrument, error)
	Strikes(ctx context.Context, underlying market.Instrument) ([]float64, error)
	Snapshot(ctx context.Context, inst market.Instrument) (market.Quote, error)
	HistoricalBars(ctx context.Context, inst market.Instrument, duration, barSize string) ([]market.Bar, error)

	NextOrderID(ctx context.Context) (int, error)
	PlaceOrder(ctx context.Context, inst market.Instrument, spec OrderSpec) (OrderHandle, error)
	CancelOrder(ctx context.Context, orderID int) error
	OrderStatus(ctx context.Context, orderID int) (OrderStatus, error)
	OpenOrders(ctx context.Context) ([]OrderHandle, error)
	CompletedOrders(ctx context.Context) ([]OrderHandle, error)

	Positions(ctx context.Context) ([]Position, error)
	AccountValues(ctx context.Context) ([]AccountValue, error)
}
