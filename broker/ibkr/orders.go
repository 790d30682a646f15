package ibkr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/market"
)

// cpOrder ties a local order id to the gateway-side order. cpID stays empty
// while the order is held back locally (a transmit-gated parent).
type cpOrder struct {
	cpID   string
	coid   string
	handle broker.OrderHandle
	held   broker.OrderStatus // authoritative only until cpID is known
}

// pendingOrder is a transmit-gated parent waiting for its releasing child.
type pendingOrder struct {
	conID int
	inst  market.Instrument
	spec  broker.OrderSpec
}

// NextOrderID allocates a client-side order id. The Client Portal assigns its
// own ids at submission; these local ids exist so parents can be referenced
// before anything reaches the wire.
func (g *Gateway) NextOrderID(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return 0, broker.ErrNotConnected
	}
	g.localSeq++
	return g.localSeq, nil
}

func (g *Gateway) coid(orderID int) string {
	return fmt.Sprintf("optrader-%d-%d", g.epoch, orderID)
}

// PlaceOrder submits one order. A spec with Transmit=false is held back
// locally and goes to the wire together with the child that references it as
// parent, matching the API's bracket submission shape (one request, children
// carrying the parent's client order id).
func (g *Gateway) PlaceOrder(ctx context.Context, inst market.Instrument, spec broker.OrderSpec) (broker.OrderHandle, error) {
	if _, err := g.ensureConnected(); err != nil {
		return broker.OrderHandle{}, err
	}
	if err := spec.Validate(); err != nil {
		return broker.OrderHandle{}, err
	}

	inst, err := g.Qualify(ctx, inst)
	if err != nil {
		return broker.OrderHandle{}, err
	}

	g.mu.Lock()
	if spec.OrderID == 0 {
		g.localSeq++
		spec.OrderID = g.localSeq
	}
	handle := broker.OrderHandle{OrderID: spec.OrderID, Instrument: inst, Spec: spec}

	if !spec.Transmit {
		g.pending[spec.OrderID] = &pendingOrder{conID: inst.ConID, inst: inst, spec: spec}
		g.orders[spec.OrderID] = &cpOrder{
			coid:   g.coid(spec.OrderID),
			handle: handle,
			held:   broker.OrderStatus{State: broker.StatePendingSubmit, RemainingQty: spec.Quantity},
		}
		g.mu.Unlock()
		return handle, nil
	}

	acct := g.accountID
	var batch []map[string]any
	var localIDs []int

	if parent, ok := g.pending[spec.ParentID]; ok {
		delete(g.pending, spec.ParentID)
		batch = append(batch, g.orderPayload(acct, parent.conID, parent.spec, g.coid(parent.spec.OrderID), ""))
		localIDs = append(localIDs, parent.spec.OrderID)
		batch = append(batch, g.orderPayload(acct, inst.ConID, spec, g.coid(spec.OrderID), g.coid(spec.ParentID)))
	} else {
		batch = append(batch, g.orderPayload(acct, inst.ConID, spec, g.coid(spec.OrderID), ""))
	}
	localIDs = append(localIDs, spec.OrderID)
	g.orders[spec.OrderID] = &cpOrder{coid: g.coid(spec.OrderID), handle: handle}
	g.mu.Unlock()

	results, err := g.submit(ctx, acct, batch)
	if err != nil {
		return broker.OrderHandle{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, res := range results {
		for _, localID := range localIDs {
			o := g.orders[localID]
			if o != nil && (res.LocalOrderID == o.coid || len(results) == 1) {
				o.cpID = res.OrderID
			}
		}
	}
	log.WithFields(logrus.Fields{
		"order_id":   spec.OrderID,
		"instrument": inst.Key(),
		"side":       spec.Side,
		"kind":       spec.Kind,
	}).Debug("order accepted by gateway")
	return handle, nil
}

func (g *Gateway) orderPayload(acct string, conID int, spec broker.OrderSpec, coid, parentCOID string) map[string]any {
	p := map[string]any{
		"acctId":    acct,
		"conid":     conID,
		"orderType": string(spec.Kind),
		"side":      string(spec.Side),
		"quantity":  spec.Quantity,
		"tif":       "DAY",
		"cOID":      coid,
	}
	switch spec.Kind {
	case broker.Limit:
		p["price"] = spec.LimitPrice
	case broker.Stop:
		p["price"] = spec.StopPrice
	case broker.TrailingStop:
		p["trailingAmt"] = spec.TrailingPercent
		p["trailingType"] = "%"
	}
	if parentCOID != "" {
		p["parentId"] = parentCOID
	}
	if spec.OCAGroup != "" {
		p["isSingleGroup"] = true
	}
	return p
}

type submitResult struct {
	OrderID      string   `json:"order_id"`
	OrderStatus  string   `json:"order_status"`
	LocalOrderID string   `json:"local_order_id"`
	ReplyID      string   `json:"id"`
	Messages     []string `json:"message"`
}

// submit posts the order batch and answers the gateway's confirmation
// prompts (precautionary warnings the web UI would show as dialogs).
func (g *Gateway) submit(ctx context.Context, acct string, orders []map[string]any) ([]submitResult, error) {
	var results []submitResult
	err := g.post(ctx, fmt.Sprintf("/iserver/account/%s/orders", acct), map[string]any{"orders": orders}, &results)
	if err != nil {
		return nil, err
	}

	for hops := 0; hops < 3; hops++ {
		if len(results) == 0 || results[0].ReplyID == "" {
			return results, nil
		}
		replyID := results[0].ReplyID
		var next []submitResult
		err := g.post(ctx, "/iserver/reply/"+replyID, map[string]any{"confirmed": true}, &next)
		if err != nil {
			return nil, fmt.Errorf("confirm reply %s: %w", replyID, err)
		}
		results = next
	}
	return nil, fmt.Errorf("order confirmation did not settle")
}

func (g *Gateway) CancelOrder(ctx context.Context, orderID int) error {
	acct, err := g.ensureConnected()
	if err != nil {
		return err
	}

	g.mu.Lock()
	o, ok := g.orders[orderID]
	if !ok {
		g.mu.Unlock()
		return broker.ErrUnknownOrder
	}
	if _, held := g.pending[orderID]; held {
		// Never reached the wire; drop it locally.
		delete(g.pending, orderID)
		o.held.State = broker.StateCancelled
		g.mu.Unlock()
		return nil
	}
	cpID := o.cpID
	g.mu.Unlock()

	resp, err := g.rest.R().SetContext(ctx).Delete(fmt.Sprintf("/iserver/account/%s/order/%s", acct, cpID))
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("cancel order %s: status %d: %s", cpID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (g *Gateway) OrderStatus(ctx context.Context, orderID int) (broker.OrderStatus, error) {
	if _, err := g.ensureConnected(); err != nil {
		return broker.OrderStatus{}, err
	}

	g.mu.Lock()
	o, ok := g.orders[orderID]
	if !ok {
		g.mu.Unlock()
		return broker.OrderStatus{}, broker.ErrUnknownOrder
	}
	if o.cpID == "" {
		st := o.held
		g.mu.Unlock()
		return st, nil
	}
	cpID := o.cpID
	g.mu.Unlock()

	var raw struct {
		OrderStatus       string `json:"order_status"`
		CumFill           string `json:"cum_fill"`
		RemainingQuantity string `json:"remaining_quantity"`
		AveragePrice      string `json:"average_price"`
	}
	if err := g.get(ctx, "/iserver/account/order/status/"+cpID, nil, &raw); err != nil {
		return broker.OrderStatus{}, err
	}

	return broker.OrderStatus{
		State:        mapOrderState(raw.OrderStatus),
		FilledQty:    atoiSafe(raw.CumFill),
		RemainingQty: atoiSafe(raw.RemainingQuantity),
		AvgFillPrice: atofSafe(raw.AveragePrice),
	}, nil
}

// mapOrderState folds the Client Portal status vocabulary onto ours.
// Inactive is what the gateway reports for rejected orders.
func mapOrderState(s string) broker.OrderState {
	switch s {
	case "PendingSubmit":
		return broker.StatePendingSubmit
	case "PreSubmitted", "Submitted", "PendingCancel":
		return broker.StateSubmitted
	case "Filled":
		return broker.StateFilled
	case "Cancelled":
		return broker.StateCancelled
	case "Inactive":
		return broker.StateRejected
	default:
		return broker.OrderState(s)
	}
}

func (g *Gateway) OpenOrders(ctx context.Context) ([]broker.OrderHandle, error) {
	return g.liveOrders(ctx, func(st broker.OrderState) bool { return !st.Terminal() })
}

func (g *Gateway) CompletedOrders(ctx context.Context) ([]broker.OrderHandle, error) {
	return g.liveOrders(ctx, func(st broker.OrderState) bool { return st.Terminal() })
}

func (g *Gateway) liveOrders(ctx context.Context, keep func(broker.OrderState) bool) ([]broker.OrderHandle, error) {
	if _, err := g.ensureConnected(); err != nil {
		return nil, err
	}

	var raw struct {
		Orders []struct {
			OrderID int64  `json:"orderId"`
			Status  string `json:"status"`
		} `json:"orders"`
	}
	if err := g.get(ctx, "/iserver/account/orders", nil, &raw); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	var out []broker.OrderHandle
	for _, row := range raw.Orders {
		cpID := strconv.FormatInt(row.OrderID, 10)
		for _, o := range g.orders {
			if o.cpID == cpID && keep(mapOrderState(row.Status)) {
				out = append(out, o.handle)
			}
		}
	}
	return out, nil
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func atofSafe(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
