package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/market"
)

var closerLog = logrus.WithField("module", "closer")

// Confirmation is the submission receipt for one flattening order. Closes
// are fire-and-forget with respect to fills: callers that need the realized
// price run the handle through a FillWaiter.
type Confirmation struct {
	Handle   broker.OrderHandle
	Side     broker.Side
	Quantity int
}

// Closer flattens positions with market orders, both for stop-loss triggers
// and manual close requests.
type Closer struct {
	session   *Session
	submitter *Submitter
}

func NewCloser(s *Session, sub *Submitter) *Closer {
	return &Closer{session: s, submitter: sub}
}

// CloseAll enumerates the gateway's open positions and submits one market
// order per position, on the flattening side of its signed quantity
// (long -> SELL, short -> BUY). Zero rows are skipped.
func (c *Closer) CloseAll(ctx context.Context) ([]Confirmation, error) {
	positions, err := c.session.Gateway().Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	var confirmations []Confirmation
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		side := broker.Sell
		qty := p.Quantity
		if qty < 0 {
			side = broker.Buy
			qty = -qty
		}

		conf, err := c.CloseLeg(ctx, p.Instrument, side, qty)
		if err != nil {
			return confirmations, fmt.Errorf("close %s: %w", p.Instrument.Key(), err)
		}
		confirmations = append(confirmations, conf)
	}
	return confirmations, nil
}

// CloseLeg submits a single flattening market order for one instrument.
func (c *Closer) CloseLeg(ctx context.Context, inst market.Instrument, side broker.Side, quantity int) (Confirmation, error) {
	h, err := c.submitter.Submit(ctx, inst, broker.OrderSpec{
		Side:     side,
		Quantity: quantity,
		Kind:     broker.Market,
		Transmit: true,
	})
	if err != nil {
		return Confirmation{}, err
	}

	closerLog.WithFields(logrus.Fields{
		"instrument": inst.Key(),
		"side":       side,
		"qty":        quantity,
		"order_id":   h.OrderID,
	}).Info("flattening order submitted")

	return Confirmation{Handle: h, Side: side, Quantity: quantity}, nil
}
