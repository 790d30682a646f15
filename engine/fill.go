package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradekit/optrader/broker"
)

var fillLog = logrus.WithField("module", "fill")

// FillWaiter polls a submitted order until it reaches a terminal state.
// The sleep between polls is a genuine suspension, never a busy spin.
type FillWaiter struct {
	session *Session
	clock   Clock
}

func NewFillWaiter(s *Session, clock Clock) *FillWaiter {
	if clock == nil {
		clock = RealClock()
	}
	return &FillWaiter{session: s, clock: clock}
}

// Await blocks until the order behind h is terminal, polling its status at
// the given interval. On Filled it returns the gateway-reported status with
// the average fill price; Cancelled or Rejected come back as a
// SubmissionError. A zero timeout waits forever.
func (w *FillWaiter) Await(ctx context.Context, h broker.OrderHandle, interval, timeout time.Duration) (broker.OrderStatus, error) {
	if interval <= 0 {
		interval = time.Second
	}

	start := w.clock.Now()
	var deadline time.Time
	if timeout > 0 {
		deadline = start.Add(timeout)
	}

	for {
		st, err := w.session.Gateway().OrderStatus(ctx, h.OrderID)
		if err != nil {
			return broker.OrderStatus{}, fmt.Errorf("poll order %d: %w", h.OrderID, err)
		}

		switch {
		case st.State == broker.StateFilled:
			fillLog.WithFields(logrus.Fields{
				"order_id": h.OrderID,
				"price":    st.AvgFillPrice,
			}).Info("order filled")
			return st, nil
		case st.State.Terminal():
			return st, &SubmissionError{OrderID: h.OrderID, State: st.State}
		}

		if !deadline.IsZero() && !w.clock.Now().Before(deadline) {
			return st, &FillTimeoutError{OrderID: h.OrderID, Waited: w.clock.Now().Sub(start)}
		}

		fillLog.WithFields(logrus.Fields{
			"order_id": h.OrderID,
			"state":    st.State,
		}).Debug("waiting for fill")

		if err := w.clock.Sleep(ctx, interval); err != nil {
			return st, fmt.Errorf("await fill of order %d: %w", h.OrderID, err)
		}
	}
}
