package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tradekit/optrader/market"
)

// AwaitPremium polls the gateway snapshot for inst until it carries a usable
// premium, sampling at the given interval. Gateways report NaN until the
// first tick of a subscription arrives, so the first snapshots after a
// request are routinely not ready. A zero timeout waits forever (the
// reference behavior); with one set the wait ends in DataUnavailableError.
func AwaitPremium(ctx context.Context, s *Session, inst market.Instrument, clock Clock, interval, timeout time.Duration) (float64, error) {
	if clock == nil {
		clock = RealClock()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	start := clock.Now()
	var deadline time.Time
	if timeout > 0 {
		deadline = start.Add(timeout)
	}

	for {
		q, err := s.Gateway().Snapshot(ctx, inst)
		if err != nil {
			return 0, fmt.Errorf("snapshot %s: %w", inst.Key(), err)
		}
		if q.Ready() {
			return q.Premium(), nil
		}

		if !deadline.IsZero() && !clock.Now().Before(deadline) {
			return 0, &DataUnavailableError{Instrument: inst.Key(), Waited: clock.Now().Sub(start)}
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return 0, fmt.Errorf("await quote for %s: %w", inst.Key(), err)
		}
	}
}
