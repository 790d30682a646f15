package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/market"
)

var bracketLog = logrus.WithField("module", "bracket")

// ExitPolicy selects the protective leg of a bracket. Exactly one variant
// may be set: a fixed stop price or a trailing percentage. Target-profit
// legs are deliberately not supported.
type ExitPolicy struct {
	StopPrice       float64
	TrailingPercent float64
}

func (p ExitPolicy) Validate() error {
	hasStop := p.StopPrice > 0
	hasTrail := p.TrailingPercent > 0
	if hasStop == hasTrail {
		return errors.New("exit policy needs exactly one of stop price or trailing percent")
	}
	if hasTrail && p.TrailingPercent >= 100 {
		return errors.New("trailing percent must be below 100")
	}
	return nil
}

// BracketConfig tunes the coordinator's waits.
type BracketConfig struct {
	// SettleDelay is the pause between submitting the entry and the exit,
	// letting the gateway register the parent before the child references
	// it.
	SettleDelay      time.Duration
	FillPollInterval time.Duration
	FillTimeout      time.Duration // zero waits forever for the entry fill
}

func (c BracketConfig) withDefaults() BracketConfig {
	if c.SettleDelay <= 0 {
		c.SettleDelay = time.Second
	}
	if c.FillPollInterval <= 0 {
		c.FillPollInterval = time.Second
	}
	return c
}

// Group is a placed bracket: the entry handle, the live exit handle (kept
// for later retargeting), and the entry's realized fill price.
type Group struct {
	ParentID  int
	OCAGroup  string
	Entry     broker.OrderHandle
	Exit      broker.OrderHandle
	FillPrice float64
}

// Coordinator places bracket orders: an entry order gated with
// transmit=false, then a dependent protective order with transmit=true
// referencing the entry as parent. The gateway releases the pair together
// and keeps the exit dormant until the entry fills; that activation is
// gateway-side, not ours.
type Coordinator struct {
	session   *Session
	submitter *Submitter
	waiter    *FillWaiter
	cfg       BracketConfig
	clock     Clock
}

func NewCoordinator(s *Session, sub *Submitter, w *FillWaiter, cfg BracketConfig, clock Clock) *Coordinator {
	if clock == nil {
		clock = RealClock()
	}
	return &Coordinator{session: s, submitter: sub, waiter: w, cfg: cfg.withDefaults(), clock: clock}
}

// Place submits the entry and its protective exit back-to-back, then blocks
// until the entry is terminal. Entry submission strictly precedes exit
// submission, which strictly precedes the fill wait. If the entry ends
// Rejected or Cancelled the resting exit leg is best-effort cancelled and a
// BracketError is returned — a missing fill price is never treated as valid.
func (c *Coordinator) Place(ctx context.Context, inst market.Instrument, entry broker.OrderSpec, exit ExitPolicy) (*Group, error) {
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("entry intent: %w", err)
	}
	if err := exit.Validate(); err != nil {
		return nil, err
	}

	parentID, err := c.session.Gateway().NextOrderID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate parent order id: %w", err)
	}
	oca := "bracket-" + uuid.NewString()

	entry.OrderID = parentID
	entry.Transmit = false
	entry.OCAGroup = oca

	exitSpec := broker.OrderSpec{
		ParentID: parentID,
		Side:     entry.Side.Opposite(),
		Quantity: entry.Quantity,
		Transmit: true,
		OCAGroup: oca,
	}
	if exit.TrailingPercent > 0 {
		exitSpec.Kind = broker.TrailingStop
		exitSpec.TrailingPercent = exit.TrailingPercent
	} else {
		exitSpec.Kind = broker.Stop
		exitSpec.StopPrice = exit.StopPrice
	}

	entryHandle, err := c.submitter.Submit(ctx, inst, entry)
	if err != nil {
		return nil, &BracketError{Stage: "entry-submit", Entry: broker.OrderHandle{OrderID: parentID}, Err: err}
	}

	if err := c.clock.Sleep(ctx, c.cfg.SettleDelay); err != nil {
		return nil, &BracketError{Stage: "exit-submit", Entry: entryHandle, Err: err}
	}

	exitHandle, err := c.submitter.Submit(ctx, inst, exitSpec)
	if err != nil {
		return nil, &BracketError{Stage: "exit-submit", Entry: entryHandle, Err: err}
	}

	bracketLog.WithFields(logrus.Fields{
		"parent_id": parentID,
		"exit_id":   exitHandle.OrderID,
		"oca":       oca,
		"kind":      exitSpec.Kind,
	}).Info("bracket placed, waiting for entry fill")

	st, err := c.waiter.Await(ctx, entryHandle, c.cfg.FillPollInterval, c.cfg.FillTimeout)
	if err != nil {
		berr := &BracketError{
			Stage: "entry-fill",
			Entry: entryHandle,
			Exit:  &exitHandle,
			State: st.State,
			Err:   err,
		}
		// The exit leg may be resting at the gateway; try to pull it and
		// report, not hide, a failure to do so.
		if cerr := c.session.Gateway().CancelOrder(ctx, exitHandle.OrderID); cerr != nil {
			berr.CancelErr = cerr
		}
		return nil, berr
	}

	return &Group{
		ParentID:  parentID,
		OCAGroup:  oca,
		Entry:     entryHandle,
		Exit:      exitHandle,
		FillPrice: st.AvgFillPrice,
	}, nil
}

// RetargetTrailing replaces the group's resting trailing exit with one at a
// new trailing percent, cancel-then-replace. The replacement keeps the
// parent and OCA group so the gateway still ties it to the entry.
func (c *Coordinator) RetargetTrailing(ctx context.Context, g *Group, percent float64) error {
	if g.Exit.Spec.Kind != broker.TrailingStop {
		return fmt.Errorf("order %d is not a trailing stop", g.Exit.OrderID)
	}
	if percent <= 0 || percent >= 100 {
		return errors.New("trailing percent must be in (0, 100)")
	}

	if err := c.session.Gateway().CancelOrder(ctx, g.Exit.OrderID); err != nil {
		return fmt.Errorf("cancel exit order %d: %w", g.Exit.OrderID, err)
	}
	if err := c.clock.Sleep(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}

	spec := g.Exit.Spec
	spec.OrderID = 0
	spec.TrailingPercent = percent
	spec.Transmit = true

	h, err := c.submitter.Submit(ctx, g.Exit.Instrument, spec)
	if err != nil {
		return fmt.Errorf("replace exit order: %w", err)
	}

	bracketLog.WithFields(logrus.Fields{
		"old_exit_id": g.Exit.OrderID,
		"new_exit_id": h.OrderID,
		"percent":     percent,
	}).Info("trailing exit retargeted")

	g.Exit = h
	return nil
}
