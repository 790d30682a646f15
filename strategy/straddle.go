package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/engine"
	"github.com/tradekit/optrader/journal"
	"github.com/tradekit/optrader/market"
)

var log = logrus.WithField("module", "strategy")

// Config parameterizes one straddle entry.
type Config struct {
	Underlying market.Instrument
	Expiry     string // YYYYMMDD
	Quantity   int

	// TrailingPercent > 0 protects the short legs with gateway-side
	// trailing stops placed as brackets. Zero uses client-side stop-loss
	// monitors instead.
	TrailingPercent float64

	// HedgeOffset > 0 buys protective OTM wings at spot +/- offset before
	// the short legs go on.
	HedgeOffset float64

	FillPoll        time.Duration
	FillTimeout     time.Duration
	SnapshotPoll    time.Duration
	SnapshotTimeout time.Duration

	Monitor engine.MonitorConfig
	Bracket engine.BracketConfig
}

func (c Config) Validate() error {
	if err := c.Underlying.Validate(); err != nil {
		return fmt.Errorf("underlying: %w", err)
	}
	if len(c.Expiry) != 8 {
		return fmt.Errorf("expiry must be YYYYMMDD, got %q", c.Expiry)
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if c.TrailingPercent == 0 && c.Monitor.Fraction <= 0 {
		return fmt.Errorf("monitored legs need a stop-loss fraction")
	}
	return nil
}

// Straddle sells an ATM call and put pair on one underlying, optionally
// wrapped in OTM hedge wings, and keeps each short leg protected until it is
// closed: either by a resting trailing stop at the gateway or by a
// client-side stop-loss monitor.
type Straddle struct {
	session *engine.Session
	sub     *engine.Submitter
	waiter  *engine.FillWaiter
	bracket *engine.Coordinator
	closer  *engine.Closer
	clock   engine.Clock
	cfg     Config

	mu       sync.Mutex
	monitors []*engine.Monitor
	groups   []*engine.Group
	hedges   map[market.Right]market.Instrument
}

func New(s *engine.Session, j journal.Journal, cfg Config, clock engine.Clock) *Straddle {
	if clock == nil {
		clock = engine.RealClock()
	}
	sub := engine.NewSubmitter(s, j)
	w := engine.NewFillWaiter(s, clock)
	cfg.Monitor.Journal = j
	return &Straddle{
		session: s,
		sub:     sub,
		waiter:  w,
		bracket: engine.NewCoordinator(s, sub, w, cfg.Bracket, clock),
		closer:  engine.NewCloser(s, sub),
		clock:   clock,
		cfg:     cfg,
		hedges:  make(map[market.Right]market.Instrument),
	}
}

// Enter reads the spot, picks the ATM strike off the gateway's strike grid,
// buys the hedge wings, then sells both short legs. It returns once every
// entry has filled and every protection is in place.
func (s *Straddle) Enter(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	spot, err := engine.AwaitPremium(ctx, s.session, s.cfg.Underlying, s.clock, s.cfg.SnapshotPoll, s.cfg.SnapshotTimeout)
	if err != nil {
		return fmt.Errorf("read spot: %w", err)
	}

	chain := s.cfg.Underlying
	chain.Expiry = s.cfg.Expiry
	strikes, err := s.session.Gateway().Strikes(ctx, chain)
	if err != nil {
		return fmt.Errorf("fetch strikes: %w", err)
	}
	atm, err := market.NearestStrike(strikes, spot)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"underlying": s.cfg.Underlying.Key(),
		"spot":       spot,
		"atm":        atm,
	}).Info("entering straddle")

	if s.cfg.HedgeOffset > 0 {
		if err := s.buyHedges(ctx, strikes, spot); err != nil {
			return err
		}
	}

	for _, right := range []market.Right{market.RightCall, market.RightPut} {
		if err := s.sellLeg(ctx, atm, right); err != nil {
			return err
		}
	}
	return nil
}

func (s *Straddle) buyHedges(ctx context.Context, strikes []float64, spot float64) error {
	for _, h := range []struct {
		right  market.Right
		target float64
	}{
		{market.RightCall, spot + s.cfg.HedgeOffset},
		{market.RightPut, spot - s.cfg.HedgeOffset},
	} {
		strike, err := market.NearestStrike(strikes, h.target)
		if err != nil {
			return err
		}
		inst := market.Option(s.cfg.Underlying.Symbol, s.cfg.Expiry, strike, h.right, s.cfg.Underlying.Exchange)

		price, err := s.fillLeg(ctx, inst, broker.Buy)
		if err != nil {
			return fmt.Errorf("hedge %s: %w", inst.Key(), err)
		}
		log.WithFields(logrus.Fields{
			"instrument": inst.Key(),
			"price":      price,
		}).Info("hedge wing bought")

		s.mu.Lock()
		s.hedges[h.right] = inst
		s.mu.Unlock()
	}
	return nil
}

func (s *Straddle) sellLeg(ctx context.Context, strike float64, right market.Right) error {
	inst := market.Option(s.cfg.Underlying.Symbol, s.cfg.Expiry, strike, right, s.cfg.Underlying.Exchange)

	if s.cfg.TrailingPercent > 0 {
		grp, err := s.bracket.Place(ctx, inst, broker.OrderSpec{
			Side:     broker.Sell,
			Quantity: s.cfg.Quantity,
			Kind:     broker.Market,
		}, engine.ExitPolicy{TrailingPercent: s.cfg.TrailingPercent})
		if err != nil {
			return fmt.Errorf("bracket %s: %w", inst.Key(), err)
		}
		s.mu.Lock()
		s.groups = append(s.groups, grp)
		s.mu.Unlock()
		return nil
	}

	price, err := s.fillLeg(ctx, inst, broker.Sell)
	if err != nil {
		return fmt.Errorf("short leg %s: %w", inst.Key(), err)
	}

	m := engine.NewMonitor(s.session, s.closer, s.waiter, engine.Position{
		Instrument: inst,
		Quantity:   -s.cfg.Quantity,
		FillPrice:  price,
	}, s.cfg.Monitor, s.clock, s.unwindHedge(right))
	m.Start(ctx)

	s.mu.Lock()
	s.monitors = append(s.monitors, m)
	s.mu.Unlock()
	return nil
}

// fillLeg submits a market order and blocks until it fills.
func (s *Straddle) fillLeg(ctx context.Context, inst market.Instrument, side broker.Side) (float64, error) {
	h, err := s.sub.Submit(ctx, inst, broker.OrderSpec{
		Side:     side,
		Quantity: s.cfg.Quantity,
		Kind:     broker.Market,
		Transmit: true,
	})
	if err != nil {
		return 0, err
	}
	st, err := s.waiter.Await(ctx, h, s.cfg.FillPoll, s.cfg.FillTimeout)
	if err != nil {
		return 0, err
	}
	return st.AvgFillPrice, nil
}

// unwindHedge returns the monitor hook that sells the same-side hedge wing
// once the short leg has been stopped out. Nil when no wing was bought.
func (s *Straddle) unwindHedge(right market.Right) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		s.mu.Lock()
		inst, ok := s.hedges[right]
		if ok {
			delete(s.hedges, right)
		}
		s.mu.Unlock()
		if !ok {
			return nil
		}
		_, err := s.closer.CloseLeg(ctx, inst, broker.Sell, s.cfg.Quantity)
		return err
	}
}

// Monitors returns the running stop-loss monitors, one per monitored leg.
func (s *Straddle) Monitors() []*engine.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.Monitor(nil), s.monitors...)
}

// Groups returns the placed bracket groups, one per trailing-protected leg.
func (s *Straddle) Groups() []*engine.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.Group(nil), s.groups...)
}

// Retarget moves every resting trailing exit to a new percent.
func (s *Straddle) Retarget(ctx context.Context, percent float64) error {
	for _, g := range s.Groups() {
		if err := s.bracket.RetargetTrailing(ctx, g, percent); err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until every monitor has terminated or the context ends.
func (s *Straddle) Wait(ctx context.Context) error {
	for _, m := range s.Monitors() {
		select {
		case <-m.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// CloseAll tears the straddle down: monitors are cancelled first so a
// concurrent trigger cannot race the flatten, resting exits are cancelled,
// then every remaining position is closed at market.
func (s *Straddle) CloseAll(ctx context.Context) ([]engine.Confirmation, error) {
	for _, m := range s.Monitors() {
		m.Cancel()
	}
	if err := s.Wait(ctx); err != nil {
		return nil, err
	}

	gw := s.session.Gateway()
	for _, g := range s.Groups() {
		if err := gw.CancelOrder(ctx, g.Exit.OrderID); err != nil {
			log.WithError(err).WithField("order_id", g.Exit.OrderID).Warn("exit cancel failed")
		}
	}

	return s.closer.CloseAll(ctx)
}
