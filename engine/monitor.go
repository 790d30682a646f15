package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/internal/id"
	"github.com/tradekit/optrader/journal"
	"github.com/tradekit/optrader/market"
	"github.com/tradekit/optrader/risk"
)

var monitorLog = logrus.WithField("module", "monitor")

// Position is an open leg the engine tracks: created when an entry order
// fills, logically destroyed when a closing order for the same instrument
// fills. Quantity is signed; the short legs this system trades are negative.
type Position struct {
	Instrument market.Instrument
	Quantity   int
	FillPrice  float64
}

// MonitorState is the per-position stop-loss state machine.
type MonitorState int32

const (
	StateArmed MonitorState = iota
	StateTriggered
	StateClosed
)

func (s MonitorState) String() string {
	switch s {
	case StateArmed:
		return "Armed"
	case StateTriggered:
		return "Triggered"
	default:
		return "Closed"
	}
}

// MonitorConfig tunes one monitoring cycle.
type MonitorConfig struct {
	Policy   risk.TriggerPolicy
	Fraction float64

	ArmedInterval     time.Duration // tick while armed
	ClosePollInterval time.Duration // fill poll after the closing order
	SnapshotPoll      time.Duration
	SnapshotTimeout   time.Duration // bound on a never-ready premium

	Journal journal.Journal // trigger events, nil for none
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Policy == "" {
		c.Policy = risk.TriggerSymmetric
	}
	if c.ArmedInterval <= 0 {
		c.ArmedInterval = 10 * time.Second
	}
	if c.ClosePollInterval <= 0 {
		c.ClosePollInterval = 3 * time.Second
	}
	if c.SnapshotPoll <= 0 {
		c.SnapshotPoll = 100 * time.Millisecond
	}
	if c.Journal == nil {
		c.Journal = journal.Nop()
	}
	return c
}

// Monitor runs one independent stop-loss cycle for one open position:
// sample the live premium, compare against the trigger, and on breach issue
// a compensating market order. It terminates exactly once — on trigger-fire
// or cancellation — and never re-arms.
type Monitor struct {
	TaskID  string
	Trigger float64

	session *Session
	closer  *Closer
	waiter  *FillWaiter
	pos     Position
	cfg     MonitorConfig
	clock   Clock

	// unwind, when set, closes the paired hedge leg after this position is
	// flattened.
	unwind func(ctx context.Context) error

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewMonitor(s *Session, closer *Closer, waiter *FillWaiter, pos Position, cfg MonitorConfig, clock Clock, unwind func(ctx context.Context) error) *Monitor {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = RealClock()
	}
	right := pos.Instrument.Right
	return &Monitor{
		TaskID:  id.New(),
		Trigger: risk.TriggerPrice(cfg.Policy, right, pos.FillPrice, cfg.Fraction),
		session: s,
		closer:  closer,
		waiter:  waiter,
		pos:     pos,
		cfg:     cfg,
		clock:   clock,
		unwind:  unwind,
		done:    make(chan struct{}),
	}
}

// Start launches the monitoring goroutine. The returned monitor is
// cancellable via Cancel; Done closes when the cycle terminates.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	mtxMonitors.Inc()
	go m.run(ctx)
}

// Cancel stops an armed monitor before it fires. Safe to call at any time;
// a monitor that already triggered finishes its close instead.
func (m *Monitor) Cancel() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Done closes when the monitor reaches Closed.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Err reports why the monitor stopped, nil for a clean trigger-and-close.
func (m *Monitor) Err() error { return m.err }

func (m *Monitor) State() MonitorState { return MonitorState(m.state.Load()) }

func (m *Monitor) run(ctx context.Context) {
	defer mtxMonitors.Dec()
	defer close(m.done)
	defer m.state.Store(int32(StateClosed))

	log := monitorLog.WithFields(logrus.Fields{
		"task":       m.TaskID,
		"instrument": m.pos.Instrument.Key(),
		"trigger":    m.Trigger,
	})
	log.Info("stop-loss monitor armed")

	for {
		premium, err := AwaitPremium(ctx, m.session, m.pos.Instrument, m.clock, m.cfg.SnapshotPoll, m.cfg.SnapshotTimeout)
		if err != nil {
			if ctx.Err() != nil {
				m.err = ctx.Err()
				log.Info("monitor cancelled")
				return
			}
			// Stuck market data is not a reason to abandon the position;
			// log it and try again next tick.
			log.WithError(err).Warn("premium unavailable")
		} else {
			log.WithField("premium", premium).Debug("monitor tick")

			if risk.Breached(premium, m.Trigger) {
				// One-shot: only the Armed->Triggered winner closes.
				if !m.state.CompareAndSwap(int32(StateArmed), int32(StateTriggered)) {
					return
				}
				m.err = m.fire(ctx, log, premium)
				return
			}
		}

		if err := m.clock.Sleep(ctx, m.cfg.ArmedInterval); err != nil {
			m.err = err
			log.Info("monitor cancelled")
			return
		}
	}
}

// fire flattens the position with a compensating market order, waits for its
// fill, then unwinds the paired hedge leg if there is one.
func (m *Monitor) fire(ctx context.Context, log *logrus.Entry, premium float64) error {
	right := string(m.pos.Instrument.Right)
	if right == "" {
		right = "none"
	}
	mtxTriggers.WithLabelValues(right).Inc()
	log.WithField("premium", premium).Warn("stop-loss triggered, closing position")

	side := broker.Sell
	qty := m.pos.Quantity
	if qty < 0 {
		side = broker.Buy
		qty = -qty
	}

	conf, err := m.closer.CloseLeg(ctx, m.pos.Instrument, side, qty)
	if err != nil {
		log.WithError(err).Error("closing order failed")
		return err
	}

	st, err := m.waiter.Await(ctx, conf.Handle, m.cfg.ClosePollInterval, 0)
	if err != nil {
		log.WithError(err).Error("closing order did not fill")
		return err
	}
	log.WithField("close_price", st.AvgFillPrice).Info("position closed")

	if err := m.cfg.Journal.RecordStop(journal.StopRecord{
		TaskID:     m.TaskID,
		Instrument: m.pos.Instrument.Key(),
		Trigger:    m.Trigger,
		Premium:    premium,
		ClosePrice: st.AvgFillPrice,
		Time:       m.clock.Now(),
	}); err != nil {
		log.WithError(err).Warn("journal write failed")
	}

	if m.unwind != nil {
		if err := m.unwind(ctx); err != nil {
			log.WithError(err).Error("hedge unwind failed")
			return err
		}
	}
	return nil
}
