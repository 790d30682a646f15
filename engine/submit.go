package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/internal/id"
	"github.com/tradekit/optrader/journal"
	"github.com/tradekit/optrader/market"
)

var submitLog = logrus.WithField("module", "submit")

// Submitter translates a trade intent into a gateway order and returns the
// handle. It never retries: a gateway rejection is terminal for that order
// and is surfaced as a SubmissionError. Price sanity for LIMIT/STOP intents
// is the caller's job (OrderSpec.Validate) — the submitter passes specs
// through untouched.
type Submitter struct {
	session *Session
	journal journal.Journal
}

func NewSubmitter(s *Session, j journal.Journal) *Submitter {
	if j == nil {
		j = journal.Nop()
	}
	return &Submitter{session: s, journal: j}
}

func (s *Submitter) Submit(ctx context.Context, inst market.Instrument, spec broker.OrderSpec) (broker.OrderHandle, error) {
	if spec.Reference == "" {
		spec.Reference = id.New()
	}

	h, err := s.session.Gateway().PlaceOrder(ctx, inst, spec)
	if err != nil {
		mtxRejections.Inc()
		submitLog.WithError(err).WithFields(logrus.Fields{
			"instrument": inst.Key(),
			"side":       spec.Side,
			"kind":       spec.Kind,
		}).Error("order submission failed")
		return broker.OrderHandle{}, &SubmissionError{OrderID: spec.OrderID, State: broker.StateRejected, Err: err}
	}

	mtxOrders.WithLabelValues(string(spec.Side), string(spec.Kind)).Inc()
	submitLog.WithFields(logrus.Fields{
		"order_id":   h.OrderID,
		"instrument": inst.Key(),
		"side":       spec.Side,
		"qty":        spec.Quantity,
		"kind":       spec.Kind,
		"transmit":   spec.Transmit,
	}).Info("order submitted")

	if err := s.journal.RecordOrder(journal.OrderRecord{
		RecordID:   spec.Reference,
		OrderID:    h.OrderID,
		Instrument: inst.Key(),
		Side:       string(spec.Side),
		Kind:       string(spec.Kind),
		Quantity:   spec.Quantity,
		Status:     string(broker.StateSubmitted),
		SubmitTime: s.session.clock.Now(),
	}); err != nil {
		// Journaling is observability, not control flow.
		submitLog.WithError(err).Warn("journal write failed")
	}

	return h, nil
}
