package engine

import (
	"fmt"
	"time"

	"github.com/tradekit/optrader/broker"
)

// ConnectionError reports a connect loop that gave up after its configured
// attempt cap. With an unbounded cap it is only returned on context
// cancellation.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("gateway connect failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SubmissionError is terminal for a single order: the gateway rejected or
// cancelled it. It is surfaced to the caller and never retried.
type SubmissionError struct {
	OrderID int
	State   broker.OrderState
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order %d submission failed: %v", e.OrderID, e.Err)
	}
	return fmt.Sprintf("order %d reached %s", e.OrderID, e.State)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// FillTimeoutError reports a fill wait that exceeded its configured timeout
// without the order reaching a terminal state.
type FillTimeoutError struct {
	OrderID int
	Waited  time.Duration
}

func (e *FillTimeoutError) Error() string {
	return fmt.Sprintf("order %d not terminal after %s", e.OrderID, e.Waited)
}

// BracketError means the entry leg did not reach Filled. Exit carries the
// resting protective order, if one was already released: the caller must
// reconcile or cancel it. CancelErr reports a failed best-effort cancel of
// that leg; it is informational, the bracket already failed.
type BracketError struct {
	Stage     string // "entry-submit", "exit-submit", "entry-fill"
	Entry     broker.OrderHandle
	Exit      *broker.OrderHandle
	State     broker.OrderState
	Err       error
	CancelErr error
}

func (e *BracketError) Error() string {
	msg := fmt.Sprintf("bracket %s: entry order %d", e.Stage, e.Entry.OrderID)
	if e.State != "" {
		msg += fmt.Sprintf(" reached %s", e.State)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.CancelErr != nil {
		msg += fmt.Sprintf(" (exit leg cancel failed: %v)", e.CancelErr)
	}
	return msg
}

func (e *BracketError) Unwrap() error { return e.Err }

// DataUnavailableError reports a market data snapshot that never became
// ready within the configured wait.
type DataUnavailableError struct {
	Instrument string
	Waited     time.Duration
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("market data for %s not ready after %s", e.Instrument, e.Waited)
}
