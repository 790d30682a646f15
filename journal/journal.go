package journal

import "time"

// OrderRecord is one order handed to the gateway. Status is the last state
// the engine saw when it wrote the record; fill price stays zero for orders
// journaled at submission time.
type OrderRecord struct {
	RecordID   string
	OrderID    int
	Instrument string
	Side       string
	Kind       string
	Quantity   int
	Status     string
	FillPrice  float64
	SubmitTime time.Time
}

// StopRecord is one stop-loss trigger: the premium that breached, the trigger
// it breached, and the price the compensating order filled at.
type StopRecord struct {
	TaskID     string
	Instrument string
	Trigger    float64
	Premium    float64
	ClosePrice float64
	Time       time.Time
}

type Journal interface {
	RecordOrder(OrderRecord) error
	RecordStop(StopRecord) error
	Close() error
}

// Nop returns a journal that discards everything.
func Nop() Journal { return nop{} }

type nop struct{}

func (nop) RecordOrder(OrderRecord) error { return nil }
func (nop) RecordStop(StopRecord) error   { return nil }
func (nop) Close() error                  { return nil }
