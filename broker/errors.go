package broker

import "errors"

var (
	errQuantity = errors.New("order quantity must be a positive integer")
	errSide     = errors.New("order side must be BUY or SELL")
	errPrice    = errors.New("order price must be non-negative")
	errTrailing = errors.New("trailing percent must be in (0, 100)")
	errKind     = errors.New("unknown order kind")

	// ErrNotConnected is returned by gateway calls made before Connect or
	// after the session dropped.
	ErrNotConnected = errors.New("gateway not connected")

	// ErrUnknownOrder is returned when polling an order ID the gateway has
	// no record of.
	ErrUnknownOrder = errors.New("unknown order id")
)
