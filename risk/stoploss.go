// Package risk holds the stop-loss trigger arithmetic for short option
// positions. The trigger price is derived once from the entry fill and is
// deterministic given (fill price, fraction, right, policy).
package risk

import (
	"fmt"
	"math"

	"github.com/tradekit/optrader/market"
)

// TriggerPolicy names how the put-side threshold is computed.
//
// The original system compared the live premium with >= against
// fill*(1+frac) for short calls but fill*(1-frac) for short puts, which makes
// a short put trigger almost immediately. Both variants are kept behind this
// policy so callers choose the trading semantics explicitly; nothing here
// silently "fixes" the asymmetry.
type TriggerPolicy string

const (
	// TriggerSymmetric arms both rights at fill*(1+frac): a short option
	// loses when its premium rises, whichever the right.
	TriggerSymmetric TriggerPolicy = "symmetric"

	// TriggerReference reproduces the original asymmetric behavior:
	// calls at fill*(1+frac), puts at fill*(1-frac).
	TriggerReference TriggerPolicy = "reference"
)

func (p TriggerPolicy) Validate() error {
	switch p {
	case TriggerSymmetric, TriggerReference:
		return nil
	}
	return fmt.Errorf("unknown trigger policy %q", string(p))
}

// TriggerPrice computes the stop trigger for a short position entered at
// fillPrice with the given stop-loss fraction (e.g. 0.15 for 15%).
func TriggerPrice(policy TriggerPolicy, right market.Right, fillPrice, fraction float64) float64 {
	if policy == TriggerReference && right == market.RightPut {
		return fillPrice * (1 - fraction)
	}
	return fillPrice * (1 + fraction)
}

// Breached reports whether a live premium crosses the trigger. Both policy
// variants fire on premium >= trigger. NaN premiums (market data not ready)
// never breach.
func Breached(premium, trigger float64) bool {
	if math.IsNaN(premium) {
		return false
	}
	return premium >= trigger
}
