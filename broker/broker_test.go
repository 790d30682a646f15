package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSideOpposite(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
}

func TestOrderStateTerminal(t *testing.T) {
	t.Parallel()

	terminal := []OrderState{StateFilled, StateCancelled, StateRejected}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), string(s))
	}

	live := []OrderState{StatePendingSubmit, StateSubmitted, StatePartiallyFilled}
	for _, s := range live {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestOrderSpecValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec OrderSpec
		ok   bool
	}{
		{"market", OrderSpec{Side: Sell, Quantity: 1, Kind: Market}, true},
		{"limit", OrderSpec{Side: Sell, Quantity: 1, Kind: Limit, LimitPrice: 12.5}, true},
		{"stop", OrderSpec{Side: Buy, Quantity: 2, Kind: Stop, StopPrice: 14.0}, true},
		{"trail", OrderSpec{Side: Buy, Quantity: 1, Kind: TrailingStop, TrailingPercent: 14}, true},
		{"zero quantity", OrderSpec{Side: Buy, Quantity: 0, Kind: Market}, false},
		{"negative quantity", OrderSpec{Side: Buy, Quantity: -1, Kind: Market}, false},
		{"bad side", OrderSpec{Side: Side("HOLD"), Quantity: 1, Kind: Market}, false},
		{"negative limit", OrderSpec{Side: Sell, Quantity: 1, Kind: Limit, LimitPrice: -1}, false},
		{"negative stop", OrderSpec{Side: Buy, Quantity: 1, Kind: Stop, StopPrice: -0.5}, false},
		{"trail out of range", OrderSpec{Side: Buy, Quantity: 1, Kind: TrailingStop, TrailingPercent: 0}, false},
		{"unknown kind", OrderSpec{Side: Buy, Quantity: 1, Kind: OrderKind("ICEBERG")}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.spec.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
