package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/broker/sim"
)

func newCoordinator(t *testing.T, g *sim.Gateway, clock Clock) *Coordinator {
	t.Helper()
	s := newConnectedSession(t, g, clock)
	sub := NewSubmitter(s, nil)
	w := NewFillWaiter(s, clock)
	return NewCoordinator(s, sub, w, BracketConfig{}, clock)
}

func sellEntry(qty int, limit float64) broker.OrderSpec {
	return broker.OrderSpec{Side: broker.Sell, Quantity: qty, Kind: broker.Limit, LimitPrice: limit}
}

func TestExitPolicyValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ExitPolicy{StopPrice: 14.4}.Validate())
	assert.NoError(t, ExitPolicy{TrailingPercent: 14}.Validate())
	assert.Error(t, ExitPolicy{}.Validate())
	assert.Error(t, ExitPolicy{StopPrice: 14.4, TrailingPercent: 14}.Validate())
	assert.Error(t, ExitPolicy{TrailingPercent: 120}.Validate())
}

func TestPlaceBracketFixedStop(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	c := newCoordinator(t, g, clock)

	// Parent ID 1 is the first gateway-allocated ID; script its fill.
	g.FillAfterPolls(1, 2, 12.50)

	grp, err := c.Place(context.Background(), spxCall(5000), sellEntry(1, 12.50), ExitPolicy{StopPrice: 14.40})
	require.NoError(t, err)

	placed := g.Placed()
	require.Len(t, placed, 2)

	entry, exit := placed[0], placed[1]

	// Entry strictly precedes the exit and is gated from execution.
	assert.Equal(t, grp.ParentID, entry.OrderID)
	assert.False(t, entry.Spec.Transmit)
	assert.Equal(t, broker.Sell, entry.Spec.Side)

	// Exit references the parent and is released immediately; the gateway
	// keeps it dormant until the entry fills.
	assert.True(t, exit.Spec.Transmit)
	assert.Equal(t, grp.ParentID, exit.Spec.ParentID)
	assert.Equal(t, broker.Buy, exit.Spec.Side)
	assert.Equal(t, broker.Stop, exit.Spec.Kind)
	assert.InDelta(t, 14.40, exit.Spec.StopPrice, 1e-9)
	assert.Equal(t, entry.Spec.OCAGroup, exit.Spec.OCAGroup)
	assert.NotEmpty(t, grp.OCAGroup)

	assert.InDelta(t, 12.50, grp.FillPrice, 1e-9)
	assert.Equal(t, exit.OrderID, grp.Exit.OrderID)

	// Settling delay between the two submissions.
	sleeps := clock.Sleeps()
	require.NotEmpty(t, sleeps)
	assert.Equal(t, time.Second, sleeps[0])
}

func TestPlaceBracketTrailing(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	c := newCoordinator(t, g, clock)
	g.FillAfterPolls(1, 1, 12.50)

	grp, err := c.Place(context.Background(), spxCall(5000), sellEntry(1, 12.50), ExitPolicy{TrailingPercent: 14})
	require.NoError(t, err)

	exit := g.Placed()[1]
	assert.Equal(t, broker.TrailingStop, exit.Spec.Kind)
	assert.InDelta(t, 14.0, exit.Spec.TrailingPercent, 1e-9)
	assert.Zero(t, exit.Spec.StopPrice)
	assert.Equal(t, broker.TrailingStop, grp.Exit.Spec.Kind)
}

func TestPlaceBracketEntryRejected(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	c := newCoordinator(t, g, clock)
	g.RejectAfterPolls(1, 1)

	_, err := c.Place(context.Background(), spxCall(5000), sellEntry(1, 12.50), ExitPolicy{StopPrice: 14.40})
	require.Error(t, err)

	var berr *BracketError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "entry-fill", berr.Stage)
	assert.Equal(t, broker.StateRejected, berr.State)
	require.NotNil(t, berr.Exit)

	// The resting exit leg was reconciled, not abandoned silently.
	assert.Contains(t, g.Cancelled(), berr.Exit.OrderID)
	assert.NoError(t, berr.CancelErr)
}

func TestPlaceBracketEntryFillTimeout(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	s := newConnectedSession(t, g, clock)
	sub := NewSubmitter(s, nil)
	w := NewFillWaiter(s, clock)
	c := NewCoordinator(s, sub, w, BracketConfig{FillTimeout: 30 * time.Second}, clock)

	_, err := c.Place(context.Background(), spxCall(5000), sellEntry(1, 12.50), ExitPolicy{StopPrice: 14.40})
	require.Error(t, err)

	var berr *BracketError
	require.True(t, errors.As(err, &berr))
	var terr *FillTimeoutError
	assert.True(t, errors.As(berr.Err, &terr))
}

func TestPlaceBracketValidatesIntents(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	c := newCoordinator(t, g, clock)

	_, err := c.Place(context.Background(), spxCall(5000), broker.OrderSpec{Side: broker.Sell, Quantity: 0, Kind: broker.Market}, ExitPolicy{StopPrice: 14.4})
	assert.Error(t, err)

	_, err = c.Place(context.Background(), spxCall(5000), sellEntry(1, 12.50), ExitPolicy{})
	assert.Error(t, err)

	assert.Empty(t, g.Placed())
}

func TestRetargetTrailing(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	c := newCoordinator(t, g, clock)
	g.FillAfterPolls(1, 1, 12.50)

	grp, err := c.Place(context.Background(), spxCall(5000), sellEntry(1, 12.50), ExitPolicy{TrailingPercent: 14})
	require.NoError(t, err)
	oldExitID := grp.Exit.OrderID

	require.NoError(t, c.RetargetTrailing(context.Background(), grp, 10))

	assert.Contains(t, g.Cancelled(), oldExitID)
	assert.NotEqual(t, oldExitID, grp.Exit.OrderID)
	assert.InDelta(t, 10.0, grp.Exit.Spec.TrailingPercent, 1e-9)
	assert.Equal(t, grp.ParentID, grp.Exit.Spec.ParentID)
	assert.Equal(t, grp.OCAGroup, grp.Exit.Spec.OCAGroup)
}

func TestRetargetTrailingRejectsFixedStop(t *testing.T) {
	t.Parallel()

	g := sim.New()
	clock := newFakeClock()
	c := newCoordinator(t, g, clock)
	g.FillAfterPolls(1, 1, 12.50)

	grp, err := c.Place(context.Background(), spxCall(5000), sellEntry(1, 12.50), ExitPolicy{StopPrice: 14.40})
	require.NoError(t, err)

	assert.Error(t, c.RetargetTrailing(context.Background(), grp, 10))
}
