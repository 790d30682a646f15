package cmd

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradekit/optrader/broker/sim"
	"github.com/tradekit/optrader/engine"
	"github.com/tradekit/optrader/journal"
	"github.com/tradekit/optrader/market"
	"github.com/tradekit/optrader/strategy"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted straddle lifecycle against the in-memory gateway",
	Long: `Run the full straddle lifecycle against the in-memory gateway double, with
no brokerage connection required.

Shows the complete workflow:
  1. Reading the spot and picking the ATM strike
  2. Buying the OTM hedge wings
  3. Selling the call and put legs with stop-loss monitors armed
  4. A premium spike stopping out the call leg and unwinding its wing
  5. Tearing the rest down and journaling everything to CSV`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

const (
	demoExpiry = "20260320"
	demoSpot   = 5004.0
)

func runDemo(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("=== Straddle Lifecycle Demo ===")
	fmt.Println()

	j, err := journal.NewCSV("./demo-orders.csv", "./demo-stops.csv")
	if err != nil {
		return err
	}
	defer j.Close()

	gw := sim.New()
	underlying := market.Index("SPX", "CBOE")
	gw.SetQuote(underlying, market.Quote{Bid: demoSpot - 1, Ask: demoSpot + 1, Last: demoSpot, Time: time.Now()})
	gw.SetStrikes("SPX", []float64{4900, 4950, 5000, 5050, 5100})

	atmCall := market.Option("SPX", demoExpiry, 5000, market.RightCall, "CBOE")
	atmPut := market.Option("SPX", demoExpiry, 5000, market.RightPut, "CBOE")
	wingCall := market.Option("SPX", demoExpiry, 5100, market.RightCall, "CBOE")
	wingPut := market.Option("SPX", demoExpiry, 4900, market.RightPut, "CBOE")
	gw.SetQuote(atmCall, market.Quote{Bid: 12.40, Ask: 12.60, Last: 12.50, Time: time.Now()})
	gw.SetQuote(atmPut, market.Quote{Bid: 11.90, Ask: 12.10, Last: 12.00, Time: time.Now()})
	gw.SetQuote(wingCall, market.Quote{Bid: 1.00, Ask: 1.20, Last: 1.10, Time: time.Now()})
	gw.SetQuote(wingPut, market.Quote{Bid: 1.30, Ask: 1.50, Last: 1.40, Time: time.Now()})

	session := engine.NewSession(gw, engine.SessionConfig{Host: "sim", Port: 4001}, nil)
	if err := session.Connect(ctx); err != nil {
		return err
	}
	defer session.Disconnect()

	cfg := strategy.Config{
		Underlying:      underlying,
		Expiry:          demoExpiry,
		Quantity:        1,
		HedgeOffset:     100,
		FillPoll:        10 * time.Millisecond,
		FillTimeout:     5 * time.Second,
		SnapshotPoll:    10 * time.Millisecond,
		SnapshotTimeout: time.Second,
		Monitor: engine.MonitorConfig{
			Fraction:          0.15,
			ArmedInterval:     20 * time.Millisecond,
			ClosePollInterval: 10 * time.Millisecond,
			SnapshotPoll:      10 * time.Millisecond,
			SnapshotTimeout:   time.Second,
		},
	}

	st := strategy.New(session, j, cfg, nil)
	if err := st.Enter(ctx); err != nil {
		return err
	}

	fmt.Printf("Spot: %.2f, ATM strike: 5000\n", demoSpot)
	fmt.Println("Entries filled:")
	for _, h := range gw.Placed() {
		fmt.Printf("  %s %d %s\n", h.Spec.Side, h.Spec.Quantity, h.Instrument.Key())
	}
	fmt.Println()

	// Spike the call premium past fill * (1 + fraction).
	trigger := 12.60 * (1 + cfg.Monitor.Fraction)
	fmt.Printf("Spiking call premium to %.2f (trigger at %.2f)...\n", math.Ceil(trigger), trigger)
	gw.SetQuote(atmCall, market.Quote{Bid: trigger + 0.1, Ask: trigger + 0.3, Last: trigger + 0.2, Time: time.Now()})

	monitors := st.Monitors()
	select {
	case <-monitors[0].Done():
		fmt.Println("Call leg stopped out, hedge wing unwound.")
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Println("\nFlattening the rest...")
	confs, err := st.CloseAll(ctx)
	if err != nil {
		return err
	}
	printConfirmations(confs)

	fmt.Println("\nJournal written to:")
	fmt.Println("  - ./demo-orders.csv")
	fmt.Println("  - ./demo-stops.csv")
	return nil
}
