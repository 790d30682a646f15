package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tradekit/optrader/broker/ibkr"
	"github.com/tradekit/optrader/engine"
	"github.com/tradekit/optrader/strategy"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enter a straddle and keep it protected until interrupted",
	Long: `Connect to the Client Portal gateway, enter an ATM short straddle per the
configuration, and keep every leg protected until the process is interrupted.

On SIGINT or SIGTERM the strategy is torn down: monitors are cancelled,
resting exits pulled, and every open position closed at market.

Example:
  optrader run -f straddle.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	j, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				fmt.Printf("metrics endpoint failed: %v\n", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := engine.NewSession(ibkr.New(), sessionConfig(cfg), nil)
	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}
	defer session.Disconnect()

	st := strategy.New(session, j, strategyConfig(cfg), nil)
	if err := st.Enter(ctx); err != nil {
		return fmt.Errorf("enter straddle: %w", err)
	}

	fmt.Printf("Straddle on: %s %s x%d\n", cfg.Trading.Symbol, cfg.Trading.Expiry, cfg.Trading.Quantity)
	fmt.Println("Protection armed. Ctrl-C to flatten and exit.")

	<-ctx.Done()
	stop()

	// The signal context is spent; teardown gets its own deadline.
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Println("\nShutting down, flattening positions...")
	confs, err := st.CloseAll(closeCtx)
	if err != nil {
		return fmt.Errorf("close all: %w", err)
	}
	printConfirmations(confs)
	return nil
}
