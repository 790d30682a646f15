package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradekit/optrader/broker/ibkr"
	"github.com/tradekit/optrader/engine"
)

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Flatten every open position at market",
	Long: `Connect to the Client Portal gateway and close every open position with a
market order on the flattening side. Useful after an ungraceful shutdown left
legs unprotected.

Example:
  optrader close -f straddle.yaml`,
	RunE: runClose,
}

var closeConfigPath string

func init() {
	rootCmd.AddCommand(closeCmd)

	closeCmd.Flags().StringVarP(&closeConfigPath, "config", "f", "", "path to config file (YAML or JSON)")
}

func runClose(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(closeConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	j, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := engine.NewSession(ibkr.New(), sessionConfig(cfg), nil)
	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("connect gateway: %w", err)
	}
	defer session.Disconnect()

	closer := engine.NewCloser(session, engine.NewSubmitter(session, j))
	confs, err := closer.CloseAll(ctx)
	if err != nil {
		return fmt.Errorf("close all: %w", err)
	}

	fmt.Println("Closed positions:")
	printConfirmations(confs)
	return nil
}
