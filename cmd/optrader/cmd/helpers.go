package cmd

import (
	"fmt"
	"os"

	"github.com/tradekit/optrader/broker"
	"github.com/tradekit/optrader/config"
	"github.com/tradekit/optrader/engine"
	"github.com/tradekit/optrader/journal"
	"github.com/tradekit/optrader/market"
	"github.com/tradekit/optrader/risk"
	"github.com/tradekit/optrader/strategy"
)

// loadConfig resolves the config file path: the flag wins, then the
// OPTRADER_CONFIG env var, then built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("OPTRADER_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "csv":
		return journal.NewCSV(cfg.Journal.OrdersFile, cfg.Journal.StopsFile)
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	default:
		return journal.Nop(), nil
	}
}

func sessionConfig(cfg *config.Config) engine.SessionConfig {
	return engine.SessionConfig{
		Host:           cfg.Gateway.Host,
		Port:           cfg.Gateway.Port,
		ClientID:       cfg.Gateway.ClientID,
		ConnectTimeout: cfg.Gateway.ConnectTimeout.Duration,
		RetryBackoff:   cfg.Gateway.RetryBackoff.Duration,
		MaxAttempts:    cfg.Gateway.MaxAttempts,
		MarketDataType: broker.MarketDataType(cfg.Gateway.MarketDataType),
	}
}

func strategyConfig(cfg *config.Config) strategy.Config {
	underlying := market.Index(cfg.Trading.Symbol, cfg.Trading.Exchange)
	underlying.Currency = cfg.Trading.Currency

	return strategy.Config{
		Underlying:      underlying,
		Expiry:          cfg.Trading.Expiry,
		Quantity:        cfg.Trading.Quantity,
		TrailingPercent: cfg.Trading.TrailingPercent,
		HedgeOffset:     cfg.Trading.HedgeOffset,

		FillPoll:        cfg.Engine.FillPoll.Duration,
		FillTimeout:     cfg.Engine.FillTimeout.Duration,
		SnapshotPoll:    cfg.Engine.SnapshotPoll.Duration,
		SnapshotTimeout: cfg.Engine.SnapshotTimeout.Duration,

		Monitor: engine.MonitorConfig{
			Policy:            risk.TriggerPolicy(cfg.Engine.TriggerPolicy),
			Fraction:          cfg.Trading.StopLossFraction,
			ArmedInterval:     cfg.Engine.ArmedInterval.Duration,
			ClosePollInterval: cfg.Engine.ClosePoll.Duration,
			SnapshotPoll:      cfg.Engine.SnapshotPoll.Duration,
			SnapshotTimeout:   cfg.Engine.SnapshotTimeout.Duration,
		},
		Bracket: engine.BracketConfig{
			SettleDelay:      cfg.Engine.SettleDelay.Duration,
			FillPollInterval: cfg.Engine.FillPoll.Duration,
			FillTimeout:      cfg.Engine.FillTimeout.Duration,
		},
	}
}

func printConfirmations(confs []engine.Confirmation) {
	if len(confs) == 0 {
		fmt.Println("No open positions to close.")
		return
	}
	for _, c := range confs {
		fmt.Printf("  %s %d %s (order %d)\n", c.Side, c.Quantity, c.Handle.Instrument.Key(), c.Handle.OrderID)
	}
}
