package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tradekit/optrader/risk"
)

// Config is the complete engine configuration.
type Config struct {
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Trading TradingConfig `json:"trading" yaml:"trading"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// GatewayConfig contains broker gateway connection parameters.
type GatewayConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	ClientID       int      `json:"client_id,omitempty" yaml:"client_id,omitempty"` // 0 picks a random ID
	ConnectTimeout Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	RetryBackoff   Duration `json:"retry_backoff,omitempty" yaml:"retry_backoff,omitempty"`
	MaxAttempts    int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"` // 0 retries forever
	MarketDataType int      `json:"market_data_type,omitempty" yaml:"market_data_type,omitempty"`
}

// TradingConfig contains the traded contract and position sizing.
type TradingConfig struct {
	Symbol           string  `json:"symbol" yaml:"symbol"`
	Exchange         string  `json:"exchange" yaml:"exchange"`
	Currency         string  `json:"currency" yaml:"currency"`
	Expiry           string  `json:"expiry" yaml:"expiry"` // YYYYMMDD
	Quantity         int     `json:"quantity" yaml:"quantity"`
	StopLossFraction float64 `json:"stop_loss_fraction" yaml:"stop_loss_fraction"`
	TrailingPercent  float64 `json:"trailing_percent,omitempty" yaml:"trailing_percent,omitempty"` // 0 disables trailing exits
	HedgeOffset      float64 `json:"hedge_offset,omitempty" yaml:"hedge_offset,omitempty"`         // points from spot, 0 disables hedges
}

// EngineConfig contains polling cadences and the stop trigger policy.
type EngineConfig struct {
	FillPoll        Duration `json:"fill_poll,omitempty" yaml:"fill_poll,omitempty"`
	FillTimeout     Duration `json:"fill_timeout,omitempty" yaml:"fill_timeout,omitempty"` // 0 waits forever
	SettleDelay     Duration `json:"settle_delay,omitempty" yaml:"settle_delay,omitempty"`
	ArmedInterval   Duration `json:"armed_interval,omitempty" yaml:"armed_interval,omitempty"`
	ClosePoll       Duration `json:"close_poll,omitempty" yaml:"close_poll,omitempty"`
	SnapshotPoll    Duration `json:"snapshot_poll,omitempty" yaml:"snapshot_poll,omitempty"`
	SnapshotTimeout Duration `json:"snapshot_timeout,omitempty" yaml:"snapshot_timeout,omitempty"`
	TriggerPolicy   string   `json:"trigger_policy,omitempty" yaml:"trigger_policy,omitempty"`
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	OrdersFile string `json:"orders_file,omitempty" yaml:"orders_file,omitempty"`
	StopsFile  string `json:"stops_file,omitempty" yaml:"stops_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// MetricsConfig contains the Prometheus listen address.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"` // empty disables the endpoint
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Gateway.Host == "" {
		return fmt.Errorf("gateway.host is required")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be a valid TCP port")
	}
	if c.Gateway.MaxAttempts < 0 {
		return fmt.Errorf("gateway.max_attempts must not be negative")
	}
	if c.Gateway.MarketDataType < 0 || c.Gateway.MarketDataType > 4 {
		return fmt.Errorf("gateway.market_data_type must be between 1 and 4")
	}
	if c.Trading.Symbol == "" {
		return fmt.Errorf("trading.symbol is required")
	}
	if c.Trading.Exchange == "" {
		return fmt.Errorf("trading.exchange is required")
	}
	if c.Trading.Currency == "" {
		return fmt.Errorf("trading.currency is required")
	}
	if len(c.Trading.Expiry) != 8 {
		return fmt.Errorf("trading.expiry must be YYYYMMDD")
	}
	if c.Trading.Quantity <= 0 {
		return fmt.Errorf("trading.quantity must be positive")
	}
	if c.Trading.StopLossFraction <= 0 || c.Trading.StopLossFraction >= 1 {
		return fmt.Errorf("trading.stop_loss_fraction must be between 0 and 1")
	}
	if c.Trading.TrailingPercent < 0 || c.Trading.TrailingPercent >= 100 {
		return fmt.Errorf("trading.trailing_percent must be between 0 and 100")
	}
	if c.Trading.HedgeOffset < 0 {
		return fmt.Errorf("trading.hedge_offset must not be negative")
	}
	if c.Engine.TriggerPolicy != "" {
		if err := risk.TriggerPolicy(c.Engine.TriggerPolicy).Validate(); err != nil {
			return fmt.Errorf("engine.trigger_policy: %w", err)
		}
	}
	switch c.Journal.Type {
	case "csv":
		if c.Journal.OrdersFile == "" || c.Journal.StopsFile == "" {
			return fmt.Errorf("journal orders_file and stops_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "none", "":
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	return nil
}

// Default returns a configuration with sensible defaults: a paper TWS
// session trading an SPX straddle with CSV journaling.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:           "127.0.0.1",
			Port:           7497,
			ConnectTimeout: Seconds(60),
			RetryBackoff:   Seconds(65),
			MarketDataType: 4,
		},
		Trading: TradingConfig{
			Symbol:           "SPX",
			Exchange:         "CBOE",
			Currency:         "USD",
			Expiry:           "20260320",
			Quantity:         1,
			StopLossFraction: 0.15,
			HedgeOffset:      100,
		},
		Engine: EngineConfig{
			FillPoll:      Seconds(1),
			SettleDelay:   Seconds(1),
			ArmedInterval: Seconds(10),
			ClosePoll:     Seconds(3),
			TriggerPolicy: string(risk.TriggerSymmetric),
		},
		Journal: JournalConfig{
			Type:       "csv",
			OrdersFile: "./orders.csv",
			StopsFile:  "./stops.csv",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:2112",
		},
	}
}
