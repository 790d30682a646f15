package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Default().Validate())
}

func TestLoadFromFileYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
gateway:
  host: 127.0.0.1
  port: 7497
  client_id: 7
  retry_backoff: 65s
  max_attempts: 5
trading:
  symbol: SPX
  exchange: CBOE
  currency: USD
  expiry: "20260320"
  quantity: 2
  stop_loss_fraction: 0.15
  trailing_percent: 14
engine:
  fill_poll: 1s
  armed_interval: 10
  trigger_policy: reference
journal:
  type: sqlite
  db_path: ./orders.db
metrics:
  addr: 127.0.0.1:2112
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7497, cfg.Gateway.Port)
	assert.Equal(t, 7, cfg.Gateway.ClientID)
	assert.Equal(t, 65*time.Second, cfg.Gateway.RetryBackoff.Duration)
	assert.Equal(t, 5, cfg.Gateway.MaxAttempts)
	assert.Equal(t, "SPX", cfg.Trading.Symbol)
	assert.Equal(t, 2, cfg.Trading.Quantity)
	assert.InDelta(t, 14.0, cfg.Trading.TrailingPercent, 1e-9)
	// Bare numbers read as seconds.
	assert.Equal(t, 10*time.Second, cfg.Engine.ArmedInterval.Duration)
	assert.Equal(t, "reference", cfg.Engine.TriggerPolicy)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
}

func TestLoadFromFileJSONFallback(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
  "gateway": {"host": "127.0.0.1", "port": 4002, "connect_timeout": "30s"},
  "trading": {"symbol": "SPX", "exchange": "CBOE", "currency": "USD",
              "expiry": "20260320", "quantity": 1, "stop_loss_fraction": 0.2}
}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4002, cfg.Gateway.Port)
	assert.Equal(t, 30*time.Second, cfg.Gateway.ConnectTimeout.Duration)
	assert.InDelta(t, 0.2, cfg.Trading.StopLossFraction, 1e-9)
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing host", `
gateway: {port: 7497}
trading: {symbol: SPX, exchange: CBOE, currency: USD, expiry: "20260320", quantity: 1, stop_loss_fraction: 0.15}
`},
		{"bad expiry", `
gateway: {host: 127.0.0.1, port: 7497}
trading: {symbol: SPX, exchange: CBOE, currency: USD, expiry: "2026-03-20", quantity: 1, stop_loss_fraction: 0.15}
`},
		{"fraction out of range", `
gateway: {host: 127.0.0.1, port: 7497}
trading: {symbol: SPX, exchange: CBOE, currency: USD, expiry: "20260320", quantity: 1, stop_loss_fraction: 1.5}
`},
		{"unknown trigger policy", `
gateway: {host: 127.0.0.1, port: 7497}
trading: {symbol: SPX, exchange: CBOE, currency: USD, expiry: "20260320", quantity: 1, stop_loss_fraction: 0.15}
engine: {trigger_policy: aggressive}
`},
		{"sqlite without path", `
gateway: {host: 127.0.0.1, port: 7497}
trading: {symbol: SPX, exchange: CBOE, currency: USD, expiry: "20260320", quantity: 1, stop_loss_fraction: 0.15}
journal: {type: sqlite}
`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFromFile(writeConfig(t, "bad.yaml", tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.yaml")
	want := Default()
	want.Trading.TrailingPercent = 14

	require.NoError(t, want.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
