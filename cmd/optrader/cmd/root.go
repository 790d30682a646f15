package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "optrader",
	Short: "An options order and position lifecycle engine for the IB Client Portal gateway",
	Long: `Optrader runs short option strategies against a local Interactive Brokers
Client Portal gateway and keeps every short leg protected until it is closed.

It provides tools for:
  - Entering ATM short straddles with optional OTM hedge wings
  - Client-side stop-loss monitors with configurable trigger policies
  - Gateway-side trailing-stop brackets with live retargeting
  - Journaling order and stop events to CSV or SQLite
  - Flattening all open positions on demand`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	// A .env next to the binary can carry OPTRADER_CONFIG and gateway
	// overrides; absence is not an error.
	_ = godotenv.Load()
	return rootCmd.Execute()
}
