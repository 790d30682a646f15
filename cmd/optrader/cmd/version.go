package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the optrader CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("optrader version %s\n", version)
		fmt.Println("An options order and position lifecycle engine")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
