package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rhpman",
	Short: "RHPMAN replica placement and lookup for intermittently connected networks",
	Long: `A replica holder placement protocol for mobile ad hoc networks. Nodes
elect replica holders, push content towards them and resolve lookups against
them, tolerating partitions and churn.

Run a live node over gRPC or QUIC, replay a seeded simulation, or drive a
simulated cluster interactively.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

var debug bool
