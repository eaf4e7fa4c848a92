// Package main is the entry point for the dealerline call-center service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dealerline",
		Short: "AI voice agent call center for a vehicle dealership",
		Long: `dealerline runs the dealership's AI call agent: it answers customer
calls turn by turn, calls CRM actions, hands calls over to human agents and
records every finished call as a transcript and a call-log row.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./dealerline.yaml if present)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCallCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newSeedCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
