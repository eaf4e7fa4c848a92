package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/dealerline/internal/crm"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo vehicle catalog and customers into the CRM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			cfg.CRM.Seed = false
			store, err := openCRM(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Seed(cmd.Context())
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "CRM already seeded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d records (%d time slots per day)\n", n, len(crm.TimeSlots))
			return nil
		},
	}
}
