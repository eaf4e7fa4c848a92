package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/szaher/dealerline/internal/storage"
)

func newLogsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs [call-id]",
		Short: "List finished calls, or print one call's transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			transcripts, callLog, closeFn, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				text, err := transcripts.ReadTranscript(ctx, args[0])
				if err != nil {
					return fmt.Errorf("reading transcript %s: %w", args[0], err)
				}
				fmt.Fprint(out, text)
				return nil
			}

			rows, err := callLog.ListCallLogs(ctx, limit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No calls logged yet.")
				return nil
			}
			printCallLogs(out, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of calls to list (0 for all)")

	return cmd
}

func printCallLogs(w io.Writer, rows []storage.CallLogRow) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALL ID\tSTARTED\tCUSTOMER\tDURATION\tHANDLED BY\tOUTCOME\tACTIONS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%ds\t%s\t%s\t%s\n",
			r.CallID,
			r.StartTime.Local().Format("2006-01-02 15:04"),
			r.CustomerName,
			r.DurationSeconds,
			r.HandledBy,
			r.Outcome,
			strings.Join(r.FunctionsCalled, ","),
		)
	}
	tw.Flush()
}
