package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsync/internal/app"
	"github.com/ArionMiles/spendsync/pkg/api"
)

func newSummaryCommand(c *cli) *cobra.Command {
	var timeframe, output string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show totals per category and per period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tf, err := api.ParseTimeframe(timeframe)
			if err != nil {
				return err
			}
			if err := checkFormat(output); err != nil {
				return err
			}
			return c.run(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				a.Summary.Load(ctx, tf)
				st := a.Summary.State()
				if err := storeError(st.Error); err != nil {
					return err
				}
				return printSummary(c.out, output, st.Timeframe, st.Summary)
			})
		},
	}
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", string(api.Monthly), "bucket size: weekly, monthly or yearly")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}
