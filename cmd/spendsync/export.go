package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/spendsync/internal/app"
	"github.com/ArionMiles/spendsync/internal/plugins"
)

func newExportCommand(c *cli) *cobra.Command {
	var ff filterFlags
	var writer, file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the (filtered) expense collection through a writer plugin",
		Long: "Export streams the signed-in user's expenses, after applying the filter\n" +
			"flags, into one of the writer plugins: csv, json or postgres.\n" +
			"The postgres writer reads its connection from SPENDSYNC_POSTGRES_* settings.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter()
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if err := storeError(a.Expenses.State().Error); err != nil {
					return err
				}
				a.Expenses.SetFilter(filter)

				stats, err := a.Export(ctx, writer, file)
				if errors.Is(err, plugins.ErrMissingSetting) && file == "" {
					return fmt.Errorf("%w (use --file for csv and json)", err)
				}
				if err != nil {
					if stats.Expenses > 0 {
						fmt.Fprintf(c.out, "Stored %d expense(s) before the export stopped\n", stats.Expenses)
					}
					return err
				}
				dest := writer
				if file != "" {
					dest = file
				}
				fmt.Fprintf(c.out, "✓ Exported %d expense(s) in %d batch(es) to %s\n", stats.Expenses, stats.Batches, dest)
				return nil
			})
		},
	}
	ff.bind(cmd.Flags())
	cmd.Flags().StringVarP(&writer, "writer", "w", "csv", "writer plugin: csv, json or postgres")
	cmd.Flags().StringVarP(&file, "file", "f", "", "output file for csv and json writers")
	return cmd
}

func newWritersCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "writers",
		Short: "List the available export writer plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			for _, p := range a.Registry.Plugins() {
				fmt.Fprintf(tw, "%s\t%s\n", p.Name(), p.Description())
			}
			return tw.Flush()
		},
	}
}
