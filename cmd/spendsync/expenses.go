package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ArionMiles/spendsync/internal/app"
	"github.com/ArionMiles/spendsync/pkg/api"
)

// filterFlags are the filter options shared by list and export.
type filterFlags struct {
	from, to string
	category string
	min, max string
	search   string
}

func (f *filterFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.from, "from", "", "earliest date, inclusive (YYYY-MM-DD)")
	fs.StringVar(&f.to, "to", "", "latest date, inclusive (YYYY-MM-DD)")
	fs.StringVar(&f.category, "category", "", "exact category label")
	fs.StringVar(&f.min, "min", "", "minimum amount, inclusive")
	fs.StringVar(&f.max, "max", "", "maximum amount, inclusive")
	fs.StringVar(&f.search, "search", "", "case-insensitive description substring")
}

func (f *filterFlags) filter() (api.ExpenseFilter, error) {
	var out api.ExpenseFilter
	var err error

	if f.from != "" {
		if out.StartDate, err = api.ParseDate(f.from); err != nil {
			return out, fmt.Errorf("--from: %w", err)
		}
	}
	if f.to != "" {
		if out.EndDate, err = api.ParseDate(f.to); err != nil {
			return out, fmt.Errorf("--to: %w", err)
		}
	}
	if f.category != "" {
		out.Category, err = parseCategory(f.category)
		if err != nil {
			return out, err
		}
	}
	if f.min != "" {
		d, err := decimal.NewFromString(f.min)
		if err != nil {
			return out, fmt.Errorf("--min: %w", err)
		}
		out.MinAmount = &d
	}
	if f.max != "" {
		d, err := decimal.NewFromString(f.max)
		if err != nil {
			return out, fmt.Errorf("--max: %w", err)
		}
		out.MaxAmount = &d
	}
	out.SearchText = f.search
	return out, nil
}

// parseCategory matches a label case-insensitively.
func parseCategory(s string) (api.Category, error) {
	for _, c := range api.Categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	names := make([]string, len(api.Categories))
	for i, c := range api.Categories {
		names[i] = string(c)
	}
	return "", fmt.Errorf("unknown category %q (want one of: %s)", s, strings.Join(names, ", "))
}

func newListCommand(c *cli) *cobra.Command {
	var ff filterFlags
	var output string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List expenses, optionally filtered",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			filter, err := ff.filter()
			if err != nil {
				return err
			}
			return c.run(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if err := storeError(a.Expenses.State().Error); err != nil {
					return err
				}
				a.Expenses.SetFilter(filter)
				return printExpenses(c.out, output, a.Expenses.State().Filtered)
			})
		},
	}
	ff.bind(cmd.Flags())
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

// draftFlags are the editable expense fields.
type draftFlags struct {
	amount      string
	description string
	category    string
	date        string
}

func (d *draftFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&d.amount, "amount", "", "amount, e.g. 12.50")
	fs.StringVar(&d.description, "description", "", "what the money was spent on")
	fs.StringVarP(&d.category, "category", "c", "", "category label")
	fs.StringVar(&d.date, "date", "", "date (YYYY-MM-DD)")
}

// apply overwrites the fields of draft whose flags were set.
func (d *draftFlags) apply(fs *pflag.FlagSet, draft *api.ExpenseDraft) error {
	if fs.Changed("amount") {
		amount, err := decimal.NewFromString(d.amount)
		if err != nil {
			return fmt.Errorf("--amount: %w", err)
		}
		draft.Amount = amount
	}
	if fs.Changed("description") {
		draft.Description = d.description
	}
	if fs.Changed("category") {
		category, err := parseCategory(d.category)
		if err != nil {
			return err
		}
		draft.Category = category
	}
	if fs.Changed("date") {
		date, err := api.ParseDate(d.date)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		draft.Date = date
	}
	return nil
}

func newAddCommand(c *cli) *cobra.Command {
	var df draftFlags
	var output string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			draft := api.ExpenseDraft{Date: api.Today()}
			if err := df.apply(cmd.Flags(), &draft); err != nil {
				return err
			}
			if err := draft.Validate(); err != nil {
				return err
			}
			return c.run(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				before := ids(a.Expenses.State().Expenses)
				a.Expenses.Add(ctx, draft)
				st := a.Expenses.State()
				if err := storeError(st.Error); err != nil {
					return err
				}
				for _, e := range st.Expenses {
					if _, seen := before[e.ID]; !seen {
						return printExpense(c.out, output, e)
					}
				}
				fmt.Fprintln(c.out, "✓ Expense added")
				return nil
			})
		},
	}
	df.bind(cmd.Flags())
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newEditCommand(c *cli) *cobra.Command {
	var df draftFlags
	var output string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an existing expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			id := api.ID(args[0])
			return c.run(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if err := storeError(a.Expenses.State().Error); err != nil {
					return err
				}
				current, ok := find(a.Expenses.State().Expenses, id)
				if !ok {
					return fmt.Errorf("expense %s not found", id)
				}

				draft := current.Draft()
				if err := df.apply(cmd.Flags(), &draft); err != nil {
					return err
				}
				if err := draft.Validate(); err != nil {
					return err
				}
				current.Amount = draft.Amount
				current.Description = draft.Description
				current.Category = draft.Category
				current.Date = draft.Date

				a.Expenses.Update(ctx, current)
				if err := storeError(a.Expenses.State().Error); err != nil {
					return err
				}
				updated, _ := find(a.Expenses.State().Expenses, id)
				return printExpense(c.out, output, updated)
			})
		},
	}
	df.bind(cmd.Flags())
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newDeleteCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an expense",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := api.ID(args[0])
			if id == "" {
				return errors.New("expense id cannot be empty")
			}
			return c.run(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				a.Expenses.Delete(ctx, id)
				if err := storeError(a.Expenses.State().Error); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "✓ Deleted expense %s\n", id)
				return nil
			})
		},
	}
}

func ids(expenses []api.Expense) map[api.ID]struct{} {
	out := make(map[api.ID]struct{}, len(expenses))
	for _, e := range expenses {
		out[e.ID] = struct{}{}
	}
	return out
}

func find(expenses []api.Expense, id api.ID) (api.Expense, bool) {
	for _, e := range expenses {
		if e.ID == id {
			return e, true
		}
	}
	return api.Expense{}, false
}
