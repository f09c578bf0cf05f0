package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/ArionMiles/spendsync/pkg/api"
)

// Output formats accepted by --output.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders a decimal with grouping and two places. The digits
// come from the decimal itself; only the integer part goes through the
// printer for grouping.
func formatAmount(d decimal.Decimal) string {
	rounded := d.Round(2)
	whole, frac, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		whole = amountPrinter.Sprintf("%d", n)
	}
	sign := ""
	if rounded.Sign() < 0 {
		sign = "-"
	}
	return sign + whole + "." + frac
}

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// encode writes v as JSON or YAML. It reports false for the table format.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func printExpenses(w io.Writer, format string, expenses []api.Expense) error {
	if expenses == nil {
		expenses = []api.Expense{}
	}
	if done, err := encode(w, format, expenses); done {
		return err
	}

	if len(expenses) == 0 {
		_, err := fmt.Fprintln(w, "No expenses found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Category, formatAmount(e.Amount), e.Description)
	}
	fmt.Fprintf(tw, "\t\t\t%s\t%d expense(s)\n", formatAmount(total), len(expenses))
	return tw.Flush()
}

func printExpense(w io.Writer, format string, e api.Expense) error {
	if done, err := encode(w, format, e); done {
		return err
	}
	return printExpenses(w, formatTable, []api.Expense{e})
}

func printSummary(w io.Writer, format string, tf api.Timeframe, s api.Summary) error {
	if done, err := encode(w, format, s); done {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTOTAL")
	for _, ct := range s.CategoryTotals {
		fmt.Fprintf(tw, "%s\t%s\n", ct.Category, formatAmount(ct.Total))
	}
	fmt.Fprintf(tw, "Total\t%s\n", formatAmount(s.Total()))
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "PERIOD (%s)\tTOTAL\n", tf)
	for _, pt := range s.TimeSeries {
		fmt.Fprintf(tw, "%s\t%s\n", pt.Label(tf), formatAmount(pt.Total))
	}
	return tw.Flush()
}
