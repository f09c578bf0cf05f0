package api

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Timeframe selects the bucket size of the summary time series.
type Timeframe string

const (
	Weekly  Timeframe = "weekly"
	Monthly Timeframe = "monthly"
	Yearly  Timeframe = "yearly"
)

// ParseTimeframe validates a timeframe name. An empty name means monthly.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case "":
		return Monthly, nil
	case Weekly, Monthly, Yearly:
		return Timeframe(s), nil
	default:
		return "", fmt.Errorf("unknown timeframe %q (want weekly, monthly or yearly)", s)
	}
}

// CategoryTotal is the summed amount for one category.
type CategoryTotal struct {
	Category Category        `json:"category" yaml:"category"`
	Total    decimal.Decimal `json:"total" yaml:"total"`
}

// PeriodTotal is the summed amount for one time bucket.
type PeriodTotal struct {
	Period string          `json:"period" yaml:"period"`
	Total  decimal.Decimal `json:"total" yaml:"total"`
}

// Summary is the server-computed aggregate over all expenses.
type Summary struct {
	CategoryTotals []CategoryTotal `json:"category_totals" yaml:"category_totals"`
	TimeSeries     []PeriodTotal   `json:"time_series" yaml:"time_series"`
}

// Label renders the period start for display in the given timeframe.
// Unparseable periods are returned as-is.
func (p PeriodTotal) Label(tf Timeframe) string {
	var d Date
	if err := d.UnmarshalText([]byte(p.Period)); err != nil || d.IsZero() {
		return p.Period
	}
	t := d.Time()
	switch tf {
	case Weekly:
		return fmt.Sprintf("Week %d/%d", t.Day(), int(t.Month()))
	case Yearly:
		return t.Format("2006")
	default:
		return t.Format("Jan 2006")
	}
}

// Total sums every category total.
func (s Summary) Total() decimal.Decimal {
	total := decimal.Zero
	for _, ct := range s.CategoryTotals {
		total = total.Add(ct.Total)
	}
	return total
}
