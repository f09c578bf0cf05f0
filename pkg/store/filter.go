package store

import (
	"strings"

	"github.com/ArionMiles/spendsync/pkg/api"
)

// ApplyFilter returns the expenses that satisfy every constraint set in f,
// in their original order. The input slice is never modified.
func ApplyFilter(expenses []api.Expense, f api.ExpenseFilter) []api.Expense {
	out := make([]api.Expense, 0, len(expenses))
	search := strings.ToLower(f.SearchText)

	for _, e := range expenses {
		if !f.StartDate.IsZero() && e.Date.Before(f.StartDate) {
			continue
		}
		if !f.EndDate.IsZero() && e.Date.After(f.EndDate) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.MinAmount != nil && e.Amount.LessThan(*f.MinAmount) {
			continue
		}
		if f.MaxAmount != nil && e.Amount.GreaterThan(*f.MaxAmount) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Description), search) {
			continue
		}
		out = append(out, e)
	}
	return out
}
