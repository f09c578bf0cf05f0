// Package api defines the core interfaces and data structures for spendsync.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Category is one of the fixed expense category labels.
type Category string

// Expense categories accepted by the backend.
const (
	CategoryFoodDining     Category = "Food & Dining"
	CategoryTransportation Category = "Transportation"
	CategoryUtilities      Category = "Utilities"
	CategoryHousing        Category = "Housing"
	CategoryEntertainment  Category = "Entertainment"
	CategoryHealthcare     Category = "Healthcare"
	CategoryShopping       Category = "Shopping"
	CategoryPersonalCare   Category = "Personal Care"
	CategoryEducation      Category = "Education"
	CategoryTravel         Category = "Travel"
	CategoryOther          Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryFoodDining,
	CategoryTransportation,
	CategoryUtilities,
	CategoryHousing,
	CategoryEntertainment,
	CategoryHealthcare,
	CategoryShopping,
	CategoryPersonalCare,
	CategoryEducation,
	CategoryTravel,
	CategoryOther,
}

// Valid reports whether c is one of the fixed labels.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Expense is a single recorded outlay as mirrored from the backend.
type Expense struct {
	ID          ID              `json:"id" yaml:"id"`
	Amount      decimal.Decimal `json:"amount" yaml:"amount"`
	Description string          `json:"description" yaml:"description"`
	Category    Category        `json:"category" yaml:"category"`
	Date        Date            `json:"date" yaml:"date"`
	// CreatedAt is assigned by the server.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// UnmarshalJSON accepts both created_at and createdAt for the creation timestamp.
func (e *Expense) UnmarshalJSON(data []byte) error {
	type expenseAlias Expense
	var wire struct {
		expenseAlias
		CreatedAtCamel *time.Time `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Expense(wire.expenseAlias)
	if e.CreatedAt.IsZero() && wire.CreatedAtCamel != nil {
		e.CreatedAt = *wire.CreatedAtCamel
	}
	return nil
}

// Draft returns the mutable fields of e.
func (e Expense) Draft() ExpenseDraft {
	return ExpenseDraft{
		Amount:      e.Amount,
		Description: e.Description,
		Category:    e.Category,
		Date:        e.Date,
	}
}

// ExpenseDraft is an expense that has not been assigned an id yet.
type ExpenseDraft struct {
	Amount      decimal.Decimal
	Description string
	Category    Category
	Date        Date
}

// MarshalJSON encodes the draft in the shape the backend expects,
// with the amount fixed to two decimal places.
func (d ExpenseDraft) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Description string   `json:"description"`
		Amount      string   `json:"amount"`
		Category    Category `json:"category"`
		Date        Date     `json:"date"`
	}{
		Description: d.Description,
		Amount:      d.Amount.StringFixed(2),
		Category:    d.Category,
		Date:        d.Date,
	})
}

// ExpenseFilter is a conjunctive predicate over expense fields.
// Unset fields place no constraint on their dimension.
type ExpenseFilter struct {
	StartDate  Date             `json:"startDate,omitzero"`
	EndDate    Date             `json:"endDate,omitzero"`
	Category   Category         `json:"category,omitempty"`
	MinAmount  *decimal.Decimal `json:"minAmount,omitempty"`
	MaxAmount  *decimal.Decimal `json:"maxAmount,omitempty"`
	SearchText string           `json:"searchText,omitempty"`
}

// IsEmpty reports whether the filter has no constraints.
func (f ExpenseFilter) IsEmpty() bool {
	return f.StartDate.IsZero() && f.EndDate.IsZero() && f.Category == "" &&
		f.MinAmount == nil && f.MaxAmount == nil && f.SearchText == ""
}

// ExportStats reports what a Writer stored.
type ExportStats struct {
	Expenses int `json:"expenses"`
	Batches  int `json:"batches"`
}

// Writer consumes expenses from a channel and writes them to a destination.
// Implementations return once the channel is closed and everything is
// stored, and release their destination before returning.
type Writer interface {
	Write(ctx context.Context, in <-chan Expense) (ExportStats, error)
}
