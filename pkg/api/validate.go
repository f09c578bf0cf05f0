package api

import (
	"strings"
)

// FieldError describes one invalid draft field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every failing field of a draft.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Error()
	}
	return "invalid expense: " + strings.Join(msgs, "; ")
}

// Validate checks the draft before it is sent anywhere.
// It returns nil or a ValidationErrors value.
func (d ExpenseDraft) Validate() error {
	var errs ValidationErrors
	if !d.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "Amount must be greater than 0"})
	}
	if strings.TrimSpace(d.Description) == "" {
		errs = append(errs, FieldError{Field: "description", Message: "Description is required"})
	}
	if !d.Category.Valid() {
		errs = append(errs, FieldError{Field: "category", Message: "Category is required"})
	}
	if d.Date.IsZero() {
		errs = append(errs, FieldError{Field: "date", Message: "Date is required"})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
