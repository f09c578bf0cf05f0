// Package store holds the in-memory client state mirrored from the backend.
//
// Each store owns one state value and changes it only by dispatching actions
// through a pure reducer. Operations that talk to the backend record failures
// in state under a fixed message and log the underlying error.
package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/ArionMiles/spendsync/pkg/api"
)

// Fixed error messages recorded by ExpenseStore operations.
const (
	MsgLoadFailed   = "Failed to load expenses"
	MsgAddFailed    = "Failed to add expense"
	MsgUpdateFailed = "Failed to update expense"
	MsgDeleteFailed = "Failed to delete expense"
)

// ExpenseAPI is the subset of the backend client the expense store uses.
type ExpenseAPI interface {
	ListExpenses(ctx context.Context) ([]api.Expense, error)
	CreateExpense(ctx context.Context, draft api.ExpenseDraft) (api.Expense, error)
	UpdateExpense(ctx context.Context, e api.Expense) (api.Expense, error)
	DeleteExpense(ctx context.Context, id api.ID) error
}

// ExpenseState is a snapshot of the expense store.
type ExpenseState struct {
	Expenses []api.Expense
	// Filtered is ApplyFilter(Expenses, Filter).
	Filtered []api.Expense
	Filter   api.ExpenseFilter
	Loading  bool
	// Error is the message of the most recent failure, or "".
	Error string
}

// Action is a state transition request for the expense reducer.
type Action interface {
	expenseAction()
}

type (
	// LoadExpenses replaces the collection and clears loading and error.
	LoadExpenses struct{ Expenses []api.Expense }
	// AddExpense appends a server-confirmed expense.
	AddExpense struct{ Expense api.Expense }
	// EditExpense replaces the expense with the same id, if present.
	EditExpense struct{ Expense api.Expense }
	// DeleteExpense removes the expense with the given id, if present.
	DeleteExpense struct{ ID api.ID }
	// SetFilter replaces the active filter.
	SetFilter struct{ Filter api.ExpenseFilter }
	// SetError records a failure and clears loading.
	SetError struct{ Message string }
	// ClearError clears the error.
	ClearError struct{}
	// SetLoading sets the loading flag.
	SetLoading struct{ Loading bool }
)

func (LoadExpenses) expenseAction()  {}
func (AddExpense) expenseAction()    {}
func (EditExpense) expenseAction()   {}
func (DeleteExpense) expenseAction() {}
func (SetFilter) expenseAction()     {}
func (SetError) expenseAction()      {}
func (ClearError) expenseAction()    {}
func (SetLoading) expenseAction()    {}

// Reduce returns the state that follows s after a. It never mutates s;
// actions it does not recognise return s unchanged.
func Reduce(s ExpenseState, a Action) ExpenseState {
	switch a := a.(type) {
	case SetLoading:
		s.Loading = a.Loading
	case LoadExpenses:
		s.Expenses = slices.Clone(a.Expenses)
		s.Filtered = ApplyFilter(s.Expenses, s.Filter)
		s.Loading = false
		s.Error = ""
	case AddExpense:
		s.Expenses = append(slices.Clone(s.Expenses), a.Expense)
		s.Filtered = ApplyFilter(s.Expenses, s.Filter)
		s.Loading = false
	case EditExpense:
		edited := slices.Clone(s.Expenses)
		for i := range edited {
			if edited[i].ID == a.Expense.ID {
				edited[i] = a.Expense
			}
		}
		s.Expenses = edited
		s.Filtered = ApplyFilter(s.Expenses, s.Filter)
		s.Loading = false
	case DeleteExpense:
		s.Expenses = slices.DeleteFunc(slices.Clone(s.Expenses), func(e api.Expense) bool {
			return e.ID == a.ID
		})
		s.Filtered = ApplyFilter(s.Expenses, s.Filter)
		s.Loading = false
	case SetFilter:
		s.Filter = a.Filter
		s.Filtered = ApplyFilter(s.Expenses, s.Filter)
	case SetError:
		s.Error = a.Message
		s.Loading = false
	case ClearError:
		s.Error = ""
	}
	return s
}

// ExpenseStore mirrors the user's expenses and the active filter.
type ExpenseStore struct {
	api    ExpenseAPI
	logger *slog.Logger

	mu    sync.Mutex
	state ExpenseState

	subs listeners[ExpenseState]
}

// NewExpenseStore creates an empty store backed by backend.
func NewExpenseStore(backend ExpenseAPI, logger *slog.Logger) *ExpenseStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseStore{
		api:    backend,
		logger: logger.With("component", "expense_store"),
		state:  ExpenseState{Expenses: []api.Expense{}, Filtered: []api.Expense{}},
	}
}

// State returns the current snapshot.
func (s *ExpenseStore) State() ExpenseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive every new snapshot. The returned
// function unregisters it.
func (s *ExpenseStore) Subscribe(fn func(ExpenseState)) func() {
	return s.subs.add(fn)
}

// Dispatch applies the actions in order as one transition batch and
// notifies subscribers once per action.
func (s *ExpenseStore) Dispatch(actions ...Action) {
	s.mu.Lock()
	for _, a := range actions {
		s.apply(a)
	}
	s.mu.Unlock()
	s.subs.deliver()
}

// apply must be called with s.mu held. The new snapshot is queued for
// subscribers; call s.subs.deliver after unlocking.
func (s *ExpenseStore) apply(a Action) {
	s.state = Reduce(s.state, a)
	s.subs.enqueue(s.state)
}

// Load fetches the full collection. It does nothing while another
// operation is loading.
func (s *ExpenseStore) Load(ctx context.Context) {
	s.mu.Lock()
	if s.state.Loading {
		s.mu.Unlock()
		s.logger.Debug("load skipped, already loading")
		return
	}
	s.apply(SetLoading{Loading: true})
	s.apply(ClearError{})
	s.mu.Unlock()
	s.subs.deliver()

	expenses, err := s.api.ListExpenses(ctx)
	if err != nil {
		s.logger.Error("failed to load expenses", "error", err)
		s.Dispatch(SetError{Message: MsgLoadFailed})
		return
	}
	if expenses == nil {
		expenses = []api.Expense{}
	}
	s.logger.Debug("expenses loaded", "count", len(expenses))
	s.Dispatch(LoadExpenses{Expenses: expenses})
}

// Add creates draft on the backend and appends the confirmed expense.
// Nothing is inserted when the backend rejects it.
func (s *ExpenseStore) Add(ctx context.Context, draft api.ExpenseDraft) {
	s.Dispatch(SetLoading{Loading: true}, ClearError{})

	created, err := s.api.CreateExpense(ctx, draft)
	if err != nil {
		s.logger.Error("failed to add expense", "error", err)
		s.Dispatch(SetError{Message: MsgAddFailed})
		return
	}
	s.Dispatch(AddExpense{Expense: created})
}

// Update saves e and replaces the stored expense with the backend's copy.
func (s *ExpenseStore) Update(ctx context.Context, e api.Expense) {
	s.Dispatch(SetLoading{Loading: true}, ClearError{})

	updated, err := s.api.UpdateExpense(ctx, e)
	if err != nil {
		s.logger.Error("failed to update expense", "id", e.ID, "error", err)
		s.Dispatch(SetError{Message: MsgUpdateFailed})
		return
	}
	s.Dispatch(EditExpense{Expense: updated})
}

// Delete removes the expense with id on the backend and then locally.
func (s *ExpenseStore) Delete(ctx context.Context, id api.ID) {
	s.Dispatch(SetLoading{Loading: true}, ClearError{})

	if err := s.api.DeleteExpense(ctx, id); err != nil {
		s.logger.Error("failed to delete expense", "id", id, "error", err)
		s.Dispatch(SetError{Message: MsgDeleteFailed})
		return
	}
	s.Dispatch(DeleteExpense{ID: id})
}

// SetFilter replaces the active filter. The zero filter shows everything.
func (s *ExpenseStore) SetFilter(f api.ExpenseFilter) {
	s.Dispatch(SetFilter{Filter: f})
}

// ClearError clears the recorded error.
func (s *ExpenseStore) ClearError() {
	s.Dispatch(ClearError{})
}

// Reset empties the collection, e.g. when the session ends.
func (s *ExpenseStore) Reset() {
	s.Dispatch(LoadExpenses{Expenses: []api.Expense{}})
}
