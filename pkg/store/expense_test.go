package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsync/pkg/api"
	"github.com/ArionMiles/spendsync/pkg/logging"
)

// fakeExpenseAPI serves an in-memory collection and can be told to fail.
type fakeExpenseAPI struct {
	mu       sync.Mutex
	items    []api.Expense
	nextID   int
	fail     error
	listHits atomic.Int32
	// block, if set, holds ListExpenses until closed.
	block chan struct{}
}

func (f *fakeExpenseAPI) ListExpenses(ctx context.Context) ([]api.Expense, error) {
	f.listHits.Add(1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	return append([]api.Expense(nil), f.items...), nil
}

func (f *fakeExpenseAPI) CreateExpense(ctx context.Context, d api.ExpenseDraft) (api.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return api.Expense{}, f.fail
	}
	f.nextID++
	e := api.Expense{
		ID:          api.ID(strconv.Itoa(100 + f.nextID)),
		Amount:      d.Amount,
		Description: d.Description,
		Category:    d.Category,
		Date:        d.Date,
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.items = append(f.items, e)
	return e, nil
}

func (f *fakeExpenseAPI) UpdateExpense(ctx context.Context, e api.Expense) (api.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return api.Expense{}, f.fail
	}
	return e, nil
}

func (f *fakeExpenseAPI) DeleteExpense(ctx context.Context, id api.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail
}

func newExpenseStore(backend ExpenseAPI) *ExpenseStore {
	return NewExpenseStore(backend, logging.Discard())
}

func TestReduce_UnknownActionIsIdentity(t *testing.T) {
	type bogus struct{ LoadExpenses }
	s := ExpenseState{Expenses: sampleExpenses(), Error: "x", Loading: true}

	assert.Equal(t, s, Reduce(s, bogus{}))
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	s := Reduce(ExpenseState{}, LoadExpenses{Expenses: sampleExpenses()})
	before := ids(s.Expenses)

	_ = Reduce(s, DeleteExpense{ID: "1"})
	_ = Reduce(s, EditExpense{Expense: expense("2", 1, 1, "changed", api.CategoryOther)})

	assert.Equal(t, before, ids(s.Expenses))
	assert.Equal(t, "Test Expense 2", s.Expenses[1].Description)
}

func TestReduce_FilteredTracksCollectionAndFilter(t *testing.T) {
	s := Reduce(ExpenseState{}, SetFilter{Filter: api.ExpenseFilter{Category: api.CategoryTransportation}})
	s = Reduce(s, LoadExpenses{Expenses: sampleExpenses()[:2]})
	assert.Equal(t, []api.ID{"2"}, ids(s.Filtered))

	s = Reduce(s, AddExpense{Expense: expense("5", 2, 9, "Taxi", api.CategoryTransportation)})
	assert.Equal(t, []api.ID{"2", "5"}, ids(s.Filtered))

	s = Reduce(s, SetFilter{Filter: api.ExpenseFilter{}})
	assert.Equal(t, []api.ID{"1", "2", "5"}, ids(s.Filtered))
}

func TestReduce_SetErrorClearsLoading(t *testing.T) {
	s := Reduce(ExpenseState{Loading: true}, SetError{Message: "boom"})
	assert.False(t, s.Loading)
	assert.Equal(t, "boom", s.Error)

	s = Reduce(s, ClearError{})
	assert.Empty(t, s.Error)
}

func TestExpenseStore_Load(t *testing.T) {
	backend := &fakeExpenseAPI{items: sampleExpenses()}
	s := newExpenseStore(backend)

	s.Load(context.Background())

	st := s.State()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.Equal(t, []api.ID{"1", "2", "3", "4"}, ids(st.Expenses))
	assert.Equal(t, ids(st.Expenses), ids(st.Filtered))
}

func TestExpenseStore_LoadFailure(t *testing.T) {
	backend := &fakeExpenseAPI{fail: errors.New("connection refused")}
	s := newExpenseStore(backend)

	s.Load(context.Background())

	st := s.State()
	assert.False(t, st.Loading)
	assert.Equal(t, MsgLoadFailed, st.Error)
	assert.Empty(t, st.Expenses)
}

func TestExpenseStore_LoadWhileLoadingIsNoop(t *testing.T) {
	backend := &fakeExpenseAPI{items: sampleExpenses(), block: make(chan struct{})}
	s := newExpenseStore(backend)

	done := make(chan struct{})
	go func() {
		s.Load(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return backend.listHits.Load() == 1 }, time.Second, time.Millisecond)
	require.True(t, s.State().Loading)

	s.Load(context.Background())
	assert.Equal(t, int32(1), backend.listHits.Load())
	assert.True(t, s.State().Loading)
	assert.Empty(t, s.State().Expenses)

	close(backend.block)
	<-done
	assert.Len(t, s.State().Expenses, 4)
}

func TestExpenseStore_AddThenDeleteRoundTrip(t *testing.T) {
	backend := &fakeExpenseAPI{items: sampleExpenses()}
	s := newExpenseStore(backend)
	s.Load(context.Background())
	before := s.State().Expenses

	s.Add(context.Background(), api.ExpenseDraft{
		Amount:      decimal.NewFromInt(12),
		Description: "Movie",
		Category:    api.CategoryEntertainment,
		Date:        api.NewDate(2023, time.June, 16),
	})
	st := s.State()
	require.Len(t, st.Expenses, 5)
	added := st.Expenses[4]
	assert.Equal(t, "Movie", added.Description)
	assert.NotEmpty(t, added.ID)
	assert.False(t, added.CreatedAt.IsZero())

	s.Delete(context.Background(), added.ID)
	assert.Equal(t, before, s.State().Expenses)
}

func TestExpenseStore_AddFailureDiscardsDraft(t *testing.T) {
	backend := &fakeExpenseAPI{}
	s := newExpenseStore(backend)
	backend.fail = errors.New("400")

	s.Add(context.Background(), api.ExpenseDraft{Description: "x"})

	st := s.State()
	assert.Empty(t, st.Expenses)
	assert.Equal(t, MsgAddFailed, st.Error)
	assert.False(t, st.Loading)
}

func TestExpenseStore_Update(t *testing.T) {
	backend := &fakeExpenseAPI{items: sampleExpenses()}
	s := newExpenseStore(backend)
	s.Load(context.Background())

	changed := s.State().Expenses[1]
	changed.Description = "Train"
	s.Update(context.Background(), changed)

	st := s.State()
	assert.Equal(t, "Train", st.Expenses[1].Description)
	assert.Equal(t, []api.ID{"1", "2", "3", "4"}, ids(st.Expenses))
}

func TestExpenseStore_UpdateUnknownIDLeavesCollection(t *testing.T) {
	backend := &fakeExpenseAPI{items: sampleExpenses()}
	s := newExpenseStore(backend)
	s.Load(context.Background())
	before := s.State().Expenses

	s.Update(context.Background(), expense("999", 1, 5, "ghost", api.CategoryOther))

	st := s.State()
	assert.Equal(t, before, st.Expenses)
	assert.Empty(t, st.Error)
}

func TestExpenseStore_MutationFailures(t *testing.T) {
	backend := &fakeExpenseAPI{items: sampleExpenses()}
	s := newExpenseStore(backend)
	s.Load(context.Background())
	backend.fail = errors.New("500")

	s.Update(context.Background(), s.State().Expenses[0])
	assert.Equal(t, MsgUpdateFailed, s.State().Error)

	s.Delete(context.Background(), "1")
	assert.Equal(t, MsgDeleteFailed, s.State().Error)
	assert.Len(t, s.State().Expenses, 4)

	s.ClearError()
	assert.Empty(t, s.State().Error)
}

func TestExpenseStore_DeleteUnknownID(t *testing.T) {
	backend := &fakeExpenseAPI{items: sampleExpenses()}
	s := newExpenseStore(backend)
	s.Load(context.Background())

	s.Delete(context.Background(), "999")

	assert.Len(t, s.State().Expenses, 4)
	assert.Empty(t, s.State().Error)
}

func TestExpenseStore_FilterScenario(t *testing.T) {
	backend := &fakeExpenseAPI{items: sampleExpenses()[:2]}
	s := newExpenseStore(backend)
	s.Load(context.Background())

	s.SetFilter(api.ExpenseFilter{Category: api.CategoryTransportation})
	assert.Equal(t, []api.ID{"2"}, ids(s.State().Filtered))

	// Filters replace, they do not merge.
	s.SetFilter(api.ExpenseFilter{SearchText: "1"})
	assert.Equal(t, []api.ID{"1"}, ids(s.State().Filtered))
	assert.Empty(t, s.State().Filter.Category)
}

func TestExpenseStore_ResetAndSubscribe(t *testing.T) {
	backend := &fakeExpenseAPI{items: sampleExpenses()}
	s := newExpenseStore(backend)

	var (
		mu        sync.Mutex
		snapshots []ExpenseState
	)
	unsubscribe := s.Subscribe(func(st ExpenseState) {
		mu.Lock()
		snapshots = append(snapshots, st)
		mu.Unlock()
	})

	s.Load(context.Background())
	s.Reset()
	unsubscribe()
	s.Load(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snapshots)
	assert.True(t, snapshots[0].Loading)
	last := snapshots[len(snapshots)-1]
	assert.Empty(t, last.Expenses)
	assert.False(t, last.Loading)
	assert.Len(t, s.State().Expenses, 4)
}
