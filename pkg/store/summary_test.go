package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/ArionMiles/spendsync/pkg/api"
	"github.com/ArionMiles/spendsync/pkg/logging"
)

type fakeSummaryAPI struct {
	summary api.Summary
	err     error
	got     api.Timeframe
}

func (f *fakeSummaryAPI) ExpenseSummary(ctx context.Context, tf api.Timeframe) (api.Summary, error) {
	f.got = tf
	return f.summary, f.err
}

func TestSummaryStore_Load(t *testing.T) {
	backend := &fakeSummaryAPI{summary: api.Summary{
		CategoryTotals: []api.CategoryTotal{{Category: api.CategoryTravel, Total: decimal.NewFromInt(40)}},
	}}
	s := NewSummaryStore(backend, logging.Discard())

	s.Load(context.Background(), api.Yearly)

	st := s.State()
	assert.Equal(t, api.Yearly, backend.got)
	assert.Equal(t, api.Yearly, st.Timeframe)
	assert.False(t, st.Loading)
	assert.True(t, st.Summary.Total().Equal(decimal.NewFromInt(40)))
}

func TestSummaryStore_LoadFailure(t *testing.T) {
	s := NewSummaryStore(&fakeSummaryAPI{err: errors.New("boom")}, logging.Discard())

	s.Load(context.Background(), api.Monthly)

	assert.Equal(t, MsgSummaryFailed, s.State().Error)
	assert.False(t, s.State().Loading)

	s.ClearError()
	assert.Empty(t, s.State().Error)
}
