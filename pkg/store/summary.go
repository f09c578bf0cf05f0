package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ArionMiles/spendsync/pkg/api"
)

// MsgSummaryFailed is recorded when the summary cannot be fetched.
const MsgSummaryFailed = "Failed to load expense summary"

// SummaryAPI fetches server-computed aggregates.
type SummaryAPI interface {
	ExpenseSummary(ctx context.Context, tf api.Timeframe) (api.Summary, error)
}

// SummaryState is a snapshot of the summary store.
type SummaryState struct {
	Timeframe api.Timeframe
	Summary   api.Summary
	Loading   bool
	Error     string
}

// SummaryStore holds the last fetched summary. Aggregates always come from
// the backend and are never derived from the local expense collection.
type SummaryStore struct {
	api    SummaryAPI
	logger *slog.Logger

	mu    sync.Mutex
	state SummaryState

	subs listeners[SummaryState]
}

// NewSummaryStore creates an empty summary store.
func NewSummaryStore(backend SummaryAPI, logger *slog.Logger) *SummaryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryStore{
		api:    backend,
		logger: logger.With("component", "summary_store"),
		state:  SummaryState{Timeframe: api.Monthly},
	}
}

// State returns the current snapshot.
func (s *SummaryStore) State() SummaryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive every new snapshot.
func (s *SummaryStore) Subscribe(fn func(SummaryState)) func() {
	return s.subs.add(fn)
}

func (s *SummaryStore) update(fn func(*SummaryState)) {
	s.mu.Lock()
	fn(&s.state)
	s.subs.enqueue(s.state)
	s.mu.Unlock()
	s.subs.deliver()
}

// Load fetches the summary for tf.
func (s *SummaryStore) Load(ctx context.Context, tf api.Timeframe) {
	s.update(func(st *SummaryState) {
		st.Timeframe = tf
		st.Loading = true
		st.Error = ""
	})

	summary, err := s.api.ExpenseSummary(ctx, tf)
	if err != nil {
		s.logger.Error("failed to load summary", "timeframe", tf, "error", err)
		s.update(func(st *SummaryState) {
			st.Loading = false
			st.Error = MsgSummaryFailed
		})
		return
	}

	s.update(func(st *SummaryState) {
		st.Summary = summary
		st.Loading = false
	})
}

// ClearError clears the recorded error.
func (s *SummaryStore) ClearError() {
	s.update(func(st *SummaryState) { st.Error = "" })
}
