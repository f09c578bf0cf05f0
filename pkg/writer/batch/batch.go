// Package batch splits a finite export stream into fixed-size batches.
//
// An export sends a snapshot of the filtered view and closes the channel, so
// there is no timer: full batches go out as soon as they fill up and the
// remainder goes out when the stream ends.
package batch

import (
	"context"
	"fmt"

	"github.com/ArionMiles/spendsync/pkg/api"
)

// DefaultSize is used when a writer is configured without a batch size.
const DefaultSize = 50

// Sink stores one batch. The slice is reused after Sink returns.
type Sink func(ctx context.Context, expenses []api.Expense) error

// Drain reads in until it is closed and hands the expenses to sink in groups
// of size. The returned stats count what sink accepted.
//
// If ctx ends first the partial batch is dropped and ctx.Err() is returned.
// A sink error stops the export; the expenses still queued in the channel are
// discarded so the sender is never left blocked.
func Drain(ctx context.Context, in <-chan api.Expense, size int, sink Sink) (api.ExportStats, error) {
	if size <= 0 {
		size = DefaultSize
	}

	var stats api.ExportStats
	pending := make([]api.Expense, 0, size)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := sink(ctx, pending); err != nil {
			discard(in)
			return fmt.Errorf("batch %d: %w", stats.Batches+1, err)
		}
		stats.Batches++
		stats.Expenses += len(pending)
		pending = pending[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case e, ok := <-in:
			if !ok {
				return stats, flush()
			}
			pending = append(pending, e)
			if len(pending) == size {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}
	}
}

// discard empties a buffered channel without waiting for it to be closed.
func discard(in <-chan api.Expense) {
	for {
		select {
		case _, ok := <-in:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
