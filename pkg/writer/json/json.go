// Package json implements a Writer that exports expenses to a JSON file.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/ArionMiles/spendsync/pkg/api"
	"github.com/ArionMiles/spendsync/pkg/writer/batch"
)

// Writer keeps the exported file as a JSON array of expenses. Re-exporting an
// expense replaces its previous entry instead of duplicating it.
type Writer struct {
	filePath  string
	expenses  []api.Expense
	index     map[api.ID]int
	mu        sync.Mutex
	batchSize int
	logger    *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string
	// BatchSize is the number of expenses merged between file rewrites.
	BatchSize int
}

// New creates a new JSON writer, loading any expenses already in the file.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("json file path is required")
	}

	w := &Writer{
		filePath:  cfg.FilePath,
		expenses:  make([]api.Expense, 0),
		index:     make(map[api.ID]int),
		batchSize: cfg.BatchSize,
		logger:    logger,
	}

	if err := w.loadExisting(); err != nil {
		logger.Warn("could not load existing expenses", "error", err)
	}

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.expenses))
	return w, nil
}

// loadExisting loads existing expenses from the JSON file if it exists.
func (w *Writer) loadExisting() error {
	data, err := os.ReadFile(w.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var existing []api.Expense
	if err := json.Unmarshal(data, &existing); err != nil {
		return err
	}
	w.merge(existing)
	return nil
}

// merge must be called with w.mu held or before the writer is shared.
func (w *Writer) merge(expenses []api.Expense) {
	for _, e := range expenses {
		if i, ok := w.index[e.ID]; ok && e.ID != "" {
			w.expenses[i] = e
			continue
		}
		w.index[e.ID] = len(w.expenses)
		w.expenses = append(w.expenses, e)
	}
}

// Write consumes expenses from the input channel and writes them to JSON.
// The file is rewritten after every batch, so an interrupted export leaves
// a valid document behind.
func (w *Writer) Write(ctx context.Context, in <-chan api.Expense) (api.ExportStats, error) {
	stats, err := batch.Drain(ctx, in, w.batchSize, w.writeBatch)
	w.logger.Info("json export finished", "expenses", stats.Expenses, "batches", stats.Batches)
	return stats, err
}

// writeBatch merges a batch of expenses and rewrites the JSON file.
func (w *Writer) writeBatch(_ context.Context, expenses []api.Expense) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.merge(expenses)

	data, err := json.MarshalIndent(w.expenses, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	if err := os.WriteFile(w.filePath, data, 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}

	w.logger.Debug("wrote expenses to json",
		"batch_count", len(expenses),
		"total_count", len(w.expenses),
	)
	return nil
}

// ExpenseCount returns the number of expenses in the file.
func (w *Writer) ExpenseCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.expenses)
}
