// Package csv implements a Writer that exports expenses to a CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ArionMiles/spendsync/pkg/api"
	"github.com/ArionMiles/spendsync/pkg/writer/batch"
)

// Header is the first row of every exported file.
var Header = []string{"ID", "Date", "Description", "Category", "Amount", "Created At"}

// Writer writes expenses to a CSV file, flushing to disk once per batch.
type Writer struct {
	filePath  string
	file      *os.File
	writer    *csv.Writer
	mu        sync.Mutex
	batchSize int
	logger    *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file.
	FilePath string
	// Append keeps existing rows instead of truncating the file.
	Append bool
	// BatchSize is the number of rows written between flushes.
	BatchSize int
}

// New creates a new CSV writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("csv file path is required")
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if cfg.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(cfg.FilePath, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	w := &Writer{
		filePath:  cfg.FilePath,
		file:      file,
		writer:    csv.NewWriter(file),
		batchSize: cfg.BatchSize,
		logger:    logger,
	}

	stat, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("stat csv file: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	if stat.Size() == 0 {
		if err := w.writeHeader(); err != nil {
			if closeErr := file.Close(); closeErr != nil {
				return nil, fmt.Errorf("writing header: %w (close error: %w)", err, closeErr)
			}
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	logger.Info("csv writer initialized", "file", cfg.FilePath)
	return w, nil
}

func (w *Writer) writeHeader() error {
	if err := w.writer.Write(Header); err != nil {
		return err
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Write consumes expenses from the input channel and writes them to CSV.
// The file is closed when Write returns.
func (w *Writer) Write(ctx context.Context, in <-chan api.Expense) (api.ExportStats, error) {
	stats, err := batch.Drain(ctx, in, w.batchSize, w.writeBatch)
	if closeErr := w.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	w.logger.Info("csv export finished", "expenses", stats.Expenses, "batches", stats.Batches)
	return stats, err
}

// Record renders one expense as a CSV row.
func Record(e api.Expense) []string {
	created := ""
	if !e.CreatedAt.IsZero() {
		created = e.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		e.ID.String(),
		e.Date.String(),
		e.Description,
		string(e.Category),
		e.Amount.StringFixed(2),
		created,
	}
}

// writeBatch appends a batch of rows and flushes them to the file.
func (w *Writer) writeBatch(_ context.Context, expenses []api.Expense) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range expenses {
		if err := w.writer.Write(Record(e)); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Debug("wrote expenses to csv", "count", len(expenses))
	return nil
}

// Close flushes and closes the CSV file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	w.writer.Flush()
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}

	w.logger.Info("csv writer closed", "file", w.filePath)
	return nil
}
