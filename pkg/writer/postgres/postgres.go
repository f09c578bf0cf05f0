// Package postgres provides a PostgreSQL writer for exported expenses.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/spendsync/pkg/api"
	"github.com/ArionMiles/spendsync/pkg/writer/batch"
)

//go:embed 001_create_expenses.sql
var migrationSQL string

const upsertSQL = `
	INSERT INTO expenses (
		remote_id, amount, description, category, expense_date, remote_created_at
	) VALUES ($1, $2::text::numeric, $3, $4, $5, $6)
	ON CONFLICT (remote_id) DO UPDATE SET
		amount = EXCLUDED.amount,
		description = EXCLUDED.description,
		category = EXCLUDED.category,
		expense_date = EXCLUDED.expense_date,
		remote_created_at = EXCLUDED.remote_created_at,
		updated_at = NOW()
`

// Config holds the PostgreSQL writer configuration.
type Config struct {
	// URL is a full connection string. When set, the discrete fields are ignored.
	URL string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// BatchSize is the number of expenses upserted per transaction.
	BatchSize int

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// ConnString returns the libpq-style connection string for cfg.
func (cfg Config) ConnString() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// Writer upserts expenses into PostgreSQL keyed by their backend id.
type Writer struct {
	pool      *pgxpool.Pool
	logger    *slog.Logger
	batchSize int
}

// New connects to PostgreSQL and applies the schema.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 4
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	w := &Writer{
		pool:      pool,
		logger:    logger,
		batchSize: cfg.BatchSize,
	}

	if err := w.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return w, nil
}

func (w *Writer) runMigrations(ctx context.Context) error {
	w.logger.Debug("running database migrations")
	if _, err := w.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

// Write consumes expenses from the channel and upserts them, one
// transaction per batch. Committed batches stay if a later one fails.
// The pool is closed when Write returns.
func (w *Writer) Write(ctx context.Context, in <-chan api.Expense) (api.ExportStats, error) {
	defer w.Close()

	stats, err := batch.Drain(ctx, in, w.batchSize, func(ctx context.Context, expenses []api.Expense) error {
		if err := w.writeBatch(ctx, expenses); err != nil {
			return err
		}
		w.logger.Debug("upserted expense batch", "count", len(expenses))
		return nil
	})
	w.logger.Info("postgres export finished", "expenses", stats.Expenses, "batches", stats.Batches)
	return stats, err
}

// writeBatch upserts expenses in one transaction.
func (w *Writer) writeBatch(ctx context.Context, expenses []api.Expense) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			w.logger.Warn("rollback failed", "error", err)
		}
	}()

	batch := &pgx.Batch{}
	for _, e := range expenses {
		if e.ID == "" {
			return fmt.Errorf("expense %q has no id", e.Description)
		}
		var created *time.Time
		if !e.CreatedAt.IsZero() {
			created = &e.CreatedAt
		}
		batch.Queue(upsertSQL,
			e.ID.String(),
			e.Amount.StringFixed(2),
			e.Description,
			string(e.Category),
			e.Date.Time(),
			created,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range expenses {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("upserting expense %s: %w", expenses[i].ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Close closes the database connection pool. It is safe to call more than once.
func (w *Writer) Close() {
	if w.pool != nil {
		w.pool.Close()
		w.pool = nil
		w.logger.Debug("closed PostgreSQL connection pool")
	}
}
