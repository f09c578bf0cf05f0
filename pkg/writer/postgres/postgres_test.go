package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ArionMiles/spendsync/pkg/api"
	"github.com/ArionMiles/spendsync/pkg/logging"
)

func TestNew_ConnectionFailure(t *testing.T) {
	cfg := Config{
		Host:     "nonexistent-host.invalid",
		Port:     5432,
		Database: "spendsync",
		User:     "spendsync",
		Password: "password",
	}

	_, err := New(cfg, logging.Discard())
	assert.Error(t, err)
}

func TestConfig_ConnString(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=require", cfg.ConnString())

	cfg.URL = "postgres://x@y/z"
	assert.Equal(t, "postgres://x@y/z", cfg.ConnString())
}

// testDatabase returns connection settings for an integration database:
// TEST_POSTGRES_HOST when set, otherwise a throwaway container.
func testDatabase(t *testing.T) Config {
	t.Helper()

	if host := os.Getenv("TEST_POSTGRES_HOST"); host != "" {
		return Config{
			Host:     host,
			Database: os.Getenv("TEST_POSTGRES_DB"),
			User:     os.Getenv("TEST_POSTGRES_USER"),
			Password: os.Getenv("TEST_POSTGRES_PASSWORD"),
		}
	}

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("spendsync"),
		tcpostgres.WithUsername("spendsync"),
		tcpostgres.WithPassword("spendsync"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return Config{URL: url}
}

func TestWriter_UpsertsByRemoteID(t *testing.T) {
	cfg := testDatabase(t)
	cfg.BatchSize = 1

	lunch := api.Expense{
		ID:          "101",
		Amount:      decimal.RequireFromString("12.5"),
		Description: "Lunch",
		Category:    api.CategoryFoodDining,
		Date:        api.NewDate(2024, time.March, 1),
		CreatedAt:   time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC),
	}

	write := func(expenses ...api.Expense) api.ExportStats {
		w, err := New(cfg, logging.Discard())
		require.NoError(t, err)

		in := make(chan api.Expense, len(expenses))
		for _, e := range expenses {
			in <- e
		}
		close(in)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stats, err := w.Write(ctx, in)
		require.NoError(t, err)
		return stats
	}

	stats := write(lunch, api.Expense{ID: "102", Amount: decimal.NewFromInt(3), Description: "Bus", Category: api.CategoryTransportation, Date: api.NewDate(2024, time.March, 2)})
	assert.Equal(t, api.ExportStats{Expenses: 2, Batches: 2}, stats)
	lunch.Description = "Team lunch"
	write(lunch)

	pool, err := pgxpool.New(context.Background(), cfg.ConnString())
	require.NoError(t, err)
	defer pool.Close()

	var (
		count       int
		description string
		amount      string
	)
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM expenses WHERE remote_id IN ('101', '102')`).Scan(&count))
	assert.Equal(t, 2, count)

	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT description, amount::text FROM expenses WHERE remote_id = '101'`).Scan(&description, &amount))
	assert.Equal(t, "Team lunch", description)
	assert.Equal(t, "12.50", amount)
}

func TestWriter_FailedBatchKeepsEarlierBatches(t *testing.T) {
	cfg := testDatabase(t)
	cfg.BatchSize = 1

	w, err := New(cfg, logging.Discard())
	require.NoError(t, err)

	in := make(chan api.Expense, 3)
	in <- api.Expense{ID: "201", Amount: decimal.NewFromInt(5), Description: "Coffee", Category: api.CategoryFoodDining, Date: api.NewDate(2024, time.April, 1)}
	in <- api.Expense{Amount: decimal.NewFromInt(9), Description: "No id", Category: api.CategoryOther, Date: api.NewDate(2024, time.April, 2)}
	in <- api.Expense{ID: "203", Amount: decimal.NewFromInt(7), Description: "Never sent", Category: api.CategoryOther, Date: api.NewDate(2024, time.April, 3)}
	close(in)

	stats, err := w.Write(context.Background(), in)
	assert.ErrorContains(t, err, "batch 2")
	assert.Equal(t, api.ExportStats{Expenses: 1, Batches: 1}, stats)

	pool, err := pgxpool.New(context.Background(), cfg.ConnString())
	require.NoError(t, err)
	defer pool.Close()

	var ids []string
	rows, err := pool.Query(context.Background(), `SELECT remote_id FROM expenses WHERE remote_id IN ('201', '203') ORDER BY remote_id`)
	require.NoError(t, err)
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"201"}, ids)
}
