// Package app wires storage, the API client, the stores and the export
// plugins into one object with an explicit Start/Close lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ArionMiles/spendsync/internal/plugins"
	"github.com/ArionMiles/spendsync/pkg/api"
	"github.com/ArionMiles/spendsync/pkg/client"
	"github.com/ArionMiles/spendsync/pkg/config"
	csvplugin "github.com/ArionMiles/spendsync/pkg/plugins/writers/csv"
	jsonplugin "github.com/ArionMiles/spendsync/pkg/plugins/writers/json"
	postgresplugin "github.com/ArionMiles/spendsync/pkg/plugins/writers/postgres"
	"github.com/ArionMiles/spendsync/pkg/storage"
	"github.com/ArionMiles/spendsync/pkg/store"
)

// Option customises App construction.
type Option func(*options)

type options struct {
	tokens     storage.Storage
	httpClient *http.Client
}

// WithStorage uses tokens instead of the configured session file.
func WithStorage(tokens storage.Storage) Option {
	return func(o *options) { o.tokens = tokens }
}

// WithHTTPClient sets the HTTP client used to reach the backend.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// App is the composition root of spendsync.
type App struct {
	Config   config.Config
	Tokens   storage.Storage
	Client   *client.Client
	Auth     *store.AuthStore
	Expenses *store.ExpenseStore
	Summary  *store.SummaryStore
	Registry *plugins.Registry

	logger *slog.Logger

	mu            sync.Mutex
	ctx           context.Context
	authenticated bool
	unsubscribe   func()
}

// New constructs every component. Nothing talks to the backend until Start.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.tokens == nil {
		f, err := storage.Open(cfg.StateFile, logger.With("component", "storage"))
		if err != nil {
			return nil, fmt.Errorf("opening session: %w", err)
		}
		o.tokens = f
	}

	a := &App{
		Config: cfg,
		Tokens: o.tokens,
		logger: logger,
		ctx:    context.Background(),
	}

	clientOpts := []client.Option{
		client.WithLogger(logger.With("component", "client")),
		client.WithAuthFailureHandler(a.onAuthFailure),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(o.httpClient))
	}
	a.Client = client.New(cfg.APIURL, o.tokens, clientOpts...)

	a.Auth = store.NewAuthStore(a.Client, o.tokens, logger)
	a.Expenses = store.NewExpenseStore(a.Client, logger)
	a.Summary = store.NewSummaryStore(a.Client, logger)

	registry, err := plugins.NewRegistry(
		&csvplugin.Plugin{},
		&jsonplugin.Plugin{},
		&postgresplugin.Plugin{},
	)
	if err != nil {
		return nil, fmt.Errorf("registering writers: %w", err)
	}
	a.Registry = registry

	return a, nil
}

// Start runs the startup auth check. The expense collection is loaded
// whenever the session becomes authenticated and cleared when it ends,
// including during Start itself.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	a.ctx = ctx
	if a.unsubscribe == nil {
		a.unsubscribe = a.Auth.Subscribe(a.onAuthChange)
	}
	a.mu.Unlock()

	a.Auth.Init(ctx)
	a.logger.Debug("app started", "authenticated", a.Auth.State().IsAuthenticated)
}

// Close stops reacting to session changes.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
}

// onAuthChange reloads or clears expenses on session transitions.
func (a *App) onAuthChange(st store.AuthState) {
	a.mu.Lock()
	changed := st.IsAuthenticated != a.authenticated
	a.authenticated = st.IsAuthenticated
	ctx := a.ctx
	a.mu.Unlock()

	if !changed {
		return
	}
	if st.IsAuthenticated {
		a.Expenses.Load(ctx)
		return
	}
	a.Expenses.Reset()
}

func (a *App) onAuthFailure(err error) {
	a.Auth.SessionExpired(err)
}

// ErrNotSignedIn is returned by operations that need a session.
var ErrNotSignedIn = errors.New("not signed in, run `spendsync login` first")

// RequireAuth returns ErrNotSignedIn unless the session is authenticated.
func (a *App) RequireAuth() error {
	if !a.Auth.State().IsAuthenticated {
		return ErrNotSignedIn
	}
	return nil
}

// WriterSettings is what the app offers export writers: the output file
// for file-based writers and the configured database connection. Each
// writer takes the settings its schema declares.
func (a *App) WriterSettings(file string) plugins.Settings {
	pg := a.Config.Postgres
	return plugins.Settings{
		"filePath": file,
		"host":     pg.Host,
		"port":     pg.Port,
		"database": pg.Database,
		"user":     pg.User,
		"password": pg.Password,
		"sslmode":  pg.SSLMode,
	}
}

// Export streams the currently filtered expenses into the named writer
// plugin. file is the output path for file-based writers.
func (a *App) Export(ctx context.Context, writer, file string) (api.ExportStats, error) {
	w, err := a.Registry.Open(writer, a.WriterSettings(file), a.logger.With("component", "writer"))
	if err != nil {
		return api.ExportStats{}, fmt.Errorf("creating writer: %w", err)
	}

	expenses := a.Expenses.State().Filtered
	in := make(chan api.Expense, len(expenses))
	for _, e := range expenses {
		in <- e
	}
	close(in)

	stats, err := w.Write(ctx, in)
	if err != nil {
		return stats, fmt.Errorf("writing %s export: %w", writer, err)
	}
	a.logger.Info("export finished", "writer", writer, "expenses", stats.Expenses, "batches", stats.Batches)
	return stats, nil
}
