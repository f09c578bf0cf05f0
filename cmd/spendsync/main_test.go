package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsync/pkg/storage"
)

// backend is an in-memory expense API.
type backend struct {
	mu       sync.Mutex
	token    string
	nextID   int
	expenses []map[string]any
	password string
}

func newBackend() *backend {
	return &backend{
		nextID:   3,
		password: "secret",
		expenses: []map[string]any{
			{"id": 1, "amount": "12.50", "description": "Lunch", "category": "Food & Dining", "date": "2024-03-01"},
			{"id": 2, "amount": "40.00", "description": "Train ticket", "category": "Transportation", "date": "2024-03-05"},
		},
	}
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/health-check/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /auth/token/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != b.password {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"detail": "No active account found"})
			return
		}
		b.mu.Lock()
		b.token = "good"
		b.mu.Unlock()
		writeJSON(w, map[string]any{
			"tokens": map[string]string{"access": "good", "refresh": "refresh"},
			"user":   map[string]any{"id": 1, "username": body["username"], "email": "sam@example.com"},
		})
	})
	mux.HandleFunc("POST /auth/verify-token/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		writeJSON(w, map[string]bool{"valid": true})
	})
	mux.HandleFunc("POST /auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /expenses/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, b.expenses)
	})
	mux.HandleFunc("POST /expenses/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		body["id"] = b.nextID
		b.nextID++
		b.expenses = append(b.expenses, body)
		b.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, body)
	})
	mux.HandleFunc("PUT /expenses/{id}/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		id, _ := strconv.Atoi(r.PathValue("id"))
		body["id"] = id
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.expenses {
			if e["id"] == id {
				b.expenses[i] = body
				writeJSON(w, body)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("DELETE /expenses/{id}/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		id, _ := strconv.Atoi(r.PathValue("id"))
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.expenses {
			if e["id"] == id {
				b.expenses = append(b.expenses[:i], b.expenses[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"detail": "Not found."})
	})
	mux.HandleFunc("GET /expenses/summary/", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"category_totals": []map[string]string{
				{"category": "Food & Dining", "total": "12.50"},
				{"category": "Transportation", "total": "40.00"},
			},
			"time_series": []map[string]string{
				{"period": "2024-03-01", "total": "52.50"},
			},
		})
	})
	return mux
}

func (b *backend) authorized(w http.ResponseWriter, r *http.Request) bool {
	b.mu.Lock()
	ok := b.token != "" && r.Header.Get("Authorization") == "Bearer "+b.token
	b.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]string{"detail": "Authentication credentials were not provided."})
	}
	return ok
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

// harness runs the root command against one backend and session file.
type harness struct {
	t       *testing.T
	backend *backend
	url     string
	state   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := newBackend()
	srv := httptest.NewServer(b.handler())
	t.Cleanup(srv.Close)
	return &harness{
		t:       t,
		backend: b,
		url:     srv.URL,
		state:   filepath.Join(t.TempDir(), "session.json"),
	}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(strings.NewReader(stdin), &out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--api-url", h.url, "--state-file", h.state}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) login() {
	h.t.Helper()
	_, err := h.run("", "login", "sam", "--password", "secret")
	require.NoError(h.t, err)
}

func TestLogin_PersistsSession(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("secret\n", "login", "sam")
	require.NoError(t, err)
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "Signed in as sam")
	assert.Contains(t, out, "2 expense(s) loaded")

	f, err := storage.Open(h.state, nil)
	require.NoError(t, err)
	access, ok := f.Get(storage.AccessTokenKey)
	assert.True(t, ok)
	assert.Equal(t, "good", access)
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "login", "sam", "-p", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid credentials")

	_, statErr := os.Stat(h.state)
	assert.True(t, os.IsNotExist(statErr), "no session file should be written")
}

func TestList_RequiresSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
}

func TestList_TableAndFilter(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Lunch")
	assert.Contains(t, out, "Train ticket")
	assert.Contains(t, out, "52.50")

	out, err = h.run("", "list", "--category", "transportation", "--min", "10")
	require.NoError(t, err)
	assert.NotContains(t, out, "Lunch")
	assert.Contains(t, out, "Train ticket")
}

func TestList_JSONOutput(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "list", "--search", "LUNCH", "-o", "json")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Lunch", got[0]["description"])
	assert.Equal(t, "2024-03-01", got[0]["date"])
}

func TestList_YAMLOutput(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "list", "--to", "2024-03-01", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "description: Lunch")
	assert.NotContains(t, out, "Train ticket")
}

func TestList_BadFlags(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "list", "--from", "03/01/2024")
	assert.ErrorContains(t, err, "--from")

	_, err = h.run("", "list", "--category", "Groceries")
	assert.ErrorContains(t, err, "unknown category")

	_, err = h.run("", "list", "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestAdd_ValidatesBeforeSending(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("", "add", "--amount", "0", "--description", "Coffee", "-c", "Other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Amount must be greater than 0")

	h.backend.mu.Lock()
	assert.Len(t, h.backend.expenses, 2)
	h.backend.mu.Unlock()
}

func TestAdd_CreatesExpense(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "add", "--amount", "4", "--description", "Coffee", "-c", "food & dining", "--date", "2024-03-09", "-o", "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "3", got["id"])
	assert.Equal(t, "4", got["amount"])
	assert.Equal(t, "Food & Dining", got["category"])

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	require.Len(t, h.backend.expenses, 3)
	assert.Equal(t, "4.00", h.backend.expenses[2]["amount"])
}

func TestEdit_ChangesOnlyGivenFields(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "edit", "2", "--amount", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "Train ticket")
	assert.Contains(t, out, "42.00")

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	assert.Equal(t, "42.00", h.backend.expenses[1]["amount"])
	assert.Equal(t, "Train ticket", h.backend.expenses[1]["description"])
	assert.Equal(t, "2024-03-05", h.backend.expenses[1]["date"])
}

func TestEdit_UnknownID(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("", "edit", "99", "--amount", "1")
	assert.ErrorContains(t, err, "expense 99 not found")
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "delete", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted expense 1")

	_, err = h.run("", "rm", "1")
	assert.ErrorContains(t, err, "Failed to delete expense")
}

func TestSummary(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Food & Dining")
	assert.Contains(t, out, "52.50")
	assert.Contains(t, out, "Mar 2024")

	_, err = h.run("", "summary", "-t", "daily")
	assert.ErrorContains(t, err, "unknown timeframe")
}

func TestExport_CSV(t *testing.T) {
	h := newHarness(t)
	h.login()
	path := filepath.Join(t.TempDir(), "out.csv")

	out, err := h.run("", "export", "--file", path, "--category", "Food & Dining")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 expense(s) in 1 batch(es)")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Lunch")
	assert.NotContains(t, string(data), "Train ticket")
}

func TestExport_UnknownWriter(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("", "export", "-w", "sheets")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv, json, postgres")
}

func TestExport_NeedsFile(t *testing.T) {
	h := newHarness(t)
	h.login()

	_, err := h.run("", "export", "-w", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json needs filePath")
	assert.Contains(t, err.Error(), "--file")
}

func TestWriters(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "writers")
	require.NoError(t, err)
	assert.Contains(t, out, "csv")
	assert.Contains(t, out, "postgres")
}

func TestLogout_ClearsSession(t *testing.T) {
	h := newHarness(t)
	h.login()

	out, err := h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = h.run("", "list")
	assert.ErrorContains(t, err, "not signed in")
}

func TestExpiredSessionIsDropped(t *testing.T) {
	h := newHarness(t)
	h.login()

	// The backend forgets the token and refuses to refresh it.
	h.backend.mu.Lock()
	h.backend.token = "rotated"
	h.backend.mu.Unlock()

	_, err := h.run("", "list")
	assert.ErrorContains(t, err, "not signed in")

	f, err := storage.Open(h.state, nil)
	require.NoError(t, err)
	_, ok := f.Get(storage.RefreshTokenKey)
	assert.False(t, ok)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "✗ Not signed in")
	assert.Contains(t, out, "Backend health: ✓ OK")
	assert.Contains(t, out, "Some checks failed")

	h.login()
	out, err = h.run("", "status", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as sam (2 expenses)")
	assert.Contains(t, out, "All checks passed.")
}
