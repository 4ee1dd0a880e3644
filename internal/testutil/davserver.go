// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/webdav"

	"davtodo/internal/models"
)

// Credentials accepted by DAVServer.
const (
	DAVUser     = "alice"
	DAVPassword = "secret"
)

// DAVServer is an in-memory WebDAV server guarded by basic auth.
type DAVServer struct {
	URL string
	FS  webdav.FileSystem

	requests atomic.Int64

	mu   sync.Mutex
	fail map[string]int
}

// NewDAVServer starts a server that is closed when the test ends.
func NewDAVServer(t *testing.T) *DAVServer {
	t.Helper()

	d := &DAVServer{
		FS:   webdav.NewMemFS(),
		fail: make(map[string]int),
	}
	handler := &webdav.Handler{
		FileSystem: d.FS,
		LockSystem: webdav.NewMemLS(),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.requests.Add(1)

		user, pass, ok := r.BasicAuth()
		if !ok || user != DAVUser || pass != DAVPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		d.mu.Lock()
		status, failing := d.fail[r.Method]
		d.mu.Unlock()
		if failing {
			http.Error(w, "injected failure", status)
			return
		}

		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	d.URL = srv.URL
	return d
}

// Config returns sync settings pointing at the server.
func (d *DAVServer) Config() models.SyncConfig {
	return models.SyncConfig{
		ServerURL:    d.URL,
		Username:     DAVUser,
		Password:     DAVPassword,
		Enabled:      true,
		SyncInterval: models.DefaultSyncInterval,
	}
}

// FailMethod makes every request with the given method answer status.
func (d *DAVServer) FailMethod(method string, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[strings.ToUpper(method)] = status
}

// Recover removes all injected failures.
func (d *DAVServer) Recover() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = make(map[string]int)
}

// Requests reports how many HTTP requests reached the server.
func (d *DAVServer) Requests() int64 {
	return d.requests.Load()
}

// WriteFile stores raw content at name.
func (d *DAVServer) WriteFile(t *testing.T, name string, data []byte) {
	t.Helper()

	f, err := d.FS.OpenFile(context.Background(), name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// ReadFile returns the content stored at name, or nil when it does not exist.
func (d *DAVServer) ReadFile(t *testing.T, name string) []byte {
	t.Helper()

	f, err := d.FS.OpenFile(context.Background(), name, os.O_RDONLY, 0)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return data
}

// Task builds a valid task with fixed timestamps for fixtures.
func Task(id, title string, updated time.Time) models.Task {
	created := updated.Add(-time.Hour)
	return models.Task{
		ID:        id,
		Title:     title,
		Priority:  models.PriorityMedium,
		Category:  "Personal",
		Tags:      models.Tags{},
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

// MustTime parses an RFC 3339 timestamp or fails the test.
func MustTime(t *testing.T, value string) time.Time {
	t.Helper()

	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts
}
