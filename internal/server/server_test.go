package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"davtodo/internal/models"
	"davtodo/internal/storage/sqlite"
	"davtodo/internal/tasksync"
	"davtodo/internal/testutil"
	"davtodo/internal/webdav"
)

type fixture struct {
	srv    *Server
	store  *sqlite.Store
	syncer *tasksync.Syncer
}

func newFixture(t *testing.T, defaultUser string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "todo.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	syncer := tasksync.New(store, store, logger, tasksync.WithDialer(tasksync.WebDAVDialer(5*time.Second)))
	srv := New(store, syncer, nil, logger, Options{DefaultUser: defaultUser})
	t.Cleanup(srv.CloseStreams)

	return &fixture{srv: srv, store: store, syncer: syncer}
}

// do sends a request as user ("" sends no user header) and returns the
// recorded response.
func (f *fixture) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

type taskEnvelope struct {
	Task models.Task `json:"task"`
}

type tasksEnvelope struct {
	Tasks []models.Task `json:"tasks"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(t, http.MethodGet, "/api/healthz", "", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestUserResolution(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(t, http.MethodGet, "/api/tasks", "", nil)
	expectStatus(t, w, http.StatusUnauthorized)

	single := newFixture(t, "me")
	created := single.do(t, http.MethodPost, "/api/tasks", "", map[string]any{"title": "mine"})
	expectStatus(t, created, http.StatusCreated)

	tasks, err := single.store.ListTasks(context.Background(), "me")
	if err != nil || len(tasks) != 1 {
		t.Fatalf("expected task stored for default user, got %v %v", tasks, err)
	}
	w = single.do(t, http.MethodGet, "/api/tasks", "someone-else", nil)
	if got := decode[tasksEnvelope](t, w).Tasks; len(got) != 0 {
		t.Errorf("header user must not see the default user's tasks, got %d", len(got))
	}
}

func TestTaskLifecycle(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, http.MethodPost, "/api/tasks", "u1", map[string]any{
		"title":    "Buy milk",
		"category": "Personal",
		"tags":     []string{"shopping"},
		"priority": "high",
		"dueDate":  "2024-05-01",
	})
	expectStatus(t, w, http.StatusCreated)
	task := decode[taskEnvelope](t, w).Task
	if task.ID == "" || task.Priority != models.PriorityHigh || task.DueDate == nil || task.DueDate.String() != "2024-05-01" {
		t.Fatalf("unexpected task: %+v", task)
	}

	w = f.do(t, http.MethodPut, "/api/tasks/"+task.ID, "u1", map[string]any{"title": "Buy oat milk", "dueDate": ""})
	expectStatus(t, w, http.StatusOK)
	updated := decode[taskEnvelope](t, w).Task
	if updated.Title != "Buy oat milk" || updated.DueDate != nil || updated.Category != "Personal" {
		t.Errorf("unexpected update result: %+v", updated)
	}

	w = f.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/toggle", "u1", nil)
	expectStatus(t, w, http.StatusOK)
	if !decode[taskEnvelope](t, w).Task.Completed {
		t.Errorf("expected toggled task to be completed")
	}

	w = f.do(t, http.MethodGet, "/api/tasks?completed=true&tag=shopping", "u1", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[tasksEnvelope](t, w).Tasks; len(got) != 1 || got[0].ID != task.ID {
		t.Errorf("filter mismatch: %+v", got)
	}

	w = f.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/toggle", "u2", nil)
	expectStatus(t, w, http.StatusNotFound)

	w = f.do(t, http.MethodDelete, "/api/tasks/"+task.ID, "u1", nil)
	expectStatus(t, w, http.StatusNoContent)
	w = f.do(t, http.MethodDelete, "/api/tasks/"+task.ID, "u1", nil)
	expectStatus(t, w, http.StatusNotFound)
}

func TestTaskValidationErrors(t *testing.T) {
	f := newFixture(t, "u1")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing title", http.MethodPost, "/api/tasks", map[string]any{"category": "Work"}, http.StatusBadRequest},
		{"blank title", http.MethodPost, "/api/tasks", map[string]any{"title": "  "}, http.StatusBadRequest},
		{"bad priority", http.MethodPost, "/api/tasks", map[string]any{"title": "x", "priority": "urgent"}, http.StatusBadRequest},
		{"bad due date", http.MethodPost, "/api/tasks", map[string]any{"title": "x", "dueDate": "tomorrow"}, http.StatusBadRequest},
		{"bad completed filter", http.MethodGet, "/api/tasks?completed=maybe", nil, http.StatusBadRequest},
		{"bad priority filter", http.MethodGet, "/api/tasks?priority=urgent", nil, http.StatusBadRequest},
		{"update missing", http.MethodPut, "/api/tasks/nope", map[string]any{"title": "x"}, http.StatusNotFound},
		{"toggle missing", http.MethodPost, "/api/tasks/nope/toggle", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, "", tt.body)
			expectStatus(t, w, tt.want)
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("expected error payload, got %s", w.Body.String())
			}
		})
	}
}

func TestCategoriesAndTags(t *testing.T) {
	f := newFixture(t, "u1")
	f.do(t, http.MethodPost, "/api/tasks", "", map[string]any{"title": "a", "category": "Garden", "tags": []string{"b", "a"}})

	w := f.do(t, http.MethodGet, "/api/categories", "", nil)
	expectStatus(t, w, http.StatusOK)
	cats := decode[map[string][]string](t, w)["categories"]
	if len(cats) != len(models.DefaultCategories)+1 || cats[len(cats)-1] != "Garden" {
		t.Errorf("unexpected categories: %v", cats)
	}

	w = f.do(t, http.MethodGet, "/api/tags", "", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string][]string](t, w)["tags"]; strings.Join(got, ",") != "a,b" {
		t.Errorf("unexpected tags: %v", got)
	}
}

func TestSyncSettingsHidePassword(t *testing.T) {
	f := newFixture(t, "u1")

	w := f.do(t, http.MethodGet, "/api/settings/sync", "", nil)
	expectStatus(t, w, http.StatusOK)
	initial := decode[syncSettingsResponse](t, w)
	if initial.Enabled || initial.HasPassword || initial.SyncInterval != models.DefaultSyncInterval {
		t.Errorf("unexpected defaults: %+v", initial)
	}

	w = f.do(t, http.MethodPut, "/api/settings/sync", "", map[string]any{
		"serverUrl":    "https://dav.example.com",
		"username":     "alice",
		"password":     "hunter2",
		"autoSync":     true,
		"syncInterval": 10,
	})
	expectStatus(t, w, http.StatusOK)
	if strings.Contains(w.Body.String(), "hunter2") {
		t.Fatalf("password leaked in response: %s", w.Body.String())
	}
	saved := decode[syncSettingsResponse](t, w)
	if !saved.Enabled || !saved.HasPassword || saved.SyncInterval != 10 {
		t.Errorf("unexpected saved settings: %+v", saved)
	}

	// Omitting the password keeps the stored one.
	w = f.do(t, http.MethodPut, "/api/settings/sync", "", map[string]any{
		"serverUrl": "https://dav.example.com/other",
		"username":  "alice",
	})
	expectStatus(t, w, http.StatusOK)
	kept := decode[syncSettingsResponse](t, w)
	if !kept.HasPassword || !kept.Enabled || kept.SyncInterval != models.DefaultSyncInterval {
		t.Errorf("expected stored password to be kept: %+v", kept)
	}

	// An explicit empty password disables sync.
	w = f.do(t, http.MethodPut, "/api/settings/sync", "", map[string]any{
		"serverUrl": "https://dav.example.com/other",
		"username":  "alice",
		"password":  "",
	})
	expectStatus(t, w, http.StatusOK)
	if cleared := decode[syncSettingsResponse](t, w); cleared.Enabled || cleared.HasPassword {
		t.Errorf("expected sync disabled without password: %+v", cleared)
	}
}

func TestSyncEndpoints(t *testing.T) {
	f := newFixture(t, "u1")
	dav := testutil.NewDAVServer(t)

	w := f.do(t, http.MethodPost, "/api/sync", "", nil)
	expectStatus(t, w, http.StatusConflict)

	cfg := dav.Config()
	w = f.do(t, http.MethodPut, "/api/settings/sync", "", map[string]any{
		"serverUrl": cfg.ServerURL,
		"username":  cfg.Username,
		"password":  cfg.Password,
	})
	expectStatus(t, w, http.StatusOK)

	w = f.do(t, http.MethodPost, "/api/tasks", "", map[string]any{"title": "sync me"})
	expectStatus(t, w, http.StatusCreated)
	task := decode[taskEnvelope](t, w).Task

	w = f.do(t, http.MethodPost, "/api/sync", "", nil)
	expectStatus(t, w, http.StatusOK)
	status := decode[models.SyncStatus](t, w)
	if status.Status != models.SyncSuccess || status.LastSyncTime == nil {
		t.Fatalf("unexpected status: %+v", status)
	}

	remote, err := webdav.Decode(dav.ReadFile(t, "/"+webdav.DocumentName))
	if err != nil {
		t.Fatalf("decode remote: %v", err)
	}
	if len(remote) != 1 || remote[0].ID != task.ID {
		t.Errorf("remote document mismatch: %+v", remote)
	}

	w = f.do(t, http.MethodGet, "/api/sync/status", "", nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[models.SyncStatus](t, w); got.Status != models.SyncSuccess {
		t.Errorf("expected success status, got %+v", got)
	}

	// A failing push ends in the error status but keeps the last sync time.
	dav.FailMethod(http.MethodPut, http.StatusInternalServerError)
	w = f.do(t, http.MethodPost, "/api/sync", "", nil)
	expectStatus(t, w, http.StatusOK)
	failed := decode[models.SyncStatus](t, w)
	if failed.Status != models.SyncError || failed.Error == "" {
		t.Errorf("expected error status, got %+v", failed)
	}
	if failed.LastSyncTime == nil || !failed.LastSyncTime.Equal(*status.LastSyncTime) {
		t.Errorf("last sync time must be kept on failure")
	}
}

func TestConnectionTestEndpoint(t *testing.T) {
	f := newFixture(t, "u1")
	dav := testutil.NewDAVServer(t)

	w := f.do(t, http.MethodPost, "/api/sync/test", "", map[string]any{"serverUrl": dav.URL})
	expectStatus(t, w, http.StatusBadRequest)

	w = f.do(t, http.MethodPost, "/api/sync/test", "", map[string]any{
		"serverUrl": dav.URL, "username": testutil.DAVUser, "password": testutil.DAVPassword,
	})
	expectStatus(t, w, http.StatusOK)
	if !decode[map[string]bool](t, w)["ok"] {
		t.Errorf("expected connection test to pass")
	}

	w = f.do(t, http.MethodPost, "/api/sync/test", "", map[string]any{
		"serverUrl": dav.URL, "username": testutil.DAVUser, "password": "wrong",
	})
	expectStatus(t, w, http.StatusOK)
	if decode[map[string]bool](t, w)["ok"] {
		t.Errorf("expected connection test to fail with wrong password")
	}

	// Testing never saves.
	cfg, err := f.store.GetSyncConfig(context.Background(), "u1")
	if err != nil || cfg.Complete() {
		t.Errorf("connection test must not persist settings: %+v %v", cfg, err)
	}
}

func TestSyncStatusStream(t *testing.T) {
	f := newFixture(t, "")
	dav := testutil.NewDAVServer(t)
	if _, err := f.store.SaveSyncConfig(context.Background(), "u1", dav.Config()); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(f.srv.Engine())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sync/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{UserHeader: []string{"u1"}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first models.SyncStatus
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if first.Status != models.SyncIdle {
		t.Fatalf("expected idle first, got %+v", first)
	}

	if _, err := f.syncer.RequestSync(ctx, "u1"); err != nil {
		t.Fatalf("RequestSync: %v", err)
	}

	for {
		var st models.SyncStatus
		if err := wsjson.Read(ctx, conn, &st); err != nil {
			t.Fatalf("read status: %v", err)
		}
		if st.Status == models.SyncSuccess {
			break
		}
		if st.Status != models.SyncSyncing {
			t.Fatalf("unexpected status on stream: %+v", st)
		}
	}
}
