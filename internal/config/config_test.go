package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"davtodo/internal/logging"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		Addr:          ":8080",
		DBPath:        "data/todo.db",
		StaticDir:     "web/dist",
		WebDAVTimeout: 30 * time.Second,
		Log: logging.Options{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("defaults (-want +got):\n%s", diff)
	}
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("TODO_ADDR", ":9090")
	t.Setenv("TODO_DB_PATH", "/var/lib/todo/todo.db")
	t.Setenv("TODO_STATIC_DIR", "/srv/www")
	t.Setenv("TODO_DEFAULT_USER", " solo ")
	t.Setenv("TODO_WEBDAV_TIMEOUT", "5s")
	t.Setenv("TODO_LOG_FORMAT", "json")

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.DBPath != "/var/lib/todo/todo.db" || cfg.StaticDir != "/srv/www" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.DefaultUser != "solo" || cfg.WebDAVTimeout != 5*time.Second || cfg.Log.Format != "json" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestLoadFileAndPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todo.yaml")
	content := "addr: \":7000\"\ndb: /tmp/file.db\nwebdav_timeout: 10s\nlog:\n  level: debug\n  file: /tmp/todo.log\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TODO_ADDR", ":7500")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7500" {
		t.Errorf("environment must override the file, got %q", cfg.Addr)
	}
	if cfg.DBPath != "/tmp/file.db" || cfg.WebDAVTimeout != 10*time.Second {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Log.Level != "debug" || cfg.Log.File != "/tmp/todo.log" || cfg.Log.Format != "text" {
		t.Errorf("nested log values not merged: %+v", cfg.Log)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected missing config file to fail")
	}

	v := New()
	v.Set("webdav_timeout", "0s")
	v.Set("db", "")
	if _, err := Load(v, ""); err == nil {
		t.Errorf("expected invalid settings to fail")
	}
}
