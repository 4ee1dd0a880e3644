// Package tasksync reconciles a user's local task list with the copy kept on
// a WebDAV server and tracks the status of each sync cycle.
package tasksync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"davtodo/internal/models"
	"davtodo/internal/webdav"
)

// TaskStore supplies the local collection at the start of a cycle and
// accepts the resolved collection at its end. ApplySync receives the
// collection the cycle started from so local changes made meanwhile survive.
type TaskStore interface {
	ListTasks(ctx context.Context, userID string) ([]models.Task, error)
	ApplySync(ctx context.Context, userID string, base, resolved []models.Task) error
}

// SettingsStore supplies the sync settings snapshot of a user.
type SettingsStore interface {
	GetSyncConfig(ctx context.Context, userID string) (models.SyncConfig, error)
}

// Remote is the remote store adapter used by one cycle.
type Remote interface {
	LoadTasks(ctx context.Context) ([]models.Task, error)
	SaveTasks(ctx context.Context, tasks []models.Task) error
	TestConnection(ctx context.Context) (bool, error)
}

// Dialer builds a fresh adapter from a settings snapshot.
type Dialer func(cfg models.SyncConfig) (Remote, error)

// WebDAVDialer returns a Dialer backed by webdav.New.
func WebDAVDialer(timeout time.Duration) Dialer {
	return func(cfg models.SyncConfig) (Remote, error) {
		client, err := webdav.New(cfg, webdav.WithTimeout(timeout))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Syncer runs sync cycles and keeps one status record per user.
type Syncer struct {
	tasks    TaskStore
	settings SettingsStore
	dial     Dialer
	logger   *slog.Logger
	now      func() time.Time
	hub      *hub

	mu       sync.Mutex
	statuses map[string]models.SyncStatus
}

// Option customizes a Syncer.
type Option func(*Syncer)

// WithDialer replaces the WebDAV dialer.
func WithDialer(d Dialer) Option {
	return func(s *Syncer) {
		s.dial = d
	}
}

// WithClock replaces the clock used for LastSyncTime.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// New constructs a Syncer. Without WithDialer it talks to WebDAV servers
// using webdav.DefaultTimeout.
func New(tasks TaskStore, settings SettingsStore, logger *slog.Logger, opts ...Option) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		tasks:    tasks,
		settings: settings,
		dial:     WebDAVDialer(webdav.DefaultTimeout),
		logger:   logger,
		now:      time.Now,
		hub:      newHub(),
		statuses: make(map[string]models.SyncStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current status of a user. Users that never synced are
// idle.
func (s *Syncer) Status(userID string) models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(userID)
}

// Subscribe delivers every status change of a user until cancel is called.
// A slow reader only misses intermediate statuses, never the latest one.
func (s *Syncer) Subscribe(userID string) (<-chan models.SyncStatus, func()) {
	return s.hub.subscribe(userID)
}

// RequestSync runs one sync cycle for a user and returns the resulting
// status. Failures inside the cycle end in the error status and are not
// returned as errors. ErrSyncDisabled and ErrSyncInProgress report that no
// cycle was started.
func (s *Syncer) RequestSync(ctx context.Context, userID string) (models.SyncStatus, error) {
	cfg, err := s.settings.GetSyncConfig(ctx, userID)
	if err != nil {
		return s.Status(userID), fmt.Errorf("read sync settings: %w", err)
	}
	if !cfg.Enabled {
		return s.Status(userID), ErrSyncDisabled
	}
	if !s.begin(userID) {
		return s.Status(userID), ErrSyncInProgress
	}

	start := time.Now()
	logger := s.logger.With(slog.String("user", userID))
	logger.Info("sync started", slog.String("server", cfg.ServerURL))

	changed, err := s.cycle(ctx, userID, cfg)
	if err != nil {
		logger.Error("sync failed", slog.String("error", err.Error()), slog.Duration("elapsed", time.Since(start)))
		return s.fail(userID, err), nil
	}

	logger.Info("sync finished", slog.Bool("local_changed", changed), slog.Duration("elapsed", time.Since(start)))
	return s.succeed(userID), nil
}

// TestConnection checks unsaved settings against the server. Incomplete
// settings fail with webdav.ErrConfiguration.
func (s *Syncer) TestConnection(ctx context.Context, cfg models.SyncConfig) (bool, error) {
	remote, err := s.dial(cfg)
	if err != nil {
		return false, err
	}
	ok, err := remote.TestConnection(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		s.logger.Warn("webdav connection test failed", slog.String("server", cfg.ServerURL))
	}
	return ok, nil
}

// cycle is fetch, reconcile, push, then local replace. It reports whether
// the local collection was replaced. A panic in a collaborator ends the
// cycle with an error so the user never stays in the syncing state.
func (s *Syncer) cycle(ctx context.Context, userID string, cfg models.SyncConfig) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			changed, err = false, fmt.Errorf("sync aborted: %v", r)
		}
	}()

	remote, err := s.dial(cfg)
	if err != nil {
		return false, err
	}

	local, err := s.tasks.ListTasks(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load local tasks: %w", err)
	}

	fetched, err := remote.LoadTasks(ctx)
	if err != nil {
		return false, err
	}

	resolved := Reconcile(local, fetched)

	if err := remote.SaveTasks(ctx, resolved); err != nil {
		return false, err
	}

	if SameTasks(local, resolved) {
		return false, nil
	}
	if err := s.tasks.ApplySync(ctx, userID, local, resolved); err != nil {
		return false, fmt.Errorf("store resolved tasks: %w", err)
	}
	return true, nil
}

// begin moves the user into the syncing state unless a cycle is running.
func (s *Syncer) begin(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.statusLocked(userID)
	if cur.Status == models.SyncSyncing {
		return false
	}
	s.setLocked(userID, models.SyncStatus{
		Status:       models.SyncSyncing,
		LastSyncTime: cur.LastSyncTime,
	})
	return true
}

func (s *Syncer) succeed(userID string) models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	st := models.SyncStatus{Status: models.SyncSuccess, LastSyncTime: &now}
	s.setLocked(userID, st)
	return st
}

// fail keeps the last successful sync time so users still see it.
func (s *Syncer) fail(userID string, err error) models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := models.SyncStatus{
		Status:       models.SyncError,
		LastSyncTime: s.statusLocked(userID).LastSyncTime,
		Error:        err.Error(),
	}
	s.setLocked(userID, st)
	return st
}

func (s *Syncer) statusLocked(userID string) models.SyncStatus {
	st, ok := s.statuses[userID]
	if !ok {
		return models.SyncStatus{Status: models.SyncIdle}
	}
	return st
}

func (s *Syncer) setLocked(userID string, st models.SyncStatus) {
	s.statuses[userID] = st
	s.hub.publish(userID, st)
}
