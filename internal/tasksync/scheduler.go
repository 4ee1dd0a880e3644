package tasksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"davtodo/internal/models"
)

// ConfigLister returns the sync settings of every user that has any.
type ConfigLister interface {
	ListSyncConfigs(ctx context.Context) (map[string]models.SyncConfig, error)
}

// Scheduler triggers sync cycles for users with auto-sync enabled, once per
// configured interval.
type Scheduler struct {
	syncer   *Syncer
	settings ConfigLister
	logger   *slog.Logger
	interval func(models.SyncConfig) time.Duration

	mu    sync.Mutex
	ctx   context.Context
	loops map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithIntervalFunc overrides how the tick period is derived from settings.
func WithIntervalFunc(fn func(models.SyncConfig) time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = fn
	}
}

// NewScheduler creates a scheduler driving syncer.
func NewScheduler(syncer *Syncer, settings ConfigLister, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		syncer:   syncer,
		settings: settings,
		logger:   logger,
		interval: models.SyncConfig.Interval,
		loops:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts a loop for every auto-sync user and blocks until ctx is
// cancelled. All loops have stopped when Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	configs, err := s.settings.ListSyncConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list sync settings: %w", err)
	}

	s.mu.Lock()
	s.ctx = ctx
	for userID, cfg := range configs {
		s.applyLocked(userID, cfg)
	}
	active := len(s.loops)
	s.mu.Unlock()

	s.logger.Info("auto-sync scheduler started", slog.Int("users", active))

	<-ctx.Done()

	s.mu.Lock()
	for userID, cancel := range s.loops {
		cancel()
		delete(s.loops, userID)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("auto-sync scheduler stopped")
	return nil
}

// Reload applies new settings for one user: the running loop is stopped and
// a new one is started when auto-sync is still on. It is a no-op when the
// scheduler is not running.
func (s *Scheduler) Reload(userID string, cfg models.SyncConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil || s.ctx.Err() != nil {
		return
	}
	s.applyLocked(userID, cfg)
}

// Active reports whether a loop is running for the user.
func (s *Scheduler) Active(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[userID]
	return ok
}

func (s *Scheduler) applyLocked(userID string, cfg models.SyncConfig) {
	if cancel, ok := s.loops[userID]; ok {
		cancel()
		delete(s.loops, userID)
	}
	if !cfg.AutoSync || !cfg.Enabled {
		return
	}

	every := s.interval(cfg)
	if every <= 0 {
		every = time.Duration(models.DefaultSyncInterval) * time.Minute
	}

	stop, cancel := context.WithCancel(s.ctx)
	s.loops[userID] = cancel
	s.wg.Add(1)
	go s.loop(stop, s.ctx, userID, every)
}

// loop ticks until stop is done. Cycles run on the scheduler context, so a
// reload ends the ticker without aborting a cycle in flight.
func (s *Scheduler) loop(stop, run context.Context, userID string, every time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop.Done():
			return
		case <-ticker.C:
			s.trigger(run, userID)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, userID string) {
	logger := s.logger.With(slog.String("user", userID))

	st, err := s.syncer.RequestSync(ctx, userID)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		logger.Debug("auto-sync skipped, previous cycle still running")
	case errors.Is(err, ErrSyncDisabled):
		logger.Debug("auto-sync skipped, sync disabled")
	case err != nil:
		logger.Warn("auto-sync not started", slog.String("error", err.Error()))
	case st.Status == models.SyncError:
		logger.Warn("auto-sync failed", slog.String("error", st.Error))
	}
}
