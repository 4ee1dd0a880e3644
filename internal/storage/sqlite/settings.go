package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"davtodo/internal/models"
)

// GetSyncConfig returns the stored sync settings of the user, or the
// disabled defaults when none were saved.
func (s *Store) GetSyncConfig(ctx context.Context, userID string) (models.SyncConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT server_url, username, password, enabled, auto_sync, sync_interval
        FROM sync_settings WHERE user_id = ?`, userID)

	cfg, err := scanSyncConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SyncConfig{SyncInterval: models.DefaultSyncInterval}, nil
	}
	if err != nil {
		return models.SyncConfig{}, fmt.Errorf("get sync settings: %w", err)
	}
	return cfg, nil
}

// SaveSyncConfig normalizes and upserts the user's sync settings. The stored
// value is returned.
func (s *Store) SaveSyncConfig(ctx context.Context, userID string, cfg models.SyncConfig) (models.SyncConfig, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return models.SyncConfig{}, err
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO sync_settings(user_id, server_url, username, password, enabled, auto_sync, sync_interval)
        VALUES(?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            server_url = excluded.server_url,
            username = excluded.username,
            password = excluded.password,
            enabled = excluded.enabled,
            auto_sync = excluded.auto_sync,
            sync_interval = excluded.sync_interval`,
		userID, cfg.ServerURL, cfg.Username, cfg.Password, cfg.Enabled, cfg.AutoSync, cfg.SyncInterval)
	if err != nil {
		return models.SyncConfig{}, fmt.Errorf("save sync settings: %w", err)
	}

	s.logger.Info("sync settings saved",
		slog.String("user", userID),
		slog.Bool("enabled", cfg.Enabled),
		slog.Bool("auto_sync", cfg.AutoSync),
		slog.Int("interval", cfg.SyncInterval))
	return cfg, nil
}

// ListSyncConfigs returns the settings of every user that saved any.
func (s *Store) ListSyncConfigs(ctx context.Context) (map[string]models.SyncConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, server_url, username, password, enabled, auto_sync, sync_interval
        FROM sync_settings ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list sync settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.SyncConfig)
	for rows.Next() {
		var (
			user string
			cfg  models.SyncConfig
		)
		if err := rows.Scan(&user, &cfg.ServerURL, &cfg.Username, &cfg.Password, &cfg.Enabled, &cfg.AutoSync, &cfg.SyncInterval); err != nil {
			return nil, fmt.Errorf("scan sync settings: %w", err)
		}
		out[user] = cfg
	}
	return out, rows.Err()
}

func scanSyncConfig(row rowScanner) (models.SyncConfig, error) {
	var cfg models.SyncConfig
	err := row.Scan(&cfg.ServerURL, &cfg.Username, &cfg.Password, &cfg.Enabled, &cfg.AutoSync, &cfg.SyncInterval)
	return cfg, err
}
