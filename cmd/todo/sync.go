package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"davtodo/internal/models"
	"davtodo/internal/storage/sqlite"
	"davtodo/internal/tasksync"
)

var syncUser string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle for a user and print the resulting status",
	Long: `Run one sync cycle against the user's saved WebDAV settings and print the
resulting status as JSON. The exit code is non-zero when the cycle fails or
sync is disabled for the user.

Example usage:
  todo sync --user alice
  todo sync --test --user alice`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVarP(&syncUser, "user", "u", "", "User to sync (default: configured default user)")
	syncCmd.Flags().Bool("test", false, "Only test the connection with the saved settings")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	user := syncUser
	if user == "" {
		user = appCfg.DefaultUser
	}
	if user == "" {
		return errors.New("no user given: pass --user or set default_user")
	}

	store, err := sqlite.Open(appCfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	defer store.Close()

	syncer := tasksync.New(store, store, logger, tasksync.WithDialer(tasksync.WebDAVDialer(appCfg.WebDAVTimeout)))
	ctx := cmd.Context()

	if testOnly, _ := cmd.Flags().GetBool("test"); testOnly {
		cfg, err := store.GetSyncConfig(ctx, user)
		if err != nil {
			return err
		}
		ok, err := syncer.TestConnection(ctx, cfg)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("cannot reach %s as %s", cfg.ServerURL, cfg.Username)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "connection to %s ok\n", cfg.ServerURL)
		return nil
	}

	status, err := syncer.RequestSync(ctx, user)
	if err != nil {
		return err
	}
	if err := printStatus(cmd.OutOrStdout(), status); err != nil {
		return err
	}
	if status.Status == models.SyncError {
		return fmt.Errorf("sync failed: %s", status.Error)
	}
	return nil
}

func printStatus(w io.Writer, status models.SyncStatus) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}
