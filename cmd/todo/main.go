package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"davtodo/internal/config"
	"davtodo/internal/logging"
)

var (
	cfgFile  string
	settings = config.New()

	appCfg config.Config
	logger *slog.Logger
	logOut *logging.Output
)

var rootCmd = &cobra.Command{
	Use:   "todo",
	Short: "Task manager with WebDAV synchronization",
	Long: `todo serves a JSON task API and keeps each user's task list in sync with a
tasks.json document on their WebDAV server.

Settings come from flags, TODO_* environment variables and an optional
config file (yaml, toml or json), in that order of precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(settings, cfgFile)
		if err != nil {
			return err
		}
		appCfg = cfg

		logger, logOut, err = logging.New(cfg.Log, os.Stdout)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logOut == nil {
			return nil
		}
		return logOut.Close()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	flags.String("db", "data/todo.db", "Path to sqlite database file")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("log-file", "", "Also write logs to this file, rotated by size")
	flags.Duration("webdav-timeout", 0, "Timeout of each WebDAV request (default 30s)")

	bindFlag("db", flags.Lookup("db"))
	bindFlag("log.level", flags.Lookup("log-level"))
	bindFlag("log.format", flags.Lookup("log-format"))
	bindFlag("log.file", flags.Lookup("log-file"))
	bindFlag("webdav_timeout", flags.Lookup("webdav-timeout"))
}

// bindFlag lets an explicitly set flag override the config key.
func bindFlag(key string, flag *pflag.Flag) {
	if err := settings.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
