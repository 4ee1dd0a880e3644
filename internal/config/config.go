// Package config loads application settings from flags, TODO_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"davtodo/internal/logging"
)

// EnvPrefix namespaces environment variables, e.g. TODO_ADDR.
const EnvPrefix = "TODO"

// Config holds every runtime setting.
type Config struct {
	Addr          string          `mapstructure:"addr"`
	DBPath        string          `mapstructure:"db"`
	StaticDir     string          `mapstructure:"static"`
	DefaultUser   string          `mapstructure:"default_user"`
	WebDAVTimeout time.Duration   `mapstructure:"webdav_timeout"`
	Log           logging.Options `mapstructure:"log"`
}

// New returns a viper instance with defaults and environment bindings.
// Callers bind their flags before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("addr", ":8080")
	v.SetDefault("db", "data/todo.db")
	v.SetDefault("static", "web/dist")
	v.SetDefault("default_user", "")
	v.SetDefault("webdav_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Variable names used by earlier releases.
	_ = v.BindEnv("db", "TODO_DB_PATH", "TODO_DB")
	_ = v.BindEnv("static", "TODO_STATIC_DIR", "TODO_STATIC")

	return v
}

// Load reads file when given and decodes the merged settings.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.DefaultUser = strings.TrimSpace(cfg.DefaultUser)
	return cfg, cfg.Validate()
}

// Validate reports settings the application cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db must not be empty"))
	}
	if c.WebDAVTimeout <= 0 {
		errs = append(errs, fmt.Errorf("webdav_timeout must be positive, got %s", c.WebDAVTimeout))
	}
	return errors.Join(errs...)
}
