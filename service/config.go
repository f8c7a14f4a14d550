package service

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"biostar/app/routes"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the forum application configuration.
type Config struct {
	HTTPAddr       string        `mapstructure:"http_addr"`
	UwsgiAddr      string        `mapstructure:"uwsgi_addr"`
	DBPath         string        `mapstructure:"db_path"`
	BackupDir      string        `mapstructure:"backup_dir"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	PostViewWindow time.Duration `mapstructure:"post_view_window"`
	SecureCookies  bool          `mapstructure:"secure_cookies"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// LoadConfig reads .env (if present), then the optional YAML file at path,
// then BIOSTAR_* environment variables. Later sources win.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("uwsgi_addr", "")
	v.SetDefault("db_path", "data/badger")
	v.SetDefault("backup_dir", "data/backups")
	v.SetDefault("session_ttl", "336h")
	v.SetDefault("post_view_window", "5m")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("cors_origins", []string{})

	v.SetEnvPrefix("biostar")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.HTTPAddr == "" && cfg.UwsgiAddr == "" {
		return nil, errors.New("at least one of http_addr and uwsgi_addr must be set")
	}
	return &cfg, nil
}

// RouteOptions converts the config into application options.
func (c *Config) RouteOptions() routes.Options {
	return routes.Options{
		SessionTTL:    c.SessionTTL,
		ViewWindow:    c.PostViewWindow,
		SecureCookies: c.SecureCookies,
		CORSOrigins:   c.CORSOrigins,
	}
}
