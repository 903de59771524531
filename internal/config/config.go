// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no path is given.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// APIKey is required in X-Api-Key when set.
	APIKey string `yaml:"api_key"`
	// RateLimit is the per-user booking request rate per second; zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
}

type MonitoringConfig struct {
	HealthCheckPort   int  `yaml:"health_check_port"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load reads the config at path. A .env file next to the working directory
// is loaded first so its variables can be referenced as ${VAR} in the YAML.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 5
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/bookaway.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Redis.CacheTTLSeconds < 0 {
		return fmt.Errorf("redis.cache_ttl_seconds must not be negative")
	}
	if c.Telegram.BotToken != "" && len(c.Telegram.AdminChatIDs) == 0 {
		return fmt.Errorf("telegram.admin_chat_ids is required when bot_token is set")
	}
	return nil
}

// CacheTTL returns the week cache TTL, or zero when caching is disabled.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.Address == "" || c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

// Interval returns the time between backups.
func (b BackupConfig) Interval() time.Duration {
	return time.Duration(b.IntervalHours) * time.Hour
}

// Retention returns how long backup files are kept. Zero keeps them forever.
func (b BackupConfig) Retention() time.Duration {
	return time.Duration(b.RetentionDays) * 24 * time.Hour
}
