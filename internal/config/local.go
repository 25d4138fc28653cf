package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendSQLite   = "sqlite"
	BackendLocal    = "local"
	BackendPostgres = "postgres"
)

// LocalConfig holds configuration for local daemon mode
type LocalConfig struct {
	Daemon      DaemonConfig      `yaml:"daemon"`
	Storage     StorageConfig     `yaml:"storage"`
	Cache       CacheConfig       `yaml:"cache"`
	Queue       QueueConfig       `yaml:"queue"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Progression ProgressionConfig `yaml:"progression"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// StorageConfig selects where snapshots and notifications live
type StorageConfig struct {
	Backend     string `yaml:"backend"`        // sqlite, local, postgres
	Path        string `yaml:"path,omitempty"` // sqlite file or local directory; empty = under ~/.ndole/data
	PostgresURL string `yaml:"-"`              // loaded from secrets.yaml or DATABASE_URL
}

// CacheConfig holds Redis settings
type CacheConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Addr            string `yaml:"addr"`
	DB              int    `yaml:"db"`
	Password        string `yaml:"-"` // loaded from secrets.yaml
	TTLSeconds      int    `yaml:"ttl_seconds"`
	DistributedLock bool   `yaml:"distributed_lock"`
}

// QueueConfig holds RabbitMQ settings
type QueueConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"-"` // loaded from secrets.yaml or RABBITMQ_URL
	Workers  int    `yaml:"workers"`
	Prefetch int    `yaml:"prefetch"`
}

// CatalogConfig points at a catalog file; empty uses the embedded one
type CatalogConfig struct {
	Path string `yaml:"path,omitempty"`
}

// ProgressionConfig holds coordinator settings
type ProgressionConfig struct {
	// Timezone decides which calendar day an activity counts for
	Timezone string `yaml:"timezone"`
}

// ResilienceConfig tunes the store decorator and the HTTP rate limit
type ResilienceConfig struct {
	RetryAttempts         int `yaml:"retry_attempts"`
	BreakerThreshold      int `yaml:"breaker_threshold"`
	BreakerTimeoutSeconds int `yaml:"breaker_timeout_seconds"`
	MaxConcurrent         int `yaml:"max_concurrent"`
	RateLimitPerMinute    int `yaml:"rate_limit_per_minute"` // completions per user; 0 disables
	RateLimitBurst        int `yaml:"rate_limit_burst"`
}

// SecretsConfig holds credentials loaded from secrets.yaml
type SecretsConfig struct {
	PostgresURL   string `yaml:"postgres_url,omitempty"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RabbitMQURL   string `yaml:"rabbitmq_url,omitempty"`
}

// NdoleDir returns the path to ~/.ndole
func NdoleDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".ndole"), nil
}

// EnsureNdoleDir creates ~/.ndole and subdirectories if they don't exist
func EnsureNdoleDir() (string, error) {
	dir, err := NdoleDir()
	if err != nil {
		return "", err
	}

	subdirs := []string{
		"",
		"logs",
		"data",
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7433,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
		},
		Cache: CacheConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			TTLSeconds: 600,
		},
		Queue: QueueConfig{
			Enabled:  false,
			Workers:  3,
			Prefetch: 1,
		},
		Progression: ProgressionConfig{
			Timezone: "Local",
		},
		Resilience: ResilienceConfig{
			RetryAttempts:         3,
			BreakerThreshold:      5,
			BreakerTimeoutSeconds: 30,
			MaxConcurrent:         16,
			RateLimitPerMinute:    60,
			RateLimitBurst:        10,
		},
	}
}

// Validate checks values that would otherwise fail deep inside startup
func (c *LocalConfig) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendLocal:
	case BackendPostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("storage backend postgres requires a postgres url (secrets.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Daemon.Port < 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("invalid daemon port %d", c.Daemon.Port)
	}
	if c.Queue.Enabled && c.Queue.URL == "" {
		return fmt.Errorf("queue enabled without a rabbitmq url (secrets.yaml or RABBITMQ_URL)")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Progression.Timezone
func (c *LocalConfig) Location() (*time.Location, error) {
	tz := c.Progression.Timezone
	if tz == "" || tz == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// StoragePath returns the configured storage path or the default under dir
func (c *LocalConfig) StoragePath(dir string) string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	if c.Storage.Backend == BackendLocal {
		return filepath.Join(dir, "data")
	}
	return filepath.Join(dir, "data", "ndole.db")
}

// LoadLocalConfig loads configuration from ~/.ndole/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := NdoleDir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(dir)
}

// LoadLocalConfigFrom loads config.yaml and secrets.yaml from dir
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	cfg := DefaultLocalConfig()

	configPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// defaults
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	return cfg, nil
}

// loadSecrets loads credentials from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	secretsPath := filepath.Join(dir, "secrets.yaml")

	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(secretsPath)
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	if secrets.PostgresURL != "" {
		cfg.Storage.PostgresURL = secrets.PostgresURL
	}
	if secrets.RedisPassword != "" {
		cfg.Cache.Password = secrets.RedisPassword
	}
	if secrets.RabbitMQURL != "" {
		cfg.Queue.URL = secrets.RabbitMQURL
	}

	return nil
}

// SaveLocalConfig saves configuration to ~/.ndole/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureNdoleDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SaveSecrets saves credentials to ~/.ndole/secrets.yaml
func SaveSecrets(secrets SecretsConfig) error {
	dir, err := EnsureNdoleDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// Write with restricted permissions (owner read/write only)
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}

	return nil
}
