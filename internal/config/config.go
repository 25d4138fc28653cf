package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds settings read from the environment. It overrides the YAML
// file for container deployments, where mounting ~/.ndole is awkward.
type Config struct {
	// Server
	Port     int
	Bind     string
	LogLevel string
	Debug    bool

	// Storage
	StorageBackend string
	StoragePath    string
	DatabaseURL    string

	// Redis
	RedisAddr     string
	RedisPassword string

	// RabbitMQ
	RabbitMQURL  string
	QueueWorkers int
	QueueEnabled bool
	CacheEnabled bool

	// Progression
	CatalogPath string
	Timezone    string
}

// Load reads configuration from environment variables. Unset values stay
// zero so ApplyEnv only overrides what the environment actually sets.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvInt("NDOLE_PORT", 0),
		Bind:           getEnv("NDOLE_BIND", ""),
		LogLevel:       getEnv("NDOLE_LOG_LEVEL", ""),
		Debug:          getEnvBool("NDOLE_DEBUG", false),
		StorageBackend: getEnv("NDOLE_STORAGE", ""),
		StoragePath:    getEnv("NDOLE_STORAGE_PATH", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RabbitMQURL:    getEnv("RABBITMQ_URL", ""),
		QueueWorkers:   getEnvInt("NDOLE_QUEUE_WORKERS", 0),
		CatalogPath:    getEnv("NDOLE_CATALOG", ""),
		Timezone:       getEnv("NDOLE_TIMEZONE", ""),
	}
	cfg.CacheEnabled = getEnvBool("NDOLE_CACHE", cfg.RedisAddr != "")
	cfg.QueueEnabled = getEnvBool("NDOLE_QUEUE", cfg.RabbitMQURL != "")

	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("NDOLE_PORT out of range: %d", cfg.Port)
	}

	return cfg, nil
}

// ApplyEnv overlays the environment onto a file-based config
func ApplyEnv(local *LocalConfig) error {
	env, err := Load()
	if err != nil {
		return err
	}

	if env.Port != 0 {
		local.Daemon.Port = env.Port
	}
	if env.Bind != "" {
		local.Daemon.Bind = env.Bind
	}
	if env.Debug {
		local.Daemon.LogLevel = "debug"
	} else if env.LogLevel != "" {
		local.Daemon.LogLevel = env.LogLevel
	}

	if env.DatabaseURL != "" {
		local.Storage.PostgresURL = env.DatabaseURL
		if env.StorageBackend == "" {
			local.Storage.Backend = BackendPostgres
		}
	}
	if env.StorageBackend != "" {
		local.Storage.Backend = env.StorageBackend
	}
	if env.StoragePath != "" {
		local.Storage.Path = env.StoragePath
	}

	if env.RedisAddr != "" {
		local.Cache.Addr = env.RedisAddr
	}
	if env.RedisPassword != "" {
		local.Cache.Password = env.RedisPassword
	}
	if env.CacheEnabled {
		local.Cache.Enabled = true
	}

	if env.RabbitMQURL != "" {
		local.Queue.URL = env.RabbitMQURL
	}
	if env.QueueWorkers > 0 {
		local.Queue.Workers = env.QueueWorkers
	}
	if env.QueueEnabled {
		local.Queue.Enabled = true
	}

	if env.CatalogPath != "" {
		local.Catalog.Path = env.CatalogPath
	}
	if env.Timezone != "" {
		local.Progression.Timezone = env.Timezone
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
