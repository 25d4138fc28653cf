package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/ndole/internal/cache"
	"github.com/felixgeelhaar/ndole/internal/catalog"
	"github.com/felixgeelhaar/ndole/internal/config"
	"github.com/felixgeelhaar/ndole/internal/queue"
	"github.com/felixgeelhaar/ndole/internal/storage/postgres"
)

// loadConfig reads ~/.ndole/config.yaml and applies environment overrides
func loadConfig() (*config.LocalConfig, error) {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cmdInit initializes Ndolé for first-time use
func cmdInit() error {
	fmt.Println("Ndolé - First-Time Setup")
	fmt.Println("========================")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	// 1. Create directory structure
	fmt.Print("Creating ~/.ndole directory structure... ")
	ndoleDir, err := config.EnsureNdoleDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	// 2. Create default config if it doesn't exist
	configPath := filepath.Join(ndoleDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	// 3. Check the catalog
	fmt.Print("Loading recipe catalog... ")
	cfg, err := config.LoadLocalConfigFrom(ndoleDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	registry := catalog.NewRegistry(catalog.NewLoader(cfg.Catalog.Path))
	if err := registry.Load(); err != nil {
		fmt.Printf("✗ %v\n", err)
	} else {
		stats := registry.Stats()
		fmt.Printf("✓ (%d levels, %d lessons)\n", stats.LevelCount, stats.LessonCount)
	}

	// 4. Optional infrastructure credentials
	fmt.Println()
	fmt.Println("Optional Infrastructure")
	fmt.Println("-----------------------")
	fmt.Println("Ndolé runs on SQLite by default. Postgres, Redis and RabbitMQ are optional.")
	fmt.Println()

	secrets := config.SecretsConfig{
		PostgresURL:   cfg.Storage.PostgresURL,
		RedisPassword: cfg.Cache.Password,
		RabbitMQURL:   cfg.Queue.URL,
	}
	changed := false

	if secrets.PostgresURL == "" {
		fmt.Print("Postgres URL (or press Enter to skip): ")
		if v := readLine(reader); v != "" {
			secrets.PostgresURL = v
			changed = true
		}
	} else {
		fmt.Println("Postgres URL: already configured ✓")
	}

	if secrets.RabbitMQURL == "" {
		fmt.Print("RabbitMQ URL (or press Enter to skip): ")
		if v := readLine(reader); v != "" {
			secrets.RabbitMQURL = v
			changed = true
		}
	} else {
		fmt.Println("RabbitMQ URL: already configured ✓")
	}

	if changed {
		if err := config.SaveSecrets(secrets); err != nil {
			fmt.Printf("  ⚠ Failed to save: %v\n", err)
		} else {
			fmt.Println("  ✓ Saved to secrets.yaml")
		}
	}

	// 5. Summary
	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. ndole start                     # Start the daemon")
	fmt.Println("  2. ndole doctor                    # Verify configuration")
	fmt.Println("  3. ndole catalog <user>            # See the learning path")
	fmt.Println("  4. ndole complete <user> 102 recipe")
	fmt.Println()
	fmt.Println("For assistant integration, configure MCP with the 'ndole mcp' command.")

	return nil
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// cmdDoctor checks configuration and connectivity
func cmdDoctor() error {
	fmt.Println("Checking system requirements...")

	allGood := true

	fmt.Print("Directory: ")
	ndoleDir, err := config.NdoleDir()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else if _, err := os.Stat(ndoleDir); os.IsNotExist(err) {
		fmt.Println("✗ not created (run 'ndole init' to create)")
		allGood = false
	} else {
		fmt.Printf("✓ %s\n", ndoleDir)
	}

	fmt.Print("Config:    ")
	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		return fmt.Errorf("configuration could not be loaded")
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		fmt.Println("✓ valid")
	}

	fmt.Print("Catalog:   ")
	registry := catalog.NewRegistry(catalog.NewLoader(cfg.Catalog.Path))
	if err := registry.Load(); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		stats := registry.Stats()
		fmt.Printf("✓ %d levels, %d lessons\n", stats.LevelCount, stats.LessonCount)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Println("\nInfrastructure:")

	fmt.Printf("  storage (%s): ", cfg.Storage.Backend)
	if cfg.Storage.Backend == config.BackendPostgres {
		if err := checkPostgres(ctx, cfg.Storage.PostgresURL); err != nil {
			fmt.Printf("✗ %v\n", err)
			allGood = false
		} else {
			fmt.Println("✓ reachable")
		}
	} else {
		fmt.Printf("✓ %s\n", cfg.StoragePath(ndoleDir))
	}

	fmt.Print("  redis: ")
	if !cfg.Cache.Enabled {
		fmt.Println("- disabled")
	} else if err := checkRedis(ctx, cfg.Cache); err != nil {
		// The daemon runs without the cache, so this is only a warning
		fmt.Printf("⚠ %v\n", err)
	} else {
		fmt.Printf("✓ %s\n", cfg.Cache.Addr)
	}

	fmt.Print("  rabbitmq: ")
	if !cfg.Queue.Enabled {
		fmt.Println("- disabled")
	} else if err := checkRabbitMQ(cfg.Queue.URL); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		fmt.Println("✓ reachable")
	}

	fmt.Print("\nDaemon:    ")
	if isRunning() {
		fmt.Printf("✓ running at %s\n", daemonAddr())
	} else {
		fmt.Println("- not running (start with 'ndole start')")
	}

	fmt.Println()
	if allGood {
		fmt.Println("✓ All checks passed")
	} else {
		fmt.Println("⚠ Some checks failed")
	}

	return nil
}

func checkPostgres(ctx context.Context, url string) error {
	pool, err := postgres.OpenPool(ctx, url, postgres.DefaultPoolConfig())
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

func checkRedis(ctx context.Context, cfg config.CacheConfig) error {
	rc := cache.DefaultConfig()
	rc.Addr = cfg.Addr
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	client, err := cache.Connect(ctx, rc)
	if err != nil {
		return err
	}
	return client.Close()
}

func checkRabbitMQ(url string) error {
	conn, err := queue.NewConnection(url)
	if err != nil {
		return err
	}
	return conn.Close()
}

// cmdConfig shows current configuration
func cmdConfig() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ndoleDir, _ := config.NdoleDir()

	fmt.Println("Ndolé Configuration")
	fmt.Println("===================")
	fmt.Println()
	fmt.Printf("Config file: %s\n", filepath.Join(ndoleDir, "config.yaml"))
	fmt.Println()

	fmt.Println("Daemon:")
	fmt.Printf("  Address:   %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
	fmt.Printf("  Log Level: %s\n", cfg.Daemon.LogLevel)
	fmt.Println()

	fmt.Println("Storage:")
	fmt.Printf("  Backend:   %s\n", cfg.Storage.Backend)
	if cfg.Storage.Backend == config.BackendPostgres {
		fmt.Printf("  Postgres:  %s\n", configured(cfg.Storage.PostgresURL))
	} else {
		fmt.Printf("  Path:      %s\n", cfg.StoragePath(ndoleDir))
	}
	fmt.Println()

	fmt.Println("Cache:")
	fmt.Printf("  Enabled:   %v\n", cfg.Cache.Enabled)
	fmt.Printf("  Addr:      %s\n", cfg.Cache.Addr)
	fmt.Printf("  TTL:       %ds\n", cfg.Cache.TTLSeconds)
	fmt.Printf("  Lock:      %v\n", cfg.Cache.DistributedLock)
	fmt.Println()

	fmt.Println("Queue:")
	fmt.Printf("  Enabled:   %v\n", cfg.Queue.Enabled)
	fmt.Printf("  RabbitMQ:  %s\n", configured(cfg.Queue.URL))
	fmt.Printf("  Workers:   %d\n", cfg.Queue.Workers)
	fmt.Println()

	fmt.Println("Progression:")
	catalogPath := cfg.Catalog.Path
	if catalogPath == "" {
		catalogPath = "(embedded)"
	}
	fmt.Printf("  Catalog:   %s\n", catalogPath)
	fmt.Printf("  Timezone:  %s\n", cfg.Progression.Timezone)
	fmt.Printf("  Rate:      %d completions/min per user\n", cfg.Resilience.RateLimitPerMinute)

	return nil
}

func configured(secret string) string {
	if secret == "" {
		return "not configured"
	}
	return "configured"
}
