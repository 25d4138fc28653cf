// Package app assembles the progression engine from configuration: catalog,
// storage backend, resilience, cache, queue, metrics and notification sinks.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/ndole/internal/cache"
	"github.com/felixgeelhaar/ndole/internal/catalog"
	"github.com/felixgeelhaar/ndole/internal/config"
	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/metrics"
	"github.com/felixgeelhaar/ndole/internal/progression"
	"github.com/felixgeelhaar/ndole/internal/queue"
	"github.com/felixgeelhaar/ndole/internal/storage"
	"github.com/felixgeelhaar/ndole/internal/storage/local"
	"github.com/felixgeelhaar/ndole/internal/storage/postgres"
	"github.com/felixgeelhaar/ndole/internal/storage/sqlite"
)

// Inbox persists notifications and lists them back per user
type Inbox interface {
	progression.Notifier
	List(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// Options selects the long-running parts only the daemon needs
type Options struct {
	// Consume starts the AMQP completion consumer and the outbox relay
	Consume bool

	// RelayInterval is how often the Postgres outbox is drained (default: 5s)
	RelayInterval time.Duration
}

// App is a fully wired progression engine
type App struct {
	Service  *progression.Service
	Catalog  *catalog.Registry
	Store    *storage.ResilientStore
	Inbox    Inbox
	Metrics  *metrics.Metrics
	Producer *queue.Producer

	closers []func()
}

// Build wires the engine described by cfg. dir is the ndole home used for
// default storage paths.
func Build(ctx context.Context, cfg *config.LocalConfig, dir string, opts Options) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Catalog = catalog.NewRegistry(catalog.NewLoader(cfg.Catalog.Path))
	if err := a.Catalog.Load(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	backend, outbox, err := a.openBackend(ctx, cfg, dir)
	if err != nil {
		return nil, err
	}

	a.Store = storage.NewResilientStore(backend, storage.ResilientConfig{
		MaxAttempts:      cfg.Resilience.RetryAttempts,
		FailureThreshold: cfg.Resilience.BreakerThreshold,
		OpenTimeout:      time.Duration(cfg.Resilience.BreakerTimeoutSeconds) * time.Second,
		MaxConcurrent:    cfg.Resilience.MaxConcurrent,
	})

	a.Metrics = metrics.New()
	a.Metrics.WatchStore(cfg.Storage.Backend, a.Store.State)

	var store progression.SnapshotStore = a.Store
	var locker progression.Locker
	if cfg.Cache.Enabled {
		store, locker = a.openCache(ctx, cfg, store)
	}

	var conn *queue.Connection
	if cfg.Queue.Enabled {
		conn, err = queue.NewConnection(cfg.Queue.URL)
		if err != nil {
			return nil, fmt.Errorf("connect queue: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		a.Producer = queue.NewProducer(conn)
	}

	logNotifier := progression.NewLogNotifier(nil)
	notifier := progression.NewMultiNotifier(logNotifier, a.Inbox, a.Metrics)
	if a.Producer != nil && outbox == nil {
		notifier.Add(a.Producer)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	serviceOpts := []progression.Option{
		progression.WithNotifier(notifier),
		progression.WithLocation(loc),
		progression.WithRecorder(a.Metrics),
	}
	if locker != nil {
		serviceOpts = append(serviceOpts, progression.WithLocker(locker))
	}
	a.Service = progression.NewService(store, a.Catalog, serviceOpts...)

	if !opts.Consume {
		return a, nil
	}

	if conn != nil {
		consumer := queue.NewConsumer(conn, a.Service, queue.ConsumerConfig{
			Workers:  cfg.Queue.Workers,
			Prefetch: cfg.Queue.Prefetch,
		})
		if err := consumer.Start(ctx); err != nil {
			return nil, fmt.Errorf("start consumer: %w", err)
		}
		// Stop consuming before the connection closes
		a.closers = append(a.closers, consumer.Stop)
	}

	if outbox != nil {
		var sink progression.Notifier = logNotifier
		if a.Producer != nil {
			sink = a.Producer
		}
		interval := opts.RelayInterval
		if interval <= 0 {
			interval = 5 * time.Second
		}
		relayCtx, cancel := context.WithCancel(ctx)
		go outbox.Relay(relayCtx, sink, interval, 100)
		a.closers = append(a.closers, cancel)
	}

	return a, nil
}

// openBackend opens the configured snapshot store and notification inbox.
// The outbox is returned separately when the backend relays notifications.
func (a *App) openBackend(ctx context.Context, cfg *config.LocalConfig, dir string) (progression.SnapshotStore, *postgres.Outbox, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite, "":
		path := cfg.StoragePath(dir)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { db.Close() })
		if err := db.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		a.Inbox = sqlite.NewNotificationStore(db)
		return sqlite.NewSnapshotStore(db), nil, nil

	case config.BackendLocal:
		fs, err := local.NewStore(cfg.StoragePath(dir))
		if err != nil {
			return nil, nil, err
		}
		a.Inbox = local.NewNotificationStore(fs)
		return local.NewSnapshotStore(fs), nil, nil

	case config.BackendPostgres:
		pool, err := postgres.OpenPool(ctx, cfg.Storage.PostgresURL, postgres.DefaultPoolConfig())
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		outbox, err := postgres.OpenOutbox(ctx, cfg.Storage.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() { outbox.Close() })
		a.Inbox = outbox
		return postgres.NewSnapshotStore(pool), outbox, nil
	}

	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// openCache puts Redis in front of store. An unreachable Redis is logged and
// skipped so the engine keeps running on its primary store.
func (a *App) openCache(ctx context.Context, cfg *config.LocalConfig, store progression.SnapshotStore) (progression.SnapshotStore, progression.Locker) {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = cfg.Cache.Addr
	cacheCfg.Password = cfg.Cache.Password
	cacheCfg.DB = cfg.Cache.DB

	client, err := cache.Connect(ctx, cacheCfg)
	if err != nil {
		slog.Warn("redis unavailable, running without cache", "addr", cfg.Cache.Addr, "error", err)
		return store, nil
	}
	a.closers = append(a.closers, func() { client.Close() })

	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = cache.TTLSnapshot
	}
	cached := cache.NewCachedStore(store, client, cacheCfg.KeyPrefix, ttl)

	if !cfg.Cache.DistributedLock {
		return cached, nil
	}
	return cached, cache.NewLock(client, cacheCfg.KeyPrefix, cache.TTLLock)
}

// Close releases everything Build opened, in reverse order
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
