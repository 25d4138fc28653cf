//go:build integration

package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/felixgeelhaar/ndole/internal/cache"
	"github.com/felixgeelhaar/ndole/internal/catalog"
	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

// setupRedis starts a Redis container and returns a connected client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get port: %v", err)
	}

	cfg := cache.DefaultConfig()
	cfg.Addr = fmt.Sprintf("%s:%s", host, port.Port())
	client, err := cache.Connect(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to connect: %v", err)
	}

	cleanup := func() {
		client.Close()
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return client, cleanup
}

func mustCatalog(t *testing.T) *catalog.Registry {
	t.Helper()
	reg := catalog.NewRegistry(catalog.NewLoader(""))
	if err := reg.Load(); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return reg
}

// countingStore counts loads that reach the backing store
type countingStore struct {
	*progression.MemoryStore
	loads atomic.Int32
}

func (c *countingStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	c.loads.Add(1)
	return c.MemoryStore.Load(ctx, userID)
}

func TestIntegration_CachedStore(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	inner := &countingStore{MemoryStore: progression.NewMemoryStore()}
	store := cache.NewCachedStore(inner, client, "test:", time.Minute)

	snap := domain.NewSnapshot("u1", time.Now())
	if err := snap.GrantXP(30); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		got, err := store.Load(ctx, "u1")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got.TotalXP != 30 || got.Version != 1 {
			t.Errorf("Load() = %d xp v%d; want 30 xp v1", got.TotalXP, got.Version)
		}
	}
	if n := inner.loads.Load(); n != 1 {
		t.Errorf("backing loads = %d; only the first load should miss", n)
	}

	cached, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cached.GrantXP(20); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, cached); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.TotalXP != 50 {
		t.Errorf("TotalXP = %d; save must evict the stale copy", got.TotalXP)
	}
	if n := inner.loads.Load(); n != 2 {
		t.Errorf("backing loads = %d; want 2", n)
	}
}

func TestIntegration_ServiceWithCacheAndLock(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	cat := mustCatalog(t)
	store := cache.NewCachedStore(progression.NewMemoryStore(), client, "svc:", time.Minute)
	svc := progression.NewService(store, cat, progression.WithLocker(cache.NewLock(client, "svc:", 5*time.Second)))

	var wg sync.WaitGroup
	for _, lesson := range []string{"101", "102", "202"} {
		wg.Add(1)
		go func(lesson string) {
			defer wg.Done()
			_, err := svc.HandleCompletion(ctx, domain.CompletionEvent{
				UserID:     "u1",
				LessonID:   lesson,
				Stage:      domain.StageRecipe,
				OccurredAt: time.Now(),
			})
			if err != nil {
				t.Errorf("HandleCompletion(%s) error = %v", lesson, err)
			}
		}(lesson)
	}
	wg.Wait()

	snap, err := svc.GetSnapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if len(snap.CompletedLessonIDs) != 3 || snap.TotalXP != 140 {
		t.Errorf("snapshot = %v completed, %d xp; want 3 lessons, 140 xp", snap.CompletedLessonIDs, snap.TotalXP)
	}
}

func TestIntegration_LockMutualExclusion(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	lock := cache.NewLock(client, "test:", 5*time.Second)

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := lock.Lock(ctx, "user:u1")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			n := holders.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(10 * time.Millisecond)
			holders.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if n := maxSeen.Load(); n != 1 {
		t.Errorf("max concurrent holders = %d; want 1", n)
	}
	n, err := client.Exists(ctx, lock.LockKey("user:u1")).Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Error("lock key should be released")
	}
}

func TestIntegration_LockTimeoutAndExpiry(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()
	ctx := context.Background()

	lock := cache.NewLock(client, "test:", 300*time.Millisecond)

	unlock, err := lock.Lock(ctx, "user:u2")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := lock.Lock(waitCtx, "user:u2"); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("Lock() while held error = %v; want ErrConcurrencyConflict", err)
	}

	// the lease expires and a new holder takes over; the stale unlock must not free it
	unlock2, err := lock.Lock(ctx, "user:u2")
	if err != nil {
		t.Fatalf("Lock() after expiry error = %v", err)
	}
	unlock()

	n, err := client.Exists(ctx, lock.LockKey("user:u2")).Result()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Error("stale unlock released the new holder's lease")
	}
	unlock2()
}
