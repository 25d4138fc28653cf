package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

// unreachableClient points at a port nothing listens on
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Addr != "localhost:6379" {
		t.Errorf("Addr = %q; want localhost:6379", cfg.Addr)
	}
	if cfg.KeyPrefix != "ndole:" {
		t.Errorf("KeyPrefix = %q; want ndole:", cfg.KeyPrefix)
	}
	if cfg.PoolSize <= 0 {
		t.Errorf("PoolSize = %d; want positive", cfg.PoolSize)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = -1
	cfg.DialTimeout = 50 * time.Millisecond

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrCacheConnection) {
		t.Errorf("Connect() error = %v; want ErrCacheConnection", err)
	}
}

func TestCachedStore_Keys(t *testing.T) {
	store := NewCachedStore(progression.NewMemoryStore(), unreachableClient(t), "ndole:", 0)
	if got := store.SnapshotKey("u1"); got != "ndole:snapshot:u1" {
		t.Errorf("SnapshotKey() = %q", got)
	}
	if store.ttl != TTLSnapshot {
		t.Errorf("ttl = %v; want %v", store.ttl, TTLSnapshot)
	}

	lock := NewLock(unreachableClient(t), "ndole:", 0)
	if got := lock.LockKey("progression:user:u1"); got != "ndole:lock:progression:user:u1" {
		t.Errorf("LockKey() = %q", got)
	}
	if lock.ttl != TTLLock {
		t.Errorf("lock ttl = %v; want %v", lock.ttl, TTLLock)
	}
}

func TestCachedStore_DegradesWithoutRedis(t *testing.T) {
	inner := progression.NewMemoryStore()
	store := NewCachedStore(inner, unreachableClient(t), "ndole:", time.Minute)
	ctx := context.Background()

	snap := domain.NewSnapshot("u1", time.Now())
	snap.MarkCompleted("101")
	if err := snap.GrantXP(50); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d; want 1", snap.Version)
	}

	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.TotalXP != 50 || !got.HasCompleted("101") {
		t.Errorf("Load() = %d xp, completed %v; want 50 xp with 101", got.TotalXP, got.CompletedLessonIDs)
	}

	if _, err := store.Load(ctx, "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Load(ghost) error = %v; want ErrNotFound", err)
	}
}

func TestCachedStore_PassesConflicts(t *testing.T) {
	inner := progression.NewMemoryStore()
	store := NewCachedStore(inner, unreachableClient(t), "ndole:", time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, domain.NewSnapshot("u1", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	err := store.Save(ctx, domain.NewSnapshot("u1", time.Now()))
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("Save(stale) error = %v; want ErrConcurrencyConflict", err)
	}
}

func TestLock_Unreachable(t *testing.T) {
	lock := NewLock(unreachableClient(t), "ndole:", time.Second)

	unlock, err := lock.Lock(context.Background(), "u1")
	if err == nil {
		t.Fatal("Lock() succeeded without redis")
	}
	if unlock != nil {
		t.Error("Lock() returned an unlock func on failure")
	}
}

func TestLock_CancelledContext(t *testing.T) {
	lock := NewLock(unreachableClient(t), "ndole:", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := lock.Lock(ctx, "u1"); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("Lock() error = %v; want ErrConcurrencyConflict", err)
	}
}
