package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

// CachedStore is a read-through snapshot cache. Saves go to the backing store
// first and then evict the cached copy; Redis failures never fail a call.
type CachedStore struct {
	inner  progression.SnapshotStore
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore wraps inner. A non-positive ttl uses TTLSnapshot.
func NewCachedStore(inner progression.SnapshotStore, client *redis.Client, prefix string, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = TTLSnapshot
	}
	return &CachedStore{
		inner:  inner,
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: slog.Default(),
	}
}

// SnapshotKey returns the cache key for a user's snapshot
func (c *CachedStore) SnapshotKey(userID string) string {
	return c.prefix + PrefixSnapshot + userID
}

// Load serves from Redis when possible and fills the cache on a miss
func (c *CachedStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	snap, err := c.get(ctx, userID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("snapshot cache read failed", "user_id", userID, "error", err)
	}

	snap, err = c.inner.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, snap)
	return snap, nil
}

// Save writes through to the backing store and evicts the cached copy
func (c *CachedStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if err := c.inner.Save(ctx, snap); err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			c.Invalidate(ctx, snap.UserID)
		}
		return err
	}
	c.Invalidate(ctx, snap.UserID)
	return nil
}

// Invalidate drops a user's cached snapshot
func (c *CachedStore) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, c.SnapshotKey(userID)).Err(); err != nil {
		c.logger.Warn("snapshot cache eviction failed", "user_id", userID, "error", err)
	}
}

func (c *CachedStore) get(ctx context.Context, userID string) (*domain.Snapshot, error) {
	data, err := c.client.Get(ctx, c.SnapshotKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	snap.Normalize()
	return &snap, nil
}

func (c *CachedStore) set(ctx context.Context, snap *domain.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("snapshot cache encode failed", "user_id", snap.UserID, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.SnapshotKey(snap.UserID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("snapshot cache write failed", "user_id", snap.UserID, "error", err)
	}
}

var _ progression.SnapshotStore = (*CachedStore)(nil)
