package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a distributed progression.Locker built on SET NX PX.
// The lease expires after TTL so a crashed holder cannot wedge a user.
type Lock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// NewLock creates a Lock. Non-positive ttl uses TTLLock.
func NewLock(client *redis.Client, prefix string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = TTLLock
	}
	return &Lock{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		poll:   25 * time.Millisecond,
	}
}

// LockKey returns the Redis key guarding key
func (l *Lock) LockKey(key string) string {
	return l.prefix + PrefixLock + key
}

// Lock polls until the lease is acquired or ctx is done
func (l *Lock) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.LockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: waiting for lock on %q: %v", domain.ErrConcurrencyConflict, key, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for lock on %q: %v", domain.ErrConcurrencyConflict, key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			// an expired lease may already belong to someone else; the script leaves it alone
			_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}

var _ progression.Locker = (*Lock)(nil)
