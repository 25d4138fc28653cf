// Package storage holds the backend-independent pieces of the persistence layer.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

// ResilientConfig holds configuration for the resilient store wrapper
type ResilientConfig struct {
	// MaxAttempts per call, including the first one (default: 3)
	MaxAttempts int

	// InitialDelay between retries (default: 50ms)
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff (default: 2s)
	MaxDelay time.Duration

	// FailureThreshold is the number of consecutive failures that opens the breaker (default: 5)
	FailureThreshold int

	// OpenTimeout is how long the breaker stays open before probing (default: 30s)
	OpenTimeout time.Duration

	// MaxConcurrent store calls (default: 16)
	MaxConcurrent int

	Logger *slog.Logger
}

// DefaultResilientConfig returns defaults suited to a local database
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxAttempts:      3,
		InitialDelay:     50 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		MaxConcurrent:    16,
	}
}

// outcome carries a store result through the fortify pipeline. Domain
// errors ride in err so they neither trip the breaker nor get retried.
type outcome struct {
	snap *domain.Snapshot
	err  error
}

// ResilientStore wraps a SnapshotStore with retry, circuit breaking and a
// concurrency limit. Only infrastructure failures count against the store.
type ResilientStore struct {
	inner          progression.SnapshotStore
	circuitBreaker circuitbreaker.CircuitBreaker[outcome]
	retrier        retry.Retry[outcome]
	bulkhead       bulkhead.Bulkhead[outcome]
	state          atomic.Value
	logger         *slog.Logger
}

// NewResilientStore wraps inner with resilience patterns using fortify
func NewResilientStore(inner progression.SnapshotStore, cfg ResilientConfig) *ResilientStore {
	def := DefaultResilientConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	rs := &ResilientStore{inner: inner, logger: cfg.Logger}

	threshold := cfg.FailureThreshold
	rs.state.Store("closed")
	rs.circuitBreaker = circuitbreaker.New[outcome](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= threshold
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			rs.state.Store(to.String())
			rs.logger.Warn("store circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	rs.retrier = retry.New[outcome](retry.Config{
		MaxAttempts:   cfg.MaxAttempts,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	})

	rs.bulkhead = bulkhead.New[outcome](bulkhead.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxQueue:      cfg.MaxConcurrent * 4,
		QueueTimeout:  5 * time.Second,
	})

	return rs
}

// expected reports whether err is a domain answer rather than a store failure
func expected(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrConcurrencyConflict) ||
		errors.Is(err, domain.ErrInvalidArgument)
}

func (r *ResilientStore) execute(ctx context.Context, op func(ctx context.Context) outcome) (outcome, error) {
	attempt := func(ctx context.Context) (outcome, error) {
		return r.bulkhead.Execute(ctx, func(ctx context.Context) (outcome, error) {
			res := op(ctx)
			if res.err != nil && !expected(res.err) {
				return outcome{}, res.err
			}
			return res, nil
		})
	}

	return r.circuitBreaker.Execute(ctx, func(ctx context.Context) (outcome, error) {
		return r.retrier.Do(ctx, attempt)
	})
}

// Load reads a snapshot through the resilience pipeline
func (r *ResilientStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	res, err := r.execute(ctx, func(ctx context.Context) outcome {
		snap, err := r.inner.Load(ctx, userID)
		return outcome{snap: snap, err: err}
	})
	if err != nil {
		return nil, err
	}
	return res.snap, res.err
}

// Save writes a snapshot through the resilience pipeline. A retried save
// whose earlier attempt did commit surfaces as a version conflict.
func (r *ResilientStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	res, err := r.execute(ctx, func(ctx context.Context) outcome {
		return outcome{err: r.inner.Save(ctx, snap)}
	})
	if err != nil {
		return err
	}
	return res.err
}

// State returns the circuit breaker state, e.g. for the status endpoint
func (r *ResilientStore) State() string {
	s, _ := r.state.Load().(string)
	return s
}

var _ progression.SnapshotStore = (*ResilientStore)(nil)
