package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotStore persists progression snapshots in Postgres using a
// version column for optimistic concurrency.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new Postgres snapshot store
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Load retrieves the snapshot of a user
func (s *SnapshotStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	query := `SELECT data, version FROM progress_snapshots WHERE user_id = $1`

	var (
		data    []byte
		version int64
	)
	if err := s.pool.QueryRow(ctx, query, userID).Scan(&data, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: progression for user %q", domain.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	snap.UserID = userID
	snap.Version = version
	snap.Normalize()
	return &snap, nil
}

// Save writes the snapshot if nobody else saved it since it was loaded
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.UserID == "" {
		return fmt.Errorf("%w: snapshot without user id", domain.ErrInvalidArgument)
	}

	next := snap.Version + 1
	stored := *snap
	stored.Version = next
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	var query string
	var args []any
	if snap.Version == 0 {
		query = `
			INSERT INTO progress_snapshots (user_id, version, total_xp, level, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (user_id) DO NOTHING
		`
		args = []any{snap.UserID, next, snap.TotalXP, snap.Level, data, snap.CreatedAt, snap.UpdatedAt}
	} else {
		query = `
			UPDATE progress_snapshots
			SET version = $2, total_xp = $3, level = $4, data = $5, updated_at = $6
			WHERE user_id = $1 AND version = $7
		`
		args = []any{snap.UserID, next, snap.TotalXP, snap.Level, data, snap.UpdatedAt, snap.Version}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: snapshot of %q changed since version %d", domain.ErrConcurrencyConflict, snap.UserID, snap.Version)
	}

	snap.Version = next
	return nil
}

// Count returns the number of users with progression
func (s *SnapshotStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM progress_snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}
