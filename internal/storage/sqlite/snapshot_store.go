package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

// SnapshotStore persists progression snapshots in SQLite. The full snapshot
// is kept as JSON; total_xp and level are denormalized for listings.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new SQLite-backed snapshot store.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Load retrieves the snapshot of a user.
func (s *SnapshotStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	var (
		data    string
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, version FROM progress_snapshots WHERE user_id = ?`, userID,
	).Scan(&data, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: progression for user %q", domain.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	snap.UserID = userID
	snap.Version = version
	snap.Normalize()
	return &snap, nil
}

// Save writes the snapshot when the stored version still equals snap.Version
// and increments snap.Version on success.
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

	var result sql.Result
	if snap.Version == 0 {
		result, err = s.db.ExecContext(ctx, `
			INSERT INTO progress_snapshots (user_id, version, total_xp, level, data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO NOTHING`,
			snap.UserID, next, snap.TotalXP, snap.Level, string(data), snap.CreatedAt, snap.UpdatedAt,
		)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE progress_snapshots
			SET version = ?, total_xp = ?, level = ?, data = ?, updated_at = ?
			WHERE user_id = ? AND version = ?`,
			next, snap.TotalXP, snap.Level, string(data), snap.UpdatedAt,
			snap.UserID, snap.Version,
		)
	}
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: snapshot of %q changed since version %d", domain.ErrConcurrencyConflict, snap.UserID, snap.Version)
	}

	snap.Version = next
	return nil
}

// Delete removes a user's snapshot.
func (s *SnapshotStore) Delete(ctx context.Context, userID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM progress_snapshots WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: progression for user %q", domain.ErrNotFound, userID)
	}
	return nil
}

// Count returns the number of users with progression.
func (s *SnapshotStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM progress_snapshots").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}
