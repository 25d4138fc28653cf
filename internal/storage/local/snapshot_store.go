package local

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

const (
	snapshotsCollection     = "snapshots"
	notificationsCollection = "notifications"
	maxInboxSize            = 100
)

// SnapshotStore persists progression snapshots as one JSON file per user.
type SnapshotStore struct {
	store *Store
}

// NewSnapshotStore creates a file-backed snapshot store
func NewSnapshotStore(store *Store) *SnapshotStore {
	return &SnapshotStore{store: store}
}

// Load reads a user's snapshot
func (s *SnapshotStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := s.store.Load(snapshotsCollection, userID, &snap); err != nil {
		return nil, fmt.Errorf("load progression for %q: %w", userID, err)
	}
	snap.UserID = userID
	snap.Normalize()
	return &snap, nil
}

// Save writes the snapshot when the file still holds snap.Version
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.UserID == "" {
		return fmt.Errorf("%w: snapshot without user id", domain.ErrInvalidArgument)
	}

	var current domain.Snapshot
	err := s.store.Update(snapshotsCollection, snap.UserID, &current, func(found bool) error {
		var stored int64
		if found {
			stored = current.Version
		}
		if stored != snap.Version {
			return fmt.Errorf("%w: user %q at version %d, got %d", domain.ErrConcurrencyConflict, snap.UserID, stored, snap.Version)
		}
		current = *snap
		current.Version++
		return nil
	})
	if err != nil {
		return err
	}
	snap.Version++
	return nil
}

// Users lists the ids of users with progression
func (s *SnapshotStore) Users() ([]string, error) {
	return s.store.List(snapshotsCollection)
}

// NotificationStore keeps a bounded per-user notification inbox in JSON files.
type NotificationStore struct {
	store *Store
}

// NewNotificationStore creates a file-backed notification inbox
func NewNotificationStore(store *Store) *NotificationStore {
	return &NotificationStore{store: store}
}

// Notify appends n to the user's inbox, keeping the newest entries
func (s *NotificationStore) Notify(ctx context.Context, n domain.Notification) error {
	var inbox []domain.Notification
	return s.store.Update(notificationsCollection, n.UserID, &inbox, func(bool) error {
		inbox = append(inbox, n)
		if len(inbox) > maxInboxSize {
			inbox = inbox[len(inbox)-maxInboxSize:]
		}
		return nil
	})
}

// List returns up to limit notifications of a user, newest first
func (s *NotificationStore) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	var inbox []domain.Notification
	if err := s.store.Load(notificationsCollection, userID, &inbox); err != nil {
		if err == ErrNotFound {
			return []domain.Notification{}, nil
		}
		return nil, err
	}

	out := make([]domain.Notification, 0, len(inbox))
	for i := len(inbox) - 1; i >= 0; i-- {
		out = append(out, inbox[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
