package progression

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

// MemoryStore is a SnapshotStore kept in process memory. It stores deep
// copies and enforces the same version check as the database stores.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.Snapshot
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*domain.Snapshot)}
}

// Load returns a copy of the user's snapshot
func (m *MemoryStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[userID]
	if !ok {
		return nil, fmt.Errorf("%w: progression for user %q", domain.ErrNotFound, userID)
	}
	return snap.Clone(), nil
}

// Save stores a copy of snap when its version matches the stored one
func (m *MemoryStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.UserID == "" {
		return fmt.Errorf("%w: snapshot without user id", domain.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var stored int64
	if existing, ok := m.snapshots[snap.UserID]; ok {
		stored = existing.Version
	}
	if stored != snap.Version {
		return fmt.Errorf("%w: user %q at version %d, got %d", domain.ErrConcurrencyConflict, snap.UserID, stored, snap.Version)
	}

	snap.Version++
	m.snapshots[snap.UserID] = snap.Clone()
	return nil
}

// Len returns the number of stored snapshots
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}
