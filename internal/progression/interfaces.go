package progression

import (
	"context"
	"time"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

// ProgressionService defines the operations exposed to transports
// (HTTP daemon, MCP tools, queue consumer)
type ProgressionService interface {
	// HandleCompletion applies a completion event; it is the only mutating entry point
	HandleCompletion(ctx context.Context, event domain.CompletionEvent) (*domain.ChangeSet, error)

	// GetSnapshot returns a user's progression for read-only rendering
	GetSnapshot(ctx context.Context, userID string) (*domain.Snapshot, error)

	// IsUnlocked reports whether a catalog entry is available for a snapshot
	IsUnlocked(entry domain.Unlockable, snapshot *domain.Snapshot) (bool, error)

	// CatalogView returns the catalog annotated with a user's unlock state
	CatalogView(ctx context.Context, userID string) (*CatalogView, error)
}

// Ensure Service implements ProgressionService
var _ ProgressionService = (*Service)(nil)

// SnapshotStore persists per-user progression snapshots.
//
// Load returns an error wrapping domain.ErrNotFound when the user has no
// snapshot yet. Save writes the snapshot in a single operation; stores that
// track Snapshot.Version return domain.ErrConcurrencyConflict when the stored
// version no longer matches and bump Version on success.
type SnapshotStore interface {
	Load(ctx context.Context, userID string) (*domain.Snapshot, error)
	Save(ctx context.Context, snapshot *domain.Snapshot) error
}

// Catalog supplies immutable level and lesson definitions.
// Missing ids return an error wrapping domain.ErrNotFound.
type Catalog interface {
	GetLevel(id string) (*domain.CatalogLevel, error)
	GetLesson(id string) (*domain.CatalogLesson, error)
	ListLevels() []*domain.CatalogLevel
}

// Notifier receives level-up and achievement notifications. Delivery is
// fire-and-forget from the coordinator's point of view: errors are logged.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Locker serializes work per key. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Recorder observes completion outcomes, e.g. for metrics
type Recorder interface {
	ObserveCompletion(stage domain.StageType, outcome string, xpGained int, duration time.Duration)
}

// Clock returns the current time
type Clock func() time.Time
