package progression

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/ndole/internal/catalog"
	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/stretchr/testify/require"
)

var errNotImplemented = errors.New("mock: not implemented")

// mockStore implements SnapshotStore for testing
type mockStore struct {
	loadFn func(ctx context.Context, userID string) (*domain.Snapshot, error)
	saveFn func(ctx context.Context, snap *domain.Snapshot) error

	mu    sync.Mutex
	saves int
}

func (m *mockStore) Load(ctx context.Context, userID string) (*domain.Snapshot, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()
	if m.saveFn != nil {
		return m.saveFn(ctx, snap)
	}
	return errNotImplemented
}

func (m *mockStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

var _ SnapshotStore = (*mockStore)(nil)

// recordingNotifier collects notifications
type recordingNotifier struct {
	mu    sync.Mutex
	got   []domain.Notification
	errFn func(n domain.Notification) error
}

func (r *recordingNotifier) Notify(ctx context.Context, n domain.Notification) error {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	if r.errFn != nil {
		return r.errFn(n)
	}
	return nil
}

func (r *recordingNotifier) notifications() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, len(r.got))
	copy(out, r.got)
	return out
}

// mockLocker implements Locker for testing
type mockLocker struct {
	lockFn func(ctx context.Context, key string) (func(), error)
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	if m.lockFn != nil {
		return m.lockFn(ctx, key)
	}
	return nil, errNotImplemented
}

// mockRecorder captures completion observations
type mockRecorder struct {
	mu       sync.Mutex
	outcomes []string
	xp       int
}

func (m *mockRecorder) ObserveCompletion(stage domain.StageType, outcome string, xpGained int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	m.xp += xpGained
}

// fixedClock returns a clock frozen at t
func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// defaultCatalog loads the embedded learning path
func defaultCatalog(t *testing.T) *catalog.Registry {
	t.Helper()
	reg := catalog.NewRegistry(catalog.NewLoader(""))
	require.NoError(t, reg.Load(), "load default catalog")
	return reg
}

// testLesson builds a lesson for hand-made catalogs
func testLesson(id, levelID string, xp int, req *domain.UnlockRequirements) domain.CatalogLesson {
	return domain.CatalogLesson{
		ID:           id,
		LevelID:      levelID,
		Name:         "Lesson " + id,
		Difficulty:   domain.DifficultyEasy,
		XPReward:     xp,
		Requirements: req,
	}
}

// buildCatalog validates and indexes hand-made levels
func buildCatalog(t *testing.T, levels ...*domain.CatalogLevel) *catalog.Registry {
	t.Helper()
	reg, err := catalog.NewRegistryFromLevels(levels)
	require.NoError(t, err, "build catalog")
	return reg
}

func completion(userID, lessonID string, stage domain.StageType, at time.Time) domain.CompletionEvent {
	return domain.CompletionEvent{
		UserID:     userID,
		LessonID:   lessonID,
		Stage:      stage,
		OccurredAt: at,
	}
}

func intPtr(v int) *int {
	return &v
}
