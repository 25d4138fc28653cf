package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/felixgeelhaar/ndole/internal/catalog"
	"github.com/felixgeelhaar/ndole/internal/config"
	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

var errNotImplemented = errors.New("mock: not implemented")

// mockProgressionService implements progression.ProgressionService for testing
type mockProgressionService struct {
	handleCompletionFn func(ctx context.Context, event domain.CompletionEvent) (*domain.ChangeSet, error)
	getSnapshotFn      func(ctx context.Context, userID string) (*domain.Snapshot, error)
	isUnlockedFn       func(entry domain.Unlockable, snapshot *domain.Snapshot) (bool, error)
	catalogViewFn      func(ctx context.Context, userID string) (*progression.CatalogView, error)
}

func (m *mockProgressionService) HandleCompletion(ctx context.Context, event domain.CompletionEvent) (*domain.ChangeSet, error) {
	if m.handleCompletionFn != nil {
		return m.handleCompletionFn(ctx, event)
	}
	return nil, errNotImplemented
}

func (m *mockProgressionService) GetSnapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	if m.getSnapshotFn != nil {
		return m.getSnapshotFn(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockProgressionService) IsUnlocked(entry domain.Unlockable, snapshot *domain.Snapshot) (bool, error) {
	if m.isUnlockedFn != nil {
		return m.isUnlockedFn(entry, snapshot)
	}
	return false, errNotImplemented
}

func (m *mockProgressionService) CatalogView(ctx context.Context, userID string) (*progression.CatalogView, error) {
	if m.catalogViewFn != nil {
		return m.catalogViewFn(ctx, userID)
	}
	return nil, errNotImplemented
}

var _ progression.ProgressionService = (*mockProgressionService)(nil)

// mockNotificationLister implements NotificationLister for testing
type mockNotificationLister struct {
	listFn func(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

func (m *mockNotificationLister) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, limit)
	}
	return nil, errNotImplemented
}

var _ NotificationLister = (*mockNotificationLister)(nil)

// testMocks bundles a server with the mocks behind it
type testMocks struct {
	server        *Server
	service       *mockProgressionService
	notifications *mockNotificationLister
}

var fixedNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// newServerWithMocks builds a server over mock services and the embedded catalog
func newServerWithMocks() *testMocks {
	reg := catalog.NewRegistry(catalog.NewLoader(""))
	if err := reg.Load(); err != nil {
		panic(err)
	}

	m := &testMocks{
		service:       &mockProgressionService{},
		notifications: &mockNotificationLister{},
	}
	m.server = &Server{
		cfg:           config.DefaultLocalConfig(),
		router:        http.NewServeMux(),
		version:       "test",
		clock:         func() time.Time { return fixedNow },
		service:       m.service,
		catalog:       reg,
		notifications: m.notifications,
	}
	m.server.setupRoutes()
	return m
}
