package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

func TestSnapshotStore(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	snaps := NewSnapshotStore(store)
	ctx := context.Background()

	if _, err := snaps.Load(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Load() error = %v; want ErrNotFound", err)
	}

	snap := domain.NewSnapshot("u1", time.Now())
	snap.MarkCompleted("101")
	_ = snap.GrantXP(50)
	if err := snaps.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d; want 1", snap.Version)
	}

	loaded, err := snaps.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.TotalXP != 50 || !loaded.HasCompleted("101") || loaded.Version != 1 {
		t.Errorf("loaded = %+v", loaded)
	}

	stale := loaded.Clone()
	if err := snaps.Save(ctx, loaded); err != nil {
		t.Fatalf("Save(loaded) error = %v", err)
	}
	if err := snaps.Save(ctx, stale); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("Save(stale) error = %v; want ErrConcurrencyConflict", err)
	}
	if stale.Version != 1 {
		t.Errorf("stale Version changed to %d", stale.Version)
	}

	users, _ := snaps.Users()
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("Users() = %v; want [u1]", users)
	}
}

func TestNotificationStore(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	inbox := NewNotificationStore(store)
	ctx := context.Background()

	empty, err := inbox.List(ctx, "u1", 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("List() = %v, %v; want empty", empty, err)
	}

	for i := 1; i <= maxInboxSize+5; i++ {
		if err := inbox.Notify(ctx, domain.NewLevelUpNotification("u1", i, time.Now())); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
	}

	all, _ := inbox.List(ctx, "u1", 0)
	if len(all) != maxInboxSize {
		t.Errorf("inbox size = %d; want %d", len(all), maxInboxSize)
	}

	latest, _ := inbox.List(ctx, "u1", 2)
	if len(latest) != 2 || latest[0].Level != maxInboxSize+5 {
		t.Errorf("latest = %+v; want newest first", latest)
	}
}
